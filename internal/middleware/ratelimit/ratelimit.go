package rateLimit

import (
	"net/http"
	"time"

	httprate "github.com/go-chi/httprate"
)

func Login() func(http.Handler) http.Handler {
	return limitByIP(10, 5*time.Minute)
}

func Register() func(http.Handler) http.Handler {
	return limitByIP(5, time.Hour)
}

func SendCode() func(http.Handler) http.Handler {
	return limitByIP(10, 10*time.Minute)
}

func VerifyCode() func(http.Handler) http.Handler {
	return limitByIP(30, 10*time.Minute)
}

func ResetPassword() func(http.Handler) http.Handler {
	return limitByIP(5, time.Hour)
}

func limitByIP(limit int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(limit, window)
}
