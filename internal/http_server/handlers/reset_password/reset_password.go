package resetpassword

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	resp "student_system/internal/lib/api/response"
	sl "student_system/internal/lib/logger"
	"student_system/internal/storage"
	"student_system/internal/verification"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	Email       string `json:"email" validate:"required,email"`
	Code        string `json:"code" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=6"`
}

type PasswordResetter interface {
	ResetPassword(ctx context.Context, email, code, newPassword string) error
}

func New(log *slog.Logger, validate *validator.Validate, resetter PasswordResetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.resetpassword.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("failed to decode request body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error(resp.CodeBadRequest, "failed to decode request"))

			return
		}

		if err := validate.Struct(req); err != nil {
			var validateErr validator.ValidationErrors
			errors.As(err, &validateErr)

			log.Error("invalid request", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationError(resp.CodeBadRequest, validateErr))

			return
		}

		if err := resetter.ResetPassword(r.Context(), req.Email, req.Code, req.NewPassword); err != nil {
			if msg, ok := verifyFailure(err); ok {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error(resp.CodeBadRequest, msg))

				return
			}

			log.Error("failed to reset password", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error(resp.CodeInternal, "failed to reset password, try again later"))

			return
		}

		render.JSON(w, r, resp.Response{Code: resp.CodeOK, Message: "password has been reset"})
	}
}

// verifyFailure reports whether err is a user-facing verification or lookup
// failure, as opposed to a server fault.
func verifyFailure(err error) (msg string, ok bool) {
	var mismatch *verification.CodeMismatchError

	switch {
	case errors.As(err, &mismatch),
		errors.Is(err, verification.ErrCodeExpired),
		errors.Is(err, verification.ErrCodeNotFound),
		errors.Is(err, verification.ErrCodeInvalidated),
		errors.Is(err, verification.ErrMaxTriesExceeded):
		return err.Error(), true
	case errors.Is(err, storage.ErrUserNotFound):
		return "email is not registered", true
	}

	return "", false
}
