package verifycode

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	resp "student_system/internal/lib/api/response"
	sl "student_system/internal/lib/logger"
	"student_system/internal/models"
	"student_system/internal/verification"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	Email string `json:"email" validate:"required"`
	Code  string `json:"code" validate:"required"`
	Scene string `json:"scene" validate:"omitempty,oneof=register reset_password"`
}

type CodeVerifier interface {
	VerifyCode(ctx context.Context, email, code, scene string) error
}

func New(log *slog.Logger, validate *validator.Validate, verifier CodeVerifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.verifycode.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("failed to decode request body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error(resp.CodeMismatch, "email and code must not be empty"))

			return
		}

		if err := validate.Struct(req); err != nil {
			var validateErr validator.ValidationErrors
			errors.As(err, &validateErr)

			log.Error("invalid request", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationError(resp.CodeMismatch, validateErr))

			return
		}

		if req.Scene == "" {
			req.Scene = models.SceneRegister
		}

		if err := verifier.VerifyCode(r.Context(), req.Email, req.Code, req.Scene); err != nil {
			code, known := errorCode(err)
			if known {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error(code, err.Error()))

				return
			}

			log.Error("failed to verify code", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error(resp.CodeVerifyFailed, "verification failed, try again later"))

			return
		}

		render.JSON(w, r, resp.Response{Code: resp.CodeOK, Message: "verified"})
	}
}

func errorCode(err error) (code int, known bool) {
	var mismatch *verification.CodeMismatchError

	switch {
	case errors.As(err, &mismatch):
		return resp.CodeMismatch, true
	case errors.Is(err, verification.ErrCodeExpired),
		errors.Is(err, verification.ErrCodeNotFound):
		return resp.CodeExpiredOrMissing, true
	case errors.Is(err, verification.ErrMaxTriesExceeded),
		errors.Is(err, verification.ErrCodeInvalidated):
		return resp.CodeTooManyTries, true
	}

	return resp.CodeVerifyFailed, false
}
