package sendcode

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
	Scene string `json:"scene" validate:"omitempty,oneof=register reset_password"`
}

type CodeSender interface {
	SendCode(ctx context.Context, email, scene string) error
}

func New(log *slog.Logger, validate *validator.Validate, sender CodeSender) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.sendcode.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("failed to decode request body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error(resp.CodeInvalidEmailFormat, "email must not be empty"))

			return
		}

		if err := validate.Struct(req); err != nil {
			var validateErr validator.ValidationErrors
			errors.As(err, &validateErr)

			log.Error("invalid request", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationError(resp.CodeInvalidEmailFormat, validateErr))

			return
		}

		// Older clients do not send the scene.
		if req.Scene == "" {
			req.Scene = models.SceneRegister
		}

		if err := sender.SendCode(r.Context(), req.Email, req.Scene); err != nil {
			code, known := errorCode(err)
			if known {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error(code, err.Error()))

				return
			}

			log.Error("failed to send verification code", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error(resp.CodeSendFailed, "mail service error, try again later"))

			return
		}

		render.JSON(w, r, resp.Response{Code: resp.CodeOK, Message: "verification code sent"})
	}
}

func errorCode(err error) (code int, known bool) {
	switch {
	case errors.Is(err, verification.ErrInvalidEmail):
		return resp.CodeInvalidEmailFormat, true
	case errors.Is(err, verification.ErrAlreadyRegistered):
		return resp.CodeEmailRegistered, true
	case errors.Is(err, verification.ErrNotRegistered):
		return resp.CodeEmailNotRegistered, true
	case errors.Is(err, verification.ErrRateLimited):
		return resp.CodeRateLimited, true
	case errors.Is(err, verification.ErrDailyLimitExceeded):
		return resp.CodeDailyLimit, true
	}

	return resp.CodeSendFailed, false
}
