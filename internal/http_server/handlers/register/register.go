package register

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"student_system/internal/auth"
	resp "student_system/internal/lib/api/response"
	sl "student_system/internal/lib/logger"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required,min=6"`
	Email    string `json:"email" validate:"required,email"`
}

type Response struct {
	resp.Response
	UserID int64 `json:"user_id"`
}

type UserRegistrar interface {
	Register(ctx context.Context, username, email, password string) (int64, error)
}

func New(log *slog.Logger, validate *validator.Validate, registrar UserRegistrar) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.register.New"

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

		userID, err := registrar.Register(r.Context(), req.Username, req.Email, req.Password)
		if err != nil {
			if errors.Is(err, auth.ErrUserExists) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error(resp.CodeBadRequest, "username is already taken"))

				return
			}

			log.Error("failed to register user", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error(resp.CodeInternal, "internal error"))

			return
		}

		log.Info("user registered", slog.Int64("id", userID))

		render.JSON(w, r, Response{
			Response: resp.OK(),
			UserID:   userID,
		})
	}
}
