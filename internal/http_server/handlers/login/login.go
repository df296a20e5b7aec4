package login

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
	Password string `json:"password" validate:"required"`
}

type Response struct {
	resp.Response
	Token string `json:"token"`
}

type UserLoginer interface {
	Login(ctx context.Context, username, password string) (string, error)
}

func New(log *slog.Logger, validate *validator.Validate, loginer UserLoginer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.login.New"

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

		token, err := loginer.Login(r.Context(), req.Username, req.Password)
		if err != nil {
			// One message for unknown username and wrong password both.
			if errors.Is(err, auth.ErrInvalidCredentials) {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error(resp.CodeUnauthorized, "invalid username or password"))

				return
			}

			log.Error("failed to login user", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error(resp.CodeInternal, "internal error"))

			return
		}

		render.JSON(w, r, Response{
			Response: resp.OK(),
			Token:    token,
		})
	}
}
