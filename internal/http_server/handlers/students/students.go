package students

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	resp "student_system/internal/lib/api/response"
	sl "student_system/internal/lib/logger"
	"student_system/internal/models"
	svc "student_system/internal/students"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	Number string `json:"number" validate:"required"`
	Name   string `json:"name" validate:"required"`
	Email  string `json:"email" validate:"omitempty,email"`
	Major  string `json:"major"`
}

type Response struct {
	resp.Response
	Student  *models.Student  `json:"student,omitempty"`
	Students []models.Student `json:"students,omitempty"`
}

func List(log *slog.Logger, service *svc.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.students.List"

		log := requestLog(log, op, r)

		list, err := service.List(r.Context())
		if err != nil {
			log.Error("failed to list students", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error(resp.CodeInternal, "internal error"))

			return
		}

		render.JSON(w, r, Response{Response: resp.OK(), Students: list})
	}
}

func Create(log *slog.Logger, validate *validator.Validate, service *svc.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.students.Create"

		log := requestLog(log, op, r)

		req, ok := decode(w, r, log, validate)
		if !ok {
			return
		}

		id, err := service.Create(r.Context(), models.Student{
			Number: req.Number,
			Name:   req.Name,
			Email:  req.Email,
			Major:  req.Major,
		})
		if err != nil {
			if errors.Is(err, svc.ErrDuplicateNumber) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error(resp.CodeBadRequest, "student number is already taken"))

				return
			}

			log.Error("failed to create student", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error(resp.CodeInternal, "internal error"))

			return
		}

		render.JSON(w, r, Response{Response: resp.OK(), Student: &models.Student{
			ID:     id,
			Number: req.Number,
			Name:   req.Name,
			Email:  req.Email,
			Major:  req.Major,
		}})
	}
}

func Get(log *slog.Logger, service *svc.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.students.Get"

		log := requestLog(log, op, r)

		id, ok := studentID(w, r)
		if !ok {
			return
		}

		student, err := service.Get(r.Context(), id)
		if err != nil {
			if errors.Is(err, svc.ErrNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error(resp.CodeBadRequest, "student not found"))

				return
			}

			log.Error("failed to get student", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error(resp.CodeInternal, "internal error"))

			return
		}

		render.JSON(w, r, Response{Response: resp.OK(), Student: &student})
	}
}

func Update(log *slog.Logger, validate *validator.Validate, service *svc.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.students.Update"

		log := requestLog(log, op, r)

		id, ok := studentID(w, r)
		if !ok {
			return
		}

		req, ok := decode(w, r, log, validate)
		if !ok {
			return
		}

		err := service.Update(r.Context(), models.Student{
			ID:     id,
			Number: req.Number,
			Name:   req.Name,
			Email:  req.Email,
			Major:  req.Major,
		})
		if err != nil {
			switch {
			case errors.Is(err, svc.ErrNotFound):
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error(resp.CodeBadRequest, "student not found"))
			case errors.Is(err, svc.ErrDuplicateNumber):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error(resp.CodeBadRequest, "student number is already taken"))
			default:
				log.Error("failed to update student", sl.Err(err))

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error(resp.CodeInternal, "internal error"))
			}

			return
		}

		render.JSON(w, r, resp.OK())
	}
}

func Delete(log *slog.Logger, service *svc.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.students.Delete"

		log := requestLog(log, op, r)

		id, ok := studentID(w, r)
		if !ok {
			return
		}

		if err := service.Delete(r.Context(), id); err != nil {
			if errors.Is(err, svc.ErrNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error(resp.CodeBadRequest, "student not found"))

				return
			}

			log.Error("failed to delete student", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error(resp.CodeInternal, "internal error"))

			return
		}

		render.JSON(w, r, resp.OK())
	}
}

func requestLog(log *slog.Logger, op string, r *http.Request) *slog.Logger {
	return log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
}

func decode(w http.ResponseWriter, r *http.Request, log *slog.Logger, validate *validator.Validate) (Request, bool) {
	var req Request

	if err := render.DecodeJSON(r.Body, &req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))

		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, resp.Error(resp.CodeBadRequest, "failed to decode request"))

		return Request{}, false
	}

	if err := validate.Struct(req); err != nil {
		var validateErr validator.ValidationErrors
		errors.As(err, &validateErr)

		log.Error("invalid request", sl.Err(err))

		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, resp.ValidationError(resp.CodeBadRequest, validateErr))

		return Request{}, false
	}

	return req, true
}

func studentID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, resp.Error(resp.CodeBadRequest, "invalid student id"))

		return 0, false
	}

	return id, true
}
