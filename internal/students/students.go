package students

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	sl "student_system/internal/lib/logger"
	"student_system/internal/models"
	"student_system/internal/storage"
)

var (
	ErrNotFound        = errors.New("student not found")
	ErrDuplicateNumber = errors.New("student number is already taken")
)

type StudentStore interface {
	SaveStudent(ctx context.Context, s models.Student) (int64, error)
	Students(ctx context.Context) ([]models.Student, error)
	StudentByID(ctx context.Context, id int64) (models.Student, error)
	UpdateStudent(ctx context.Context, s models.Student) error
	DeleteStudent(ctx context.Context, id int64) error
}

type Service struct {
	log   *slog.Logger
	store StudentStore
}

func New(log *slog.Logger, store StudentStore) *Service {
	return &Service{log: log, store: store}
}

func (s *Service) Create(ctx context.Context, student models.Student) (int64, error) {
	const op = "students.Create"

	id, err := s.store.SaveStudent(ctx, student)
	if err != nil {
		if errors.Is(err, storage.ErrStudentExists) {
			return 0, ErrDuplicateNumber
		}

		s.log.Error("failed to save student", slog.String("op", op), sl.Err(err))
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("student created", slog.String("op", op), slog.Int64("id", id))

	return id, nil
}

func (s *Service) List(ctx context.Context) ([]models.Student, error) {
	const op = "students.List"

	list, err := s.store.Students(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return list, nil
}

func (s *Service) Get(ctx context.Context, id int64) (models.Student, error) {
	const op = "students.Get"

	student, err := s.store.StudentByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrStudentNotFound) {
			return models.Student{}, ErrNotFound
		}

		return models.Student{}, fmt.Errorf("%s: %w", op, err)
	}

	return student, nil
}

func (s *Service) Update(ctx context.Context, student models.Student) error {
	const op = "students.Update"

	if err := s.store.UpdateStudent(ctx, student); err != nil {
		switch {
		case errors.Is(err, storage.ErrStudentNotFound):
			return ErrNotFound
		case errors.Is(err, storage.ErrStudentExists):
			return ErrDuplicateNumber
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("student updated", slog.String("op", op), slog.Int64("id", student.ID))

	return nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	const op = "students.Delete"

	if err := s.store.DeleteStudent(ctx, id); err != nil {
		if errors.Is(err, storage.ErrStudentNotFound) {
			return ErrNotFound
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("student deleted", slog.String("op", op), slog.Int64("id", id))

	return nil
}
