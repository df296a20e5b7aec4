package storage

import "errors"

var (
	ErrUserExists      = errors.New("user already exists")
	ErrUserNotFound    = errors.New("user not found")
	ErrCodeNotFound    = errors.New("verification code not found")
	ErrStudentExists   = errors.New("student already exists")
	ErrStudentNotFound = errors.New("student not found")
)
