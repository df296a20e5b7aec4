package models

import (
	"slices"
	"time"
)

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

const (
	SceneRegister      = "register"
	SceneResetPassword = "reset_password"
)

type User struct {
	ID       int64
	Username string
	Email    string
	PassHash []byte
	Roles    []string
}

func (u User) HasRole(role string) bool {
	return slices.Contains(u.Roles, role)
}

type CodeStatus int

const (
	CodePending     CodeStatus = 0
	CodeConsumed    CodeStatus = 1
	CodeInvalidated CodeStatus = 2
)

// VerificationCode is a single issued email code. Records are never deleted;
// state changes go through the transition methods below, which return an
// updated snapshot instead of mutating in place.
type VerificationCode struct {
	ID        int64
	Email     string
	Code      string
	Scene     string
	ExpiresAt time.Time
	TryCount  int
	Status    CodeStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (c VerificationCode) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

func (c VerificationCode) MaxTriesReached(max int) bool {
	return c.TryCount >= max
}

func (c VerificationCode) Invalidated(now time.Time) VerificationCode {
	c.Status = CodeInvalidated
	c.UpdatedAt = now
	return c
}

func (c VerificationCode) Consumed(now time.Time) VerificationCode {
	c.Status = CodeConsumed
	c.UpdatedAt = now
	return c
}

// Attempted records one failed comparison.
func (c VerificationCode) Attempted(now time.Time) VerificationCode {
	c.TryCount++
	c.UpdatedAt = now
	return c
}

type Student struct {
	ID        int64     `json:"id"`
	Number    string    `json:"number"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Major     string    `json:"major,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
