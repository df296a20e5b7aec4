package verification

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	sl "student_system/internal/lib/logger"
	"student_system/internal/models"
	"student_system/internal/storage"

	"github.com/go-playground/validator/v10"
)

const (
	codeValidity   = 5 * time.Minute
	maxTries       = 5
	sendInterval   = 60 * time.Second
	dailySendLimit = 10
)

var (
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrAlreadyRegistered  = errors.New("email is already registered")
	ErrNotRegistered      = errors.New("email is not registered")
	ErrRateLimited        = errors.New("a code was requested less than a minute ago")
	ErrDailyLimitExceeded = errors.New("daily send limit reached for this email")
	ErrDeliveryFailed     = errors.New("failed to deliver the verification email")

	ErrCodeNotFound     = errors.New("verification code not found")
	ErrCodeInvalidated  = errors.New("verification code is no longer valid")
	ErrCodeExpired      = errors.New("verification code expired")
	ErrMaxTriesExceeded = errors.New("too many failed attempts, request a new code")
)

// CodeMismatchError tells the caller how many attempts are left without
// disclosing the stored code.
type CodeMismatchError struct {
	Remaining int
}

func (e *CodeMismatchError) Error() string {
	return fmt.Sprintf("wrong code, %d attempts remaining", e.Remaining)
}

// CodeStore owns all writes to verification code records. ReplaceCode must
// invalidate the prior PENDING record for (email, scene) and insert the new
// one in a single transaction so that at most one PENDING record exists.
type CodeStore interface {
	ReplaceCode(ctx context.Context, code models.VerificationCode) (int64, error)
	UpdateCode(ctx context.Context, code models.VerificationCode) error
	LatestCode(ctx context.Context, email, scene string) (models.VerificationCode, error)
	CountCodesSince(ctx context.Context, email, scene string, since time.Time) (int64, error)
}

type EmailChecker interface {
	EmailTaken(ctx context.Context, email string) (bool, error)
}

type Dispatcher interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

type Service struct {
	log    *slog.Logger
	codes  CodeStore
	users  EmailChecker
	mailer Dispatcher

	now     func() time.Time
	genCode func() (string, error)
}

var validate = validator.New()

func New(log *slog.Logger, codes CodeStore, users EmailChecker, mailer Dispatcher) *Service {
	return &Service{
		log:     log,
		codes:   codes,
		users:   users,
		mailer:  mailer,
		now:     time.Now,
		genCode: generateCode,
	}
}

// SendCode issues a fresh code for (email, scene) and dispatches it by mail.
// A delivery failure still leaves the new PENDING record persisted; the
// caller may retry after the rate-limit window, which replaces it.
func (s *Service) SendCode(ctx context.Context, email, scene string) error {
	const op = "verification.SendCode"

	log := s.log.With(slog.String("op", op), slog.String("scene", scene))

	email = strings.ToLower(strings.TrimSpace(email))

	if err := validate.Var(email, "required,email"); err != nil {
		return ErrInvalidEmail
	}

	taken, err := s.users.EmailTaken(ctx, email)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	switch scene {
	case models.SceneRegister:
		if taken {
			return ErrAlreadyRegistered
		}
	case models.SceneResetPassword:
		if !taken {
			return ErrNotRegistered
		}
	default:
		return fmt.Errorf("%s: unknown scene %q", op, scene)
	}

	if err := s.checkSendFrequency(ctx, email, scene); err != nil {
		return err
	}

	code, err := s.genCode()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	now := s.now()
	record := models.VerificationCode{
		Email:     email,
		Code:      code,
		Scene:     scene,
		ExpiresAt: now.Add(codeValidity),
		Status:    models.CodePending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := s.codes.ReplaceCode(ctx, record); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	subject, body := buildEmail(code, scene)
	if err := s.mailer.Send(ctx, email, subject, body); err != nil {
		// The record is already committed, only delivery failed.
		log.Error("failed to dispatch verification email", sl.Err(err))
		return ErrDeliveryFailed
	}

	log.Info("verification code sent", slog.String("email", email))

	return nil
}

// VerifyCode compares a submitted code against the latest record for
// (email, scene) and advances its state machine accordingly.
func (s *Service) VerifyCode(ctx context.Context, email, code, scene string) error {
	const op = "verification.VerifyCode"

	email = strings.ToLower(strings.TrimSpace(email))
	code = strings.TrimSpace(code)

	record, err := s.codes.LatestCode(ctx, email, scene)
	if err != nil {
		if errors.Is(err, storage.ErrCodeNotFound) {
			return ErrCodeNotFound
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	now := s.now()

	if record.Status != models.CodePending {
		return ErrCodeInvalidated
	}

	if record.Expired(now) {
		if err := s.codes.UpdateCode(ctx, record.Invalidated(now)); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return ErrCodeExpired
	}

	if record.MaxTriesReached(maxTries) {
		if err := s.codes.UpdateCode(ctx, record.Invalidated(now)); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return ErrMaxTriesExceeded
	}

	if code != record.Code {
		attempted := record.Attempted(now)
		if err := s.codes.UpdateCode(ctx, attempted); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return &CodeMismatchError{Remaining: maxTries - attempted.TryCount}
	}

	if err := s.codes.UpdateCode(ctx, record.Consumed(now)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("verification code accepted",
		slog.String("op", op),
		slog.String("email", email),
		slog.String("scene", scene),
	)

	return nil
}

// checkSendFrequency counts over the persisted history so limits survive a
// restart. The count and the later insert are separate statements, so two
// concurrent sends for the same (email, scene) can both slip through the
// 60-second window. Accepted at human-driven request rates.
func (s *Service) checkSendFrequency(ctx context.Context, email, scene string) error {
	const op = "verification.checkSendFrequency"

	now := s.now()

	recent, err := s.codes.CountCodesSince(ctx, email, scene, now.Add(-sendInterval))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if recent > 0 {
		return ErrRateLimited
	}

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	today, err := s.codes.CountCodesSince(ctx, email, scene, midnight)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if today >= dailySendLimit {
		return ErrDailyLimitExceeded
	}

	return nil
}

// generateCode draws a uniform 6-digit code, leading zeros included.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func buildEmail(code, scene string) (subject, body string) {
	subject = "Email verification code"
	if scene == models.SceneResetPassword {
		subject = "Password reset code"
	}

	body = fmt.Sprintf(
		`<h2>Student Records</h2><p>Your verification code is: <b>%s</b></p><p>The code is valid for 5 minutes. If this was not you, ignore this email.</p>`,
		code,
	)

	return subject, body
}
