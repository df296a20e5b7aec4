package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"student_system/internal/lib/jwt"
	sl "student_system/internal/lib/logger"
	"student_system/internal/models"
	"student_system/internal/storage"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUserExists         = errors.New("username is already taken")
)

type UserSaver interface {
	SaveUser(ctx context.Context, username, email string, passHash []byte, roles []string) (int64, error)
	UpdatePassword(ctx context.Context, email string, passHash []byte) error
}

type UserProvider interface {
	UserByUsername(ctx context.Context, username string) (models.User, error)
}

type CodeVerifier interface {
	VerifyCode(ctx context.Context, email, code, scene string) error
}

type Auth struct {
	log         *slog.Logger
	usrSaver    UserSaver
	usrProvider UserProvider
	codes       CodeVerifier
	tokens      *jwt.TokenManager
}

func New(
	log *slog.Logger,
	userSaver UserSaver,
	userProvider UserProvider,
	codes CodeVerifier,
	tokens *jwt.TokenManager,
) *Auth {
	return &Auth{
		log:         log,
		usrSaver:    userSaver,
		usrProvider: userProvider,
		codes:       codes,
		tokens:      tokens,
	}
}

// Register creates a new user with the default USER role.
func (a *Auth) Register(ctx context.Context, username, email, password string) (int64, error) {
	const op = "auth.Register"

	log := a.log.With(slog.String("op", op))

	passHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	email = strings.ToLower(strings.TrimSpace(email))

	id, err := a.usrSaver.SaveUser(ctx, username, email, passHash, []string{models.RoleUser})
	if err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			log.Warn("username is already taken")
			return 0, ErrUserExists
		}

		log.Error("failed to save user", sl.Err(err))
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user registered", slog.Int64("id", id))

	return id, nil
}

// Login checks the credentials and issues a token carrying the user's role
// snapshot. An unknown username and a wrong password come back as the same
// error so the response discloses neither.
func (a *Auth) Login(ctx context.Context, username, password string) (string, error) {
	const op = "auth.Login"

	log := a.log.With(slog.String("op", op))

	user, err := a.usrProvider.UserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("login attempt for unknown user")
			return "", ErrInvalidCredentials
		}

		log.Error("failed to get user", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if err := bcrypt.CompareHashAndPassword(user.PassHash, []byte(password)); err != nil {
		log.Info("invalid credentials", slog.Int64("uid", user.ID))
		return "", ErrInvalidCredentials
	}

	token, err := a.tokens.Issue(user.Username, user.Roles)
	if err != nil {
		log.Error("failed to issue token", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user logged in", slog.Int64("uid", user.ID))

	return token, nil
}

// ResetPassword consumes a reset_password verification code and, only if it
// verifies, stores a new password hash for the email's account.
func (a *Auth) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	const op = "auth.ResetPassword"

	log := a.log.With(slog.String("op", op))

	email = strings.ToLower(strings.TrimSpace(email))

	if err := a.codes.VerifyCode(ctx, email, code, models.SceneResetPassword); err != nil {
		return err
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := a.usrSaver.UpdatePassword(ctx, email, passHash); err != nil {
		log.Error("failed to update password", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("password reset", slog.String("email", email))

	return nil
}

// EnsureAdmin idempotently creates the bootstrap ADMIN identity at startup.
func (a *Auth) EnsureAdmin(ctx context.Context, username, password string) error {
	const op = "auth.EnsureAdmin"

	_, err := a.usrProvider.UserByUsername(ctx, username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrUserNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if _, err := a.usrSaver.SaveUser(ctx, username, "", passHash, []string{models.RoleAdmin}); err != nil {
		// Another instance may have won the race, that is fine.
		if errors.Is(err, storage.ErrUserExists) {
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	a.log.Info("bootstrap admin created", slog.String("op", op), slog.String("username", username))

	return nil
}
