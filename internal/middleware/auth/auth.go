package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	resp "student_system/internal/lib/api/response"
	"student_system/internal/lib/jwt"
	sl "student_system/internal/lib/logger"
	"student_system/internal/models"
	"student_system/internal/storage"

	"github.com/go-chi/render"
)

type principalKey struct{}

type UserProvider interface {
	UserByUsername(ctx context.Context, username string) (models.User, error)
}

// New builds the per-request authenticator. It reads the bearer token,
// resolves the identity and stores it in the request context. It never
// aborts the chain itself: any failure just means the request continues
// unauthenticated, and the role gates further down decide what to reject.
func New(log *slog.Logger, tokens *jwt.TokenManager, users UserProvider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			subject, err := tokens.ParseSubject(token)
			if err != nil {
				log.Debug("token rejected", sl.Err(err))
				next.ServeHTTP(w, r)
				return
			}

			if _, ok := Principal(r.Context()); ok {
				next.ServeHTTP(w, r)
				return
			}

			user, err := users.UserByUsername(r.Context(), subject)
			if err != nil {
				if !errors.Is(err, storage.ErrUserNotFound) {
					log.Error("failed to load token subject", sl.Err(err))
				}
				next.ServeHTTP(w, r)
				return
			}

			if !tokens.Validate(token) {
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), principalKey{}, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Principal returns the authenticated identity established for this request,
// if any.
func Principal(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(principalKey{}).(models.User)
	return user, ok
}

// RequireAuth rejects requests without an authenticated principal.
func RequireAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := Principal(r.Context()); !ok {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error(resp.CodeUnauthorized, "authentication required"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireRoles rejects requests whose principal holds none of the roles.
func RequireRoles(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := Principal(r.Context())
			if !ok {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error(resp.CodeUnauthorized, "authentication required"))
				return
			}

			for _, role := range user.Roles {
				if _, ok := allowed[role]; ok {
					next.ServeHTTP(w, r)
					return
				}
			}

			render.Status(r, http.StatusForbidden)
			render.JSON(w, r, resp.Error(resp.CodeForbidden, "forbidden"))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
