package auth

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"student_system/internal/lib/jwt"
	"student_system/internal/models"
	"student_system/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubUsers struct {
	users map[string]models.User
}

func (s *stubUsers) UserByUsername(_ context.Context, username string) (models.User, error) {
	u, ok := s.users[username]
	if !ok {
		return models.User{}, storage.ErrUserNotFound
	}
	return u, nil
}

type captured struct {
	principal models.User
	ok        bool
}

func setup(t *testing.T, ttl time.Duration) (*jwt.TokenManager, http.Handler, *captured) {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokens := jwt.New(log, "0123456789abcdef0123456789abcdef", ttl)

	users := &stubUsers{users: map[string]models.User{
		"alice": {ID: 1, Username: "alice", Roles: []string{models.RoleUser}},
		"root":  {ID: 2, Username: "root", Roles: []string{models.RoleAdmin}},
	}}

	got := &captured{}
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.principal, got.ok = Principal(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	return tokens, New(log, tokens, users)(inner), got
}

func do(handler http.Handler, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/students", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestNoHeaderPassesThroughUnauthenticated(t *testing.T) {
	_, handler, got := setup(t, time.Hour)

	rec := do(handler, "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, got.ok)
}

func TestGarbageTokenPassesThroughUnauthenticated(t *testing.T) {
	_, handler, got := setup(t, time.Hour)

	for _, header := range []string{
		"Bearer garbage",
		"Bearer a.b.c",
		"Basic dXNlcjpwYXNz",
		"Bearer",
	} {
		rec := do(handler, header)

		assert.Equal(t, http.StatusOK, rec.Code, header)
		assert.False(t, got.ok, header)
	}
}

func TestExpiredTokenPassesThroughUnauthenticated(t *testing.T) {
	tokens, handler, got := setup(t, -time.Minute)

	token, err := tokens.Issue("alice", []string{models.RoleUser})
	require.NoError(t, err)

	rec := do(handler, "Bearer "+token)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, got.ok)
}

func TestValidTokenEstablishesPrincipal(t *testing.T) {
	tokens, handler, got := setup(t, time.Hour)

	token, err := tokens.Issue("alice", []string{models.RoleUser})
	require.NoError(t, err)

	rec := do(handler, "Bearer "+token)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.True(t, got.ok)
	assert.Equal(t, "alice", got.principal.Username)
	assert.Equal(t, []string{models.RoleUser}, got.principal.Roles)
}

func TestUnknownSubjectPassesThroughUnauthenticated(t *testing.T) {
	tokens, handler, got := setup(t, time.Hour)

	token, err := tokens.Issue("deleted-user", nil)
	require.NoError(t, err)

	rec := do(handler, "Bearer "+token)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, got.ok)
}

func TestBearerSchemeIsCaseInsensitive(t *testing.T) {
	tokens, handler, got := setup(t, time.Hour)

	token, err := tokens.Issue("alice", []string{models.RoleUser})
	require.NoError(t, err)

	do(handler, "bearer "+token)
	assert.True(t, got.ok)
}

func TestRequireAuth(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RequireAuth()(inner)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := context.WithValue(req.Context(), principalKey{}, models.User{Username: "alice"})

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req.WithContext(ctx))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireRoles(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RequireRoles(models.RoleAdmin)(inner)

	withUser := func(user models.User) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodDelete, "/", nil)
		ctx := context.WithValue(req.Context(), principalKey{}, user)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req.WithContext(ctx))
		return rec
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = withUser(models.User{Username: "alice", Roles: []string{models.RoleUser}})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = withUser(models.User{Username: "root", Roles: []string{models.RoleAdmin}})
	assert.Equal(t, http.StatusOK, rec.Code)
}
