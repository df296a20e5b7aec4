package verifycode_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	verifycode "student_system/internal/http_server/handlers/verify_code"
	resp "student_system/internal/lib/api/response"
	"student_system/internal/models"
	"student_system/internal/verification"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type verifierMock struct {
	err   error
	email string
	code  string
	scene string
}

func (m *verifierMock) VerifyCode(_ context.Context, email, code, scene string) error {
	m.email = email
	m.code = code
	m.scene = scene
	return m.err
}

func post(t *testing.T, handler http.HandlerFunc, body string) (int, resp.Response) {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/auth/verify-code", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var response resp.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))

	return rec.Code, response
}

func newHandler(verifier *verifierMock) http.HandlerFunc {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return verifycode.New(log, validator.New(), verifier)
}

func TestVerifyCodeSuccess(t *testing.T) {
	verifier := &verifierMock{}

	status, response := post(t, newHandler(verifier), `{"email":"a@example.com","code":"123456"}`)

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, resp.CodeOK, response.Code)
	assert.Equal(t, "a@example.com", verifier.email)
	assert.Equal(t, "123456", verifier.code)
	assert.Equal(t, models.SceneRegister, verifier.scene)
}

func TestVerifyCodeMissingFields(t *testing.T) {
	for _, body := range []string{`{}`, `{"email":"a@example.com"}`, `{"code":"123456"}`} {
		status, response := post(t, newHandler(&verifierMock{}), body)

		assert.Equal(t, http.StatusBadRequest, status, body)
		assert.Equal(t, resp.CodeMismatch, response.Code, body)
	}
}

func TestVerifyCodeErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   int
	}{
		{"mismatch", &verification.CodeMismatchError{Remaining: 3}, http.StatusBadRequest, resp.CodeMismatch},
		{"expired", verification.ErrCodeExpired, http.StatusBadRequest, resp.CodeExpiredOrMissing},
		{"not found", verification.ErrCodeNotFound, http.StatusBadRequest, resp.CodeExpiredOrMissing},
		{"max tries", verification.ErrMaxTriesExceeded, http.StatusBadRequest, resp.CodeTooManyTries},
		{"invalidated", verification.ErrCodeInvalidated, http.StatusBadRequest, resp.CodeTooManyTries},
		{"storage error", errors.New("connection reset"), http.StatusInternalServerError, resp.CodeVerifyFailed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, response := post(t, newHandler(&verifierMock{err: tc.err}), `{"email":"a@example.com","code":"000000"}`)

			assert.Equal(t, tc.wantStatus, status)
			assert.Equal(t, tc.wantCode, response.Code)
		})
	}
}

func TestVerifyCodeMismatchReportsRemaining(t *testing.T) {
	verifier := &verifierMock{err: &verification.CodeMismatchError{Remaining: 2}}

	_, response := post(t, newHandler(verifier), `{"email":"a@example.com","code":"000000"}`)

	assert.Contains(t, response.Message, "2")
}
