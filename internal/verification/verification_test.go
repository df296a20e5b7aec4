package verification

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"testing"
	"time"

	"student_system/internal/models"
	"student_system/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memCodeStore struct {
	codes  []models.VerificationCode
	nextID int64
}

func (m *memCodeStore) ReplaceCode(_ context.Context, code models.VerificationCode) (int64, error) {
	for i, c := range m.codes {
		if c.Email == code.Email && c.Scene == code.Scene && c.Status == models.CodePending {
			m.codes[i] = c.Invalidated(code.CreatedAt)
		}
	}

	m.nextID++
	code.ID = m.nextID
	m.codes = append(m.codes, code)

	return code.ID, nil
}

func (m *memCodeStore) UpdateCode(_ context.Context, code models.VerificationCode) error {
	for i, c := range m.codes {
		if c.ID == code.ID {
			m.codes[i] = code
			return nil
		}
	}
	return storage.ErrCodeNotFound
}

func (m *memCodeStore) LatestCode(_ context.Context, email, scene string) (models.VerificationCode, error) {
	for i := len(m.codes) - 1; i >= 0; i-- {
		if m.codes[i].Email == email && m.codes[i].Scene == scene {
			return m.codes[i], nil
		}
	}
	return models.VerificationCode{}, storage.ErrCodeNotFound
}

func (m *memCodeStore) CountCodesSince(_ context.Context, email, scene string, since time.Time) (int64, error) {
	var count int64
	for _, c := range m.codes {
		if c.Email == email && c.Scene == scene && c.CreatedAt.After(since) {
			count++
		}
	}
	return count, nil
}

func (m *memCodeStore) pending(email, scene string) []models.VerificationCode {
	var out []models.VerificationCode
	for _, c := range m.codes {
		if c.Email == email && c.Scene == scene && c.Status == models.CodePending {
			out = append(out, c)
		}
	}
	return out
}

type memUsers struct {
	taken map[string]bool
}

func (m *memUsers) EmailTaken(_ context.Context, email string) (bool, error) {
	return m.taken[email], nil
}

type sentMail struct {
	to      string
	subject string
	body    string
}

type stubMailer struct {
	sent []sentMail
	fail bool
}

func (m *stubMailer) Send(_ context.Context, to, subject, htmlBody string) error {
	if m.fail {
		return errors.New("smtp unreachable")
	}
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: htmlBody})
	return nil
}

type fixture struct {
	svc    *Service
	codes  *memCodeStore
	users  *memUsers
	mailer *stubMailer
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		codes:  &memCodeStore{},
		users:  &memUsers{taken: map[string]bool{}},
		mailer: &stubMailer{},
		now:    time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC),
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.svc = New(log, f.codes, f.users, f.mailer)
	f.svc.now = func() time.Time { return f.now }

	return f
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func TestSendCodeStoresPendingRecord(t *testing.T) {
	f := newFixture(t)

	err := f.svc.SendCode(context.Background(), "alice@example.com", models.SceneRegister)
	require.NoError(t, err)

	require.Len(t, f.codes.codes, 1)
	record := f.codes.codes[0]
	assert.Equal(t, models.CodePending, record.Status)
	assert.Equal(t, "alice@example.com", record.Email)
	assert.Regexp(t, regexp.MustCompile(`^\d{6}$`), record.Code)
	assert.Equal(t, f.now.Add(5*time.Minute), record.ExpiresAt)
	assert.Equal(t, 0, record.TryCount)

	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, "alice@example.com", f.mailer.sent[0].to)
	assert.Contains(t, f.mailer.sent[0].body, record.Code)
}

func TestSendCodeNormalizesEmail(t *testing.T) {
	f := newFixture(t)

	err := f.svc.SendCode(context.Background(), "  Alice@Example.COM ", models.SceneRegister)
	require.NoError(t, err)

	require.Len(t, f.codes.codes, 1)
	assert.Equal(t, "alice@example.com", f.codes.codes[0].Email)
}

func TestSendCodeRejectsInvalidEmail(t *testing.T) {
	f := newFixture(t)

	err := f.svc.SendCode(context.Background(), "not-an-email", models.SceneRegister)
	assert.ErrorIs(t, err, ErrInvalidEmail)
	assert.Empty(t, f.codes.codes)
}

func TestSendCodeSceneChecks(t *testing.T) {
	f := newFixture(t)
	f.users.taken["taken@example.com"] = true

	err := f.svc.SendCode(context.Background(), "taken@example.com", models.SceneRegister)
	assert.ErrorIs(t, err, ErrAlreadyRegistered)

	err = f.svc.SendCode(context.Background(), "ghost@example.com", models.SceneResetPassword)
	assert.ErrorIs(t, err, ErrNotRegistered)

	err = f.svc.SendCode(context.Background(), "taken@example.com", models.SceneResetPassword)
	assert.NoError(t, err)
}

func TestSendCodeRateLimited(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.svc.SendCode(context.Background(), "alice@example.com", models.SceneRegister))

	f.advance(30 * time.Second)
	err := f.svc.SendCode(context.Background(), "alice@example.com", models.SceneRegister)
	assert.ErrorIs(t, err, ErrRateLimited)

	f.advance(31 * time.Second)
	require.NoError(t, f.svc.SendCode(context.Background(), "alice@example.com", models.SceneRegister))

	// The fresh issuance invalidated the earlier record: a single PENDING
	// record per (email, scene) at any time.
	assert.Len(t, f.codes.pending("alice@example.com", models.SceneRegister), 1)
}

func TestSendCodeDailyLimit(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 10; i++ {
		require.NoError(t, f.svc.SendCode(context.Background(), "alice@example.com", models.SceneRegister))
		f.advance(61 * time.Second)
	}

	err := f.svc.SendCode(context.Background(), "alice@example.com", models.SceneRegister)
	assert.ErrorIs(t, err, ErrDailyLimitExceeded)
}

func TestSendCodeDeliveryFailureKeepsRecord(t *testing.T) {
	f := newFixture(t)
	f.mailer.fail = true

	err := f.svc.SendCode(context.Background(), "alice@example.com", models.SceneRegister)
	assert.ErrorIs(t, err, ErrDeliveryFailed)

	// A code was committed even though delivery failed.
	require.Len(t, f.codes.codes, 1)
	assert.Equal(t, models.CodePending, f.codes.codes[0].Status)
}

func TestVerifyCodeScenario(t *testing.T) {
	f := newFixture(t)
	f.svc.genCode = func() (string, error) { return "123456", nil }

	require.NoError(t, f.svc.SendCode(context.Background(), "alice@example.com", models.SceneRegister))

	err := f.svc.VerifyCode(context.Background(), "alice@example.com", "000000", models.SceneRegister)
	var mismatch *CodeMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 4, mismatch.Remaining)
	assert.Contains(t, err.Error(), "4")

	err = f.svc.VerifyCode(context.Background(), "alice@example.com", "123456", models.SceneRegister)
	require.NoError(t, err)
	assert.Equal(t, models.CodeConsumed, f.codes.codes[0].Status)

	// Consumed codes never verify a second time.
	err = f.svc.VerifyCode(context.Background(), "alice@example.com", "123456", models.SceneRegister)
	assert.ErrorIs(t, err, ErrCodeInvalidated)
}

func TestVerifyCodeTrimsInput(t *testing.T) {
	f := newFixture(t)
	f.svc.genCode = func() (string, error) { return "654321", nil }

	require.NoError(t, f.svc.SendCode(context.Background(), "alice@example.com", models.SceneRegister))

	err := f.svc.VerifyCode(context.Background(), " Alice@Example.com ", " 654321 ", models.SceneRegister)
	assert.NoError(t, err)
}

func TestVerifyCodeMaxTries(t *testing.T) {
	f := newFixture(t)
	f.svc.genCode = func() (string, error) { return "123456", nil }

	require.NoError(t, f.svc.SendCode(context.Background(), "alice@example.com", models.SceneRegister))

	for i := 1; i <= 5; i++ {
		err := f.svc.VerifyCode(context.Background(), "alice@example.com", "999999", models.SceneRegister)
		var mismatch *CodeMismatchError
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, 5-i, mismatch.Remaining)
	}

	// The sixth attempt fails even with the correct code.
	err := f.svc.VerifyCode(context.Background(), "alice@example.com", "123456", models.SceneRegister)
	assert.ErrorIs(t, err, ErrMaxTriesExceeded)
	assert.Equal(t, models.CodeInvalidated, f.codes.codes[0].Status)
}

func TestVerifyCodeExpired(t *testing.T) {
	f := newFixture(t)
	f.svc.genCode = func() (string, error) { return "123456", nil }

	require.NoError(t, f.svc.SendCode(context.Background(), "alice@example.com", models.SceneRegister))

	f.advance(6 * time.Minute)

	err := f.svc.VerifyCode(context.Background(), "alice@example.com", "123456", models.SceneRegister)
	assert.ErrorIs(t, err, ErrCodeExpired)
	assert.Equal(t, models.CodeInvalidated, f.codes.codes[0].Status)
}

func TestVerifyCodeNotFound(t *testing.T) {
	f := newFixture(t)

	err := f.svc.VerifyCode(context.Background(), "nobody@example.com", "123456", models.SceneRegister)
	assert.ErrorIs(t, err, ErrCodeNotFound)
}

func TestScenesAreIndependent(t *testing.T) {
	f := newFixture(t)
	f.users.taken["alice@example.com"] = false

	require.NoError(t, f.svc.SendCode(context.Background(), "alice@example.com", models.SceneRegister))

	// Registration done, the same email can immediately request a reset code:
	// the 60-second window is scoped per (email, scene).
	f.users.taken["alice@example.com"] = true
	require.NoError(t, f.svc.SendCode(context.Background(), "alice@example.com", models.SceneResetPassword))

	assert.Len(t, f.codes.pending("alice@example.com", models.SceneRegister), 1)
	assert.Len(t, f.codes.pending("alice@example.com", models.SceneResetPassword), 1)
}

func TestGenerateCodeFormat(t *testing.T) {
	for i := 0; i < 100; i++ {
		code, err := generateCode()
		require.NoError(t, err)
		require.Len(t, code, 6)
		for _, r := range code {
			require.True(t, r >= '0' && r <= '9', fmt.Sprintf("unexpected rune %q in %q", r, code))
		}
	}
}

func TestBuildEmailMentionsCode(t *testing.T) {
	subject, body := buildEmail("042133", models.SceneResetPassword)
	assert.True(t, strings.Contains(body, "042133"))
	assert.Contains(t, subject, "reset")
}
