package jwt

import (
	"crypto/rand"
	"errors"
	"log/slog"
	"strings"
	"time"

	sl "student_system/internal/lib/logger"

	"github.com/golang-jwt/jwt/v5"
)

// HS256 needs a key at least as long as the hash output.
const minSecretBytes = 32

var (
	ErrMalformed    = errors.New("malformed token")
	ErrBadSignature = errors.New("bad token signature")
	ErrExpired      = errors.New("token expired")
)

// TokenManager issues and validates stateless HS256 tokens. Expiry is the only
// termination mechanism: there is no refresh and no revocation list.
type TokenManager struct {
	log *slog.Logger
	key []byte
	ttl time.Duration
}

// New resolves the signing key once. An empty or too-short secret falls back
// to a random ephemeral key: the service still starts, but tokens issued
// before a restart become unverifiable. Acceptable outside production only.
func New(log *slog.Logger, secret string, ttl time.Duration) *TokenManager {
	secret = strings.TrimSpace(secret)
	key := []byte(secret)

	if len(key) < minSecretBytes {
		if secret == "" {
			log.Warn("jwt secret is not configured, generating an ephemeral signing key")
		} else {
			log.Warn("jwt secret is too weak for HS256, generating an ephemeral signing key",
				slog.Int("secret_bytes", len(key)),
				slog.Int("min_bytes", minSecretBytes),
			)
		}

		key = make([]byte, minSecretBytes)
		if _, err := rand.Read(key); err != nil {
			panic("jwt: failed to generate ephemeral signing key: " + err.Error())
		}
	}

	return &TokenManager{log: log, key: key, ttl: ttl}
}

// Issue signs a token for subject with a role snapshot taken at issuance.
// The token is not stored anywhere.
func (m *TokenManager) Issue(subject string, roles []string) (string, error) {
	now := time.Now()

	claims := jwt.MapClaims{
		"sub":   subject,
		"iat":   now.Unix(),
		"exp":   now.Add(m.ttl).Unix(),
		"roles": roles,
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.key)
}

// ParseSubject extracts the subject from a token. Any decoding problem comes
// back as one of the sentinel errors above, never as a panic.
func (m *TokenManager) ParseSubject(tokenStr string) (string, error) {
	token, err := jwt.Parse(tokenStr, m.keyFunc)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return "", ErrExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return "", ErrBadSignature
		default:
			return "", ErrMalformed
		}
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", ErrMalformed
	}

	return sub, nil
}

// Validate reports whether the signature checks out and the token has not
// expired yet. Detail is logged at debug level only.
func (m *TokenManager) Validate(tokenStr string) bool {
	token, err := jwt.Parse(tokenStr, m.keyFunc)
	if err != nil {
		m.log.Debug("token validation failed", sl.Err(err))
		return false
	}

	return token.Valid
}

func (m *TokenManager) keyFunc(t *jwt.Token) (interface{}, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, jwt.ErrTokenSignatureInvalid
	}
	return m.key, nil
}
