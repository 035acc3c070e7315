package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskconvertai/taskconvert-api/internal/config"
)

const testSecret = "test-secret-that-is-long-enough-for-testing"

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestNewJWTService(t *testing.T) {
	t.Parallel()

	_, err := NewJWTService(config.AuthConfig{JWTSecret: "short"})
	assert.ErrorIs(t, err, ErrWeakSecret)

	svc, err := NewJWTService(config.AuthConfig{JWTSecret: testSecret})
	require.NoError(t, err)
	assert.Equal(t, time.Hour, svc.(*hmacJWTService).tokenLifetime)
}

func TestGenerateAndValidateToken(t *testing.T) {
	t.Parallel()

	issued := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	svc, err := newHMACJWTService(testSecret, time.Hour, fixedClock(issued))
	require.NoError(t, err)

	token, err := svc.GenerateToken(context.Background(), "owner-42")
	require.NoError(t, err)

	claims, err := svc.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "owner-42", claims.Subject)
	assert.Equal(t, issued.Unix(), claims.IssuedAt.Unix())
	assert.Equal(t, issued.Add(time.Hour).Unix(), claims.ExpiresAt.Unix())
	assert.NotEmpty(t, claims.ID)
}

func TestValidateToken(t *testing.T) {
	t.Parallel()

	issued := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	issuer, err := newHMACJWTService(testSecret, time.Hour, fixedClock(issued))
	require.NoError(t, err)
	valid, err := issuer.GenerateToken(context.Background(), "owner")
	require.NoError(t, err)

	otherKey, err := newHMACJWTService("wrong-secret-that-is-long-enough-for-testing", time.Hour, fixedClock(issued))
	require.NoError(t, err)
	foreign, err := otherKey.GenerateToken(context.Background(), "owner")
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(issued.Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name    string
		now     time.Time
		token   string
		wantErr error
		subject string
	}{
		{"valid", issued.Add(time.Minute), valid, nil, "owner"},
		{"within clock skew", issued.Add(time.Hour + time.Minute), valid, nil, "owner"},
		{"expired", issued.Add(2 * time.Hour), valid, ErrExpiredToken, ""},
		{"future issued-at is not checked", issued.Add(-time.Hour), valid, nil, "owner"},
		{"wrong key", issued, foreign, ErrInvalidToken, ""},
		{"malformed", issued, "not.a.token", ErrInvalidToken, ""},
		{"missing", issued, "", ErrMissingToken, ""},
		{"no subject", issued, noSubject, nil, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			svc, err := newHMACJWTService(testSecret, time.Hour, fixedClock(tc.now))
			require.NoError(t, err)

			claims, err := svc.ValidateToken(context.Background(), tc.token)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.subject, claims.Subject)
		})
	}
}
