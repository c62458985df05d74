package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenService(t *testing.T) {
	service, err := NewTokenService("test-secret", "contractflow", time.Hour)
	require.NoError(t, err)

	t.Run("round trip", func(t *testing.T) {
		token, err := service.Issue("user123")
		require.NoError(t, err)
		require.NotEmpty(t, token)

		userID, err := service.Validate(token)
		require.NoError(t, err)
		assert.Equal(t, "user123", userID)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := service.Validate("invalid-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, err := NewTokenService("other-secret", "contractflow", time.Hour)
		require.NoError(t, err)
		token, err := other.Issue("user123")
		require.NoError(t, err)

		_, err = service.Validate(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other, err := NewTokenService("test-secret", "someone-else", time.Hour)
		require.NoError(t, err)
		token, err := other.Issue("user123")
		require.NoError(t, err)

		_, err = service.Validate(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		short, err := NewTokenService("test-secret", "contractflow", time.Minute)
		require.NoError(t, err)
		short.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		token, err := short.Issue("user123")
		require.NoError(t, err)

		_, err = service.Validate(token)
		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("refresh type rejected", func(t *testing.T) {
		claims := Claims{
			Type: "refresh",
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "user123",
				Issuer:    "contractflow",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
		require.NoError(t, err)

		_, err = service.Validate(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("none algorithm rejected", func(t *testing.T) {
		claims := Claims{Type: accessTokenType, RegisteredClaims: jwt.RegisteredClaims{Subject: "user123", Issuer: "contractflow"}}
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = service.Validate(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestNewTokenService_RequiresSecret(t *testing.T) {
	_, err := NewTokenService("", "", time.Hour)
	assert.Error(t, err)
}
