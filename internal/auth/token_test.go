package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenMintValidateRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Hour)

	token, err := issuer.Mint("user-1", 3)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, version, err := issuer.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
	assert.Equal(t, int64(3), version)
}

func TestTokenValidateRejectsWrongSecret(t *testing.T) {
	issuer := NewTokenIssuer("secret-a", time.Hour)
	other := NewTokenIssuer("secret-b", time.Hour)

	token, err := issuer.Mint("user-1", 0)
	require.NoError(t, err)

	_, _, err = other.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenValidateRejectsExpired(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Hour)

	now := time.Now().Add(-2 * time.Hour)
	claims := SessionClaims{
		TokenVersion: 0,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, _, err = issuer.Validate(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenValidateRejectsWrongMethod(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Hour)

	// alg "none" must never pass, regardless of payload.
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, _, err = issuer.Validate(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenValidateRejectsMissingSubject(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Hour)

	token, err := issuer.Mint("", 0)
	require.NoError(t, err)

	_, _, err = issuer.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenValidateRejectsGarbage(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Hour)

	_, _, err := issuer.Validate("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
