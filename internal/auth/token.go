package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any token that fails validation:
// bad signature, malformed claims, or expiry.
var ErrInvalidToken = errors.New("invalid token")

const defaultTokenTTL = 7 * 24 * time.Hour

// SessionClaims is the payload embedded in every session token. The
// version claim snapshots the user's revocation counter at mint time;
// validation of the user additionally requires exact equality with the
// stored counter.
type SessionClaims struct {
	TokenVersion int64 `json:"ver"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and validates bearer tokens. It is stateless: the
// only revocation state lives on the user record.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}
}

// Mint signs a token carrying the user id and the revocation counter.
func (i *TokenIssuer) Mint(userID string, tokenVersion int64) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		TokenVersion: tokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Validate parses and verifies a token, returning the embedded user id
// and token version. Any failure surfaces as ErrInvalidToken.
func (i *TokenIssuer) Validate(tokenString string) (userID string, tokenVersion int64, err error) {
	claims := SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return i.secret, nil
	})
	if err != nil || !token.Valid {
		return "", 0, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", 0, ErrInvalidToken
	}
	return claims.Subject, claims.TokenVersion, nil
}
