package testutil

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var signingKey = []byte("test-signing-key")

// MintToken signs an HS256 token for subject expiring at exp
func MintToken(subject string, exp time.Time) string {
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(exp.Add(-time.Hour)),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	if err != nil {
		panic(err)
	}
	return signed
}

// MintTokenWithoutExpiry signs a token that carries no exp claim
func MintTokenWithoutExpiry(subject string) string {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": subject}).SignedString(signingKey)
	if err != nil {
		panic(err)
	}
	return signed
}

// MintTokenWithClaims signs arbitrary claims, for malformed-claim cases
func MintTokenWithClaims(claims jwt.MapClaims) string {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	if err != nil {
		panic(err)
	}
	return signed
}

// FreshToken returns a token valid for one hour
func FreshToken(subject string) string {
	return MintToken(subject, time.Now().Add(time.Hour))
}

// ExpiredToken returns a token that expired a minute ago
func ExpiredToken(subject string) string {
	return MintToken(subject, time.Now().Add(-time.Minute))
}
