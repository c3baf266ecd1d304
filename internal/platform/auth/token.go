package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// DefaultIssuer is the iss claim written into every token.
const DefaultIssuer = "claims-server"

// TokenIssuer signs HS256 access tokens for logged-in users.
type TokenIssuer struct {
	key    []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(key []byte, ttl time.Duration) (*TokenIssuer, error) {
	if len(key) == 0 {
		return nil, errors.New("signing key is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	return &TokenIssuer{key: key, issuer: DefaultIssuer, ttl: ttl, now: time.Now}, nil
}

// Middleware returns a JWTMiddleware that accepts tokens from this issuer.
func (i *TokenIssuer) Middleware(skipper func(c echo.Context) bool) echo.MiddlewareFunc {
	return JWTMiddleware(JWTConfig{SigningKey: i.key, Issuer: i.issuer, Skipper: skipper})
}

// Issue returns a signed token for the user and its expiry.
func (i *TokenIssuer) Issue(userID, email, role string) (string, time.Time, error) {
	now := i.now()
	expiresAt := now.Add(i.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email: email,
		Roles: []string{role},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}
