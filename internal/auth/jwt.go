// Package auth issues and validates the operator tokens that guard the HTTP surface.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// DefaultTokenTTL is the lifetime of an issued operator token
const DefaultTokenTTL = 24 * time.Hour

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrMissingRoles = errors.New("token carries no known role")
)

// Claims are the operator token claims
type Claims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// HasRole reports whether any of the token's roles satisfies required
func (c *Claims) HasRole(required Role) bool {
	for _, r := range c.Roles {
		if Role(r).HasPermission(required) {
			return true
		}
	}
	return false
}

// IssueToken signs an HS256 token for subject with the given roles.
// It returns the token and its expiry.
func IssueToken(secret []byte, subject string, roles []Role, ttl time.Duration, now time.Time) (string, time.Time, error) {
	if len(secret) == 0 {
		return "", time.Time{}, errors.New("signing secret is empty")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	names := make([]string, 0, len(roles))
	for _, r := range roles {
		if !r.IsValid() {
			return "", time.Time{}, fmt.Errorf("unknown role %q", r)
		}
		names = append(names, r.String())
	}
	if len(names) == 0 {
		return "", time.Time{}, ErrMissingRoles
	}

	expiresAt := now.Add(ttl)
	claims := &Claims{
		Roles: names,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken verifies signature, algorithm and expiry and returns the claims
func ValidateToken(tokenString string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if len(claims.Roles) == 0 {
		return nil, ErrMissingRoles
	}
	return claims, nil
}
