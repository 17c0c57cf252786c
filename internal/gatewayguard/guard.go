// Package gatewayguard implements the Guard Gate (4.D): a distribution's
// content guard either permits or denies a request, surfacing a permission
// error as HTTP 403. JWTContentGuard is one concrete guard, grounded on this
// codebase's bearer-token parsing (internal/middleware/auth.go), offered as
// a demonstration of the ContentGuard interface against a real auth scheme
// — authentication design itself stays out of scope.
package gatewayguard

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ContentGuard decides whether a request may proceed. Permit returns a
// non-nil error (its message becomes the 403 reason) to deny.
type ContentGuard interface {
	Permit(r *http.Request) error
}

// NoGuard always permits; it models a Distribution with no content guard
// attached.
type NoGuard struct{}

func (NoGuard) Permit(*http.Request) error { return nil }

// JWTContentGuard permits only requests carrying a valid bearer JWT signed
// with its secret.
type JWTContentGuard struct {
	Secret []byte
}

func NewJWTContentGuard(secret string) *JWTContentGuard {
	return &JWTContentGuard{Secret: []byte(secret)}
}

func (g *JWTContentGuard) Permit(r *http.Request) error {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return fmt.Errorf("authorization header required")
	}
	tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok {
		return fmt.Errorf("invalid authorization header format")
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return g.Secret, nil
	})
	if err != nil {
		return fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return fmt.Errorf("invalid token")
	}
	return nil
}
