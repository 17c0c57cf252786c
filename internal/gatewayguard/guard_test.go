package gatewayguard

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestNoGuardAlwaysPermits(t *testing.T) {
	req := httptest.NewRequest("GET", "/whatever", nil)
	if err := (NoGuard{}).Permit(req); err != nil {
		t.Errorf("NoGuard.Permit returned error: %v", err)
	}
}

func signToken(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return signed
}

func TestJWTContentGuardMissingHeader(t *testing.T) {
	guard := NewJWTContentGuard("secret")
	req := httptest.NewRequest("GET", "/whatever", nil)
	if err := guard.Permit(req); err == nil {
		t.Error("expected error for missing Authorization header")
	}
}

func TestJWTContentGuardMalformedHeader(t *testing.T) {
	guard := NewJWTContentGuard("secret")
	req := httptest.NewRequest("GET", "/whatever", nil)
	req.Header.Set("Authorization", "Basic abc123")
	if err := guard.Permit(req); err == nil {
		t.Error("expected error for non-Bearer Authorization header")
	}
}

func TestJWTContentGuardValidToken(t *testing.T) {
	secret := "topsecret"
	guard := NewJWTContentGuard(secret)
	token := signToken(t, []byte(secret), jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})

	req := httptest.NewRequest("GET", "/whatever", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	if err := guard.Permit(req); err != nil {
		t.Errorf("expected valid token to be permitted, got error: %v", err)
	}
}

func TestJWTContentGuardWrongSecret(t *testing.T) {
	guard := NewJWTContentGuard("topsecret")
	token := signToken(t, []byte("wrong-secret"), jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})

	req := httptest.NewRequest("GET", "/whatever", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	if err := guard.Permit(req); err == nil {
		t.Error("expected token signed with wrong secret to be rejected")
	}
}

func TestJWTContentGuardExpiredToken(t *testing.T) {
	secret := "topsecret"
	guard := NewJWTContentGuard(secret)
	token := signToken(t, []byte(secret), jwt.MapClaims{"exp": time.Now().Add(-time.Hour).Unix()})

	req := httptest.NewRequest("GET", "/whatever", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	if err := guard.Permit(req); err == nil {
		t.Error("expected expired token to be rejected")
	}
}

func TestJWTContentGuardRejectsUnexpectedSigningMethod(t *testing.T) {
	guard := NewJWTContentGuard("topsecret")
	// alg "none" tokens must never be accepted regardless of secret.
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("failed to build none-alg token: %v", err)
	}

	req := httptest.NewRequest("GET", "/whatever", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	if err := guard.Permit(req); err == nil {
		t.Error("expected alg=none token to be rejected")
	}
}
