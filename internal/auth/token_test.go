// ABOUTME: Unit tests for JWT token verification, generation and inspection
// ABOUTME: Tests valid, invalid, expired and opaque tokens

package auth

import (
	"errors"
	"testing"
	"time"
)

var testSecret = []byte("test-secret-key-for-jwt-signing")

func TestJWTVerifier_ValidToken(t *testing.T) {
	verifier := NewJWTVerifier(testSecret)

	token, err := verifier.Generate("traveller-123", time.Hour)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	got, err := verifier.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if got != "traveller-123" {
		t.Errorf("Verify() = %q, want %q", got, "traveller-123")
	}
}

func TestJWTVerifier_InvalidToken(t *testing.T) {
	verifier := NewJWTVerifier(testSecret)

	otherToken, _ := NewJWTVerifier([]byte("different-secret")).Generate("traveller-123", time.Hour)
	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"garbage token", "not-a-jwt-token"},
		{"malformed JWT", "header.payload.signature"},
		{"wrong secret", otherToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := verifier.Verify(tt.token)
			if !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Verify() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestJWTVerifier_ExpiredToken(t *testing.T) {
	verifier := NewJWTVerifier(testSecret)

	token, err := verifier.Generate("traveller-123", -time.Hour)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if _, err := verifier.Verify(token); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("Verify() error = %v, want ErrExpiredToken", err)
	}
}

func TestJWTVerifier_MissingSubject(t *testing.T) {
	verifier := NewJWTVerifier(testSecret)

	token, err := verifier.Generate("", time.Hour)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if _, err := verifier.Verify(token); !errors.Is(err, ErrMissingClaim) {
		t.Errorf("Verify() error = %v, want ErrMissingClaim", err)
	}
}

func TestInspect(t *testing.T) {
	verifier := NewJWTVerifier(testSecret)
	token, err := verifier.Generate("traveller-9", 30*time.Minute)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	info, err := Inspect(token)
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if info.Subject != "traveller-9" {
		t.Errorf("Subject = %q", info.Subject)
	}
	if info.Expired(time.Now()) {
		t.Error("fresh token reported expired")
	}
	if !info.Expired(time.Now().Add(time.Hour)) {
		t.Error("token should be expired an hour from now")
	}

	if _, err := Inspect("opaque-api-key"); !errors.Is(err, ErrNotJWT) {
		t.Errorf("Inspect(opaque) error = %v, want ErrNotJWT", err)
	}
}

func TestInfo_NoExpiry(t *testing.T) {
	if (Info{}).Expired(time.Now()) {
		t.Error("a token without exp never expires locally")
	}
}

func TestNewJWTVerifierFromSecret(t *testing.T) {
	if _, err := NewJWTVerifierFromSecret([]byte("short")); err == nil {
		t.Error("NewJWTVerifierFromSecret() accepted a 5-byte secret")
	}

	v, err := NewJWTVerifierFromSecret([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("NewJWTVerifierFromSecret() error = %v", err)
	}
	token, err := v.Generate("traveller", time.Minute)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if _, err := v.Verify(token); err != nil {
		t.Errorf("Verify() error = %v", err)
	}
}
