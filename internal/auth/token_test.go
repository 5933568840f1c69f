package auth

import (
	"errors"
	"testing"
	"time"
)

func TestIssueAndParseToken(t *testing.T) {
	secret := []byte("unit-test-secret")

	token, err := IssueToken(secret, "usr_123", "Avery", "jti_abc", time.Minute)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	claims, err := ParseToken(secret, token)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "usr_123" {
		t.Errorf("expected subject usr_123, got %q", claims.Subject)
	}
	if claims.Name != "Avery" {
		t.Errorf("expected name Avery, got %q", claims.Name)
	}
	if claims.ID != "jti_abc" {
		t.Errorf("expected jti jti_abc, got %q", claims.ID)
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	token, err := IssueToken([]byte("secret-one"), "usr_123", "Avery", "jti_abc", time.Minute)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	if _, err := ParseToken([]byte("secret-two"), token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	token, err := IssueToken([]byte("secret"), "usr_123", "Avery", "jti_abc", -time.Minute)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	if _, err := ParseToken([]byte("secret"), token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	if _, err := ParseToken([]byte("secret"), "not.a.jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestHashTokenIsStableAndOpaque(t *testing.T) {
	a := HashToken("rft_example")
	b := HashToken("rft_example")
	if a != b {
		t.Fatalf("expected stable hash, got %q and %q", a, b)
	}
	if a == "rft_example" || len(a) != 64 {
		t.Fatalf("expected 64-char hex digest, got %q", a)
	}
}
