package storage

import (
	"errors"
	"strings"
	"testing"
)

func TestHashPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}
	if !strings.HasPrefix(hash, "pbkdf2$sha256$") {
		t.Fatalf("unexpected hash encoding: %q", hash)
	}
	if err := verifyPassword(hash, "hunter2"); err != nil {
		t.Fatalf("verifyPassword error: %v", err)
	}
	if err := verifyPassword(hash, "hunter3"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestHashPasswordSaltsDiffer(t *testing.T) {
	first, err := HashPassword("same")
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}
	second, err := HashPassword("same")
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}
	if first == second {
		t.Fatal("hashes for identical passwords should not repeat")
	}
}

func TestVerifyPasswordRejectsMalformedHash(t *testing.T) {
	cases := []string{
		"",
		"plaintext",
		"bcrypt$sha256$1$a$b",
		"pbkdf2$sha256$notanumber$a$b",
	}
	for _, encoded := range cases {
		if err := verifyPassword(encoded, "pw"); err == nil {
			t.Fatalf("expected error for hash %q", encoded)
		}
	}
}

func TestNormalizeUsername(t *testing.T) {
	normalized, err := NormalizeUsername("  Alice ")
	if err != nil {
		t.Fatalf("NormalizeUsername error: %v", err)
	}
	if normalized != "alice" {
		t.Fatalf("expected alice, got %q", normalized)
	}
	if _, err := NormalizeUsername("   "); err == nil {
		t.Fatal("expected error for blank username")
	}
}
