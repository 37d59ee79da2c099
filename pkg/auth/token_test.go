package auth

import (
	"testing"
	"time"
)

func TestIssueAndVerifyToken(t *testing.T) {
	secret := "test-secret-0123456789"
	tok, err := IssueToken(secret, "user-1", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	id, err := VerifyToken(secret, tok)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if id != "user-1" {
		t.Fatalf("expected user-1, got %q", id)
	}
}

func TestVerifyTokenRejectsWrongSecret(t *testing.T) {
	tok, err := IssueToken("secret-a-0123456789", "user-1", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := VerifyToken("secret-b-0123456789", tok); err == nil {
		t.Fatalf("expected verification failure")
	}
}

func TestVerifyTokenRejectsExpired(t *testing.T) {
	secret := "test-secret-0123456789"
	tok, err := IssueToken(secret, "user-1", -time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := VerifyToken(secret, tok); err == nil {
		t.Fatalf("expected expiry failure")
	}
}

func TestVerifyTokenRejectsGarbage(t *testing.T) {
	if _, err := VerifyToken("test-secret-0123456789", "not.a.token"); err == nil {
		t.Fatalf("expected parse failure")
	}
}

func TestIssueTokenRequiresSecret(t *testing.T) {
	if _, err := IssueToken("", "user-1", time.Hour); err == nil {
		t.Fatalf("expected error with empty secret")
	}
}
