package auth

import (
	"errors"
	"testing"
	"time"
)

func TestIssueAndValidateAccess(t *testing.T) {
	t.Parallel()
	m := NewManager("test-secret", time.Hour, 24*time.Hour)

	tok, err := m.IssueAccess("user-1")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	claims, err := m.Validate(tok, TokenAccess)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.UserID != "user-1" {
		t.Fatalf("UserID = %q, want user-1", claims.UserID)
	}
}

func TestValidateRejectsWrongType(t *testing.T) {
	t.Parallel()
	m := NewManager("test-secret", time.Hour, 24*time.Hour)

	tok, err := m.IssueRefresh("user-1")
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	if _, err := m.Validate(tok, TokenAccess); !errors.Is(err, ErrWrongType) {
		t.Fatalf("err = %v, want ErrWrongType", err)
	}
	if _, err := m.Validate(tok, TokenRefresh); err != nil {
		t.Fatalf("refresh token should validate as refresh: %v", err)
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	t.Parallel()
	issuer := NewManager("secret-a", time.Hour, 24*time.Hour)
	verifier := NewManager("secret-b", time.Hour, 24*time.Hour)

	tok, err := issuer.IssueAccess("user-1")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := verifier.Validate(tok, TokenAccess); err == nil {
		t.Fatal("expected validation failure with wrong secret")
	}
}

func TestValidateRejectsExpired(t *testing.T) {
	t.Parallel()
	m := NewManager("test-secret", -time.Minute, 24*time.Hour)

	tok, err := m.issue("user-1", TokenAccess, -time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Validate(tok, TokenAccess); err == nil {
		t.Fatal("expected expired token to fail validation")
	}
}

func TestPasswordHashRoundTrip(t *testing.T) {
	t.Parallel()
	hash, err := HashPassword("s3cret-pass")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !CheckPassword(hash, "s3cret-pass") {
		t.Fatal("correct password rejected")
	}
	if CheckPassword(hash, "wrong") {
		t.Fatal("wrong password accepted")
	}
}
