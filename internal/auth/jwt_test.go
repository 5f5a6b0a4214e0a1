package auth

import (
	"errors"
	"testing"
)

func TestVerifyForUser(t *testing.T) {
	v := NewVerifier("test-secret")

	token, err := v.GenerateUserToken("user-1")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	if err := v.VerifyForUser(token, "user-1"); err != nil {
		t.Errorf("valid token rejected: %v", err)
	}
	if err := v.VerifyForUser(token, "user-2"); !errors.Is(err, ErrUserMismatch) {
		t.Errorf("expected ErrUserMismatch, got %v", err)
	}
	if err := v.VerifyForUser("", "user-1"); err == nil {
		t.Error("missing token accepted")
	}
	if err := v.VerifyForUser("not-a-token", "user-1"); err == nil {
		t.Error("garbage token accepted")
	}
}

func TestVerifierDisabled(t *testing.T) {
	v := NewVerifier("")
	if v != nil {
		t.Fatal("empty secret should disable verification")
	}
	if err := v.VerifyForUser("", "anyone"); err != nil {
		t.Errorf("nil verifier must accept requests: %v", err)
	}
}

func TestTokenSignedWithDifferentSecret(t *testing.T) {
	issuer := NewVerifier("secret-a")
	verifier := NewVerifier("secret-b")

	token, err := issuer.GenerateUserToken("user-1")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if err := verifier.VerifyForUser(token, "user-1"); err == nil {
		t.Error("token with wrong signature accepted")
	}
}
