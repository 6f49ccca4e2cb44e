package auth

import (
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	m := NewJWTManager("test-secret", 15*time.Minute)

	token, err := m.GenerateAccessToken(OperatorClaims{Email: "ops@example.com", IsAdmin: true})
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	claims, err := m.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("ValidateAccessToken: %v", err)
	}
	if claims.Email != "ops@example.com" {
		t.Errorf("email = %q, want ops@example.com", claims.Email)
	}
	if !claims.IsAdmin {
		t.Error("IsAdmin = false, want true")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	m := NewJWTManager("test-secret", -time.Minute)

	token, err := m.GenerateAccessToken(OperatorClaims{Email: "ops@example.com"})
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	_, err = m.ValidateAccessToken(token)
	if err != ErrTokenExpired {
		t.Errorf("err = %v, want ErrTokenExpired", err)
	}
}

func TestWrongSecretRejected(t *testing.T) {
	issuer := NewJWTManager("secret-a", 15*time.Minute)
	verifier := NewJWTManager("secret-b", 15*time.Minute)

	token, err := issuer.GenerateAccessToken(OperatorClaims{Email: "ops@example.com"})
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	if _, err := verifier.ValidateAccessToken(token); err != ErrInvalidToken {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestPasswordHashAndVerify(t *testing.T) {
	p := NewPasswordManager(4) // low cost keeps the test fast

	hash, err := p.HashPassword("correct horse battery")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	if !p.VerifyPassword("correct horse battery", hash) {
		t.Error("correct password rejected")
	}
	if p.VerifyPassword("wrong password", hash) {
		t.Error("wrong password accepted")
	}
}

func TestPasswordLengthBounds(t *testing.T) {
	p := NewPasswordManager(4)

	if _, err := p.HashPassword("short"); err == nil {
		t.Error("expected error for password below minimum length")
	}

	long := make([]byte, MaxPasswordLength+1)
	for i := range long {
		long[i] = 'a'
	}
	if _, err := p.HashPassword(string(long)); err == nil {
		t.Error("expected error for password above maximum length")
	}
}
