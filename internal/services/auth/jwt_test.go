package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestServiceTokenRoundTrip(t *testing.T) {
	manager := NewServiceTokenManager("test-secret", time.Minute)

	signed, expiresAt, err := manager.Generate("audit-cli", []string{"ledger:read"})
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if time.Until(expiresAt) <= 0 {
		t.Fatalf("token already expired")
	}

	claims, err := manager.Parse(signed)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.Service != "audit-cli" {
		t.Fatalf("unexpected service: %s", claims.Service)
	}
	if !claims.HasScope("ledger:read") {
		t.Fatalf("expected ledger:read scope")
	}
	if claims.HasScope("ledger:write") {
		t.Fatalf("unexpected ledger:write scope")
	}
}

func TestServiceTokenRejectsWrongSecret(t *testing.T) {
	manager := NewServiceTokenManager("secret-a", time.Minute)
	other := NewServiceTokenManager("secret-b", time.Minute)

	signed, _, err := manager.Generate("audit-cli", nil)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	if _, err := other.Parse(signed); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestServiceTokenRejectsExpired(t *testing.T) {
	manager := NewServiceTokenManager("test-secret", time.Minute)
	manager.now = func() time.Time { return time.Now().Add(-2 * time.Minute) }

	signed, _, err := manager.Generate("audit-cli", nil)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	fresh := NewServiceTokenManager("test-secret", time.Minute)
	if _, err := fresh.Parse(signed); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for expired token, got %v", err)
	}
}

func TestServiceTokenRejectsTampered(t *testing.T) {
	manager := NewServiceTokenManager("test-secret", time.Minute)

	signed, _, err := manager.Generate("audit-cli", []string{"ledger:read"})
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	tampered := signed[:len(signed)-2] + strings.Repeat("x", 2)
	if _, err := manager.Parse(tampered); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for tampered token, got %v", err)
	}
}
