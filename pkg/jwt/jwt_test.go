package jwt

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	m := NewManager("secret", time.Minute)
	id := uuid.New()

	token, err := m.GenerateAccessToken(id, "a@example.com")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	claims, err := m.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if claims.UserID != id || claims.Email != "a@example.com" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestAccessTokenRejectsWrongSecretAndExpiry(t *testing.T) {
	token, _ := NewManager("secret", time.Minute).GenerateAccessToken(uuid.New(), "")
	if _, err := NewManager("other", time.Minute).ValidateAccessToken(token); err == nil {
		t.Fatalf("expected signature failure")
	}

	expired, _ := NewManager("secret", -time.Minute).GenerateAccessToken(uuid.New(), "")
	if _, err := NewManager("secret", time.Minute).ValidateAccessToken(expired); err == nil {
		t.Fatalf("expected expiry failure")
	}
}
