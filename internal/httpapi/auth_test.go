package httpapi

import (
	"context"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"soleworks/backend/internal/domain"
	"soleworks/backend/internal/store"
)

type userStoreStub struct {
	mu    sync.Mutex
	users map[string]domain.UserAccount
}

func (s *userStoreStub) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func stubWithUser(t *testing.T, username, password, role string, active bool) *userStoreStub {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return &userStoreStub{users: map[string]domain.UserAccount{
		username: {
			ID:        "usr-" + username,
			Username:  username,
			Password:  string(hash),
			Role:      role,
			Active:    active,
			CreatedAt: time.Now().UTC(),
		},
	}}
}

func TestLoginAndParseTokenRoundTrip(t *testing.T) {
	auth := NewAuthManager("test-secret-key", time.Hour, stubWithUser(t, "admin", "admin123", "admin", true))

	resp, err := auth.Login(context.Background(), domain.LoginRequest{Username: "Admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Role != "admin" {
		t.Fatalf("expected admin role, got %s", resp.Role)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.Username != "admin" || actor.Role != "admin" || actor.UserID != "usr-admin" {
		t.Fatalf("unexpected actor: %+v", actor)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	auth := NewAuthManager("test-secret-key", time.Hour, stubWithUser(t, "admin", "admin123", "admin", true))

	if _, err := auth.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "nope"}); err == nil {
		t.Fatalf("expected login to fail")
	}
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	auth := NewAuthManager("test-secret-key", time.Hour, stubWithUser(t, "staff", "staff123", "staff", false))

	if _, err := auth.Login(context.Background(), domain.LoginRequest{Username: "staff", Password: "staff123"}); err == nil {
		t.Fatalf("expected inactive account to be rejected")
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	users := stubWithUser(t, "admin", "admin123", "admin", true)
	issuer := NewAuthManager("secret-one", time.Hour, users)
	verifier := NewAuthManager("secret-two", time.Hour, users)

	resp, err := issuer.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with a different secret to fail")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	auth := NewAuthManager("test-secret-key", -time.Minute, stubWithUser(t, "admin", "admin123", "admin", true))
	auth.tokenTTL = -time.Minute

	user, _ := auth.users.GetUserByUsername(context.Background(), "admin")
	token, err := auth.sign(user, time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if _, err := auth.ParseToken(token); err == nil {
		t.Fatalf("expected expired token to fail")
	}
}
