package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/preslavrachev/sitebase/config"
)

func TestWithBasicAuth(t *testing.T) {
	users := map[string]BasicAuthUser{
		"admin": NewBasicAuthUser("admin", "password123", "admin001", "admin@test.com", []string{"admin"}),
		"user":  NewBasicAuthUser("user", "userpass", "user001", "user@test.com", []string{"user"}),
	}

	cfg := WithBasicAuth(users)

	if !cfg.Enabled {
		t.Error("Expected auth to be enabled")
	}

	if cfg.Authenticator == nil {
		t.Fatal("Expected authenticator to be set")
	}

	ctx := context.Background()
	user, err := cfg.Authenticator(ctx, "admin", "password123")
	if err != nil {
		t.Fatalf("Expected successful authentication, got error: %v", err)
	}

	if user.Username != "admin" {
		t.Errorf("Expected username 'admin', got '%s'", user.Username)
	}

	if user.Email != "admin@test.com" {
		t.Errorf("Expected email 'admin@test.com', got '%s'", user.Email)
	}

	// Returned user must be a copy
	user.Roles = nil
	again, _ := cfg.Authenticator(ctx, "admin", "password123")
	if !again.HasRole("admin") {
		t.Error("Mutating a returned user should not affect the configured user")
	}

	_, err = cfg.Authenticator(ctx, "nonexistent", "password123")
	if !errors.Is(err, ErrUnknownUser) {
		t.Errorf("Expected ErrUnknownUser, got %v", err)
	}

	_, err = cfg.Authenticator(ctx, "admin", "wrongpassword")
	if !errors.Is(err, ErrInvalidPassword) {
		t.Errorf("Expected ErrInvalidPassword, got %v", err)
	}
}

func TestNewBasicAuthUser(t *testing.T) {
	user := NewBasicAuthUser("testuser", "testpass", "test001", "test@example.com", []string{"admin", "user"})

	if user.Username != "testuser" {
		t.Errorf("Expected username 'testuser', got '%s'", user.Username)
	}

	if user.Password != "testpass" {
		t.Errorf("Expected password 'testpass', got '%s'", user.Password)
	}

	if user.User.ID != "test001" {
		t.Errorf("Expected User.ID 'test001', got '%s'", user.User.ID)
	}

	expectedRoles := []string{"admin", "user"}
	if len(user.User.Roles) != len(expectedRoles) {
		t.Fatalf("Expected %d roles, got %d", len(expectedRoles), len(user.User.Roles))
	}

	for i, role := range expectedRoles {
		if user.User.Roles[i] != role {
			t.Errorf("Expected role '%s' at index %d, got '%s'", role, i, user.User.Roles[i])
		}
	}
}

func TestFromConfig(t *testing.T) {
	disabled := FromConfig(&config.AuthConfig{BasicAuthUser: "admin"})
	if disabled.Enabled {
		t.Error("Expected auth to be disabled without a password")
	}

	enabled := FromConfig(&config.AuthConfig{BasicAuthUser: "ops", BasicAuthPass: "s3cret"})
	if !enabled.Enabled || !enabled.RequireAuth {
		t.Fatal("Expected auth to be enabled and required with a password")
	}

	user, err := enabled.Authenticator(context.Background(), "ops", "s3cret")
	if err != nil {
		t.Fatalf("Expected configured user to authenticate, got %v", err)
	}
	if !user.HasRole("admin") {
		t.Error("Expected configured user to have the admin role")
	}
}
