package auth

import (
	"context"
	"crypto/subtle"
	"errors"

	"github.com/preslavrachev/sitebase/config"
)

// DefaultRealm is the Basic auth realm used when none is configured
const DefaultRealm = "sitebase"

// RoleAdmin may switch backends and move data in or out
const RoleAdmin = "admin"

var (
	ErrUnknownUser     = errors.New("user not found")
	ErrInvalidPassword = errors.New("invalid password")
)

// BasicAuthUser represents a user configured for basic authentication
type BasicAuthUser struct {
	Username string
	Password string
	User     AuthUser
}

// WithBasicAuth creates an AuthConfig that uses HTTP Basic Authentication
// Users are provided as a map of username -> BasicAuthUser
func WithBasicAuth(users map[string]BasicAuthUser) AuthConfig {
	authenticator := func(ctx context.Context, username, password string) (*AuthUser, error) {
		user, exists := users[username]
		if !exists {
			return nil, ErrUnknownUser
		}

		if subtle.ConstantTimeCompare([]byte(password), []byte(user.Password)) != 1 {
			return nil, ErrInvalidPassword
		}

		u := user.User
		return &u, nil
	}

	return AuthConfig{
		Enabled:       true,
		Realm:         DefaultRealm,
		Authenticator: authenticator,
		RequireAuth:   true,
	}
}

// NewBasicAuthUser creates a BasicAuthUser with the provided details
func NewBasicAuthUser(username, password, id, email string, roles []string) BasicAuthUser {
	return BasicAuthUser{
		Username: username,
		Password: password,
		User: AuthUser{
			ID:       id,
			Username: username,
			Email:    email,
			Roles:    roles,
		},
	}
}

// FromConfig builds the admin API auth from configuration.
// Without a configured password authentication is disabled.
func FromConfig(cfg *config.AuthConfig) AuthConfig {
	if !cfg.Enabled() {
		return WithNoAuth()
	}

	users := map[string]BasicAuthUser{
		cfg.BasicAuthUser: NewBasicAuthUser(
			cfg.BasicAuthUser,
			cfg.BasicAuthPass,
			cfg.BasicAuthUser,
			"",
			[]string{RoleAdmin},
		),
	}

	return WithBasicAuth(users)
}
