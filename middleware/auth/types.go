package auth

import (
	"context"
	"net/http"
)

// AuthUser represents an authenticated admin API caller
type AuthUser struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
}

// HasRole reports whether the user carries the given role
func (u *AuthUser) HasRole(role string) bool {
	if u == nil {
		return false
	}
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// AuthenticatorFunc validates a username and password and returns the matching user
type AuthenticatorFunc func(ctx context.Context, username, password string) (*AuthUser, error)

// AuthConfig holds the complete authentication configuration
type AuthConfig struct {
	// Enabled determines if authentication is active
	Enabled bool

	// Realm is sent in the WWW-Authenticate challenge (default: "sitebase")
	Realm string

	// Authenticator is the function used to validate user credentials
	Authenticator AuthenticatorFunc

	// RequireAuth rejects anonymous requests when true.
	// If false, credentials are optional and only checked when present.
	RequireAuth bool
}

// AuthMiddleware wraps HTTP handlers to provide authentication
type AuthMiddleware func(http.Handler) http.Handler
