package auth

// WithNoAuth creates an AuthConfig that disables authentication.
// This is used when no admin password is configured.
func WithNoAuth() AuthConfig {
	return AuthConfig{
		Enabled:       false,
		Realm:         DefaultRealm,
		Authenticator: nil,
		RequireAuth:   false,
	}
}
