package auth

import (
	"net/http"
	"strconv"
)

// CreateAuthMiddleware creates HTTP middleware for Basic authentication
func CreateAuthMiddleware(authConfig *AuthConfig) func(http.Handler) http.Handler {
	if authConfig == nil || !authConfig.Enabled {
		// Return no-op middleware if auth is disabled
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := userFromRequest(r, authConfig)
			if user == nil && (authConfig.RequireAuth || hasCredentials(r)) {
				challenge(w, authConfig)
				return
			}

			ctx := r.Context()
			if user != nil {
				ctx = WithAuthUser(ctx, user)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// userFromRequest authenticates the Basic credentials on the request, if any
func userFromRequest(r *http.Request, authConfig *AuthConfig) *AuthUser {
	username, password, ok := r.BasicAuth()
	if !ok || authConfig.Authenticator == nil {
		return nil
	}

	user, err := authConfig.Authenticator(r.Context(), username, password)
	if err != nil {
		return nil
	}
	return user
}

func hasCredentials(r *http.Request) bool {
	return r.Header.Get("Authorization") != ""
}

// challenge writes a 401 with a WWW-Authenticate header
func challenge(w http.ResponseWriter, authConfig *AuthConfig) {
	realm := authConfig.Realm
	if realm == "" {
		realm = DefaultRealm
	}
	w.Header().Set("WWW-Authenticate", "Basic realm="+strconv.Quote(realm)+", charset=\"UTF-8\"")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":{"kind":"validation","message":"authentication required"}}` + "\n"))
}
