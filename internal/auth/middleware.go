package auth

import (
	"context"
	"net/http"
	"strings"

	pkghttp "github.com/meridianinvest/platform/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

// UserContextKey is the key for storing session claims in context
const UserContextKey contextKey = "user"

// Middleware validates session tokens and injects claims into the request
// context.
func Middleware(tm *TokenManager) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				pkghttp.WriteUnauthorized(w, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				pkghttp.WriteUnauthorized(w, "invalid authorization header format")
				return
			}

			claims, err := tm.ValidateToken(parts[1])
			if err != nil {
				pkghttp.WriteUnauthorized(w, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserFromContext retrieves session claims injected by Middleware.
// Returns nil when the request is unauthenticated.
func GetUserFromContext(r *http.Request) *SessionClaims {
	claims, _ := r.Context().Value(UserContextKey).(*SessionClaims)
	return claims
}
