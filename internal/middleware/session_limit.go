package middleware

import (
	"net/http"
	"strconv"

	"github.com/meridianinvest/platform/internal/auth"
	"github.com/meridianinvest/platform/internal/ratelimit"
)

// SessionRateLimit enforces the per-session API attempt budget for
// authenticated routes. Must run after the auth middleware; requests
// without session claims pass through to the per-IP edge limits.
func SessionRateLimit(registry *ratelimit.Registry) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := auth.GetUserFromContext(r)
			if claims == nil {
				next.ServeHTTP(w, r)
				return
			}

			limiter := registry.For(claims.UserID)
			if !limiter.CanProceed(ratelimit.CategoryAPI) {
				retry := limiter.RemainingTime(ratelimit.CategoryAPI)
				secs := int(retry.Seconds()) + 1
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"rate_limit_exceeded","message":"API rate limit exceeded"}`))
				return
			}
			limiter.RecordAttempt(ratelimit.CategoryAPI)

			next.ServeHTTP(w, r)
		})
	}
}
