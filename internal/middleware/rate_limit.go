package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimitConfig holds per-IP edge rate limit configuration. These limits
// sit in front of the per-session limiter and protect against anonymous
// abuse the session limiter never sees.
type RateLimitConfig struct {
	RequestsPerMinute int
}

// DefaultAuthRateLimit bounds login and registration attempts per IP
func DefaultAuthRateLimit() RateLimitConfig {
	return RateLimitConfig{RequestsPerMinute: 5}
}

// DefaultAPIRateLimit bounds general authenticated API use per IP
func DefaultAPIRateLimit() RateLimitConfig {
	return RateLimitConfig{RequestsPerMinute: 100}
}

// DefaultWebhookRateLimit bounds webhook deliveries per IP. Generous: the
// provider batches retries.
func DefaultWebhookRateLimit() RateLimitConfig {
	return RateLimitConfig{RequestsPerMinute: 300}
}

// RateLimitByIP creates a middleware that rate limits requests by client IP
func RateLimitByIP(config RateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyByRealIP(),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate_limit_exceeded","message":"Rate limit exceeded"}`))
		}),
	)
}
