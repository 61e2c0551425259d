// ratelimit.go -- per-address rate limit middleware.
package web

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/metrics"
	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/store"
)

// RateLimiter checks and records rate limit state for a key.
// Satisfied by *store.RateLimiter.
type RateLimiter interface {
	// RetryAfter records the call if within policy. When over the limit it returns
	// store.ErrRateLimitExceeded and how long until a slot frees up.
	RetryAfter(ctx context.Context, key string, policy store.RateLimit) (time.Duration, error)
}

// RateLimitByIP rejects requests with 429 once the client address exceeds policy.
// Keys are "<name>:ip:<addr>". Limiter failures are 500s; the gate never fails open.
func RateLimitByIP(rl RateLimiter, name string, policy store.RateLimit) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wait, err := rl.RetryAfter(r.Context(), name+":ip:"+ClientIP(r), policy)
			if err != nil {
				if errors.Is(err, store.ErrRateLimitExceeded) {
					LogInfo(r, "rate limited", "policy", name)
					metrics.RateLimited.WithLabelValues(name).Inc()
					if wait > 0 {
						w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
					}
					TooManyRequests(w, "Rate limit exceeded. Please try again later.")
					return
				}
				InternalServerError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
