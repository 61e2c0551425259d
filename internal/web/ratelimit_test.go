package web

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/store"
)

type stubLimiter struct {
	keys []string
	wait time.Duration
	err  error
}

func (s *stubLimiter) RetryAfter(ctx context.Context, key string, policy store.RateLimit) (time.Duration, error) {
	s.keys = append(s.keys, key)
	return s.wait, s.err
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusTeapot)
})

func TestRateLimitByIP(t *testing.T) {
	policy := store.RateLimit{MaxAttempts: 10, Window: time.Minute}

	t.Run("passes through when allowed and keys by address", func(t *testing.T) {
		rl := &stubLimiter{}
		req := httptest.NewRequest(http.MethodPost, "/search", nil)
		req.RemoteAddr = "203.0.113.7:1234"
		rec := httptest.NewRecorder()

		RateLimitByIP(rl, "search", policy)(okHandler).ServeHTTP(rec, req)

		if rec.Code != http.StatusTeapot {
			t.Errorf("expected handler to run, got %d", rec.Code)
		}
		if len(rl.keys) != 1 || rl.keys[0] != "search:ip:203.0.113.7" {
			t.Errorf("unexpected keys %v", rl.keys)
		}
	})

	t.Run("429 with Retry-After when exceeded", func(t *testing.T) {
		rl := &stubLimiter{wait: 1500 * time.Millisecond, err: store.ErrRateLimitExceeded}
		rec := httptest.NewRecorder()

		RateLimitByIP(rl, "search", policy)(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/search", nil))

		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("expected 429, got %d", rec.Code)
		}
		if got := rec.Header().Get("Retry-After"); got != "2" {
			t.Errorf("Retry-After: expected 2, got %q", got)
		}
	})

	t.Run("500 on limiter failure", func(t *testing.T) {
		rl := &stubLimiter{err: errors.New("redis down")}
		rec := httptest.NewRecorder()

		RateLimitByIP(rl, "search", policy)(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/search", nil))

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", rec.Code)
		}
	})
}
