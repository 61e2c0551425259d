// ratelimit.go
//
// In-memory rate limiter mock shared by handler tests.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/store"
)

// MockRateLimiter satisfies auth.RateLimiter and web.RateLimiter.
// AllowErr, when set, is returned from every call. Otherwise each key is allowed
// policy.MaxAttempts calls and then denied; the window never slides.
type MockRateLimiter struct {
	AllowErr error
	// Wait is returned alongside store.ErrRateLimitExceeded by RetryAfter.
	Wait time.Duration

	// Keys counts every call per key, allowed or not.
	Keys map[string]int

	mu sync.Mutex
}

func (m *MockRateLimiter) Allow(ctx context.Context, key string, policy store.RateLimit) error {
	_, err := m.RetryAfter(ctx, key, policy)
	return err
}

func (m *MockRateLimiter) RetryAfter(_ context.Context, key string, policy store.RateLimit) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Keys == nil {
		m.Keys = make(map[string]int)
	}
	m.Keys[key]++
	if m.AllowErr != nil {
		return m.Wait, m.AllowErr
	}
	if policy.MaxAttempts > 0 && m.Keys[key] > policy.MaxAttempts {
		return m.Wait, store.ErrRateLimitExceeded
	}
	return 0, nil
}

// Calls returns how many times key was checked.
func (m *MockRateLimiter) Calls(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Keys[key]
}
