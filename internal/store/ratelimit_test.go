package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeClock is a settable time source for driving the limiter window.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var searchPolicy = RateLimit{MaxAttempts: 10, Window: time.Minute}

func newTestLimiter(t *testing.T) (*RateLimiter, *fakeClock) {
	t.Helper()
	testMiniRedis.FlushAll()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewRateLimiter(testRedis.Client()).WithClock(clock.Now), clock
}

func TestRateLimiterAllow(t *testing.T) {
	ctx := context.Background()

	t.Run("allows max calls then denies", func(t *testing.T) {
		rl, clock := newTestLimiter(t)
		for i := range 10 {
			if err := rl.Allow(ctx, "search:ip:203.0.113.7", searchPolicy); err != nil {
				t.Fatalf("call %d: expected allowed, got %v", i+1, err)
			}
			clock.Advance(time.Second)
		}

		err := rl.Allow(ctx, "search:ip:203.0.113.7", searchPolicy)
		if !errors.Is(err, ErrRateLimitExceeded) {
			t.Fatalf("11th call: expected ErrRateLimitExceeded, got %v", err)
		}
	})

	t.Run("allows again after window elapses", func(t *testing.T) {
		rl, clock := newTestLimiter(t)
		for range 10 {
			rl.Allow(ctx, "search:ip:203.0.113.8", searchPolicy)
		}
		if err := rl.Allow(ctx, "search:ip:203.0.113.8", searchPolicy); !errors.Is(err, ErrRateLimitExceeded) {
			t.Fatalf("expected denial inside window, got %v", err)
		}

		clock.Advance(61 * time.Second)
		if err := rl.Allow(ctx, "search:ip:203.0.113.8", searchPolicy); err != nil {
			t.Errorf("expected allowed after window, got %v", err)
		}
	})

	t.Run("denied calls are not recorded", func(t *testing.T) {
		rl, clock := newTestLimiter(t)
		for range 10 {
			rl.Allow(ctx, "search:ip:203.0.113.9", searchPolicy)
		}
		// Keep hammering through most of the window
		for range 50 {
			clock.Advance(time.Second)
			rl.Allow(ctx, "search:ip:203.0.113.9", searchPolicy)
		}

		// First ten calls age out at 60s; the denied ones must not hold the window shut
		clock.Advance(11 * time.Second)
		if err := rl.Allow(ctx, "search:ip:203.0.113.9", searchPolicy); err != nil {
			t.Errorf("expected allowed once original calls aged out, got %v", err)
		}
	})

	t.Run("keys are independent", func(t *testing.T) {
		rl, _ := newTestLimiter(t)
		for range 10 {
			rl.Allow(ctx, "search:ip:198.51.100.1", searchPolicy)
		}
		if err := rl.Allow(ctx, "search:ip:198.51.100.2", searchPolicy); err != nil {
			t.Errorf("other key should be unaffected, got %v", err)
		}
	})

	t.Run("sliding window frees slots one at a time", func(t *testing.T) {
		rl, clock := newTestLimiter(t)
		rl.Allow(ctx, "k", searchPolicy) // t=0
		clock.Advance(30 * time.Second)
		for range 9 {
			rl.Allow(ctx, "k", searchPolicy) // t=30s
		}

		clock.Advance(31 * time.Second) // t=61s, only the t=0 call has aged out
		if err := rl.Allow(ctx, "k", searchPolicy); err != nil {
			t.Fatalf("expected one freed slot, got %v", err)
		}
		if err := rl.Allow(ctx, "k", searchPolicy); !errors.Is(err, ErrRateLimitExceeded) {
			t.Errorf("expected denial with window full again, got %v", err)
		}
	})
}

func TestRateLimiterRetryAfter(t *testing.T) {
	ctx := context.Background()
	rl, clock := newTestLimiter(t)

	wait, err := rl.RetryAfter(ctx, "login:email:a@example.com", RateLimit{MaxAttempts: 1, Window: time.Minute})
	if err != nil || wait != 0 {
		t.Fatalf("first call: expected (0, nil), got (%v, %v)", wait, err)
	}

	clock.Advance(20 * time.Second)
	wait, err = rl.RetryAfter(ctx, "login:email:a@example.com", RateLimit{MaxAttempts: 1, Window: time.Minute})
	if !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("second call: expected ErrRateLimitExceeded, got %v", err)
	}
	if wait != 40*time.Second {
		t.Errorf("retry after: expected 40s, got %v", wait)
	}
}

func TestRateLimiterConcurrent(t *testing.T) {
	ctx := context.Background()
	rl, _ := newTestLimiter(t)

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for range 25 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Allow(ctx, "search:ip:192.0.2.1", searchPolicy) == nil {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := allowed.Load(); got != 10 {
		t.Errorf("expected exactly 10 allowed calls, got %d", got)
	}
}
