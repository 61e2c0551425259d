// ratelimit.go -- sliding-window rate limiter on Redis sorted sets.
//
// Each key holds one member per allowed call, scored by its timestamp in milliseconds.
// Trimming, counting and recording run inside a single Lua script so concurrent callers
// sharing a key can never both take the last slot.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/redis/go-redis/v9"
)

// slidingWindow trims entries at or before now-window, then records the call only if
// the window still has room. Denied calls leave no trace.
//
// KEYS[1] = limiter key
// ARGV[1] = now (ms), ARGV[2] = window (ms), ARGV[3] = max calls, ARGV[4] = unique member
// Returns {allowed (0|1), calls in window after this one, oldest score in window}.
var slidingWindow = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)
local count = redis.call('ZCARD', KEYS[1])
if count >= max then
	local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
	return {0, count, tonumber(oldest[2])}
end

redis.call('ZADD', KEYS[1], now, ARGV[4])
redis.call('PEXPIRE', KEYS[1], window)
return {1, count + 1, now}
`)

// RateLimiter is a sliding-window limiter keyed by arbitrary strings
// ("search:ip:203.0.113.7", "login:email:a@b.c").
type RateLimiter struct {
	rdb *redis.Client
	now func() time.Time
}

// NewRateLimiter returns a limiter backed by rdb using the wall clock.
func NewRateLimiter(rdb *redis.Client) *RateLimiter {
	return &RateLimiter{rdb: rdb, now: time.Now}
}

// WithClock swaps the time source. Tests drive the window with a fake clock.
func (l *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	l.now = now
	return l
}

// Allow records a call for key if fewer than policy.MaxAttempts calls happened within
// the trailing policy.Window. Returns ErrRateLimitExceeded otherwise.
func (l *RateLimiter) Allow(ctx context.Context, key string, policy RateLimit) error {
	_, err := l.allow(ctx, key, policy)
	return err
}

// RetryAfter is like Allow but also reports how long a denied caller should wait before
// a slot frees up. The duration is zero when the call is allowed.
func (l *RateLimiter) RetryAfter(ctx context.Context, key string, policy RateLimit) (time.Duration, error) {
	return l.allow(ctx, key, policy)
}

func (l *RateLimiter) allow(ctx context.Context, key string, policy RateLimit) (time.Duration, error) {
	member, err := uuid.NewV7()
	if err != nil {
		return 0, fmt.Errorf("generating rate limit member: %w", err)
	}

	nowMs := l.now().UnixMilli()
	windowMs := policy.Window.Milliseconds()
	res, err := slidingWindow.Run(ctx, l.rdb,
		[]string{"ratelimit:" + key},
		nowMs, windowMs, policy.MaxAttempts, member.String(),
	).Int64Slice()
	if err != nil {
		return 0, fmt.Errorf("checking rate limit: %w", err)
	}
	if len(res) != 3 {
		return 0, fmt.Errorf("checking rate limit: unexpected script reply %v", res)
	}

	if res[0] == 1 {
		return 0, nil
	}
	wait := time.Duration(res[2]+windowMs-nowMs) * time.Millisecond
	if wait < 0 {
		wait = 0
	}
	return wait, ErrRateLimitExceeded
}
