// cache.go -- read/write-through result cache with a freshness cutoff.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/geo"
	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/metrics"
	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/store"
	"github.com/jackc/pgx/v5"
)

// DefaultCacheTTL is how long a cached result set may be served.
const DefaultCacheTTL = 15 * time.Minute

// CacheStore persists cache entries. Satisfied by *store.PostgresStore.
type CacheStore interface {
	// GetCacheEntry returns pgx.ErrNoRows on miss.
	GetCacheEntry(ctx context.Context, key string) (*store.CacheEntry, error)
	PutCacheEntry(ctx context.Context, key string, payload []byte, createdAt time.Time) error
}

// CachedResult is the value stored per query.
type CachedResult struct {
	Businesses   []store.BusinessResult `json:"businesses"`
	SearchCenter geo.Point              `json:"searchCenter"`
}

// ResultCache serves entries younger than ttl. Older entries stay in storage until
// overwritten by Put or removed by the periodic sweep.
type ResultCache struct {
	store CacheStore
	ttl   time.Duration
	now   func() time.Time
}

// NewResultCache returns a cache over s. A nil now uses time.Now.
func NewResultCache(s CacheStore, ttl time.Duration, now func() time.Time) *ResultCache {
	if now == nil {
		now = time.Now
	}
	return &ResultCache{store: s, ttl: ttl, now: now}
}

// Get returns the cached value and its age when an entry exists and is younger than the TTL.
// hit is false on a miss or a stale entry.
func (c *ResultCache) Get(ctx context.Context, key string) (val *CachedResult, age time.Duration, hit bool, err error) {
	entry, err := c.store.GetCacheEntry(ctx, key)
	if errors.Is(err, pgx.ErrNoRows) {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("reading cache entry: %w", err)
	}

	age = c.now().Sub(entry.CreatedAt)
	if age >= c.ttl {
		metrics.CacheLookups.WithLabelValues("stale").Inc()
		return nil, age, false, nil
	}

	var v CachedResult
	if err := json.Unmarshal(entry.Payload, &v); err != nil {
		return nil, 0, false, fmt.Errorf("decoding cache entry: %w", err)
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return &v, age, true, nil
}

// Put stores v under key stamped with the current time, superseding any previous entry.
func (c *ResultCache) Put(ctx context.Context, key string, v CachedResult) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}
	if err := c.store.PutCacheEntry(ctx, key, payload, c.now()); err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}
