package search

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/geo"
	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/store"
	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/testutil"
)

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
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

func sampleCached() CachedResult {
	return CachedResult{
		Businesses: []store.BusinessResult{
			{PlaceID: "a", Name: "Near Diner", DistanceKm: 0.5},
			{PlaceID: "b", Name: "Far Grill", DistanceKm: 3.2},
		},
		SearchCenter: geo.Point{Lat: 39.78, Lng: -89.65},
	}
}

func TestResultCache(t *testing.T) {
	ctx := context.Background()

	t.Run("put then get within ttl returns same value", func(t *testing.T) {
		clock := newFakeClock()
		c := NewResultCache(testutil.NewMockStore(), DefaultCacheTTL, clock.Now)

		if err := c.Put(ctx, "k", sampleCached()); err != nil {
			t.Fatalf("Put: %v", err)
		}
		clock.Advance(14*time.Minute + 59*time.Second)

		got, age, hit, err := c.Get(ctx, "k")
		if err != nil || !hit {
			t.Fatalf("expected hit, got hit=%v err=%v", hit, err)
		}
		if age != 14*time.Minute+59*time.Second {
			t.Errorf("age: got %v", age)
		}
		if len(got.Businesses) != 2 || got.Businesses[0].PlaceID != "a" || got.SearchCenter.Lat != 39.78 {
			t.Errorf("value changed through cache: %+v", got)
		}
	})

	t.Run("entry at exactly ttl is a miss", func(t *testing.T) {
		clock := newFakeClock()
		ms := testutil.NewMockStore()
		c := NewResultCache(ms, DefaultCacheTTL, clock.Now)

		c.Put(ctx, "k", sampleCached())
		clock.Advance(15 * time.Minute)

		_, _, hit, err := c.Get(ctx, "k")
		if err != nil || hit {
			t.Fatalf("expected stale miss, got hit=%v err=%v", hit, err)
		}
		if _, ok := ms.Cache["k"]; !ok {
			t.Error("stale entry must not be deleted on read")
		}
	})

	t.Run("absent key is a miss", func(t *testing.T) {
		c := NewResultCache(testutil.NewMockStore(), DefaultCacheTTL, nil)
		_, _, hit, err := c.Get(ctx, "missing")
		if err != nil || hit {
			t.Errorf("expected clean miss, got hit=%v err=%v", hit, err)
		}
	})

	t.Run("put supersedes stale entry", func(t *testing.T) {
		clock := newFakeClock()
		c := NewResultCache(testutil.NewMockStore(), DefaultCacheTTL, clock.Now)

		c.Put(ctx, "k", CachedResult{SearchCenter: geo.Point{Lat: 1}})
		clock.Advance(time.Hour)
		c.Put(ctx, "k", sampleCached())

		got, _, hit, _ := c.Get(ctx, "k")
		if !hit || got.SearchCenter.Lat != 39.78 {
			t.Errorf("expected refreshed entry, got hit=%v %+v", hit, got)
		}
	})

	t.Run("storage failure surfaces", func(t *testing.T) {
		ms := testutil.NewMockStore()
		ms.CacheErr = errors.New("db down")
		c := NewResultCache(ms, DefaultCacheTTL, nil)

		if _, _, _, err := c.Get(ctx, "k"); err == nil {
			t.Error("expected Get error")
		}
		if err := c.Put(ctx, "k", sampleCached()); err == nil {
			t.Error("expected Put error")
		}
	})
}
