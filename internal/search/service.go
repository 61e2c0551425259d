// service.go -- the search pipeline.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/geo"
	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/maps"
	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/metrics"
	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/store"
	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/web"
	"github.com/gofrs/uuid/v5"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkTimeout bounds the uncached part of a search (upstream calls + persistence).
const DefaultWorkTimeout = 30 * time.Second

// Geocoder resolves a city to a coordinate. Satisfied by *maps.Geocoder.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (geo.Point, error)
}

// PlacesFinder lists places around a coordinate. Satisfied by *maps.PlacesClient.
type PlacesFinder interface {
	Nearby(ctx context.Context, center geo.Point, radiusMeters int, category string) ([]maps.Place, error)
}

// ContactFinder looks up a place's phone and website. Satisfied by *maps.DetailsClient.
type ContactFinder interface {
	Contact(ctx context.Context, placeID string) (maps.Contact, error)
}

// DefaultContactLookups caps concurrent Place Details calls per search.
const DefaultContactLookups = 5

// Deps are the explicit collaborators of a Service.
type Deps struct {
	Users    UserStore
	Searches SearchStore
	Cache    CacheStore
	Geocoder Geocoder
	Places   PlacesFinder
	// Contacts is optional. When nil, results carry no phone or website.
	Contacts ContactFinder
	// ContactLookups defaults to DefaultContactLookups.
	ContactLookups int

	// CacheTTL defaults to DefaultCacheTTL, WorkTimeout to DefaultWorkTimeout.
	CacheTTL    time.Duration
	WorkTimeout time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// Service runs searches.
type Service struct {
	gate        *QuotaGate
	cache       *ResultCache
	geocoder    Geocoder
	places      PlacesFinder
	contacts    ContactFinder
	lookups     int
	searches    SearchStore
	workTimeout time.Duration
}

// NewService wires a Service from d, filling defaults.
func NewService(d Deps) *Service {
	if d.CacheTTL <= 0 {
		d.CacheTTL = DefaultCacheTTL
	}
	if d.WorkTimeout <= 0 {
		d.WorkTimeout = DefaultWorkTimeout
	}
	if d.ContactLookups <= 0 {
		d.ContactLookups = DefaultContactLookups
	}
	return &Service{
		gate:        NewQuotaGate(d.Users, d.Searches),
		cache:       NewResultCache(d.Cache, d.CacheTTL, d.Now),
		geocoder:    d.Geocoder,
		places:      d.Places,
		contacts:    d.Contacts,
		lookups:     d.ContactLookups,
		searches:    d.Searches,
		workTimeout: d.WorkTimeout,
	}
}

// Request is one search call. UserID and IP come from the transport, not the body.
type Request struct {
	UserID uuid.UUID
	IP     string
	Query  Query
}

// Response is returned to the caller on success.
type Response struct {
	SearchID          *uuid.UUID             `json:"searchId,omitempty"`
	Businesses        []store.BusinessResult `json:"businesses"`
	SearchCenter      geo.Point              `json:"searchCenter"`
	Message           string                 `json:"message"`
	RemainingSearches int                    `json:"remainingSearches"`
	TotalResults      int                    `json:"totalResults"`
	Cached            bool                   `json:"cached"`
}

// Search runs the pipeline for req. Errors are always *Error.
//
// A cache hit is answered without touching the quota or recording a search. On a miss the
// remaining stages run detached from caller cancellation, so a client that disconnects
// cannot leave a charged quota without its record or the reverse.
func (s *Service) Search(ctx context.Context, req Request) (*Response, error) {
	q, err := req.Query.Normalize()
	if err != nil {
		metrics.SearchesTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
		return nil, err
	}

	user, err := s.gate.CheckAndReserve(ctx, req.UserID)
	if err != nil {
		metrics.SearchesTotal.WithLabelValues(outcomeFor(err)).Inc()
		return nil, err
	}

	key := q.CacheKey()
	cached, age, hit, err := s.cache.Get(ctx, key)
	if err != nil {
		// Cache trouble degrades to a fresh search
		slog.Warn("result cache read failed", "key", key, "error", err)
	}
	if hit {
		slog.Debug("result cache hit", "key", key, "age", age)
		metrics.SearchesTotal.WithLabelValues(metrics.OutcomeCached).Inc()
		return &Response{
			Businesses:        cached.Businesses,
			SearchCenter:      cached.SearchCenter,
			Message:           resultMessage(len(cached.Businesses), q),
			RemainingSearches: user.RemainingSearches,
			TotalResults:      len(cached.Businesses),
			Cached:            true,
		}, nil
	}

	work, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.workTimeout)
	defer cancel()

	resp, err := s.fresh(work, req, q, user, key)
	if err != nil {
		metrics.SearchesTotal.WithLabelValues(outcomeFor(err)).Inc()
		return nil, err
	}
	metrics.SearchesTotal.WithLabelValues(metrics.OutcomeFresh).Inc()
	return resp, nil
}

// fresh runs the uncached stages: geocode, nearby search, rank, persist, cache.
func (s *Service) fresh(ctx context.Context, req Request, q Query, user *store.User, key string) (*Response, error) {
	start := time.Now()
	center, err := s.geocoder.Geocode(ctx, q.City)
	metrics.ObserveUpstream("geocode", start, err)
	if errors.Is(err, maps.ErrLocationNotFound) {
		return nil, &Error{
			Code:    web.CodeNotFound,
			Message: "Location not found. Please check the city name.",
			Err:     err,
		}
	}
	if err != nil {
		return nil, internal(err)
	}

	start = time.Now()
	places, err := s.places.Nearby(ctx, center, q.RadiusKm*1000, q.BusinessType)
	metrics.ObserveUpstream("places", start, err)
	if err != nil {
		return nil, internal(err)
	}
	if s.contacts != nil {
		s.enrich(ctx, places)
	}

	results := Rank(center, places)

	id, err := uuid.NewV7()
	if err != nil {
		return nil, internal(fmt.Errorf("generating search id: %w", err))
	}
	rec := &store.SearchRecord{
		ID:           id,
		UserID:       user.ID,
		City:         q.City,
		BusinessType: q.BusinessType,
		RadiusKm:     q.RadiusKm,
		CenterLat:    center.Lat,
		CenterLng:    center.Lng,
		IPAddress:    req.IP,
	}
	remaining, err := s.gate.Commit(ctx, user, rec, results)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Put(ctx, key, CachedResult{Businesses: results, SearchCenter: center}); err != nil {
		slog.Warn("result cache write failed", "key", key, "error", err)
	}

	return &Response{
		SearchID:          &id,
		Businesses:        results,
		SearchCenter:      center,
		Message:           resultMessage(len(results), q),
		RemainingSearches: remaining,
		TotalResults:      len(results),
	}, nil
}

// enrich fills Phone and Website from Place Details, at most s.lookups calls at a time.
// A failed lookup leaves that place without contact data; it never fails the search.
func (s *Service) enrich(ctx context.Context, places []maps.Place) {
	var g errgroup.Group
	g.SetLimit(s.lookups)
	for i := range places {
		g.Go(func() error {
			start := time.Now()
			c, err := s.contacts.Contact(ctx, places[i].PlaceID)
			metrics.ObserveUpstream("details", start, err)
			if err != nil {
				slog.Warn("place details lookup failed", "place_id", places[i].PlaceID, "error", err)
				return nil
			}
			places[i].Phone, places[i].Website = c.Phone, c.Website
			return nil
		})
	}
	g.Wait()
}

// Rank converts places to results with their distance from center, nearest first.
// Equal distances keep the order the places service returned.
func Rank(center geo.Point, places []maps.Place) []store.BusinessResult {
	results := make([]store.BusinessResult, 0, len(places))
	for _, p := range places {
		results = append(results, store.BusinessResult{
			PlaceID:           p.PlaceID,
			Name:              p.Name,
			Address:           p.Address,
			Rating:            p.Rating,
			TotalReviews:      p.TotalReviews,
			Lat:               p.Location.Lat,
			Lng:               p.Location.Lng,
			Phone:             p.Phone,
			Website:           p.Website,
			OperationalStatus: p.BusinessStatus,
			OpenNow:           p.OpenNow,
			DistanceKm:        geo.Distance(center, p.Location),
		})
	}
	geo.SortByDistance(results, func(r store.BusinessResult) float64 { return r.DistanceKm })
	return results
}

// History returns the caller's own searches, newest first.
func (s *Service) History(ctx context.Context, userID uuid.UUID, limit int) ([]store.SearchRecord, error) {
	recs, err := s.searches.ListUserSearches(ctx, userID, limit)
	if err != nil {
		return nil, internal(fmt.Errorf("listing searches: %w", err))
	}
	return recs, nil
}

func resultMessage(n int, q Query) string {
	if n == 1 {
		return fmt.Sprintf("Found 1 %s within %d km of %s.", q.BusinessType, q.RadiusKm, q.City)
	}
	return fmt.Sprintf("Found %d %s results within %d km of %s.", n, q.BusinessType, q.RadiusKm, q.City)
}

func outcomeFor(err error) string {
	var se *Error
	if errors.As(err, &se) && se.Code == web.CodeInternal {
		return metrics.OutcomeFailed
	}
	return metrics.OutcomeRejected
}
