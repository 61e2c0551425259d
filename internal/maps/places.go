// places.go -- Google Places Nearby Search client.
package maps

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/geo"
)

// Place is one business returned by a nearby search.
type Place struct {
	PlaceID        string
	Name           string
	Address        string
	Rating         float64
	TotalReviews   int
	Location       geo.Point
	BusinessStatus string
	OpenNow        *bool

	// Nearby Search never returns these; they are filled from Place Details when enabled.
	Phone   string
	Website string
}

// PlacesClient queries businesses of a category around a coordinate.
type PlacesClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewPlacesClient returns a PlacesClient calling baseURL (DefaultNearbyURL in production).
func NewPlacesClient(baseURL, apiKey string, timeout time.Duration) *PlacesClient {
	return &PlacesClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type nearbyResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		PlaceID          string  `json:"place_id"`
		Name             string  `json:"name"`
		Vicinity         string  `json:"vicinity"`
		Rating           float64 `json:"rating"`
		UserRatingsTotal int     `json:"user_ratings_total"`
		BusinessStatus   string  `json:"business_status"`
		Geometry         struct {
			Location geo.Point `json:"location"`
		} `json:"geometry"`
		OpeningHours *struct {
			OpenNow bool `json:"open_now"`
		} `json:"opening_hours"`
	} `json:"results"`
}

// Nearby returns places of the given category within radiusMeters of center, in the
// order the service returned them. ZERO_RESULTS yields an empty slice; any other
// non-OK status returns ErrUpstreamUnavailable.
func (c *PlacesClient) Nearby(ctx context.Context, center geo.Point, radiusMeters int, category string) ([]Place, error) {
	params := url.Values{
		"location": {fmt.Sprintf("%.6f,%.6f", center.Lat, center.Lng)},
		"radius":   {strconv.Itoa(radiusMeters)},
		"type":     {category},
		"key":      {c.apiKey},
	}

	var body nearbyResponse
	if err := getJSON(ctx, c.httpClient, c.baseURL, params, &body); err != nil {
		return nil, fmt.Errorf("nearby search: %w", err)
	}

	switch body.Status {
	case statusOK:
	case statusZeroResults:
		return []Place{}, nil
	default:
		return nil, fmt.Errorf("nearby search: %w: status %s: %s",
			ErrUpstreamUnavailable, body.Status, body.ErrorMessage)
	}

	places := make([]Place, 0, len(body.Results))
	for _, r := range body.Results {
		p := Place{
			PlaceID:        r.PlaceID,
			Name:           r.Name,
			Address:        r.Vicinity,
			Rating:         r.Rating,
			TotalReviews:   r.UserRatingsTotal,
			Location:       r.Geometry.Location,
			BusinessStatus: r.BusinessStatus,
		}
		if r.OpeningHours != nil {
			open := r.OpeningHours.OpenNow
			p.OpenNow = &open
		}
		places = append(places, p)
	}
	return places, nil
}
