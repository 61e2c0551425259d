// geocode.go -- Google Geocoding API client.
package maps

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/geo"
)

// Geocoder resolves free-text place names to coordinates.
type Geocoder struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewGeocoder returns a Geocoder calling baseURL (DefaultGeocodeURL in production)
// with the given API key. timeout bounds each outbound request.
func NewGeocoder(baseURL, apiKey string, timeout time.Duration) *Geocoder {
	return &Geocoder{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type geocodeResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			Location geo.Point `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// Geocode returns the coordinate of the first result for address.
// ZERO_RESULTS, INVALID_REQUEST or an empty result list return ErrLocationNotFound;
// any other non-OK status (quota, key, server errors) returns ErrUpstreamUnavailable.
func (g *Geocoder) Geocode(ctx context.Context, address string) (geo.Point, error) {
	params := url.Values{
		"address": {address},
		"key":     {g.apiKey},
	}

	var body geocodeResponse
	if err := getJSON(ctx, g.httpClient, g.baseURL, params, &body); err != nil {
		return geo.Point{}, fmt.Errorf("geocoding %q: %w", address, err)
	}

	switch body.Status {
	case statusOK:
	case statusZeroResults, "INVALID_REQUEST":
		return geo.Point{}, fmt.Errorf("geocoding %q: %w", address, ErrLocationNotFound)
	default:
		return geo.Point{}, fmt.Errorf("geocoding %q: %w: status %s: %s",
			address, ErrUpstreamUnavailable, body.Status, body.ErrorMessage)
	}

	if len(body.Results) == 0 {
		return geo.Point{}, fmt.Errorf("geocoding %q: %w", address, ErrLocationNotFound)
	}
	return body.Results[0].Geometry.Location, nil
}
