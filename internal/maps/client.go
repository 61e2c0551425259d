// Package maps wraps the Google Geocoding, Places Nearby Search and Place Details APIs.
//
// client.go -- shared HTTP plumbing and error values.
// Neither client retries; a failed call fails the caller's request.
package maps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

const (
	// DefaultGeocodeURL is the Google Geocoding API JSON endpoint.
	DefaultGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"
	// DefaultNearbyURL is the Google Places Nearby Search JSON endpoint.
	DefaultNearbyURL = "https://maps.googleapis.com/maps/api/place/nearbysearch/json"
	// DefaultDetailsURL is the Google Place Details JSON endpoint.
	DefaultDetailsURL = "https://maps.googleapis.com/maps/api/place/details/json"
)

// ErrUpstreamUnavailable is returned when the remote service can't be reached,
// answers with a non-2xx status, or reports a failure status in its body.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// ErrLocationNotFound is returned by Geocode when the address resolves to nothing.
var ErrLocationNotFound = errors.New("location not found")

// statusOK and statusZeroResults are the Google API body statuses we branch on.
const (
	statusOK          = "OK"
	statusZeroResults = "ZERO_RESULTS"
)

// getJSON issues a GET to baseURL?params and decodes the JSON body into out.
// Transport errors, non-2xx responses and undecodable bodies all wrap ErrUpstreamUnavailable.
func getJSON(ctx context.Context, client *http.Client, baseURL string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little of the body for the log line; never returned to end users.
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrUpstreamUnavailable, resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %w", ErrUpstreamUnavailable, err)
	}
	return nil
}
