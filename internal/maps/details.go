// details.go -- Google Place Details client, contact fields only.
package maps

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// statusNotFound is returned by Place Details for a place_id that no longer exists.
const statusNotFound = "NOT_FOUND"

// contactFields limits the Details response to the Contact data SKU.
const contactFields = "formatted_phone_number,website"

// Contact is the phone and website of a place. Either may be empty.
type Contact struct {
	Phone   string
	Website string
}

// DetailsClient looks up contact details for a single place.
type DetailsClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewDetailsClient returns a DetailsClient calling baseURL (DefaultDetailsURL in production).
func NewDetailsClient(baseURL, apiKey string, timeout time.Duration) *DetailsClient {
	return &DetailsClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type detailsResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Result       struct {
		FormattedPhoneNumber string `json:"formatted_phone_number"`
		Website              string `json:"website"`
	} `json:"result"`
}

// Contact returns the phone and website for placeID. A place the service no longer
// knows yields an empty Contact; any other non-OK status returns ErrUpstreamUnavailable.
func (c *DetailsClient) Contact(ctx context.Context, placeID string) (Contact, error) {
	params := url.Values{
		"place_id": {placeID},
		"fields":   {contactFields},
		"key":      {c.apiKey},
	}

	var body detailsResponse
	if err := getJSON(ctx, c.httpClient, c.baseURL, params, &body); err != nil {
		return Contact{}, fmt.Errorf("place details: %w", err)
	}

	switch body.Status {
	case statusOK:
		return Contact{Phone: body.Result.FormattedPhoneNumber, Website: body.Result.Website}, nil
	case statusNotFound, statusZeroResults:
		return Contact{}, nil
	default:
		return Contact{}, fmt.Errorf("place details: %w: status %s: %s",
			ErrUpstreamUnavailable, body.Status, body.ErrorMessage)
	}
}
