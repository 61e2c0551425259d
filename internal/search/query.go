package search

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// radiusMessage is the 400 message for any bad radiusKm, out of range or not an integer.
const radiusMessage = "Radius must be a whole number between 1 and 100 km."

// Radius bounds in kilometres, inclusive.
const (
	MinRadiusKm = 1
	MaxRadiusKm = 100
)

// maxFieldLen caps city and business type length in runes.
const maxFieldLen = 120

// Query is the validated search input.
type Query struct {
	City         string `json:"city"`
	BusinessType string `json:"businessType"`
	RadiusKm     int    `json:"radiusKm"`
}

// Normalize trims the text fields and checks every constraint, returning the cleaned query.
// All failures are invalid_argument and happen before any external call.
func (q Query) Normalize() (Query, error) {
	q.City = strings.TrimSpace(q.City)
	q.BusinessType = strings.TrimSpace(q.BusinessType)

	if q.City == "" || q.BusinessType == "" {
		return q, invalidArgument("City and business type are required.")
	}
	if utf8.RuneCountInString(q.City) > maxFieldLen || utf8.RuneCountInString(q.BusinessType) > maxFieldLen {
		return q, invalidArgument("City and business type must be at most 120 characters.")
	}
	if q.RadiusKm < MinRadiusKm || q.RadiusKm > MaxRadiusKm {
		return q, invalidArgument(radiusMessage)
	}
	return q, nil
}

// CacheKey identifies the query in the result cache. City matches case-insensitively;
// business type and radius must match exactly.
func (q Query) CacheKey() string {
	return strings.ToLower(strings.TrimSpace(q.City)) + "|" + q.BusinessType + "|" + strconv.Itoa(q.RadiusKm)
}
