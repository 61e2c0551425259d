// models.go -- Shared domain types for the store package.
// Used by both Postgres (durable store) and Redis (sessions, rate limiting).
package store

import (
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
)

// ErrRateLimitExceeded is returned by Allow when the key has used up its window.
// Callers use errors.Is to distinguish rate limit rejections from Redis failures.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// ErrCacheMiss is returned by GetSession when the key is not in Redis.
var ErrCacheMiss = errors.New("cache miss")

// ErrQuotaExhausted is returned by RecordSearch when the user has no searches left
// at commit time. The whole transaction is rolled back.
var ErrQuotaExhausted = errors.New("search quota exhausted")

// Role values stored in users.role.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents a row in the users table.
// Nullable columns are pointers, nil means SQL NULL.
type User struct {
	ID                uuid.UUID  `json:"id"`
	Email             string     `json:"email"`
	Username          string     `json:"username"`
	PasswordHash      string     `json:"-"`
	Role              string     `json:"role"`
	EmailVerified     bool       `json:"emailVerified"`
	EmailVerifiedAt   *time.Time `json:"emailVerifiedAt,omitempty"`
	RemainingSearches int        `json:"remainingSearches"`
	IsPremium         bool       `json:"isPremium"`
	IsBanned          bool       `json:"isBanned"`
	BannedAt          *time.Time `json:"bannedAt,omitempty"`
	RegistrationIP    *string    `json:"registrationIp,omitempty"`
	LastLoginAt       *time.Time `json:"lastLoginAt,omitempty"`
	LastSearchAt      *time.Time `json:"lastSearchAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Token types stored in tokens.token_type.
const (
	TokenPasswordReset     = "password_reset"
	TokenEmailVerification = "email_verification"
)

// UserUpdate carries the admin-editable user fields. Nil fields are left unchanged.
type UserUpdate struct {
	RemainingSearches *int
	Role              *string
	IsPremium         *bool
}

// Session represents a row in the sessions table.
type Session struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash []byte
	CSRFToken []byte
	ExpiresAt time.Time
	IPAddress *string
	UserAgent *string
	CreatedAt time.Time
}

// CachedSession is the JSON shape stored in Redis for cached sessions.
// Only the fields needed for fast session validation, full metadata lives in Postgres.
type CachedSession struct {
	UserID    uuid.UUID `json:"userId"`
	CSRFToken []byte    `json:"csrfToken"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// RateLimit defines a sliding-window policy: at most MaxAttempts allowed
// calls within the trailing Window.
type RateLimit struct {
	MaxAttempts int
	Window      time.Duration
}

// SearchRecord represents a row in the searches table.
// ResultsCount always equals the number of search_results rows for the search.
type SearchRecord struct {
	ID           uuid.UUID `json:"id"`
	UserID       uuid.UUID `json:"userId"`
	Username     string    `json:"username,omitempty"` // joined in admin listings only
	City         string    `json:"city"`
	BusinessType string    `json:"businessType"`
	RadiusKm     int       `json:"radiusKm"`
	ResultsCount int       `json:"resultsCount"`
	CenterLat    float64   `json:"centerLat"`
	CenterLng    float64   `json:"centerLng"`
	IPAddress    string    `json:"ipAddress"`
	CreatedAt    time.Time `json:"createdAt"`
}

// BusinessResult represents a row in the search_results table.
// Also the JSON shape returned to search callers and stored in cache payloads.
type BusinessResult struct {
	PlaceID           string  `json:"id"`
	Name              string  `json:"name"`
	Address           string  `json:"address"`
	Rating            float64 `json:"rating,omitempty"`
	TotalReviews      int     `json:"totalReviews"`
	Lat               float64 `json:"lat"`
	Lng               float64 `json:"lng"`
	Phone             string  `json:"phone,omitempty"`
	Website           string  `json:"website,omitempty"`
	OperationalStatus string  `json:"operationalStatus,omitempty"`
	OpenNow           *bool   `json:"openNow,omitempty"`
	DistanceKm        float64 `json:"distance"`
}

// CacheEntry represents a row in the search_cache table.
// Payload is the raw JSON blob; the search package owns its shape.
type CacheEntry struct {
	Key       string
	Payload   []byte
	CreatedAt time.Time
}

// IPUsage represents a row in the ip_usage table.
type IPUsage struct {
	IPAddress    string    `json:"ip"`
	AccountCount int       `json:"accountCount"`
	FirstSeen    time.Time `json:"firstSeen"`
	LastSeen     time.Time `json:"lastSeen"`
	IsBlocked    bool      `json:"isBlocked"`
}

// CountEntry is a label with an occurrence count, used for dashboard breakdowns.
type CountEntry struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Stats is the aggregate admin dashboard view.
type Stats struct {
	TotalUsers     int            `json:"totalUsers"`
	TotalSearches  int            `json:"totalSearches"`
	SearchesToday  int            `json:"searchesToday"`
	BannedUsers    int            `json:"bannedUsers"`
	ActiveUsers    int            `json:"activeUsers"`
	TopTypes       []CountEntry   `json:"topBusinessTypes"`
	TopCities      []CountEntry   `json:"topCities"`
	RecentSearches []SearchRecord `json:"recentSearches"`
}
