// config.go

// Environment variable loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/web"
	"github.com/joho/godotenv"
)

// Config holds all env configuration vars for the service.
type Config struct {
	DatabaseURL string
	RedisURL    string
	Port        string
	LogLevel    slog.Level

	// Google Maps credentials and endpoints. URLs default to the public APIs.
	MapsAPIKey      string
	GeocodeURL      string
	PlacesURL       string
	UpstreamTimeout time.Duration

	// PlaceDetails enables one Place Details call per fresh result to fill phone and website.
	// Off by default: each call is billed separately.
	PlaceDetails   bool
	DetailsURL     string
	ContactLookups int

	// TrialSearches is the quota granted at registration. Default 3; 0 means no free trial.
	TrialSearches int

	// CacheTTL is how long a search result is served from cache. Default 15m.
	// CacheRetention is how long expired rows linger before the daily sweep. Default 24h.
	CacheTTL       time.Duration
	CacheRetention time.Duration

	// Per-IP limit on POST /search. Defaults: max=10, window=1m.
	RateSearchMax    int
	RateSearchWindow time.Duration

	// Rate limit policy for login attempts per email.
	// Defaults: max=10, window=10m.
	RateLoginEmailMax    int
	RateLoginEmailWindow time.Duration

	// Registrations per client address. Defaults: max=5, window=1h.
	RateRegisterIPMax    int
	RateRegisterIPWindow time.Duration

	// IPSuspiciousThreshold flags addresses with more registrations than this. Default 3.
	IPSuspiciousThreshold int

	// Reset and verification emails per address. Defaults: max=3, window=1h each.
	RatePasswordResetMax    int
	RatePasswordResetWindow time.Duration
	RateResendVerifyMax     int
	RateResendVerifyWindow  time.Duration

	// Session TTL. Default 24h; remember-me sessions last 30d regardless.
	SessionTTL time.Duration

	// TrustedProxies are the peers allowed to set X-Forwarded-For / X-Real-IP.
	// Empty means the socket address is always the client address.
	TrustedProxies []netip.Prefix

	// SMTP is optional; an empty SMTPHost disables outbound email.
	SMTPHost      string
	SMTPPort      string // defaults to 587
	SMTPUsername  string
	SMTPPassword  string
	SMTPFrom      string
	ResetURLBase  string
	VerifyURLBase string
}

// LoadConfig reads environment variables (and .env when present) and returns a validated Config.
// Returns an error if required variables (DATABASE_URL, REDIS_URL, GOOGLE_MAPS_API_KEY) are missing.
func LoadConfig() (*Config, error) {
	// .env is optional, real env vars win over it
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := &Config{}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	cfg.RedisURL = os.Getenv("REDIS_URL")
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	cfg.MapsAPIKey = os.Getenv("GOOGLE_MAPS_API_KEY")
	if cfg.MapsAPIKey == "" {
		return nil, fmt.Errorf("GOOGLE_MAPS_API_KEY is required")
	}

	// Attempt to get port num, default to 8080
	cfg.Port = os.Getenv("PORT")
	if cfg.Port == "" {
		cfg.Port = "8080"
	}

	// Parse log level, default to info
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		cfg.LogLevel = slog.LevelDebug
	case "warn":
		cfg.LogLevel = slog.LevelWarn
	case "error":
		cfg.LogLevel = slog.LevelError
	default:
		cfg.LogLevel = slog.LevelInfo
	}

	// Empty means the public Google endpoints (maps.Default*URL).
	cfg.GeocodeURL = os.Getenv("GEOCODE_URL")
	cfg.PlacesURL = os.Getenv("PLACES_URL")
	for key, v := range map[string]string{"GEOCODE_URL": cfg.GeocodeURL, "PLACES_URL": cfg.PlacesURL} {
		if v != "" && !strings.HasPrefix(v, "https://") && !strings.HasPrefix(v, "http://") {
			return nil, fmt.Errorf("%s must be an http(s) URL", key)
		}
	}
	cfg.UpstreamTimeout = envDuration("UPSTREAM_TIMEOUT", 10*time.Second)

	cfg.PlaceDetails = envBool("PLACE_DETAILS_ENABLED")
	cfg.DetailsURL = os.Getenv("PLACE_DETAILS_URL")
	if cfg.DetailsURL != "" && !strings.HasPrefix(cfg.DetailsURL, "https://") && !strings.HasPrefix(cfg.DetailsURL, "http://") {
		return nil, fmt.Errorf("PLACE_DETAILS_URL must be an http(s) URL")
	}
	cfg.ContactLookups = envInt("PLACE_DETAILS_CONCURRENCY", 5)

	cfg.TrialSearches = envCount("TRIAL_SEARCHES", 3)

	cfg.CacheTTL = envDuration("CACHE_TTL", 15*time.Minute)
	cfg.CacheRetention = envDuration("CACHE_RETENTION", 24*time.Hour)

	// Invalid values fall back to the default so a typo can't silently disable rate limiting.
	cfg.RateSearchMax = envInt("RATE_SEARCH_MAX", 10)
	cfg.RateSearchWindow = envDuration("RATE_SEARCH_WINDOW", time.Minute)
	cfg.RateLoginEmailMax = envInt("RATE_LOGIN_EMAIL_MAX", 10)
	cfg.RateLoginEmailWindow = envDuration("RATE_LOGIN_EMAIL_WINDOW", 10*time.Minute)
	cfg.RateRegisterIPMax = envInt("RATE_REGISTER_IP_MAX", 5)
	cfg.RateRegisterIPWindow = envDuration("RATE_REGISTER_IP_WINDOW", time.Hour)

	cfg.IPSuspiciousThreshold = envInt("IP_SUSPICIOUS_THRESHOLD", 3)

	cfg.RatePasswordResetMax = envInt("RATE_PASSWORD_RESET_MAX", 3)
	cfg.RatePasswordResetWindow = envDuration("RATE_PASSWORD_RESET_WINDOW", time.Hour)
	cfg.RateResendVerifyMax = envInt("RATE_RESEND_VERIFY_MAX", 3)
	cfg.RateResendVerifyWindow = envDuration("RATE_RESEND_VERIFY_WINDOW", time.Hour)

	cfg.SessionTTL = envDuration("SESSION_TTL", 24*time.Hour)

	// A typo here would silently trust nobody or everybody, so fail instead.
	proxies, err := web.ParseTrustedProxies(os.Getenv("TRUSTED_PROXIES"))
	if err != nil {
		return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}
	cfg.TrustedProxies = proxies

	cfg.SMTPHost = os.Getenv("SMTP_HOST")
	cfg.SMTPPort = os.Getenv("SMTP_PORT")
	if cfg.SMTPPort == "" {
		cfg.SMTPPort = "587"
	}
	cfg.SMTPUsername = os.Getenv("SMTP_USERNAME")
	cfg.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	cfg.SMTPFrom = os.Getenv("SMTP_FROM")
	cfg.ResetURLBase = os.Getenv("RESET_URL_BASE")
	cfg.VerifyURLBase = os.Getenv("VERIFY_URL_BASE")

	// Links carry live tokens, so they must be https.
	if cfg.SMTPHost != "" {
		if cfg.SMTPFrom == "" {
			return nil, fmt.Errorf("SMTP_FROM is required when SMTP_HOST is set")
		}
		if !strings.HasPrefix(cfg.ResetURLBase, "https://") {
			return nil, fmt.Errorf("RESET_URL_BASE must be set and start with https://")
		}
		if !strings.HasPrefix(cfg.VerifyURLBase, "https://") {
			return nil, fmt.Errorf("VERIFY_URL_BASE must be set and start with https://")
		}
	}

	return cfg, nil
}

// envInt reads an env var as int, returning def if missing or unparseable.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		slog.Warn("invalid env var, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

// envCount is envInt for settings where zero is meaningful. Negative or unparseable values return def.
func envCount(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		slog.Warn("invalid env var, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

// envBool is true for "1", "true", "yes" or "on", in any case.
func envBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// envDuration reads an env var as time.Duration, returning def if missing or unparseable.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		slog.Warn("invalid env var, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}
