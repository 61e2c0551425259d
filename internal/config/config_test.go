package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// --- LoadConfig ---

func TestLoadConfig(t *testing.T) {
	// Helper sets the minimum required env vars for a valid config
	setRequired := func(t *testing.T) {
		t.Helper()
		t.Setenv("DATABASE_URL", "postgres://localhost/bizfinder")
		t.Setenv("REDIS_URL", "redis://localhost:6379")
		t.Setenv("GOOGLE_MAPS_API_KEY", "test-key")
	}

	t.Run("returns valid config with all required vars", func(t *testing.T) {
		setRequired(t)

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.DatabaseURL != "postgres://localhost/bizfinder" {
			t.Errorf("DatabaseURL: expected %q, got %q", "postgres://localhost/bizfinder", cfg.DatabaseURL)
		}
		if cfg.RedisURL != "redis://localhost:6379" {
			t.Errorf("RedisURL: expected %q, got %q", "redis://localhost:6379", cfg.RedisURL)
		}
		if cfg.MapsAPIKey != "test-key" {
			t.Errorf("MapsAPIKey: expected %q, got %q", "test-key", cfg.MapsAPIKey)
		}
	})

	for _, key := range []string{"DATABASE_URL", "REDIS_URL", "GOOGLE_MAPS_API_KEY"} {
		t.Run("errors when "+key+" is missing", func(t *testing.T) {
			setRequired(t)
			t.Setenv(key, "")

			if _, err := LoadConfig(); err == nil {
				t.Fatalf("expected error for missing %s, got nil", key)
			}
		})
	}

	t.Run("defaults", func(t *testing.T) {
		setRequired(t)
		for _, key := range []string{"PORT", "LOG_LEVEL", "GEOCODE_URL", "PLACES_URL", "TRIAL_SEARCHES",
			"CACHE_TTL", "RATE_SEARCH_MAX", "RATE_SEARCH_WINDOW", "IP_SUSPICIOUS_THRESHOLD", "SESSION_TTL"} {
			t.Setenv(key, "")
		}

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Port != "8080" || cfg.LogLevel != slog.LevelInfo {
			t.Errorf("Port/LogLevel: got %q/%v", cfg.Port, cfg.LogLevel)
		}
		if cfg.GeocodeURL != "" || cfg.PlacesURL != "" {
			t.Error("upstream URLs should default to empty")
		}
		if cfg.TrialSearches != 3 || cfg.IPSuspiciousThreshold != 3 {
			t.Errorf("TrialSearches/IPSuspiciousThreshold: got %d/%d", cfg.TrialSearches, cfg.IPSuspiciousThreshold)
		}
		if cfg.CacheTTL != 15*time.Minute || cfg.CacheRetention != 24*time.Hour {
			t.Errorf("CacheTTL/CacheRetention: got %v/%v", cfg.CacheTTL, cfg.CacheRetention)
		}
		if cfg.RateSearchMax != 10 || cfg.RateSearchWindow != time.Minute {
			t.Errorf("search rate limit: got %d per %v", cfg.RateSearchMax, cfg.RateSearchWindow)
		}
		if cfg.SessionTTL != 24*time.Hour || cfg.UpstreamTimeout != 10*time.Second {
			t.Errorf("SessionTTL/UpstreamTimeout: got %v/%v", cfg.SessionTTL, cfg.UpstreamTimeout)
		}
	})

	t.Run("overrides", func(t *testing.T) {
		setRequired(t)
		t.Setenv("PORT", "9090")
		t.Setenv("LOG_LEVEL", "DEBUG")
		t.Setenv("TRIAL_SEARCHES", "5")
		t.Setenv("CACHE_TTL", "5m")
		t.Setenv("RATE_SEARCH_MAX", "20")
		t.Setenv("PLACES_URL", "http://localhost:9999/nearby")

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Port != "9090" || cfg.LogLevel != slog.LevelDebug {
			t.Errorf("Port/LogLevel: got %q/%v", cfg.Port, cfg.LogLevel)
		}
		if cfg.TrialSearches != 5 || cfg.CacheTTL != 5*time.Minute || cfg.RateSearchMax != 20 {
			t.Errorf("unexpected overrides %+v", cfg)
		}
		if cfg.PlacesURL != "http://localhost:9999/nearby" {
			t.Errorf("PlacesURL: got %q", cfg.PlacesURL)
		}
	})

	t.Run("invalid numbers fall back to defaults", func(t *testing.T) {
		setRequired(t)
		t.Setenv("RATE_SEARCH_MAX", "-4")
		t.Setenv("RATE_SEARCH_WINDOW", "soon")
		t.Setenv("TRIAL_SEARCHES", "three")

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.RateSearchMax != 10 || cfg.RateSearchWindow != time.Minute || cfg.TrialSearches != 3 {
			t.Errorf("expected defaults, got %d per %v, trial %d", cfg.RateSearchMax, cfg.RateSearchWindow, cfg.TrialSearches)
		}
	})

	t.Run("zero trial searches is kept", func(t *testing.T) {
		setRequired(t)
		t.Setenv("TRIAL_SEARCHES", "0")

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.TrialSearches != 0 {
			t.Errorf("TrialSearches: expected 0, got %d", cfg.TrialSearches)
		}
	})

	t.Run("negative trial searches falls back to default", func(t *testing.T) {
		setRequired(t)
		t.Setenv("TRIAL_SEARCHES", "-1")

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.TrialSearches != 3 {
			t.Errorf("TrialSearches: expected 3, got %d", cfg.TrialSearches)
		}
	})

	t.Run("mail, proxies and details are off by default", func(t *testing.T) {
		setRequired(t)
		for _, key := range []string{"SMTP_HOST", "SMTP_PORT", "TRUSTED_PROXIES", "PLACE_DETAILS_ENABLED",
			"RATE_PASSWORD_RESET_MAX", "RATE_PASSWORD_RESET_WINDOW"} {
			t.Setenv(key, "")
		}

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.SMTPHost != "" || cfg.SMTPPort != "587" {
			t.Errorf("SMTP: got host %q port %q", cfg.SMTPHost, cfg.SMTPPort)
		}
		if len(cfg.TrustedProxies) != 0 {
			t.Errorf("TrustedProxies: expected none, got %v", cfg.TrustedProxies)
		}
		if cfg.PlaceDetails || cfg.ContactLookups != 5 {
			t.Errorf("PlaceDetails/ContactLookups: got %v/%d", cfg.PlaceDetails, cfg.ContactLookups)
		}
		if cfg.RatePasswordResetMax != 3 || cfg.RatePasswordResetWindow != time.Hour {
			t.Errorf("reset rate limit: got %d per %v", cfg.RatePasswordResetMax, cfg.RatePasswordResetWindow)
		}
	})

	t.Run("trusted proxies are parsed", func(t *testing.T) {
		setRequired(t)
		t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 192.0.2.10")

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if len(cfg.TrustedProxies) != 2 || cfg.TrustedProxies[1].String() != "192.0.2.10/32" {
			t.Errorf("unexpected TrustedProxies %v", cfg.TrustedProxies)
		}
	})

	t.Run("rejects malformed trusted proxy", func(t *testing.T) {
		setRequired(t)
		t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8,lb.internal")

		if _, err := LoadConfig(); err == nil {
			t.Fatal("expected error for hostname in TRUSTED_PROXIES, got nil")
		}
	})

	t.Run("smtp requires https link bases", func(t *testing.T) {
		tests := []struct {
			name    string
			from    string
			reset   string
			verify  string
			wantErr bool
		}{
			{"complete", "noreply@example.com", "https://app.example.com/reset", "https://app.example.com/verify", false},
			{"missing from", "", "https://app.example.com/reset", "https://app.example.com/verify", true},
			{"http reset base", "noreply@example.com", "http://app.example.com/reset", "https://app.example.com/verify", true},
			{"missing verify base", "noreply@example.com", "https://app.example.com/reset", "", true},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				setRequired(t)
				t.Setenv("SMTP_HOST", "smtp.example.com")
				t.Setenv("SMTP_FROM", tt.from)
				t.Setenv("RESET_URL_BASE", tt.reset)
				t.Setenv("VERIFY_URL_BASE", tt.verify)

				cfg, err := LoadConfig()
				if tt.wantErr {
					if err == nil {
						t.Fatal("expected error, got nil")
					}
					return
				}
				if err != nil {
					t.Fatalf("LoadConfig failed: %v", err)
				}
				if cfg.SMTPHost != "smtp.example.com" || cfg.ResetURLBase != tt.reset {
					t.Errorf("unexpected SMTP config %q %q", cfg.SMTPHost, cfg.ResetURLBase)
				}
			})
		}
	})

	t.Run("place details flag", func(t *testing.T) {
		setRequired(t)
		t.Setenv("PLACE_DETAILS_ENABLED", "TRUE")
		t.Setenv("PLACE_DETAILS_CONCURRENCY", "8")

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if !cfg.PlaceDetails || cfg.ContactLookups != 8 {
			t.Errorf("PlaceDetails/ContactLookups: got %v/%d", cfg.PlaceDetails, cfg.ContactLookups)
		}
	})

	t.Run("rejects non-http upstream URL", func(t *testing.T) {
		setRequired(t)
		t.Setenv("GEOCODE_URL", "ftp://example.com/geocode")

		if _, err := LoadConfig(); err == nil {
			t.Fatal("expected error for ftp GEOCODE_URL, got nil")
		}
	})

	t.Run("reads .env without overriding real env", func(t *testing.T) {
		setRequired(t)
		// Unset so .env can supply it; t.Setenv restores the original afterwards.
		t.Setenv("GOOGLE_MAPS_API_KEY", "")
		os.Unsetenv("GOOGLE_MAPS_API_KEY")
		t.Setenv("PORT", "7000")

		dir := t.TempDir()
		env := "GOOGLE_MAPS_API_KEY=from-dotenv\nPORT=1234\n"
		if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o600); err != nil {
			t.Fatal(err)
		}
		t.Chdir(dir)

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.MapsAPIKey != "from-dotenv" {
			t.Errorf("MapsAPIKey: expected value from .env, got %q", cfg.MapsAPIKey)
		}
		if cfg.Port != "7000" {
			t.Errorf("Port: real env should win, got %q", cfg.Port)
		}
	})
}
