package main

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/admin"
	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/auth"
	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/config"
	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/mail"
	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/maps"
	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/metrics"
	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/search"
	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/store"
	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/web"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Embeds the migration files INTO the go bin

//go:embed migrations/*.sql
var migrationsDir embed.FS

// sessionRetention is how long expired sessions are kept before the daily sweep removes them.
const sessionRetention = 7 * 24 * time.Hour

// tokenRetention is how long used or expired reset/verification tokens are kept.
const tokenRetention = 7 * 24 * time.Hour

func main() {
	// Load config first so we can set log level
	cfg, err := config.LoadConfig()
	if err != nil {
		// Fallback logger before config is available
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}

	// Include source location in log entries at debug level only.
	addSrc := cfg.LogLevel == slog.LevelDebug

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     cfg.LogLevel,
		AddSource: addSrc,
	})))

	// Cancel ctx on SIGINT/SIGTERM; run() shuts down when ctx is done.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run() is a separate func so deferred closes (ps, rs) always execute before os.Exit.
	if err := run(ctx, cfg, nil); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

// run holds all server logic and returns error instead of calling os.Exit,
// so deferred resource cleanup (ps.Close, rs.Close) always runs.
// Shuts down when ctx is cancelled (signal handling is the caller's concern).
// If ready is non-nil, the server's base URL is sent on it once the listener is bound.
func run(ctx context.Context, cfg *config.Config, ready chan<- string) error {
	ps, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to set up postgres store: %w", err)
	}
	defer ps.Close()

	migrationsFS, err := fs.Sub(migrationsDir, "migrations")
	if err != nil {
		return fmt.Errorf("failed to access embedded migrations: %w", err)
	}
	if err := ps.Migrate(ctx, migrationsFS); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Sessions and the rate limiter share one Redis connection pool.
	rs, err := store.NewRedisStore(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to set up redis store: %w", err)
	}
	defer rs.Close()
	rl := store.NewRateLimiter(rs.Client())

	geocodeURL, placesURL := cfg.GeocodeURL, cfg.PlacesURL
	if geocodeURL == "" {
		geocodeURL = maps.DefaultGeocodeURL
	}
	if placesURL == "" {
		placesURL = maps.DefaultNearbyURL
	}

	searchDeps := search.Deps{
		Users:          ps,
		Searches:       ps,
		Cache:          ps,
		Geocoder:       maps.NewGeocoder(geocodeURL, cfg.MapsAPIKey, cfg.UpstreamTimeout),
		Places:         maps.NewPlacesClient(placesURL, cfg.MapsAPIKey, cfg.UpstreamTimeout),
		ContactLookups: cfg.ContactLookups,
		CacheTTL:       cfg.CacheTTL,
	}
	if cfg.PlaceDetails {
		detailsURL := cfg.DetailsURL
		if detailsURL == "" {
			detailsURL = maps.DefaultDetailsURL
		}
		searchDeps.Contacts = maps.NewDetailsClient(detailsURL, cfg.MapsAPIKey, cfg.UpstreamTimeout)
		slog.Info("place details enabled", "concurrency", cfg.ContactLookups)
	}
	svc := search.NewService(searchDeps)

	// NopMailer until SMTP is configured. Either way jobs go through the Redis queue.
	var inner mail.Mailer = mail.NopMailer{}
	if cfg.SMTPHost != "" {
		inner = mail.NewSMTPMailer(mail.SMTPConfig{
			Host:          cfg.SMTPHost,
			Port:          cfg.SMTPPort,
			Username:      cfg.SMTPUsername,
			Password:      cfg.SMTPPassword,
			From:          cfg.SMTPFrom,
			ResetURLBase:  cfg.ResetURLBase,
			VerifyURLBase: cfg.VerifyURLBase,
		})
		slog.Info("smtp mail enabled", "host", cfg.SMTPHost)
	} else {
		slog.Warn("SMTP_HOST not set, reset and verification emails are discarded")
	}
	mq := mail.NewQueue(inner, rs.Client(), mail.DefaultMaxQueueSize)

	deps := routerDeps{
		Auth: &auth.AuthHandler{
			PS:             ps,
			RS:             rs,
			RL:             rl,
			ML:             mq,
			TrialSearches:  &cfg.TrialSearches,
			SessionTTL:     cfg.SessionTTL,
			LoginPolicy:    store.RateLimit{MaxAttempts: cfg.RateLoginEmailMax, Window: cfg.RateLoginEmailWindow},
			RegisterPolicy: store.RateLimit{MaxAttempts: cfg.RateRegisterIPMax, Window: cfg.RateRegisterIPWindow},
			ResetPolicy:    store.RateLimit{MaxAttempts: cfg.RatePasswordResetMax, Window: cfg.RatePasswordResetWindow},
			ResendPolicy:   store.RateLimit{MaxAttempts: cfg.RateResendVerifyMax, Window: cfg.RateResendVerifyWindow},
		},
		Search:         &search.Handler{Svc: svc},
		Admin:          &admin.Handler{PS: ps, RS: rs, SuspiciousThreshold: cfg.IPSuspiciousThreshold},
		Limiter:        rl,
		SearchPolicy:   store.RateLimit{MaxAttempts: cfg.RateSearchMax, Window: cfg.RateSearchWindow},
		Postgres:       ps,
		Redis:          rs,
		TrustedProxies: cfg.TrustedProxies,
	}

	// Bind listener; ":0" picks a free port (useful in tests).
	ln, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	server := &http.Server{
		Handler:           buildRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Background work stops when run() returns.
	bgCtx, cancelBg := context.WithCancel(ctx)
	defer cancelBg()
	go runMaintenance(bgCtx, ps, cfg.CacheRetention, 24*time.Hour)
	go metrics.RunPoolCollector(bgCtx, ps.Stat, 15*time.Second)
	go mq.Run(bgCtx)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("business finder listening", "addr", ln.Addr().String())
		// Send error only if server stops for a reason other than explicit shutdown.
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Signal readiness to caller (used by tests; nil in production).
	if ready != nil {
		ready <- "http://" + ln.Addr().String()
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down server...")
	// In-flight searches get the same budget as the search work timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), search.DefaultWorkTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

// maintenanceStore is the subset of *store.PostgresStore the daily sweep needs.
type maintenanceStore interface {
	CleanupExpiredSessions(ctx context.Context, retention time.Duration) (int64, error)
	DeleteStaleCacheEntries(ctx context.Context, retention time.Duration) (int64, error)
	DeleteExpiredTokens(ctx context.Context, retention time.Duration) (int64, error)
}

// runMaintenance removes long-expired sessions, tokens and cache rows every interval until ctx is done.
func runMaintenance(ctx context.Context, ps maintenanceStore, cacheRetention, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			sweep(ctx, ps, cacheRetention)
		case <-ctx.Done():
			return
		}
	}
}

func sweep(ctx context.Context, ps maintenanceStore, cacheRetention time.Duration) {
	if n, err := ps.CleanupExpiredSessions(ctx, sessionRetention); err != nil {
		slog.Warn("session cleanup failed", "error", err)
	} else {
		slog.Info("session cleanup complete", "deleted", n)
	}
	if n, err := ps.DeleteExpiredTokens(ctx, tokenRetention); err != nil {
		slog.Warn("token cleanup failed", "error", err)
	} else {
		slog.Info("token cleanup complete", "deleted", n)
	}
	if n, err := ps.DeleteStaleCacheEntries(ctx, cacheRetention); err != nil {
		slog.Warn("cache sweep failed", "error", err)
	} else {
		slog.Info("cache sweep complete", "deleted", n)
	}
}

// healthChecker is satisfied by *store.PostgresStore and *store.RedisStore.
type healthChecker interface {
	CheckHealth(ctx context.Context) error
}

// routerDeps are the handlers and backends buildRouter mounts.
type routerDeps struct {
	Auth         *auth.AuthHandler
	Search       *search.Handler
	Admin        *admin.Handler
	Limiter      web.RateLimiter
	SearchPolicy store.RateLimit
	Postgres     healthChecker
	Redis        healthChecker

	// TrustedProxies may set the client address through forwarding headers.
	TrustedProxies []netip.Prefix
}

// buildRouter wires all routes and middleware.
// Called from run() and from smoke tests.
func buildRouter(d routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(web.TrustedRealIP(d.TrustedProxies))
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", healthHandler(d.Postgres, d.Redis))
	r.Handle("/metrics", metrics.Handler())

	r.Post("/register", d.Auth.Register)
	r.Post("/login", d.Auth.Login)
	r.Post("/password-reset", d.Auth.PasswordReset)
	r.Post("/password-reset/confirm", d.Auth.PasswordConfirm)
	r.Post("/verify-email", d.Auth.VerifyEmail)
	r.Post("/resend-verification", d.Auth.ResendVerification)

	// Authentication required routes
	r.Group(func(r chi.Router) {
		r.Use(d.Auth.RequireAuth)
		// CSRF reads token injected by RequireAuth above
		// DO NOT RUN CSRF BEFORE RequireAuth
		r.Use(d.Auth.CSRFMiddleware)

		r.Post("/logout", d.Auth.Logout)
		r.Post("/logout-all", d.Auth.LogoutAll)
		r.Get("/me", d.Auth.Me)
		r.Delete("/me", d.Auth.DeleteMe)

		r.With(web.RateLimitByIP(d.Limiter, "search", d.SearchPolicy)).Post("/search", d.Search.Search)
		r.Get("/searches", d.Search.History)

		r.Route("/admin", func(r chi.Router) {
			r.Use(d.Auth.RequireAdmin)
			d.Admin.Routes(r)
		})
	})

	return r
}

// healthHandler reports per-dependency status. Any failing dependency makes it a 503.
func healthHandler(pg, rd healthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		check := func(name string, c healthChecker) string {
			if err := c.CheckHealth(ctx); err != nil {
				web.LogError(r, "health check failed", "dependency", name, "error", err)
				status = http.StatusServiceUnavailable
				return "unavailable"
			}
			return "ok"
		}
		body := struct {
			Postgres string `json:"postgres"`
			Redis    string `json:"redis"`
		}{
			Postgres: check("postgres", pg),
			Redis:    check("redis", rd),
		}
		web.JSON(w, status, body)
	}
}
