// Package metrics defines the Prometheus collectors exported on GET /metrics.
//
// Collectors are package-level and registered on the default registry via promauto,
// so any package can record without plumbing a registry through.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bizfinder"

// Search outcomes. One of these is recorded per POST /search.
const (
	OutcomeFresh    = "fresh"
	OutcomeCached   = "cached"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)

	// SearchesTotal counts searches by outcome (fresh, cached, rejected, failed).
	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Searches handled, by outcome",
		},
		[]string{"outcome"},
	)

	// CacheLookups counts result cache lookups by result (hit, miss, stale).
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Result cache lookups, by result",
		},
		[]string{"result"},
	)

	// UpstreamDuration times calls to the geocoding and places services.
	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Latency of external map service calls",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"service", "status"},
	)

	// RateLimited counts requests rejected by a rate limit policy.
	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by rate limiting, by policy",
		},
		[]string{"policy"},
	)

	// QuotaExhausted counts searches refused because the caller had no searches left.
	QuotaExhausted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_exhausted_total",
			Help:      "Searches refused for an exhausted trial quota",
		},
	)

	poolTotalConns = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "db_pool_total_connections",
		Help:      "Connections currently in the Postgres pool",
	})
	poolIdleConns = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "db_pool_idle_connections",
		Help:      "Idle connections in the Postgres pool",
	})
	poolAcquiredConns = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "db_pool_acquired_connections",
		Help:      "Connections currently checked out of the Postgres pool",
	})

	// MailJobs counts outbound mail by kind and result (queued, full, sent, failed).
	MailJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mail_jobs_total",
			Help:      "Transactional mail jobs, by kind and result",
		},
		[]string{"kind", "result"},
	)
)

// Handler serves the default registry in Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request count and latency per chi route pattern.
// /metrics itself is not recorded.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		// Pattern is only known after routing; fall back to a fixed label so
		// unmatched paths cannot blow up cardinality.
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// ObserveUpstream records one external call. err == nil is recorded as "ok".
func ObserveUpstream(service string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	UpstreamDuration.WithLabelValues(service, status).Observe(time.Since(start).Seconds())
}

// UpdatePoolMetrics copies the current pool statistics into the gauges.
func UpdatePoolMetrics(stat *pgxpool.Stat) {
	poolTotalConns.Set(float64(stat.TotalConns()))
	poolIdleConns.Set(float64(stat.IdleConns()))
	poolAcquiredConns.Set(float64(stat.AcquiredConns()))
}

// RunPoolCollector refreshes the pool gauges every interval until ctx is cancelled.
func RunPoolCollector(ctx context.Context, stat func() *pgxpool.Stat, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			UpdatePoolMetrics(stat())
		}
	}
}
