// Package telemetry provides application-level observability for the testimonials backend.
//
// All metrics are registered against the default Prometheus registry and are served
// on the side-channel HTTP server started by cmd/server (default port 9090) at
// GET /metrics. The endpoint is NOT served by the Gin router so it stays off the
// public ingress path and bypasses rate-limiting middleware.
//
// HTTP metrics use c.FullPath() (route template such as /api/admin/testimonials/:id)
// rather than the raw URL to prevent unbounded label cardinality from user-supplied
// path segments.
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics — labelled by method, route template, and status code.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Moderation pipeline metrics.
//
// TestimonialSubmissionsTotal is labelled by outcome: "accepted", "validation_failed",
// "spam", or "rate_limited". A rising spam rate is the signal to tighten the widget
// domain allow-lists.
//
// TestimonialTransitionsTotal counts successful moderation state changes, labelled by
// action ("approve", "reject", "feature", "unfeature", "show", "hide", "delete").
var (
	TestimonialSubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "testimonial_submissions_total",
			Help: "Total number of public testimonial submissions, by outcome.",
		},
		[]string{"outcome"},
	)

	TestimonialTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "testimonial_transitions_total",
			Help: "Total number of successful testimonial moderation actions, by action.",
		},
		[]string{"action"},
	)
)

// Widget authorization metrics.
//
// WidgetRequestsTotal is labelled by the public key prefix of the API key that
// authorized the request (bounded cardinality: one series per issued key) and by
// mode ("origin" or "secret").
//
// DomainAuthFailuresTotal counts rejected widget/API-key authorizations, labelled
// by reason ("no_key", "origin_mismatch", "inactive").
var (
	WidgetRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "widget_requests_total",
			Help: "Total number of widget requests authorized, by API key prefix and auth mode.",
		},
		[]string{"key_prefix", "mode"},
	)

	DomainAuthFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "domain_auth_failures_total",
			Help: "Total number of rejected domain/API-key authorizations, by reason.",
		},
		[]string{"reason"},
	)
)

// CSRFEvictionsTotal counts tokens evicted from the bounded CSRF registry.
// A sustained non-zero rate means more than 100 admins are active concurrently
// and the registry cap should be raised.
var CSRFEvictionsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "csrf_evictions_total",
		Help: "Total number of CSRF tokens evicted from the bounded in-memory registry.",
	},
)

// DBOpenConnections is a Gauge that tracks the number of open connections currently
// held by the sql.DB connection pool. It is sampled every 30 seconds by
// StartDBStatsCollector rather than per-request to avoid the overhead of sql.DB.Stats().
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB connection
// pool statistics every 30 seconds and updates the DBOpenConnections gauge.
// The goroutine exits cleanly when the database becomes unreachable (db.Ping fails),
// which happens automatically when the application shuts down and defers db.Close().
//
// Call this once, immediately after db.Connect() succeeds in cmd/server.
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}
