// Package middleware provides Gin HTTP middleware for the testimonials backend:
// authentication, CSRF enforcement, widget API-key authorization, submission
// rate limiting, security headers, request IDs, and Prometheus instrumentation.
//
// Middleware ordering matters and is enforced in router.go:
//
//	Recovery → RequestID → Metrics → Logger → CORS → SecurityHeaders → route-scoped policies → Handler
//
// Security headers run ahead of any handler so they appear on all responses
// including errors. The route-scoped policies (rate limit, honeypot, auth,
// CSRF, widget authorization) are attached per route group in router.go, which
// keeps the exemption set auditable: an endpoint skips a policy only because
// its group never registers it, never because the policy sniffs the path.
package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/testimonial-hub/testimonials-backend/internal/telemetry"
)

// MetricsMiddleware returns a Gin handler that records two Prometheus metrics for every
// request that passes through the router.
//
// Recorded metrics:
//   - http_requests_total{method, path, status}    — CounterVec
//   - http_request_duration_seconds{method, path}  — HistogramVec
//
// The path label is set from c.FullPath(), which returns the matched Gin route template
// (e.g. /api/admin/testimonials/:id/featured) rather than the raw URL. Requests that do
// not match any registered route (404/405) use the literal string "<no-route>" so
// unhandled paths do not inflate label cardinality.
//
// Register AFTER gin.Recovery() and RequestIDMiddleware so the response status set by
// error handlers is captured correctly.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		// Resolve the route template; fall back for 404/405 situations.
		path := c.FullPath()
		if path == "" {
			path = "<no-route>"
		}

		duration := time.Since(start).Seconds()
		method := c.Request.Method
		status := fmt.Sprintf("%d", c.Writer.Status())

		telemetry.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}
