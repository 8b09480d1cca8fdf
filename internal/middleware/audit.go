// audit.go records authenticated admin writes and login attempts to the audit
// trail. Recording happens after the handler runs so the entry carries the
// final response status, and it happens off the request goroutine so a slow
// audit sink never adds latency to the API.
package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/testimonial-hub/testimonials-backend/internal/audit"
	"github.com/testimonial-hub/testimonials-backend/internal/safego"
)

// auditAction maps a route to a dotted action name, e.g. POST
// /api/admin/testimonials/42/approve becomes "testimonial.approve".
func auditAction(c *gin.Context) (action, resourceType, resourceID string) {
	path := c.Request.URL.Path
	resourceID = c.Param("id")

	switch {
	case strings.Contains(path, "/auth/login"):
		return "auth.login", "session", ""
	case strings.Contains(path, "/auth/logout"):
		return "auth.logout", "session", ""
	case strings.Contains(path, "/testimonials"):
		resourceType = "testimonial"
	case strings.Contains(path, "/users"):
		resourceType = "user"
	case strings.Contains(path, "/api-keys"):
		resourceType = "api_key"
	default:
		resourceType = "unknown"
	}

	switch {
	case strings.HasSuffix(path, "/approve"):
		action = resourceType + ".approve"
	case strings.HasSuffix(path, "/reject"):
		action = resourceType + ".reject"
	case strings.HasSuffix(path, "/featured"):
		action = resourceType + ".featured"
	case strings.HasSuffix(path, "/visibility"):
		action = resourceType + ".visibility"
	case c.Request.Method == "POST":
		action = resourceType + ".create"
	case c.Request.Method == "PUT", c.Request.Method == "PATCH":
		action = resourceType + ".update"
	case c.Request.Method == "DELETE":
		action = resourceType + ".delete"
	default:
		action = resourceType + "." + strings.ToLower(c.Request.Method)
	}
	return action, resourceType, resourceID
}

// AuditMiddleware records write operations to the trail. Reads are skipped.
// Failed requests are recorded only when logFailed is set, so repeated login
// failures remain visible in the trail without auditing every 404.
func AuditMiddleware(trail *audit.Trail, logFailed bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		method := c.Request.Method
		if method == "GET" || method == "OPTIONS" || method == "HEAD" {
			return
		}

		status := c.Writer.Status()
		if status >= 400 && !logFailed {
			return
		}

		action, resourceType, resourceID := auditAction(c)

		entry := &audit.Entry{
			Timestamp:    time.Now(),
			Action:       action,
			ActorID:      c.GetString(ContextUserID),
			ResourceType: resourceType,
			ResourceID:   resourceID,
			IPAddress:    c.ClientIP(),
			RequestID:    c.GetString(RequestIDKey),
			StatusCode:   status,
		}

		safego.Go(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = trail.Record(ctx, entry)
		})
	}
}
