// Package api wires together all HTTP routes for the testimonials backend.
//
// Route grouping philosophy:
//   - Public routes (/api/testimonials, /widgets/) are intentionally
//     unauthenticated: visitors submit testimonials and customer sites load
//     the embeddable widget without credentials. The submission endpoint is
//     rate limited and honeypot-checked instead.
//   - Admin routes (/api/admin/) always require a session JWT; mutating admin
//     routes additionally require the per-user CSRF token. CSRF exemptions
//     are expressed purely by wiring: exempt routes never see the middleware.
//   - Widget data routes (/api/widget/) are authorized by the caller's Origin
//     against the API keys' domain allow-lists, never by a secret, because the
//     embed snippet runs in client-visible code.
package api

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/testimonial-hub/testimonials-backend/internal/api/admin"
	"github.com/testimonial-hub/testimonials-backend/internal/api/public"
	"github.com/testimonial-hub/testimonials-backend/internal/audit"
	"github.com/testimonial-hub/testimonials-backend/internal/auth"
	"github.com/testimonial-hub/testimonials-backend/internal/config"
	"github.com/testimonial-hub/testimonials-backend/internal/db/repositories"
	"github.com/testimonial-hub/testimonials-backend/internal/middleware"
)

// BackgroundServices holds references to background resources that must be
// stopped during graceful shutdown. The caller (cmd/server) is responsible for
// calling Shutdown() when the process receives a termination signal.
type BackgroundServices struct {
	submissionCounter middleware.SubmissionCounter
	auditTrail        *audit.Trail
}

// Shutdown stops all background goroutines. It should be called after the HTTP
// server has been shut down so that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.submissionCounter != nil {
		bg.submissionCounter.Stop()
	}
	if bg.auditTrail != nil {
		if err := bg.auditTrail.Close(); err != nil {
			slog.Warn("failed to close audit trail", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// newAuditTrail builds the audit trail from configuration. Returns nil when
// auditing is disabled or no sink could be opened.
func newAuditTrail(cfg *config.AuditConfig) *audit.Trail {
	if !cfg.Enabled {
		return nil
	}

	var sinks []audit.Sink
	if cfg.FilePath != "" {
		fileSink, err := audit.NewFileSink(cfg.FilePath, cfg.MaxFileSizeMB)
		if err != nil {
			slog.Error("failed to open audit log file", "path", cfg.FilePath, "error", err)
		} else {
			sinks = append(sinks, fileSink)
		}
	}
	if cfg.WebhookURL != "" {
		sinks = append(sinks, audit.NewWebhookSink(cfg.WebhookURL, cfg.WebhookTimeout))
	}
	if len(sinks) == 0 {
		slog.Warn("audit enabled but no sinks configured")
		return nil
	}
	return audit.NewTrail(sinks...)
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, db *sql.DB) (*gin.Engine, *BackgroundServices) {
	router := gin.New()

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	apiKeyRepo := repositories.NewAPIKeyRepository(db)

	// Wrap *sql.DB with sqlx for the testimonial repository
	sqlxDB := sqlx.NewDb(db, "postgres")
	testimonialRepo := repositories.NewTestimonialRepository(sqlxDB)

	// CSRF tokens live in process memory; a restart invalidates all admin
	// sessions' tokens, which the frontend recovers from via /api/auth/verify.
	csrfStore := auth.NewMemoryCSRFStore()

	submissionCounter := middleware.NewSubmissionCounter(cfg.Security.RateLimiting)

	// Audit trail for admin writes and login attempts. Nil when disabled; the
	// middleware is only wired when a trail exists.
	auditTrail := newAuditTrail(&cfg.Audit)

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware(cfg))
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))

	// Health check endpoint
	router.GET("/health", healthCheckHandler(db))

	// API version
	router.GET("/version", versionHandler())

	// Handlers
	publicHandlers := public.NewHandlers(cfg, testimonialRepo)
	authHandlers := admin.NewAuthHandlers(cfg, userRepo, csrfStore)
	adminTestimonials := admin.NewTestimonialHandlers(cfg, testimonialRepo)
	adminUsers := admin.NewUserHandlers(cfg, userRepo)
	adminAPIKeys := admin.NewAPIKeyHandlers(cfg, apiKeyRepo)

	// Public testimonial endpoints. Submission is rate limited per client IP;
	// the listing is cacheable and never requires credentials.
	apiTestimonials := router.Group("/api/testimonials")
	{
		apiTestimonials.GET("", publicHandlers.ListTestimonialsHandler())
		apiTestimonials.POST("",
			middleware.SubmissionRateLimitMiddleware(cfg.Security.RateLimiting, submissionCounter),
			publicHandlers.SubmitTestimonialHandler())
	}

	// Session lifecycle. Login is CSRF-exempt (there is no prior session to
	// anchor a token to); verify and logout require the session JWT.
	apiAuth := router.Group("/api/auth")
	if auditTrail != nil {
		apiAuth.Use(middleware.AuditMiddleware(auditTrail, cfg.Audit.LogFailedRequests))
	}
	{
		apiAuth.POST("/login", authHandlers.LoginHandler())
		apiAuth.GET("/verify", middleware.AuthMiddleware(userRepo), authHandlers.VerifyHandler())
		apiAuth.POST("/logout",
			middleware.AuthMiddleware(userRepo),
			middleware.CSRFMiddleware(csrfStore),
			authHandlers.LogoutHandler())
	}

	// Admin moderation and management. Every route requires the session JWT;
	// state-changing routes also require the CSRF token. GET routes skip CSRF
	// by policy — which is only safe while no GET handler mutates state.
	apiAdmin := router.Group("/api/admin")
	apiAdmin.Use(middleware.AuthMiddleware(userRepo))
	if auditTrail != nil {
		apiAdmin.Use(middleware.AuditMiddleware(auditTrail, cfg.Audit.LogFailedRequests))
	}
	csrf := middleware.CSRFMiddleware(csrfStore)
	{
		apiAdmin.GET("/testimonials", adminTestimonials.ListTestimonialsHandler())
		apiAdmin.GET("/testimonials/pending", adminTestimonials.ListPendingHandler())
		apiAdmin.POST("/testimonials/:id/approve", csrf, adminTestimonials.ApproveHandler())
		apiAdmin.POST("/testimonials/:id/reject", csrf, adminTestimonials.RejectHandler())
		apiAdmin.PATCH("/testimonials/:id/featured", csrf, adminTestimonials.SetFeaturedHandler())
		apiAdmin.PATCH("/testimonials/:id/visibility", csrf, adminTestimonials.SetVisibilityHandler())
		apiAdmin.DELETE("/testimonials/:id", csrf, adminTestimonials.DeleteHandler())

		apiAdmin.GET("/users", adminUsers.ListUsersHandler())
		apiAdmin.POST("/users", csrf, adminUsers.CreateUserHandler())
		apiAdmin.PUT("/users/:id", csrf, adminUsers.UpdateUserHandler())
		apiAdmin.DELETE("/users/:id", csrf, adminUsers.DeleteUserHandler())

		apiAdmin.GET("/api-keys", adminAPIKeys.ListAPIKeysHandler())
		apiAdmin.POST("/api-keys", csrf, adminAPIKeys.CreateAPIKeyHandler())
		apiAdmin.PATCH("/api-keys/:id", csrf, adminAPIKeys.UpdateAPIKeyHandler())
		apiAdmin.DELETE("/api-keys/:id", csrf, adminAPIKeys.DeleteAPIKeyHandler())
	}

	// Widget data endpoints, authorized by Origin against the keys' domain
	// allow-lists. Responses carry the relaxed widget security headers so the
	// embeds can consume them cross-origin.
	apiWidget := router.Group("/api/widget")
	apiWidget.Use(middleware.SecurityHeadersMiddleware(middleware.WidgetSecurityHeadersConfig()))
	apiWidget.Use(widgetCORSMiddleware())
	apiWidget.Use(middleware.WidgetAuthMiddleware(apiKeyRepo))
	{
		apiWidget.GET("/testimonials", publicHandlers.ListTestimonialsHandler())
	}

	// Static widget bundles. Served to any origin; no-cache so embeds pick up
	// redeployed bundles without a version bump in the snippet.
	widgets := router.Group("/widgets")
	widgets.Use(middleware.SecurityHeadersMiddleware(middleware.WidgetSecurityHeadersConfig()))
	widgets.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Cache-Control", "no-cache")
		c.Next()
	})
	if cfg.Widgets.AssetsDir != "" {
		widgets.Static("/", cfg.Widgets.AssetsDir)
	}

	bg := &BackgroundServices{
		submissionCounter: submissionCounter,
		auditTrail:        auditTrail,
	}
	return router, bg
}

// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     "0.1.0",
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware provides structured request logging via slog
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		requestID, _ := c.Get(middleware.RequestIDKey)
		slog.LogAttrs(
			c.Request.Context(),
			slog.LevelInfo,
			"http request",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", latency),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", fmt.Sprintf("%v", requestID)),
			slog.String("user_agent", c.Request.UserAgent()),
		)
	}
}

// CORSMiddleware handles CORS for the admin API surface. The allow-list comes
// from configuration; widget routes have their own, origin-echoing handling.
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-CSRF-Token, X-API-Key, X-Requested-With")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// widgetCORSMiddleware echoes the request origin on widget data routes. The
// real authorization decision is WidgetAuthMiddleware's; CORS here only makes
// the authorized response readable by the embedding page.
func widgetCORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if origin := c.Request.Header.Get("Origin"); origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
