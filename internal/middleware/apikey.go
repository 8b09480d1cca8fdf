// apikey.go implements the two widget authorization strategies: key-secret
// mode, where the client presents the full key in a header, and origin-only
// mode, where embeddable widgets are authorized purely by their page's Origin
// against the active keys' domain allow-lists. Origin-only mode exists so the
// embed snippet never ships a secret in client-visible code.
package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/testimonial-hub/testimonials-backend/internal/auth"
	"github.com/testimonial-hub/testimonials-backend/internal/db/models"
	"github.com/testimonial-hub/testimonials-backend/internal/db/repositories"
	"github.com/testimonial-hub/testimonials-backend/internal/safego"
	"github.com/testimonial-hub/testimonials-backend/internal/telemetry"
)

// APIKeyHeader carries the full key secret in key-secret mode.
const APIKeyHeader = "X-API-Key"

// Context keys set on successful authorization.
const (
	ContextAPIKey   = "api_key"
	ContextAPIKeyID = "api_key_id"
)

// requestOriginHost extracts the normalized hostname from the request's Origin
// header, falling back to Referer.
func requestOriginHost(c *gin.Context) string {
	origin := c.GetHeader("Origin")
	if origin == "" {
		origin = c.GetHeader("Referer")
	}
	return auth.NormalizeOrigin(origin)
}

// recordKeyUsage bumps usage_count and last_used_at asynchronously. Usage
// accounting is best-effort: a failed update is not a correctness problem, and
// a synchronous write would add DB latency to every widget request. The
// timeout prevents leaked goroutines if the DB is temporarily unreachable.
func recordKeyUsage(repo *repositories.APIKeyRepository, keyID string) {
	safego.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = repo.RecordUsage(ctx, keyID)
	})
}

func attachKey(c *gin.Context, key *models.APIKey, mode string) {
	c.Set(ContextAPIKey, key)
	c.Set(ContextAPIKeyID, key.ID)
	telemetry.WidgetRequestsTotal.WithLabelValues(key.KeyPrefix, mode).Inc()
}

// APIKeyAuthMiddleware enforces key-secret mode: the client presents the full
// key in X-API-Key (Bearer form also accepted). The stored display prefix
// narrows the candidate rows before the bcrypt comparison. If the matched key
// carries domain restrictions, the request's Origin/Referer host must satisfy
// them. usage_count is only ever incremented after every check has passed.
func APIKeyAuthMiddleware(apiKeyRepo *repositories.APIKeyRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(APIKeyHeader)
		if header == "" {
			header = c.GetHeader("Authorization")
		}

		providedKey, err := auth.ExtractAPIKeyFromHeader(header)
		if err != nil {
			telemetry.DomainAuthFailuresTotal.WithLabelValues("no_key").Inc()
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "API key required",
			})
			return
		}

		keyPrefix := providedKey
		if len(providedKey) > auth.DisplayPrefixLength {
			keyPrefix = providedKey[:auth.DisplayPrefixLength]
		}

		candidates, err := apiKeyRepo.GetByPrefix(c.Request.Context(), keyPrefix)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Authentication failed",
			})
			return
		}

		var matched *models.APIKey
		for _, candidate := range candidates {
			if auth.ValidateAPIKey(providedKey, candidate.KeyHash) {
				matched = candidate
				break
			}
		}

		if matched == nil {
			telemetry.DomainAuthFailuresTotal.WithLabelValues("no_key").Inc()
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid API key",
			})
			return
		}

		if !matched.IsActive {
			telemetry.DomainAuthFailuresTotal.WithLabelValues("inactive").Inc()
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "API key is inactive",
			})
			return
		}

		if matched.HasDomainRestrictions() {
			host := requestOriginHost(c)
			if !auth.OriginAllowed(host, matched.AllowedDomains) {
				telemetry.DomainAuthFailuresTotal.WithLabelValues("origin_mismatch").Inc()
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
					"error": "Origin not allowed for this API key",
				})
				return
			}
		}

		recordKeyUsage(apiKeyRepo, matched.ID)
		attachKey(c, matched, "secret")

		c.Next()
	}
}

// WidgetAuthMiddleware enforces origin-only mode for the embeddable widget
// endpoints. The request's Origin/Referer host is matched against every active
// key that has a domain allow-list; the newest matching key wins (keys come
// back ordered by creation time descending, so overlapping allow-lists resolve
// deterministically). Requests with no Origin or Referer are permitted only
// when the declared Host is a loopback address, a development convenience for
// testing embeds locally.
func WidgetAuthMiddleware(apiKeyRepo *repositories.APIKeyRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		host := requestOriginHost(c)

		if host == "" {
			// No declared origin. Allow local development only.
			requestHost := auth.NormalizeOrigin(c.Request.Host)
			if auth.IsLoopbackHost(requestHost) {
				c.Next()
				return
			}
			telemetry.DomainAuthFailuresTotal.WithLabelValues("no_key").Inc()
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Origin header required",
			})
			return
		}

		if auth.IsLoopbackHost(host) {
			c.Next()
			return
		}

		keys, err := apiKeyRepo.ListActiveRestricted(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Authorization failed",
			})
			return
		}

		for _, key := range keys {
			for _, domain := range key.AllowedDomains {
				if auth.DomainMatches(host, domain) {
					recordKeyUsage(apiKeyRepo, key.ID)
					attachKey(c, key, "origin")
					c.Next()
					return
				}
			}
		}

		telemetry.DomainAuthFailuresTotal.WithLabelValues("origin_mismatch").Inc()
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": "Domain not authorized",
		})
	}
}
