// apikeys.go implements handlers for widget API key management. The full key
// secret leaves the server exactly once, in the creation response; only the
// bcrypt hash and a short display prefix are stored.
package admin

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/testimonial-hub/testimonials-backend/internal/auth"
	"github.com/testimonial-hub/testimonials-backend/internal/config"
	"github.com/testimonial-hub/testimonials-backend/internal/db/models"
	"github.com/testimonial-hub/testimonials-backend/internal/db/repositories"
	"github.com/testimonial-hub/testimonials-backend/internal/middleware"
	"github.com/testimonial-hub/testimonials-backend/internal/validation"
)

// APIKeyHandlers handles widget API key management endpoints
type APIKeyHandlers struct {
	cfg        *config.Config
	apiKeyRepo *repositories.APIKeyRepository
}

// NewAPIKeyHandlers creates a new APIKeyHandlers instance
func NewAPIKeyHandlers(cfg *config.Config, apiKeyRepo *repositories.APIKeyRepository) *APIKeyHandlers {
	return &APIKeyHandlers{
		cfg:        cfg,
		apiKeyRepo: apiKeyRepo,
	}
}

// ListAPIKeysHandler lists all API keys with creator names, newest first.
// Secrets are never included; the display prefix identifies each key.
// GET /api/admin/api-keys
func (h *APIKeyHandlers) ListAPIKeysHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		keys, err := h.apiKeyRepo.List(c.Request.Context())
		if err != nil {
			slog.Error("failed to list api keys", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list API keys",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"api_keys": keys,
		})
	}
}

// CreateAPIKeyRequest is the key creation body
type CreateAPIKeyRequest struct {
	Name             string   `json:"name" validate:"required,min=2,max=100"`
	Description      *string  `json:"description"`
	AllowedDomains   []string `json:"allowed_domains"`
	RateLimitPerHour int      `json:"rate_limit_per_hour" validate:"omitempty,min=1"`
}

// CreateAPIKeyHandler generates a new widget API key. The response carries the
// full secret; it cannot be retrieved again. When the new key's domain list
// overlaps another active restricted key, the response includes a warning:
// origin-only resolution picks the newest matching key, so the older key stops
// serving the shared domains.
// POST /api/admin/api-keys
func (h *APIKeyHandlers) CreateAPIKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateAPIKeyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request body",
			})
			return
		}

		if err := validation.Struct(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
			})
			return
		}

		domains := normalizeDomains(req.AllowedDomains)

		prefix := h.cfg.Auth.APIKeyPrefix
		if prefix == "" {
			prefix = "twk_"
		}
		fullKey, keyHash, displayPrefix, err := auth.GenerateAPIKey(prefix)
		if err != nil {
			slog.Error("failed to generate api key", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to create API key",
			})
			return
		}

		rateLimit := req.RateLimitPerHour
		if rateLimit <= 0 {
			rateLimit = 1000
		}

		createdBy := c.GetString(middleware.ContextUserID)
		key := &models.APIKey{
			Name:             validation.Sanitize(req.Name),
			Description:      req.Description,
			KeyHash:          keyHash,
			KeyPrefix:        displayPrefix,
			AllowedDomains:   domains,
			RateLimitPerHour: rateLimit,
			IsActive:         true,
			CreatedBy:        &createdBy,
		}

		warning := h.overlapWarning(c, domains)

		if err := h.apiKeyRepo.Create(c.Request.Context(), key); err != nil {
			slog.Error("failed to create api key", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to create API key",
			})
			return
		}

		resp := gin.H{
			"api_key": key,
			"key":     fullKey,
			"message": "Store this key securely. It will not be shown again.",
		}
		if warning != "" {
			resp["warning"] = warning
		}
		c.JSON(http.StatusCreated, resp)
	}
}

// overlapWarning reports whether any of the new key's domains are already
// served by an active restricted key. Best-effort: a lookup failure only
// suppresses the warning, never the creation.
func (h *APIKeyHandlers) overlapWarning(c *gin.Context, domains []string) string {
	if len(domains) == 0 {
		return ""
	}

	existing, err := h.apiKeyRepo.ListActiveRestricted(c.Request.Context())
	if err != nil {
		slog.Warn("overlap check failed", "error", err)
		return ""
	}

	for _, key := range existing {
		for _, have := range key.AllowedDomains {
			for _, want := range domains {
				if auth.DomainMatches(want, have) || auth.DomainMatches(have, want) {
					return fmt.Sprintf(
						"Domain %q overlaps key %q; the newest key serves origin-only widget requests for shared domains.",
						want, key.Name,
					)
				}
			}
		}
	}
	return ""
}

// UpdateAPIKeyRequest is the key update body. Pointer fields distinguish
// "leave unchanged" from an explicit new value.
type UpdateAPIKeyRequest struct {
	Name             *string   `json:"name"`
	Description      *string   `json:"description"`
	AllowedDomains   *[]string `json:"allowed_domains"`
	RateLimitPerHour *int      `json:"rate_limit_per_hour"`
	IsActive         *bool     `json:"is_active"`
}

// UpdateAPIKeyHandler updates a key's metadata, domain list, rate limit, or
// active flag. The secret itself is immutable; rotate by creating a new key.
// PATCH /api/admin/api-keys/:id
func (h *APIKeyHandlers) UpdateAPIKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		keyID := c.Param("id")

		var req UpdateAPIKeyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request body",
			})
			return
		}

		key, err := h.apiKeyRepo.GetByID(c.Request.Context(), keyID)
		if err != nil {
			slog.Error("failed to load api key", "id", keyID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to update API key",
			})
			return
		}
		if key == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "API key not found",
			})
			return
		}

		if req.Name != nil {
			name := validation.Sanitize(*req.Name)
			if len(name) < 2 {
				c.JSON(http.StatusBadRequest, gin.H{
					"error": `"name" length must be at least 2 characters long`,
				})
				return
			}
			key.Name = name
		}
		if req.Description != nil {
			key.Description = req.Description
		}
		if req.AllowedDomains != nil {
			key.AllowedDomains = normalizeDomains(*req.AllowedDomains)
		}
		if req.RateLimitPerHour != nil && *req.RateLimitPerHour > 0 {
			key.RateLimitPerHour = *req.RateLimitPerHour
		}
		if req.IsActive != nil {
			key.IsActive = *req.IsActive
		}

		updated, err := h.apiKeyRepo.Update(c.Request.Context(), key)
		if err != nil {
			slog.Error("failed to update api key", "id", keyID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to update API key",
			})
			return
		}
		if updated == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "API key not found",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"api_key": updated,
		})
	}
}

// DeleteAPIKeyHandler permanently removes a key. Widgets embedded with its
// domains stop resolving immediately.
// DELETE /api/admin/api-keys/:id
func (h *APIKeyHandlers) DeleteAPIKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		keyID := c.Param("id")

		deleted, err := h.apiKeyRepo.Delete(c.Request.Context(), keyID)
		if err != nil {
			slog.Error("failed to delete api key", "id", keyID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to delete API key",
			})
			return
		}
		if !deleted {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "API key not found",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "API key deleted",
		})
	}
}

// normalizeDomains lowercases, trims, and drops empty entries so stored
// allow-lists compare cleanly against normalized request origins.
func normalizeDomains(domains []string) []string {
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		d = strings.TrimPrefix(d, "www.")
		if d != "" {
			out = append(out, d)
		}
	}
	return out
}
