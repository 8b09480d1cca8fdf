// testimonials.go implements the moderation endpoints: listing the queue and
// moving testimonials through the pending → approved/rejected lifecycle.
//
// Every transition is a single conditional UPDATE whose WHERE clause encodes
// the legal state machine, so two moderators racing on the same row cannot
// double-apply an action: the loser's UPDATE matches zero rows and is reported
// as "not found or already processed". That response deliberately does not
// distinguish a missing id from an already-moderated one.
package admin

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/testimonial-hub/testimonials-backend/internal/config"
	"github.com/testimonial-hub/testimonials-backend/internal/db/models"
	"github.com/testimonial-hub/testimonials-backend/internal/db/repositories"
	"github.com/testimonial-hub/testimonials-backend/internal/telemetry"
)

// TestimonialHandlers handles the moderation endpoints
type TestimonialHandlers struct {
	cfg             *config.Config
	testimonialRepo *repositories.TestimonialRepository
}

// NewTestimonialHandlers creates a new TestimonialHandlers instance
func NewTestimonialHandlers(cfg *config.Config, testimonialRepo *repositories.TestimonialRepository) *TestimonialHandlers {
	return &TestimonialHandlers{
		cfg:             cfg,
		testimonialRepo: testimonialRepo,
	}
}

// ListTestimonialsHandler lists testimonials for moderation, optionally
// filtered by status, with per-status counts for the dashboard tabs.
// GET /api/admin/testimonials?status=pending&limit=20&offset=0
func (h *TestimonialHandlers) ListTestimonialsHandler() gin.HandlerFunc {
	return h.listByStatus("")
}

// ListPendingHandler lists the moderation queue.
// GET /api/admin/testimonials/pending
func (h *TestimonialHandlers) ListPendingHandler() gin.HandlerFunc {
	return h.listByStatus(models.StatusPending)
}

func (h *TestimonialHandlers) listByStatus(fixedStatus string) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := fixedStatus
		if status == "" {
			status = c.Query("status")
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		if limit < 1 || limit > 100 {
			limit = 20
		}
		if offset < 0 {
			offset = 0
		}

		testimonials, err := h.testimonialRepo.ListAdmin(c.Request.Context(), status, limit, offset)
		if err != nil {
			slog.Error("failed to list testimonials", "status", status, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve testimonials",
			})
			return
		}

		counts, err := h.testimonialRepo.CountByStatus(c.Request.Context())
		if err != nil {
			slog.Error("failed to count testimonials", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve testimonials",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"testimonials": testimonials,
			"counts":       counts,
			"limit":        limit,
			"offset":       offset,
		})
	}
}

// ApproveHandler moves a pending testimonial to approved.
// POST /api/admin/testimonials/:id/approve
func (h *TestimonialHandlers) ApproveHandler() gin.HandlerFunc {
	return h.transition("approve", h.approve)
}

// RejectHandler moves a pending testimonial to rejected.
// POST /api/admin/testimonials/:id/reject
func (h *TestimonialHandlers) RejectHandler() gin.HandlerFunc {
	return h.transition("reject", h.reject)
}

func (h *TestimonialHandlers) approve(c *gin.Context, id int64) (*models.Testimonial, error) {
	return h.testimonialRepo.Approve(c.Request.Context(), id)
}

func (h *TestimonialHandlers) reject(c *gin.Context, id int64) (*models.Testimonial, error) {
	return h.testimonialRepo.Reject(c.Request.Context(), id)
}

// transition wraps the shared id-parse / zero-rows / response plumbing around
// a lifecycle action.
func (h *TestimonialHandlers) transition(action string, apply func(*gin.Context, int64) (*models.Testimonial, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid testimonial id",
			})
			return
		}

		testimonial, err := apply(c, id)
		if err != nil {
			slog.Error("testimonial transition failed", "action", action, "id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to update testimonial",
			})
			return
		}

		if testimonial == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Testimonial not found or already processed",
			})
			return
		}

		telemetry.TestimonialTransitionsTotal.WithLabelValues(action).Inc()
		c.JSON(http.StatusOK, gin.H{
			"testimonial": testimonial,
		})
	}
}

// SetFeaturedRequest toggles the featured flag on an approved testimonial
type SetFeaturedRequest struct {
	Featured *bool `json:"featured" binding:"required"`
}

// SetFeaturedHandler toggles the featured flag. Only approved testimonials can
// be featured; the conditional UPDATE enforces that.
// PATCH /api/admin/testimonials/:id/featured
func (h *TestimonialHandlers) SetFeaturedHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SetFeaturedRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Request body must include 'featured'",
			})
			return
		}

		action := "unfeature"
		if *req.Featured {
			action = "feature"
		}
		h.transition(action, func(c *gin.Context, id int64) (*models.Testimonial, error) {
			return h.testimonialRepo.SetFeatured(c.Request.Context(), id, *req.Featured)
		})(c)
	}
}

// SetVisibilityRequest toggles the visibility flag on an approved testimonial
type SetVisibilityRequest struct {
	Visible *bool `json:"visible" binding:"required"`
}

// SetVisibilityHandler toggles public visibility. Only approved testimonials
// have a visibility toggle.
// PATCH /api/admin/testimonials/:id/visibility
func (h *TestimonialHandlers) SetVisibilityHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SetVisibilityRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Request body must include 'visible'",
			})
			return
		}

		action := "hide"
		if *req.Visible {
			action = "show"
		}
		h.transition(action, func(c *gin.Context, id int64) (*models.Testimonial, error) {
			return h.testimonialRepo.SetVisibility(c.Request.Context(), id, *req.Visible)
		})(c)
	}
}

// DeleteHandler soft-deletes a testimonial. Terminal from any state; the row
// is retained for audit but excluded from every listing.
// DELETE /api/admin/testimonials/:id
func (h *TestimonialHandlers) DeleteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid testimonial id",
			})
			return
		}

		deleted, err := h.testimonialRepo.SoftDelete(c.Request.Context(), id)
		if err != nil {
			slog.Error("testimonial delete failed", "id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to delete testimonial",
			})
			return
		}

		if !deleted {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Testimonial not found or already processed",
			})
			return
		}

		telemetry.TestimonialTransitionsTotal.WithLabelValues("delete").Inc()
		c.JSON(http.StatusOK, gin.H{
			"message": "Testimonial deleted",
		})
	}
}
