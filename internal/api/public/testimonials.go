// Package public implements the unauthenticated testimonial endpoints: the
// cacheable approved-testimonials listing and the rate-limited submission
// endpoint that feeds the moderation queue.
package public

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/testimonial-hub/testimonials-backend/internal/config"
	"github.com/testimonial-hub/testimonials-backend/internal/db/models"
	"github.com/testimonial-hub/testimonials-backend/internal/db/repositories"
	"github.com/testimonial-hub/testimonials-backend/internal/telemetry"
	"github.com/testimonial-hub/testimonials-backend/internal/validation"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Handlers serves the public testimonial endpoints
type Handlers struct {
	cfg             *config.Config
	testimonialRepo *repositories.TestimonialRepository
}

// NewHandlers creates a new public Handlers instance
func NewHandlers(cfg *config.Config, testimonialRepo *repositories.TestimonialRepository) *Handlers {
	return &Handlers{
		cfg:             cfg,
		testimonialRepo: testimonialRepo,
	}
}

// SubmitTestimonialRequest is the public submission body. The website and url
// fields are honeypots: real visitors never see them, so any non-empty value
// marks the submission as bot traffic.
type SubmitTestimonialRequest struct {
	FullName        string `json:"full_name" validate:"required,min=2,max=100"`
	Email           string `json:"email" validate:"required,email"`
	TestimonialText string `json:"testimonial_text" validate:"required,min=50,max=500"`
	StarRating      int    `json:"star_rating" validate:"required,min=1,max=5"`
	SourceType      string `json:"source_type" validate:"required,oneof='Agency Client' 'Skool Community Member'"`
	Website         string `json:"website"`
	URL             string `json:"url"`
}

// ListTestimonialsHandler returns approved, visible, non-deleted testimonials.
// GET /api/testimonials?limit=20&offset=0&featured=true
//
// Responses are cacheable: the listing only changes on moderation actions, so
// a short public max-age keeps widget traffic off the database.
func (h *Handlers) ListTestimonialsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		featuredOnly := c.Query("featured") == "true"

		if limit < 1 || limit > maxLimit {
			limit = defaultLimit
		}
		if offset < 0 {
			offset = 0
		}

		testimonials, err := h.testimonialRepo.ListPublic(c.Request.Context(), featuredOnly, limit, offset)
		if err != nil {
			slog.Error("failed to list public testimonials", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve testimonials",
			})
			return
		}

		total, err := h.testimonialRepo.CountPublic(c.Request.Context(), featuredOnly)
		if err != nil {
			slog.Error("failed to count public testimonials", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve testimonials",
			})
			return
		}

		maxAge := h.cfg.Widgets.CacheMaxAge
		if maxAge <= 0 {
			maxAge = 300
		}
		c.Header("Cache-Control", fmt.Sprintf("public, max-age=%d", maxAge))

		c.JSON(http.StatusOK, gin.H{
			"testimonials": testimonials,
			"total":        total,
			"limit":        limit,
			"offset":       offset,
		})
	}
}

// SubmitTestimonialHandler accepts a public testimonial submission and stores
// it as pending. The pipeline order is fixed: honeypot check, then schema
// validation, then sanitization, then insert. Honeypot hits are counted but
// the response is indistinguishable from a validation failure status-wise.
// POST /api/testimonials
func (h *Handlers) SubmitTestimonialHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SubmitTestimonialRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			telemetry.TestimonialSubmissionsTotal.WithLabelValues("validation_failed").Inc()
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request body",
			})
			return
		}

		if req.Website != "" || req.URL != "" {
			telemetry.TestimonialSubmissionsTotal.WithLabelValues("spam").Inc()
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Spam detected",
			})
			return
		}

		if err := validation.Struct(&req); err != nil {
			telemetry.TestimonialSubmissionsTotal.WithLabelValues("validation_failed").Inc()
			c.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
			})
			return
		}

		ip := c.ClientIP()
		testimonial := &models.Testimonial{
			FullName:        validation.Sanitize(req.FullName),
			Email:           validation.Sanitize(req.Email),
			TestimonialText: validation.Sanitize(req.TestimonialText),
			StarRating:      req.StarRating,
			SourceType:      req.SourceType,
			IPAddress:       &ip,
		}

		if err := h.testimonialRepo.Create(c.Request.Context(), testimonial); err != nil {
			slog.Error("failed to create testimonial", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to submit testimonial",
			})
			return
		}

		telemetry.TestimonialSubmissionsTotal.WithLabelValues("accepted").Inc()
		c.JSON(http.StatusCreated, gin.H{
			"id":      testimonial.ID,
			"message": "Thank you! Your testimonial has been submitted for review.",
		})
	}
}
