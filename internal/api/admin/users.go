// users.go implements handlers for admin account CRUD: listing, creating,
// updating, and deleting admin users.
package admin

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/testimonial-hub/testimonials-backend/internal/auth"
	"github.com/testimonial-hub/testimonials-backend/internal/config"
	"github.com/testimonial-hub/testimonials-backend/internal/db/models"
	"github.com/testimonial-hub/testimonials-backend/internal/db/repositories"
	"github.com/testimonial-hub/testimonials-backend/internal/middleware"
	"github.com/testimonial-hub/testimonials-backend/internal/validation"
)

// UserHandlers handles admin account management endpoints
type UserHandlers struct {
	cfg      *config.Config
	userRepo *repositories.UserRepository
}

// NewUserHandlers creates a new UserHandlers instance
func NewUserHandlers(cfg *config.Config, userRepo *repositories.UserRepository) *UserHandlers {
	return &UserHandlers{
		cfg:      cfg,
		userRepo: userRepo,
	}
}

// ListUsersHandler lists all admin accounts, newest first.
// GET /api/admin/users
func (h *UserHandlers) ListUsersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		users, err := h.userRepo.List(c.Request.Context())
		if err != nil {
			slog.Error("failed to list users", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list users",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"users": users,
		})
	}
}

// CreateUserRequest is the admin account creation body
type CreateUserRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// CreateUserHandler creates a new admin account.
// POST /api/admin/users
func (h *UserHandlers) CreateUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateUserRequest
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

		existing, err := h.userRepo.GetByEmail(c.Request.Context(), req.Email)
		if err != nil {
			slog.Error("failed to check existing user", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to create user",
			})
			return
		}
		if existing != nil {
			c.JSON(http.StatusConflict, gin.H{
				"error": "User with this email already exists",
			})
			return
		}

		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			slog.Error("failed to hash password", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to create user",
			})
			return
		}

		user := &models.User{
			Name:         validation.Sanitize(req.Name),
			Email:        req.Email,
			PasswordHash: hash,
		}
		if err := h.userRepo.Create(c.Request.Context(), user); err != nil {
			slog.Error("failed to create user", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to create user",
			})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"user": user,
		})
	}
}

// UpdateUserRequest is the admin account update body. Password is optional;
// an empty value keeps the existing hash.
type UpdateUserRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"omitempty,min=6"`
}

// UpdateUserHandler updates an admin account's name, email, and optionally
// its password.
// PUT /api/admin/users/:id
func (h *UserHandlers) UpdateUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateUserRequest
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

		hash := ""
		if req.Password != "" {
			var err error
			hash, err = auth.HashPassword(req.Password)
			if err != nil {
				slog.Error("failed to hash password", "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "Failed to update user",
				})
				return
			}
		}

		user := &models.User{
			ID:           c.Param("id"),
			Name:         validation.Sanitize(req.Name),
			Email:        req.Email,
			PasswordHash: hash,
		}
		updated, err := h.userRepo.Update(c.Request.Context(), user)
		if err != nil {
			slog.Error("failed to update user", "id", user.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to update user",
			})
			return
		}
		if updated == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "User not found",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"user": updated,
		})
	}
}

// DeleteUserHandler deletes an admin account. Deleting your own account is
// forbidden so the system can never lock out its last administrator through
// the API.
// DELETE /api/admin/users/:id
func (h *UserHandlers) DeleteUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		targetID := c.Param("id")

		if targetID == c.GetString(middleware.ContextUserID) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Cannot delete your own account",
			})
			return
		}

		deleted, err := h.userRepo.Delete(c.Request.Context(), targetID)
		if err != nil {
			slog.Error("failed to delete user", "id", targetID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to delete user",
			})
			return
		}
		if !deleted {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "User not found",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "User deleted",
		})
	}
}
