// auth.go implements the admin session endpoints: password login, session
// verification, and logout.
package admin

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/testimonial-hub/testimonials-backend/internal/auth"
	"github.com/testimonial-hub/testimonials-backend/internal/config"
	"github.com/testimonial-hub/testimonials-backend/internal/db/models"
	"github.com/testimonial-hub/testimonials-backend/internal/db/repositories"
	"github.com/testimonial-hub/testimonials-backend/internal/middleware"
	"github.com/testimonial-hub/testimonials-backend/internal/validation"
)

// AuthHandlers handles session lifecycle endpoints
type AuthHandlers struct {
	cfg       *config.Config
	userRepo  *repositories.UserRepository
	csrfStore auth.CSRFStore
}

// NewAuthHandlers creates a new AuthHandlers instance
func NewAuthHandlers(cfg *config.Config, userRepo *repositories.UserRepository, csrfStore auth.CSRFStore) *AuthHandlers {
	return &AuthHandlers{
		cfg:       cfg,
		userRepo:  userRepo,
		csrfStore: csrfStore,
	}
}

// LoginRequest is the password login body
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginHandler authenticates an admin by email and password and issues the
// session JWT plus a fresh CSRF token. Unknown email and wrong password are
// deliberately indistinguishable in the response.
// POST /api/auth/login
func (h *AuthHandlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
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

		user, err := h.userRepo.GetByEmail(c.Request.Context(), req.Email)
		if err != nil {
			slog.Error("login lookup failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Login failed",
			})
			return
		}

		if user == nil || !auth.CheckPassword(req.Password, user.PasswordHash) {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid credentials",
			})
			return
		}

		expiry := h.cfg.Auth.TokenExpiry
		if expiry <= 0 {
			expiry = 24 * time.Hour
		}
		token, err := auth.GenerateJWT(user.ID, user.Email, expiry)
		if err != nil {
			slog.Error("failed to generate session token", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Login failed",
			})
			return
		}

		// Best-effort; a failed stamp must not block the login.
		if err := h.userRepo.UpdateLastLogin(c.Request.Context(), user.ID); err != nil {
			slog.Warn("failed to update last login", "user_id", user.ID, "error", err)
		}

		c.JSON(http.StatusOK, gin.H{
			"token":      token,
			"csrf_token": h.csrfStore.Issue(user.ID),
			"user":       sanitizedUser(user),
		})
	}
}

// VerifyHandler confirms the session is still valid and re-issues the CSRF
// token. The frontend calls this on page load, so a server restart (which
// clears the in-memory CSRF registry) heals transparently.
// GET /api/auth/verify
func (h *AuthHandlers) VerifyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userValue, _ := c.Get(middleware.ContextUser)
		user, ok := userValue.(*models.User)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "User not found",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"valid":      true,
			"csrf_token": h.csrfStore.Issue(user.ID),
			"user":       sanitizedUser(user),
		})
	}
}

// LogoutHandler acknowledges the logout. Sessions are stateless JWTs, so the
// real invalidation is the client discarding its token.
// POST /api/auth/logout
func (h *AuthHandlers) LogoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "Logged out",
		})
	}
}

// sanitizedUser strips server-side fields from the login/verify response
func sanitizedUser(user *models.User) gin.H {
	return gin.H{
		"id":    user.ID,
		"email": user.Email,
		"name":  user.Name,
	}
}
