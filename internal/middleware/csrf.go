// csrf.go enforces the per-user CSRF token on state-changing admin requests.
// Exemptions (GETs, login, public routes) are expressed by route wiring in
// router.go: exempt routes simply never register this middleware.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/testimonial-hub/testimonials-backend/internal/auth"
)

// CSRFHeader carries the token issued at login/verify.
const CSRFHeader = "X-CSRF-Token"

// CSRFMiddleware validates the X-CSRF-Token header against the authenticated
// user's current token. Must run after AuthMiddleware, which sets the user id.
// A missing or stale token is a 403; the client recovers by calling verify to
// get a fresh one.
func CSRFMiddleware(store auth.CSRFStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(ContextUserID)
		token := c.GetHeader(CSRFHeader)

		if !store.Validate(userID, token) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Invalid CSRF token",
			})
			return
		}

		c.Next()
	}
}
