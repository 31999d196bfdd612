package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/emilythestrangee/uservoice/backend/internal/models"
)

const (
	userKey   = "user"
	userIDKey = "user_id"
)

// Authenticator resolves an Authorization header to an identity.
type Authenticator interface {
	Authenticate(authorization string) (models.User, bool)
}

// AuthMiddleware attaches the caller's identity to the context when the
// request carries a valid bearer token. It never rejects a request on its
// own; routes that need a user are wrapped in RequireAuth.
func AuthMiddleware(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if header := c.GetHeader("Authorization"); header != "" {
			if user, ok := auth.Authenticate(header); ok {
				c.Set(userKey, user)
				c.Set(userIDKey, user.ID)
			}
		}
		c.Next()
	}
}

// RequireAuth aborts with 401 unless AuthMiddleware resolved a user.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := CurrentUser(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}

// CurrentUser returns the identity set by AuthMiddleware.
func CurrentUser(c *gin.Context) (models.User, bool) {
	raw, exists := c.Get(userKey)
	if !exists {
		return models.User{}, false
	}
	user, ok := raw.(models.User)
	return user, ok
}
