// middlewares/auth_middleware.go
package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"nutrilog/logging"
	"nutrilog/utils"
)

const (
	ctxUserID = "userID"
	ctxEmail  = "email"
)

// AuthMiddleware requires a valid HS256 bearer token and stores the user id
// (and e-mail, when present) on the gin context.
func AuthMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "Authorization header required"})
			return
		}
		if len(secret) == 0 {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "server misconfigured: JWT secret not set"})
			return
		}

		claims, err := utils.ParseJWT(secret, strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "invalid token"})
			return
		}

		c.Set(ctxUserID, claims.UserID)
		if claims.Email != "" {
			c.Set(ctxEmail, claims.Email)
		}

		// Tag the request logger with the user.
		l := logging.Ctx(c.Request.Context()).With().Str("user_id", claims.UserID).Logger()
		c.Request = c.Request.WithContext(logging.WithContext(c.Request.Context(), l))

		c.Next()
	}
}

// UserID returns the authenticated user id, or "" outside AuthMiddleware.
func UserID(c *gin.Context) string {
	return c.GetString(ctxUserID)
}
