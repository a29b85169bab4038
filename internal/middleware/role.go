package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/aura-academy/backend/internal/auth"
	"github.com/aura-academy/backend/pkg/response"
)

// RequireRole returns a middleware that allows only the given roles.
// It must run after JWT.
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		role := c.GetString(ContextUserRole)
		if role == "" {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		if _, ok := allowed[role]; !ok {
			response.Forbidden(c, "insufficient permissions")
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireAdmin is RequireRole(auth.RoleAdmin).
func RequireAdmin() gin.HandlerFunc { return RequireRole(auth.RoleAdmin) }
