package middleware

import (
	"net/http"

	"escrowbook/models"

	"github.com/gin-gonic/gin"
)

// RequireRole aborts with 403 unless the authenticated principal holds one of roles.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := GetPrincipal(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		for _, r := range roles {
			if principal.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": "This endpoint is not available for role '" + string(principal.Role) + "'",
		})
	}
}
