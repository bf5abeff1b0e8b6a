package middleware

import (
	"net/http"

	"github.com/archops/governor/pkg/auth"

	"github.com/gin-gonic/gin"
)

// RequireAdmin gates agent management. Either the admin scope or the ADMIN
// role claim grants access.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if v, ok := c.Get("userClaims"); ok {
			if claims, ok := v.(*auth.Claims); ok && claims.HasScope(AdminScope) {
				c.Next()
				return
			}
		}
		v, _ := c.Get("userRole")
		if role, _ := v.(string); role != "ADMIN" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized. Admin only"})
			return
		}
		c.Next()
	}
}
