package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

const adminUser = "admin"

// AdminAuthMiddleware protects the ops surface with HTTP basic auth.
// An empty password rejects every request.
func AdminAuthMiddleware(adminPassword string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, password, hasAuth := c.Request.BasicAuth()
		if !hasAuth || adminPassword == "" || user != adminUser ||
			subtle.ConstantTimeCompare([]byte(password), []byte(adminPassword)) != 1 {
			c.Header("WWW-Authenticate", `Basic realm="Restricted"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}
