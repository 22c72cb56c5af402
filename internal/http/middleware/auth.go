package middleware

import (
	"net/http"
	"strings"

	"rps_duel/internal/service"

	"github.com/gin-gonic/gin"
)

// JWT validates the identity token from the Authorization header and puts
// player_id into the Gin context.
func JWT() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}

		token := strings.TrimPrefix(auth, "Bearer ")
		playerID, err := service.ParseIdentityToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("player_id", playerID)
		c.Next()
	}
}
