package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/y001j/pizzeria-alerts/internal/web/utils"
)

// JWTMiddleware JWT认证中间件. The token comes from the Authorization
// header, or the token query parameter for WebSocket upgrades.
func JWTMiddleware(secretKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var token string

		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
				token = parts[1]
			}
		}
		if token == "" {
			token = c.Query("token")
		}

		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "code": http.StatusUnauthorized, "message": "missing token"})
			return
		}

		claims, err := utils.ValidateJWT(token, secretKey)
		if err != nil {
			log.Debug().Err(err).Str("path", c.Request.URL.Path).Msg("rejected token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "code": http.StatusUnauthorized, "message": "invalid token"})
			return
		}

		c.Set("username", claims.Username)
		c.Set("role", claims.Role)
		c.Next()
	}
}

// RequireRole 角色验证中间件; admin passes every check
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRole := c.GetString("role")
		if userRole == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "code": http.StatusUnauthorized, "message": "not authenticated"})
			return
		}
		if userRole != "admin" && userRole != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "code": http.StatusForbidden, "message": "forbidden"})
			return
		}
		c.Next()
	}
}
