package middlewares

import (
	"context"
	"net/http"

	"bitbucket.org/mmdatafocus/bizmanage_backend/config"
	"bitbucket.org/mmdatafocus/bizmanage_backend/utils"
	"github.com/gin-gonic/gin"
)

// SessionMiddleware resolves the caller from the "token" header. Session
// tokens live in redis; stateless JWTs issued by the main backend are
// accepted as a fallback so scheduled invokers can authenticate without a
// redis session.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Request.Header.Get("token")
		if token == "" {
			c.Next()
			return
		}

		username, exists, err := config.GetRedisValue("Token:" + token)
		if err == nil && exists {
			ctx := context.WithValue(c.Request.Context(), utils.ContextKeyToken, token)
			ctx = context.WithValue(ctx, utils.ContextKeyUsername, username)
			c.Request = c.Request.WithContext(ctx)
			c.Next()
			return
		}

		parsed, jwtErr := utils.JwtValidate(token)
		if jwtErr != nil || !parsed.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		claims, ok := parsed.Claims.(*utils.JwtCustomClaim)
		if !ok || claims.Username == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		ctx := context.WithValue(c.Request.Context(), utils.ContextKeyToken, token)
		ctx = context.WithValue(ctx, utils.ContextKeyUsername, claims.Username)
		ctx = context.WithValue(ctx, utils.ContextKeyUserId, claims.ID)
		if claims.Role == "admin" {
			ctx = context.WithValue(ctx, utils.ContextKeyIsAdmin, true)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
