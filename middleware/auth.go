package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/focusquest/cache"
	"github.com/kasuganosora/focusquest/config"
)

const (
	HeroIDKey = "hero_id"
	TokenKey  = "token"
)

// SessionKey is the cache key marking a token as logged in.
func SessionKey(token string) string { return "session:" + token }

// Auth validates the JWT and checks the session cache. The token is read
// from the Bearer header, or from the "token" query parameter for clients
// such as EventSource that cannot set headers.
func Auth(sec config.SecurityConfig, c cache.Cache) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		tokenStr := bearerToken(ctx)
		if tokenStr == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		claims, err := ParseToken(tokenStr, sec.JWTSecret)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		cacheCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
		defer cancel()
		exists, err := c.Exists(cacheCtx, SessionKey(tokenStr))
		if err != nil || !exists {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
			return
		}

		ctx.Set(HeroIDKey, claims.HeroID)
		ctx.Set(TokenKey, tokenStr)
		ctx.Next()
	}
}

func bearerToken(ctx *gin.Context) string {
	if header := ctx.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ctx.Query("token")
}

// GetHeroID retrieves the authenticated hero ID from the Gin context.
func GetHeroID(c *gin.Context) string {
	if v, exists := c.Get(HeroIDKey); exists {
		return v.(string)
	}
	return ""
}

// GetToken retrieves the raw token the request was authenticated with.
func GetToken(c *gin.Context) string {
	if v, exists := c.Get(TokenKey); exists {
		return v.(string)
	}
	return ""
}
