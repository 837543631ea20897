package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"provably-fair-dice/internal/services"
)

const (
	ContextPlayerID  = "player_id"
	ContextSessionID = "session_id"
)

// TokenValidator is satisfied by *services.JWTService.
type TokenValidator interface {
	ValidateToken(token string) (*services.Claims, error)
}

// RateLimiter is satisfied by *services.RedisService.
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, playerID, action string, limit int, window time.Duration) (bool, error)
}

func AuthMiddleware(jwtService TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		var tokenString string

		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization format"})
				c.Abort()
				return
			}
			tokenString = parts[1]
		} else {
			// Browsers cannot set headers on websocket upgrades.
			tokenString = c.Query("token")
			if tokenString == "" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
				c.Abort()
				return
			}
		}

		claims, err := jwtService.ValidateToken(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		c.Set(ContextPlayerID, claims.PlayerID)
		c.Set(ContextSessionID, claims.SessionID)

		c.Next()
	}
}

func RateLimitMiddleware(limiter RateLimiter, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		playerID := c.GetString(ContextPlayerID)
		if playerID == "" {
			c.Next()
			return
		}

		var limit int
		var action string

		switch c.FullPath() {
		case "/api/bet":
			action = "bet"
			limit = services.DefaultRateLimitBets
		default:
			c.Next()
			return
		}

		allowed, err := limiter.CheckRateLimit(c.Request.Context(), playerID, action, limit, services.RateLimitWindow)
		if err != nil {
			log.Error("rate limit check failed", zap.String("player_id", playerID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Rate limit check failed"})
			c.Abort()
			return
		}
		if !allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": services.RateLimitWindow.Seconds(),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
