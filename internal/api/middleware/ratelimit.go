package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/grassehh/pso-matchmaker-sub000/pkg/logger"
	"github.com/grassehh/pso-matchmaker-sub000/pkg/ratelimit"
)

// RateLimitConfig holds rate limit configuration.
type RateLimitConfig struct {
	Capacity   int64
	RefillRate int64 // tokens per second
	KeyFunc    func(*gin.Context) string
}

// RedisRateLimitConfig configures the distributed variant.
type RedisRateLimitConfig struct {
	Limiter *ratelimit.RedisRateLimiter
	Limit   int
	Window  time.Duration
	KeyFunc func(*gin.Context) string
}

// DefaultKeyFunc uses the user ID if authenticated, otherwise the client IP.
func DefaultKeyFunc(c *gin.Context) string {
	if userID, exists := c.Get("userId"); exists {
		return fmt.Sprintf("user:%v", userID)
	}
	return fmt.Sprintf("ip:%s", c.ClientIP())
}

// UserKeyFunc requires an authenticated user.
func UserKeyFunc(c *gin.Context) string {
	if userID, exists := c.Get("userId"); exists {
		return fmt.Sprintf("user:%v", userID)
	}
	return ""
}

// RateLimit creates an in-process rate limiting middleware.
func RateLimit(config RateLimitConfig) gin.HandlerFunc {
	limiter := ratelimit.NewRateLimiter(config.Capacity, config.RefillRate)

	if config.KeyFunc == nil {
		config.KeyFunc = DefaultKeyFunc
	}

	return func(c *gin.Context) {
		key := config.KeyFunc(c)
		if key == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required for rate limiting",
			})
			c.Abort()
			return
		}

		if !limiter.Allow(key) {
			c.Header("X-RateLimit-Limit", strconv.FormatInt(config.Capacity, 10))
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", "1")

			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded",
			})
			c.Abort()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(config.Capacity, 10))
		c.Next()
	}
}

// RedisRateLimit creates a rate limiting middleware shared across instances.
// Fails open when Redis is unreachable.
func RedisRateLimit(config RedisRateLimitConfig) gin.HandlerFunc {
	if config.KeyFunc == nil {
		config.KeyFunc = DefaultKeyFunc
	}
	if config.Limit <= 0 {
		config.Limit = 60
	}
	if config.Window <= 0 {
		config.Window = time.Minute
	}

	return func(c *gin.Context) {
		key := config.KeyFunc(c)
		if key == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required for rate limiting",
			})
			c.Abort()
			return
		}

		allowed, err := config.Limiter.Allow(context.Background(), key, config.Limit, config.Window)
		if err != nil {
			logger.Warn("Redis rate limit check failed", "key", key, "error", err)
			c.Next()
			return
		}

		if !allowed {
			c.Header("Retry-After", "1")
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// VoteRateLimit caps result vote submissions at 10 per minute per user.
func VoteRateLimit() gin.HandlerFunc {
	return RateLimit(RateLimitConfig{
		Capacity:   10,
		RefillRate: 1,
		KeyFunc:    UserKeyFunc,
	})
}

// ChallengeRateLimit caps challenge proposals at 5 per minute per user.
func ChallengeRateLimit() gin.HandlerFunc {
	return RateLimit(RateLimitConfig{
		Capacity:   5,
		RefillRate: 1,
		KeyFunc:    UserKeyFunc,
	})
}
