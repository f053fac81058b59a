package ratelimit

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	StrategyStatic = "static"
	StrategyIP     = "ip"
)

// KeyFunc derives the limiter identifier for a request.
type KeyFunc func(c *gin.Context) string

// KeyFor returns the identifier strategy. "static" puts every caller in one
// bucket named staticKey; "ip" buckets by client IP.
func KeyFor(strategy, staticKey string) KeyFunc {
	if strategy == StrategyIP {
		return func(c *gin.Context) string { return "ip:" + c.ClientIP() }
	}
	if staticKey == "" {
		staticKey = "form_submission"
	}
	return func(*gin.Context) string { return staticKey }
}

// RateLimit rejects requests over the limiter budget with 429. Limiter
// backend errors let the request through.
func RateLimit(limiter Limiter, key KeyFunc, logger zerolog.Logger) gin.HandlerFunc {
	retryAfter := strconv.Itoa(int(math.Ceil(limiter.Window().Seconds())))
	return func(c *gin.Context) {
		id := key(c)
		allowed, err := limiter.Allow(c.Request.Context(), id)
		if err != nil {
			logger.Warn().Err(err).Str("key", id).Msg("rate limiter unavailable")
			c.Next()
			return
		}
		if !allowed {
			c.Header("Retry-After", retryAfter)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":      "too_many_requests",
				"retryAfter": retryAfter,
			})
			return
		}
		c.Next()
	}
}
