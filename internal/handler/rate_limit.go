package handler

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/care-auth/internal/dto"
	"github.com/prperemyshlev/care-auth/internal/service"
	"github.com/prperemyshlev/care-auth/internal/utils"
	"go.uber.org/zap"
)

// RateLimitMiddleware creates a rate limiting middleware.
// Redis failures let the request through; the lockout guard still applies.
func RateLimitMiddleware(rateLimiter *service.RateLimiter, limit int, window time.Duration, keyFunc func(*gin.Context) string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFunc(c)

		err := rateLimiter.Allow(c.Request.Context(), key, limit, window)
		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))

		var limited *service.RateLimitError
		switch {
		case errors.As(err, &limited):
			retryAfter := strconv.Itoa(int(math.Ceil(limited.RetryAfter.Seconds())))
			c.Header("Retry-After", retryAfter)
			c.Header("X-RateLimit-Remaining", "0")

			c.AbortWithStatusJSON(http.StatusTooManyRequests, dto.ErrorResponse{
				Error:   "RATE_LIMITED",
				Message: limited.Error(),
			})
			return
		case err != nil:
			logger.Warn("rate limiter unavailable",
				zap.String("ip", utils.MaskIdentifier(c.ClientIP())),
				zap.Error(err))
			c.Next()
			return
		}

		if remaining, err := rateLimiter.Remaining(c.Request.Context(), key, limit, window); err == nil {
			c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		}

		c.Next()
	}
}

// IPBasedKey keys the limit on the client IP as resolved through the trusted proxies
func IPBasedKey(c *gin.Context) string {
	return c.ClientIP()
}

// RouteAndIPKey gives every route its own budget per client IP
func RouteAndIPKey(c *gin.Context) string {
	return c.FullPath() + ":" + c.ClientIP()
}
