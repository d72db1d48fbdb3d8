package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arlen/newscalm/internal/cache"
	"github.com/arlen/newscalm/internal/logger"
)

// Identity resolves the caller identity for rate limiting: the X-User-ID
// header when present, otherwise the client IP.
func Identity(c *gin.Context) string {
	if id := c.GetHeader("X-User-ID"); id != "" {
		return id
	}
	return c.ClientIP()
}

// Limiter is the rate limiter surface the middleware needs.
type Limiter interface {
	CheckAndConsume(ctx context.Context, identity, bucket string) (cache.Decision, error)
}

// RateLimit returns a middleware enforcing the named bucket per caller
// identity. A denied request gets 429 with a Retry-After header; a limiter
// outage admits the request.
func RateLimit(limiter Limiter, bucket string) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := Identity(c)

		decision, err := limiter.CheckAndConsume(c.Request.Context(), identity, bucket)
		if err != nil {
			logger.CtxWarn(c.Request.Context(), "rate limiter unavailable, admitting request: %v", err)
			c.Next()
			return
		}

		if !decision.Allowed {
			retryAfter := int(decision.RetryAfter.Seconds()) + 1
			c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"detail":              "rate limit exceeded, slow down",
				"retry_after_seconds": retryAfter,
			})
			return
		}

		c.Next()
	}
}
