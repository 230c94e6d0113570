package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	domainerrors "github.com/chatforge/chat-service/internal/domain/errors"
	"github.com/chatforge/chat-service/internal/services/ratelimit"
)

// RateLimitMiddleware throttles requests per client per endpoint.
type RateLimitMiddleware struct {
	limiter *ratelimit.Limiter
}

// NewRateLimitMiddleware creates a new RateLimitMiddleware.
func NewRateLimitMiddleware(limiter *ratelimit.Limiter) *RateLimitMiddleware {
	return &RateLimitMiddleware{limiter: limiter}
}

// Limit returns a gin middleware enforcing the per-endpoint limits. Health
// and documentation routes are never throttled.
func (m *RateLimitMiddleware) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/health") || strings.HasPrefix(path, "/docs") {
			c.Next()
			return
		}

		result, err := m.limiter.Allow(c.Request.Context(), GetClientID(c), path)
		if err != nil {
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(ratelimit.Window).Unix(), 10))

		if !result.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
			HandleError(c, domainerrors.NewRateLimitedError(result.Limit))
			return
		}

		c.Next()
	}
}
