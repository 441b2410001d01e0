package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stipend-escrow-ledger/internal/platform/ratelimit"
)

// Limiter is satisfied by ratelimit.Limiter
type Limiter interface {
	Allow(ctx context.Context, scope, id string, limit int, window time.Duration) ratelimit.Decision
}

// RateLimit caps requests per caller within scope. It must run after Actor.
func RateLimit(limiter Limiter, scope string, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if actor, ok := GetActor(c); ok {
			key = actor.ID()
		}

		decision := limiter.Allow(c.Request.Context(), scope, key, limit, window)
		c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))

		if !decision.Allowed {
			seconds := int(math.Ceil(decision.RetryAfter.Seconds()))
			c.Header("Retry-After", strconv.Itoa(seconds))
			abortWithError(c, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests, retry later")
			return
		}

		c.Next()
	}
}
