package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"callhub-backend/internal/database"
	"callhub-backend/pkg/logger"
	"callhub-backend/pkg/metrics"
	"callhub-backend/pkg/response"
)

// RateLimiter implements Redis-based fixed window rate limiting
type RateLimiter struct {
	client   *database.RedisClient
	scope    string
	requests int
	window   time.Duration
}

// NewRateLimiter creates a new rate limiter
// scope: namespace for the counters (e.g. "connect")
// requests: maximum number of requests allowed per window
// window: time window for the rate limit (e.g., 1 minute)
func NewRateLimiter(client *database.RedisClient, scope string, requests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client:   client,
		scope:    scope,
		requests: requests,
		window:   window,
	}
}

// Middleware returns a Gin middleware for rate limiting. Authenticated
// requests are limited per user, anonymous ones per client IP.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		var identifier string
		if userID, exists := c.Get("user_id"); exists {
			identifier = fmt.Sprintf("user:%v", userID)
		} else {
			identifier = "ip:" + c.ClientIP()
		}

		allowed, remaining, resetAt, err := rl.Allow(c.Request.Context(), identifier)
		if err != nil {
			// Fail-open: Redis being down must not lock users out of calls
			logger.Debug("Rate limit check skipped",
				zap.String("scope", rl.scope),
				zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.requests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			metrics.RateLimitRejectionsTotal.WithLabelValues(rl.scope).Inc()
			response.TooManyRequests(c, "Rate limit exceeded")
			c.Abort()
			return
		}

		c.Next()
	}
}

// Allow counts one request for identifier and reports whether it fits in the
// current window
func (rl *RateLimiter) Allow(ctx context.Context, identifier string) (bool, int, time.Time, error) {
	key := fmt.Sprintf("ratelimit:%s:%s", rl.scope, identifier)

	var (
		incr *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	err := rl.client.SafeTxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, key)
		ttl = p.PTTL(ctx, key)
		return nil
	})
	if err != nil {
		return false, 0, time.Time{}, fmt.Errorf("failed to count request: %w", err)
	}

	count := int(incr.Val())
	remainingTTL := ttl.Val()
	if remainingTTL <= 0 {
		// first hit of a new window
		if err := rl.client.Client.PExpire(ctx, key, rl.window).Err(); err != nil {
			return false, 0, time.Time{}, fmt.Errorf("failed to start rate limit window: %w", err)
		}
		remainingTTL = rl.window
	}

	remaining := rl.requests - count
	if remaining < 0 {
		remaining = 0
	}

	return count <= rl.requests, remaining, time.Now().Add(remainingTTL), nil
}
