package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pulsechat-backend/internal/database"
	apperrors "pulsechat-backend/pkg/errors"
	"pulsechat-backend/pkg/logger"
	"pulsechat-backend/pkg/response"
)

// RateLimiter is a fixed window limiter backed by Redis.
// It fails open while Redis is degraded.
type RateLimiter struct {
	client   *database.RedisClient
	scope    string
	requests int
	window   time.Duration
	now      func() time.Time
}

// NewRateLimiter allows requests per window for each caller of scope
func NewRateLimiter(client *database.RedisClient, scope string, requests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client:   client,
		scope:    scope,
		requests: requests,
		window:   window,
		now:      time.Now,
	}
}

// Middleware limits by authenticated user when user_id is set and by client IP otherwise
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		identifier := "ip:" + c.ClientIP()
		if userID, exists := c.Get("user_id"); exists {
			identifier = fmt.Sprintf("user:%v", userID)
		}

		allowed, remaining, resetAt, err := rl.Allow(c.Request.Context(), identifier)
		if err != nil {
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
			response.FromError(c, apperrors.NewWithStatus(apperrors.ErrCodeRateLimited, "Rate limit exceeded", http.StatusTooManyRequests))
			c.Abort()
			return
		}

		c.Next()
	}
}

// Allow counts one request for identifier in the current window
func (rl *RateLimiter) Allow(ctx context.Context, identifier string) (bool, int, time.Time, error) {
	now := rl.now()
	windowStart := now.Truncate(rl.window)
	resetAt := windowStart.Add(rl.window)
	key := fmt.Sprintf("ratelimit:%s:%s:%d", rl.scope, identifier, windowStart.Unix())

	count, err := rl.client.SafeIncr(ctx, key).Result()
	if err != nil {
		return false, 0, resetAt, fmt.Errorf("failed to count request: %w", err)
	}
	if count == 1 {
		if err := rl.client.SafeExpire(ctx, key, rl.window).Err(); err != nil {
			return false, 0, resetAt, fmt.Errorf("failed to expire rate limit window: %w", err)
		}
	}

	remaining := max(rl.requests-int(count), 0)
	return int(count) <= rl.requests, remaining, resetAt, nil
}
