package middleware

import (
	"math"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/docavailable/admin-api/internal/platform/apperr"
	"github.com/docavailable/admin-api/internal/platform/auth"
)

// RateLimitConfig sizes the per-admin request budget.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// Idle admins are forgotten after this long. Zero uses three minutes.
	IdleExpiry        time.Duration
}

// DefaultRateLimitConfig suits a handful of dashboard users.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 20,
		BurstSize:         40,
		IdleExpiry:        3 * time.Minute,
	}
}

// RateLimit throttles authenticated admins independently. It must be mounted
// after the JWT middleware; a request without an admin identity is refused.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	store := echomw.NewRateLimiterMemoryStoreWithConfig(echomw.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(cfg.RequestsPerSecond),
		Burst:     cfg.BurstSize,
		ExpiresIn: cfg.IdleExpiry,
	})
	limit := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', -1, 64)
	retryAfter := strconv.Itoa(retryAfterSeconds(cfg.RequestsPerSecond))

	return echomw.RateLimiterWithConfig(echomw.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			id := auth.UserIDFromContext(c.Request().Context())
			if id == "" {
				return "", apperr.Unauthorized("missing admin identity")
			}
			return "admin:" + id, nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return err
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			h := c.Response().Header()
			h.Set("Retry-After", retryAfter)
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", "0")
			return apperr.RateLimited("rate limit exceeded")
		},
	})
}

// retryAfterSeconds is the time for one token to refill, rounded up.
func retryAfterSeconds(rps float64) int {
	if rps <= 0 {
		return 1
	}
	return int(math.Max(1, math.Ceil(1/rps)))
}
