package middleware

import (
	"math"
	"strconv"

	"github.com/labstack/echo/v4"

	"unitrade/internal/infrastructure/ratelimit"
	"unitrade/pkg/errors"
	"unitrade/pkg/logger"
	"unitrade/pkg/response"
)

// RateLimit throttles requests per client IP under the given action's budget.
// Use-case level limits keyed by user still apply behind it.
func RateLimit(limiter *ratelimit.RateLimiter, action string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			ok, wait := limiter.Allow("ip:"+ip, action)
			if !ok {
				logger.Warn("RATE LIMIT: %s blocked for %s (retry in %v)", ip, action, wait)
				c.Response().Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				return response.Error(c, errors.TooManyRequests("Rate limit exceeded"))
			}
			return next(c)
		}
	}
}
