package server

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// newRateLimiter returns a per-IP token bucket for admin mutations. The
// limit is generous for a dashboard but stops a runaway client from
// hammering the provider hubs through us.
func newRateLimiter() echo.MiddlewareFunc {
	return middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(5)))
}
