package server

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
)

// pinger is the health-check surface of a dependency.
type pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheckers holds the readiness dependencies. Redis is optional and
// nil when the profile cache is disabled.
type HealthCheckers struct {
	Postgres pinger
	Redis    pinger
}

func (s *Server) handleLiveness(c echo.Context) error {
	return c.JSON(200, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startTime).Seconds(),
	})
}

func (s *Server) handleReadiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	checks := []struct {
		name string
		dep  pinger
	}{
		{"postgres", s.deps.Health.Postgres},
		{"redis", s.deps.Health.Redis},
	}

	for _, check := range checks {
		if check.dep == nil {
			continue
		}
		if err := check.dep.Ping(ctx); err != nil {
			return c.JSON(503, map[string]any{
				"status":       "unhealthy",
				"failed_check": check.name,
				"error":        err.Error(),
			})
		}
	}

	return c.JSON(200, map[string]string{"status": "ready"})
}
