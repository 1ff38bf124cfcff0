package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
)

const healthCheckTimeout = 2 * time.Second

// Health handles GET /health
// Reports 503 when any backing service check fails
func Health(deps *Dependencies) gin.HandlerFunc {
	names := make([]string, 0, len(deps.HealthChecks))
	for name := range deps.HealthChecks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		defer cancel()

		status := http.StatusOK
		checks := make(map[string]string, len(names))
		for _, name := range names {
			if err := deps.HealthChecks[name](ctx); err != nil {
				status = http.StatusServiceUnavailable
				checks[name] = err.Error()
				deps.Logger.Warn("Health check failed", slog.String("check", name), slog.String("error", err.Error()))
				continue
			}
			checks[name] = "ok"
		}

		body := gin.H{
			"status":  "healthy",
			"service": deps.ServiceName,
			"checks":  checks,
		}
		if status != http.StatusOK {
			body["status"] = "unhealthy"
		}
		c.JSON(status, body)
	}
}
