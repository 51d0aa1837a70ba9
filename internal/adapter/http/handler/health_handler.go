package handler

import (
	"context"
	"net/http"
	"time"

	"acquiring-gateway/internal/core/ports"

	"github.com/gin-gonic/gin"
)

// HealthCheck returns a deep health handler that pings every dependency.
func HealthCheck(checkers ...ports.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		deps := gin.H{}
		for _, checker := range checkers {
			if err := checker.Ping(ctx); err != nil {
				deps[checker.Name()] = "down"
				status = http.StatusServiceUnavailable
			} else {
				deps[checker.Name()] = "up"
			}
		}

		c.JSON(status, gin.H{
			"status":       statusWord(status),
			"dependencies": deps,
		})
	}
}

func statusWord(code int) string {
	if code == http.StatusOK {
		return "healthy"
	}
	return "degraded"
}
