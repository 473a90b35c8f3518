package middleware

import (
	"net/http"

	"github.com/KOMKZ/go-yogan-throttle/health"
	"github.com/gin-gonic/gin"
)

// HealthHandler full health check: 200 for healthy or degraded, 503 when unhealthy.
// Redis is an optional check, so a Redis outage reports degraded with 200.
func HealthHandler(agg *health.Aggregator) gin.HandlerFunc {
	return func(c *gin.Context) {
		response := agg.Check(c.Request.Context())

		statusCode := http.StatusOK
		if response.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, response)
	}
}

// LivenessHandler K8s liveness probe; never touches dependencies
func LivenessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "alive"})
	}
}

// ReadinessHandler K8s readiness probe; only a fully healthy service is ready
func ReadinessHandler(agg *health.Aggregator) gin.HandlerFunc {
	return func(c *gin.Context) {
		response := agg.Check(c.Request.Context())

		statusCode := http.StatusOK
		if response.Status != health.StatusHealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, gin.H{"status": response.Status})
	}
}

// RegisterHealthRoutes /health, /health/liveness, /health/readiness
func RegisterHealthRoutes(router gin.IRouter, agg *health.Aggregator) {
	if agg == nil {
		return
	}
	router.GET("/health", HealthHandler(agg))
	router.GET("/health/liveness", LivenessHandler())
	router.GET("/health/readiness", ReadinessHandler(agg))
}
