package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// HTTPMetricsConfig yaml key: server.metrics
type HTTPMetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// HTTPMetrics HTTP 层指标，经 telemetry.MetricsRegistry 注册
type HTTPMetrics struct {
	config     HTTPMetricsConfig
	registered bool
	mu         sync.RWMutex

	requestsTotal    metric.Int64Counter
	requestDuration  metric.Float64Histogram
	requestsInFlight metric.Int64UpDownCounter
	throttledTotal   metric.Int64Counter // 429 responses
}

// NewHTTPMetrics creates the HTTP metrics provider
func NewHTTPMetrics(cfg HTTPMetricsConfig) *HTTPMetrics {
	return &HTTPMetrics{config: cfg}
}

// MetricsName returns the metrics group name
func (m *HTTPMetrics) MetricsName() string {
	return "http"
}

// IsMetricsEnabled returns whether metrics collection is enabled
func (m *HTTPMetrics) IsMetricsEnabled() bool {
	return m.config.Enabled
}

// RegisterMetrics creates the instruments; calling it twice is a no-op
func (m *HTTPMetrics) RegisterMetrics(meter metric.Meter) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	var err error
	m.requestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("HTTP requests by route and status"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	m.requestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request latency"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	m.requestsInFlight, err = meter.Int64UpDownCounter(
		"http_requests_in_flight",
		metric.WithDescription("HTTP requests being served"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	m.throttledTotal, err = meter.Int64Counter(
		"http_requests_throttled_total",
		metric.WithDescription("HTTP requests rejected by the rate limiter"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	m.registered = true
	return nil
}

// IsRegistered returns whether metrics have been registered
func (m *HTTPMetrics) IsRegistered() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.registered
}

// Handler passes requests through untouched until RegisterMetrics succeeded
func (m *HTTPMetrics) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.IsRegistered() {
			c.Next()
			return
		}

		start := time.Now()
		ctx := c.Request.Context()
		path := c.FullPath() // route pattern keeps cardinality low
		if path == "" {
			path = "unknown"
		}

		m.requestsInFlight.Add(ctx, 1)
		defer m.requestsInFlight.Add(ctx, -1)

		c.Next()

		statusCode := c.Writer.Status()
		attrs := metric.WithAttributes(
			attribute.String("method", c.Request.Method),
			attribute.String("path", path),
			attribute.Int("status_code", statusCode),
			attribute.String("status_class", statusClass(statusCode)),
		)
		m.requestsTotal.Add(ctx, 1, attrs)
		m.requestDuration.Record(ctx, time.Since(start).Seconds(), attrs)

		if statusCode == http.StatusTooManyRequests {
			m.throttledTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("path", path)))
		}
	}
}

func statusClass(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "2xx"
	case statusCode >= 300 && statusCode < 400:
		return "3xx"
	case statusCode >= 400 && statusCode < 500:
		return "4xx"
	case statusCode >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
