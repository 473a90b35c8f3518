package limiter

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsConfig holds configuration for limiter metrics
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Metrics otel instruments of the adaptive limiter
type Metrics struct {
	config     MetricsConfig
	registered bool
	mu         sync.RWMutex

	decisionsTotal metric.Int64Counter   // admissions by result
	usageUpdates   metric.Int64Counter   // async usage updates by result
	effectiveLimit metric.Int64Histogram // limit applied per decision
}

// NewMetrics creates a limiter metrics provider
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{config: cfg}
}

// MetricsName returns the metrics group name
func (m *Metrics) MetricsName() string {
	return "limiter"
}

// IsMetricsEnabled returns whether metrics collection is enabled
func (m *Metrics) IsMetricsEnabled() bool {
	return m.config.Enabled
}

// RegisterMetrics registers all limiter metrics with the provided Meter
func (m *Metrics) RegisterMetrics(meter metric.Meter) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	var err error
	m.decisionsTotal, err = meter.Int64Counter(
		"limiter_requests_total",
		metric.WithDescription("Rate limit decisions by result"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	m.usageUpdates, err = meter.Int64Counter(
		"limiter_usage_updates_total",
		metric.WithDescription("Background usage pattern updates by result"),
		metric.WithUnit("{update}"),
	)
	if err != nil {
		return err
	}

	m.effectiveLimit, err = meter.Int64Histogram(
		"limiter_effective_limit",
		metric.WithDescription("Per-window limit applied to checked identities"),
		metric.WithUnit("{request}"),
		metric.WithExplicitBucketBoundaries(10, 20, 30, 40, 50, 75, 100),
	)
	if err != nil {
		return err
	}

	m.registered = true
	return nil
}

// IsRegistered returns whether metrics have been registered
func (m *Metrics) IsRegistered() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.registered
}

// RecordDecision result is "allowed", "rejected" or "degraded"; limit 0 skips the histogram
func (m *Metrics) RecordDecision(ctx context.Context, result string, limit int) {
	if !m.IsRegistered() {
		return
	}
	m.decisionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	if limit > 0 {
		m.effectiveLimit.Record(ctx, int64(limit))
	}
}

// RecordUsageUpdate result is "ok", "error" or "dropped"
func (m *Metrics) RecordUsageUpdate(ctx context.Context, result string) {
	if !m.IsRegistered() {
		return
	}
	m.usageUpdates.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
