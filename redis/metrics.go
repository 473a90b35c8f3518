package redis

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsConfig holds configuration for pool metrics
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	RecordCommands bool `mapstructure:"record_commands"` // per-command counters via MetricsHook
}

// Metrics otel instruments for the adaptive pool
type Metrics struct {
	config     MetricsConfig
	registered bool
	mu         sync.RWMutex

	capacity         metric.Int64ObservableGauge // current capacity per pool
	retiring         metric.Int64ObservableGauge // handles waiting for their grace delay
	adjustmentsTotal metric.Int64Counter         // applied resizes by direction
	retirementsTotal metric.Int64Counter         // closed handles by result
	acquireErrors    metric.Int64Counter         // Acquire calls that returned an error
	commandsTotal    metric.Int64Counter
	commandDuration  metric.Float64Histogram
	commandErrors    metric.Int64Counter

	poolMu    sync.RWMutex
	poolStats map[string]func() Stats
}

// NewMetrics creates a pool metrics provider
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		config:    cfg,
		poolStats: make(map[string]func() Stats),
	}
}

// MetricsName returns the metrics group name
func (m *Metrics) MetricsName() string {
	return "redis_pool"
}

// IsMetricsEnabled returns whether metrics collection is enabled
func (m *Metrics) IsMetricsEnabled() bool {
	return m.config.Enabled
}

// RegisterMetrics creates the instruments on meter; calling it twice is a no-op
func (m *Metrics) RegisterMetrics(meter metric.Meter) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	var err error
	m.capacity, err = meter.Int64ObservableGauge(
		"redis_pool_capacity",
		metric.WithDescription("Current connection capacity of the adaptive pool"),
		metric.WithUnit("{connection}"),
		metric.WithInt64Callback(m.observe(func(s Stats) int64 { return int64(s.Current) })),
	)
	if err != nil {
		return err
	}

	m.retiring, err = meter.Int64ObservableGauge(
		"redis_pool_retiring_handles",
		metric.WithDescription("Replaced handles still inside their grace delay"),
		metric.WithUnit("{handle}"),
		metric.WithInt64Callback(m.observe(func(s Stats) int64 { return int64(s.Retiring) })),
	)
	if err != nil {
		return err
	}

	m.adjustmentsTotal, err = meter.Int64Counter(
		"redis_pool_adjustments_total",
		metric.WithDescription("Applied capacity changes"),
		metric.WithUnit("{adjustment}"),
	)
	if err != nil {
		return err
	}

	m.retirementsTotal, err = meter.Int64Counter(
		"redis_pool_retirements_total",
		metric.WithDescription("Closed handles after their grace delay"),
		metric.WithUnit("{handle}"),
	)
	if err != nil {
		return err
	}

	m.acquireErrors, err = meter.Int64Counter(
		"redis_pool_acquire_errors_total",
		metric.WithDescription("Acquire calls that could not return a live handle"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}

	if m.config.RecordCommands {
		m.commandsTotal, err = meter.Int64Counter(
			"redis_commands_total",
			metric.WithDescription("Total number of Redis commands executed"),
			metric.WithUnit("{command}"),
		)
		if err != nil {
			return err
		}

		m.commandDuration, err = meter.Float64Histogram(
			"redis_command_duration_seconds",
			metric.WithDescription("Redis command duration distribution"),
			metric.WithUnit("s"),
		)
		if err != nil {
			return err
		}

		m.commandErrors, err = meter.Int64Counter(
			"redis_errors_total",
			metric.WithDescription("Total number of Redis command errors"),
			metric.WithUnit("{error}"),
		)
		if err != nil {
			return err
		}
	}

	m.registered = true
	return nil
}

func (m *Metrics) observe(value func(Stats) int64) metric.Int64Callback {
	return func(_ context.Context, observer metric.Int64Observer) error {
		m.poolMu.RLock()
		defer m.poolMu.RUnlock()

		for name, stats := range m.poolStats {
			observer.Observe(value(stats()), metric.WithAttributes(attribute.String("pool", name)))
		}
		return nil
	}
}

// RegisterPool exposes a pool's stats to the observable gauges
func (m *Metrics) RegisterPool(name string, stats func() Stats) {
	m.poolMu.Lock()
	defer m.poolMu.Unlock()
	m.poolStats[name] = stats
}

// UnregisterPool removes a pool from the observable gauges
func (m *Metrics) UnregisterPool(name string) {
	m.poolMu.Lock()
	defer m.poolMu.Unlock()
	delete(m.poolStats, name)
}

// IsRegistered returns whether metrics have been registered
func (m *Metrics) IsRegistered() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.registered
}

// RecordAdjustment direction is "grow" or "shrink"
func (m *Metrics) RecordAdjustment(ctx context.Context, from, to int) {
	if !m.IsRegistered() {
		return
	}
	direction := "grow"
	if to < from {
		direction = "shrink"
	}
	m.adjustmentsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("direction", direction)))
}

// RecordRetirement result is "closed" or "error"
func (m *Metrics) RecordRetirement(ctx context.Context, err error) {
	if !m.IsRegistered() {
		return
	}
	result := "closed"
	if err != nil {
		result = "error"
	}
	m.retirementsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordAcquireError counts a failed Acquire
func (m *Metrics) RecordAcquireError(ctx context.Context) {
	if !m.IsRegistered() {
		return
	}
	m.acquireErrors.Add(ctx, 1)
}

// RecordCommand records a command executed on handle generation gen
func (m *Metrics) RecordCommand(ctx context.Context, gen uint64, command string, duration time.Duration, err error) {
	if !m.IsRegistered() || m.commandsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("generation", strconv.FormatUint(gen, 10)),
		attribute.String("command", command),
	)
	m.commandsTotal.Add(ctx, 1, attrs)
	m.commandDuration.Record(ctx, duration.Seconds(), attrs)

	if err != nil {
		m.commandErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("command", command)))
	}
}
