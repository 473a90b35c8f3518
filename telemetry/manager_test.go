package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type counterProvider struct {
	name    string
	counter metric.Int64Counter
}

func (p *counterProvider) MetricsName() string    { return p.name }
func (p *counterProvider) IsMetricsEnabled() bool { return true }

func (p *counterProvider) RegisterMetrics(meter metric.Meter) error {
	var err error
	p.counter, err = meter.Int64Counter("test_events_total")
	return err
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.ServiceName = "throttle-test"
	cfg.Exporter.Type = "noop"
	cfg.Batch.Enabled = false
	cfg.Metrics.Enabled = true
	return cfg
}

func TestNewManager(t *testing.T) {
	m := NewManager(Config{ServiceName: "svc"}, nil)
	require.NotNil(t, m)
	assert.NotNil(t, m.logger)
	assert.False(t, m.IsEnabled())
	assert.Equal(t, "svc", m.GetConfig().ServiceName)
	assert.Nil(t, m.Registry())
}

func TestManager_Start_Disabled(t *testing.T) {
	m := NewManager(DefaultConfig(), nil)
	require.NoError(t, m.Start(context.Background()))

	assert.Nil(t, m.tracerProvider)
	assert.Nil(t, m.meterProvider)
	require.NotNil(t, m.Registry())

	p := &counterProvider{name: "redis_pool"}
	require.NoError(t, m.Register(p))
	assert.NotNil(t, p.counter)
	assert.NoError(t, m.Shutdown(context.Background()))
}

func TestManager_Start_ManualReader(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	m := NewManager(testConfig(), nil, WithMetricReader(reader))
	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	defer func() { _ = m.Shutdown(ctx) }()

	assert.NotNil(t, m.tracerProvider)
	assert.NotNil(t, m.meterProvider)

	p := &counterProvider{name: "limiter"}
	require.NoError(t, m.Register(p))
	p.counter.Add(ctx, 3)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	assert.Equal(t, "throttle_limiter", rm.ScopeMetrics[0].Scope.Name)
	require.Len(t, rm.ScopeMetrics[0].Metrics, 1)
	sum, ok := rm.ScopeMetrics[0].Metrics[0].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Equal(t, int64(3), sum.DataPoints[0].Value)
}

func TestManager_Start_Idempotent(t *testing.T) {
	m := NewManager(testConfig(), nil, WithMetricReader(sdkmetric.NewManualReader()))
	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	registry := m.Registry()
	require.NoError(t, m.Start(ctx))
	assert.Same(t, registry, m.Registry())
	assert.NoError(t, m.Shutdown(ctx))
	assert.NoError(t, m.Shutdown(ctx))
}

func TestManager_Start_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Exporter.Type = "jaeger"
	m := NewManager(cfg, nil)
	err := m.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported exporter type")
}

func TestManager_Register_BeforeStart(t *testing.T) {
	m := NewManager(testConfig(), nil)
	err := m.Register(&counterProvider{name: "limiter"})
	assert.Error(t, err)
}

func TestManager_GetTracer(t *testing.T) {
	m := NewManager(testConfig(), nil, WithMetricReader(sdkmetric.NewManualReader()))
	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	defer func() { _ = m.Shutdown(ctx) }()

	_, span := m.GetTracer("test").Start(ctx, "op")
	defer span.End()
	assert.True(t, span.SpanContext().IsValid())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"disabled skips checks", func(c *Config) { c.Enabled = false; c.ServiceName = "" }, ""},
		{"valid", func(c *Config) {}, ""},
		{"missing service name", func(c *Config) { c.ServiceName = "" }, "service_name"},
		{"otlp without endpoint", func(c *Config) { c.Exporter.Type = "otlp"; c.Exporter.Endpoint = "" }, "endpoint"},
		{"bad sampler", func(c *Config) { c.Sampler.Type = "sometimes" }, "sampler"},
		{"bad ratio", func(c *Config) { c.Sampler.Type = "trace_id_ratio"; c.Sampler.Ratio = 2 }, "ratio"},
		{"bad batch", func(c *Config) { c.Batch.Enabled = true; c.Batch.MaxQueueSize = 0 }, "max_queue_size"},
		{"bad interval", func(c *Config) { c.Metrics.ExportInterval = 0 }, "export_interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Metrics.ExportInterval = time.Second
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFlattenMap(t *testing.T) {
	got := flattenMap(map[string]interface{}{
		"deployment": map[string]interface{}{"environment": "test"},
		"replicas":   3,
		"team":       "infra",
	}, "")
	assert.Equal(t, map[string]string{
		"deployment.environment": "test",
		"replicas":               "3",
		"team":                   "infra",
	}, got)
}
