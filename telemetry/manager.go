package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/KOMKZ/go-yogan-throttle/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace"
	otelTrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Manager owns the tracer and meter providers of the process
type Manager struct {
	config         Config
	logger         *logger.CtxZapLogger
	reader         sdkmetric.Reader
	tracerProvider *trace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	registry       *MetricsRegistry
	started        bool
	mu             sync.RWMutex
}

// Option configures the Manager
type Option func(*Manager)

// WithMetricReader replaces the periodic exporter reader, e.g. with a ManualReader
func WithMetricReader(r sdkmetric.Reader) Option {
	return func(m *Manager) {
		m.reader = r
	}
}

// NewManager create telemetry manager
func NewManager(config Config, log *logger.CtxZapLogger, opts ...Option) *Manager {
	if log == nil {
		log = logger.GetLogger("yogan")
	}
	m := &Manager{
		config: config,
		logger: log,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start builds the providers and installs them globally. Disabled telemetry
// leaves a noop registry so metrics providers can still be registered.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return nil
	}

	if !m.config.Enabled {
		m.registry = NewMetricsRegistry(noop.NewMeterProvider(),
			WithNamespace(m.config.Metrics.Namespace), WithLogger(m.logger))
		m.started = true
		m.logger.InfoCtx(ctx, "telemetry disabled, skipping initialization")
		return nil
	}

	if err := m.config.Validate(); err != nil {
		return fmt.Errorf("invalid telemetry config: %w", err)
	}

	res, err := newResource(ctx, m.config)
	if err != nil {
		return fmt.Errorf("create resource failed: %w", err)
	}

	tp, err := newTracerProvider(ctx, m.config, res)
	if err != nil {
		return err
	}
	m.tracerProvider = tp
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	var mp metric.MeterProvider = noop.NewMeterProvider()
	if m.config.Metrics.Enabled {
		sdkmp, err := newMeterProvider(ctx, m.config, res, m.reader)
		if err != nil {
			_ = tp.Shutdown(ctx)
			return fmt.Errorf("create meter provider failed: %w", err)
		}
		m.meterProvider = sdkmp
		otel.SetMeterProvider(sdkmp)
		mp = sdkmp
	}

	m.registry = NewMetricsRegistry(mp, WithNamespace(m.config.Metrics.Namespace), WithLogger(m.logger))
	m.started = true

	m.logger.InfoCtx(ctx, "telemetry started",
		zap.String("service_name", m.config.ServiceName),
		zap.String("exporter", m.config.Exporter.Type),
		zap.Bool("metrics", m.config.Metrics.Enabled),
	)
	return nil
}

// Register registers metrics providers with the registry. Start must run first.
func (m *Manager) Register(providers ...MetricsProvider) error {
	m.mu.RLock()
	registry := m.registry
	m.mu.RUnlock()

	if registry == nil {
		return fmt.Errorf("telemetry manager not started")
	}
	for _, p := range providers {
		if err := registry.Register(p); err != nil {
			return err
		}
	}
	return nil
}

// Shutdown flushes and stops both providers
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	if m.meterProvider != nil {
		if err := m.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider failed: %w", err))
		}
		m.meterProvider = nil
	}
	if m.tracerProvider != nil {
		if err := m.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider failed: %w", err))
		}
		m.tracerProvider = nil
	}
	return errors.Join(errs...)
}

// GetTracer falls back to the global provider before Start
func (m *Manager) GetTracer(name string) otelTrace.Tracer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.tracerProvider == nil {
		return otel.GetTracerProvider().Tracer(name)
	}
	return m.tracerProvider.Tracer(name)
}

// TracerProvider the global provider until Start with telemetry enabled
func (m *Manager) TracerProvider() otelTrace.TracerProvider {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.tracerProvider == nil {
		return otel.GetTracerProvider()
	}
	return m.tracerProvider
}

// Registry nil until Start
func (m *Manager) Registry() *MetricsRegistry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.registry
}

// IsEnabled whether enabled
func (m *Manager) IsEnabled() bool {
	return m.config.Enabled
}

// GetConfig Retrieve configuration
func (m *Manager) GetConfig() Config {
	return m.config
}
