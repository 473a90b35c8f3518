package telemetry

import (
	"fmt"
	"sync"

	"github.com/KOMKZ/go-yogan-throttle/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// MetricsProvider is implemented by the pool and limiter metrics.
// RegisterMetrics is called once with a meter named after MetricsName.
type MetricsProvider interface {
	MetricsName() string
	RegisterMetrics(meter metric.Meter) error
	IsMetricsEnabled() bool
}

// MetricsRegistry hands out one Meter per provider and registers its instruments.
type MetricsRegistry struct {
	meterProvider metric.MeterProvider
	meters        map[string]metric.Meter
	providers     []MetricsProvider
	namespace     string
	logger        *logger.CtxZapLogger
	mu            sync.RWMutex
}

// MetricsRegistryOption configures the MetricsRegistry.
type MetricsRegistryOption func(*MetricsRegistry)

// WithNamespace sets the meter name prefix.
func WithNamespace(namespace string) MetricsRegistryOption {
	return func(r *MetricsRegistry) {
		r.namespace = namespace
	}
}

// WithLogger sets the registry logger.
func WithLogger(l *logger.CtxZapLogger) MetricsRegistryOption {
	return func(r *MetricsRegistry) {
		r.logger = l
	}
}

// NewMetricsRegistry uses the global MeterProvider when mp is nil.
func NewMetricsRegistry(mp metric.MeterProvider, opts ...MetricsRegistryOption) *MetricsRegistry {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}

	r := &MetricsRegistry{
		meterProvider: mp,
		meters:        make(map[string]metric.Meter),
		namespace:     "throttle",
		logger:        logger.GetLogger("yogan"),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Register registers the provider's instruments. Disabled providers are skipped.
func (r *MetricsRegistry) Register(provider MetricsProvider) error {
	if provider == nil {
		return fmt.Errorf("metrics provider is nil")
	}

	if !provider.IsMetricsEnabled() {
		r.logger.Debug("metrics disabled for provider",
			zap.String("provider", provider.MetricsName()))
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := provider.MetricsName()
	if name == "" {
		return fmt.Errorf("metrics provider name is empty")
	}

	for _, p := range r.providers {
		if p.MetricsName() == name {
			return fmt.Errorf("metrics provider %q already registered", name)
		}
	}

	if err := provider.RegisterMetrics(r.getMeterLocked(name)); err != nil {
		return fmt.Errorf("register metrics for %q failed: %w", name, err)
	}

	r.providers = append(r.providers, provider)
	r.logger.Info("metrics provider registered", zap.String("provider", name))

	return nil
}

// GetMeter meter names follow {namespace}_{name}
func (r *MetricsRegistry) GetMeter(name string) metric.Meter {
	r.mu.RLock()
	if meter, ok := r.meters[name]; ok {
		r.mu.RUnlock()
		return meter
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getMeterLocked(name)
}

func (r *MetricsRegistry) getMeterLocked(name string) metric.Meter {
	if meter, ok := r.meters[name]; ok {
		return meter
	}

	meterName := name
	if r.namespace != "" {
		meterName = r.namespace + "_" + name
	}

	meter := r.meterProvider.Meter(meterName)
	r.meters[name] = meter
	return meter
}

// GetProviders returns a copy of the registered providers.
func (r *MetricsRegistry) GetProviders() []MetricsProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]MetricsProvider{}, r.providers...)
}

// GetProviderCount number of registered providers
func (r *MetricsRegistry) GetProviderCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}
