package telemetry

import (
	"fmt"
	"time"
)

// Config OpenTelemetry configuration for the throttle service
type Config struct {
	Enabled        bool                   `mapstructure:"enabled"`
	ServiceName    string                 `mapstructure:"service_name"`
	ServiceVersion string                 `mapstructure:"service_version"`
	Exporter       ExporterConfig         `mapstructure:"exporter"`
	Sampler        SamplerConfig          `mapstructure:"sampler"`
	ResourceAttrs  map[string]interface{} `mapstructure:"resource_attributes"` // nested maps are flattened with dots
	Batch          BatchConfig            `mapstructure:"batch"`
	Metrics        MetricsConfig          `mapstructure:"metrics"`
}

// ExporterConfig exporter shared by traces and metrics
type ExporterConfig struct {
	Type     string            `mapstructure:"type"` // otlp, stdout, noop
	Endpoint string            `mapstructure:"endpoint"`
	Insecure bool              `mapstructure:"insecure"`
	Timeout  time.Duration     `mapstructure:"timeout"`
	Headers  map[string]string `mapstructure:"headers"`
}

// SamplerConfig trace sampling
type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Ratio float64 `mapstructure:"ratio"` // only used by trace_id_ratio
}

// BatchConfig span batch processor; disabled means synchronous export
type BatchConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	MaxQueueSize       int           `mapstructure:"max_queue_size"`
	MaxExportBatchSize int           `mapstructure:"max_export_batch_size"`
	ScheduleDelay      time.Duration `mapstructure:"schedule_delay"`
	ExportTimeout      time.Duration `mapstructure:"export_timeout"`
}

// MetricsConfig pool and limiter metrics export
type MetricsConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	ExportInterval time.Duration `mapstructure:"export_interval"`
	ExportTimeout  time.Duration `mapstructure:"export_timeout"`
	Namespace      string        `mapstructure:"namespace"` // meter name prefix
}

// DefaultConfig telemetry is off unless configured
func DefaultConfig() Config {
	return Config{
		Enabled:        false,
		ServiceName:    "throttled",
		ServiceVersion: "1.0.0",
		Exporter: ExporterConfig{
			Type:     "stdout",
			Endpoint: "localhost:4317",
			Insecure: true,
			Timeout:  10 * time.Second,
		},
		Sampler: SamplerConfig{
			Type:  "parent_based_always_on",
			Ratio: 1.0,
		},
		ResourceAttrs: make(map[string]interface{}),
		Batch: BatchConfig{
			Enabled:            true,
			MaxQueueSize:       2048,
			MaxExportBatchSize: 512,
			ScheduleDelay:      5 * time.Second,
			ExportTimeout:      30 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:        false,
			ExportInterval: 10 * time.Second,
			ExportTimeout:  5 * time.Second,
			Namespace:      "throttle",
		},
	}
}

// Validate configuration
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required when telemetry is enabled")
	}

	switch c.Exporter.Type {
	case "otlp", "stdout", "noop":
	default:
		return fmt.Errorf("unsupported exporter type: %s (supported: otlp, stdout, noop)", c.Exporter.Type)
	}

	if c.Exporter.Type == "otlp" && c.Exporter.Endpoint == "" {
		return fmt.Errorf("exporter endpoint is required for otlp exporter")
	}

	switch c.Sampler.Type {
	case "always_on", "always_off", "trace_id_ratio", "parent_based_always_on":
	default:
		return fmt.Errorf("unsupported sampler type: %s", c.Sampler.Type)
	}

	if c.Sampler.Type == "trace_id_ratio" && (c.Sampler.Ratio < 0 || c.Sampler.Ratio > 1) {
		return fmt.Errorf("sampler ratio must be between 0 and 1, got: %f", c.Sampler.Ratio)
	}

	if c.Batch.Enabled {
		if c.Batch.MaxQueueSize <= 0 {
			return fmt.Errorf("batch max_queue_size must be positive, got: %d", c.Batch.MaxQueueSize)
		}
		if c.Batch.MaxExportBatchSize <= 0 {
			return fmt.Errorf("batch max_export_batch_size must be positive, got: %d", c.Batch.MaxExportBatchSize)
		}
	}

	if c.Metrics.Enabled && c.Metrics.ExportInterval <= 0 {
		return fmt.Errorf("metrics export_interval must be positive, got: %s", c.Metrics.ExportInterval)
	}

	return nil
}
