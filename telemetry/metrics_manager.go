package telemetry

import (
	"context"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// newMeterProvider an explicit reader (tests pass a ManualReader) wins over the exporter
func newMeterProvider(ctx context.Context, cfg Config, res *resource.Resource, reader sdkmetric.Reader) (*sdkmetric.MeterProvider, error) {
	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	if reader == nil {
		exporter, err := newMetricExporter(ctx, cfg.Exporter)
		if err != nil {
			return nil, err
		}
		if exporter != nil {
			reader = sdkmetric.NewPeriodicReader(exporter,
				sdkmetric.WithInterval(cfg.Metrics.ExportInterval),
				sdkmetric.WithTimeout(cfg.Metrics.ExportTimeout),
			)
		}
	}

	if reader != nil {
		opts = append(opts, sdkmetric.WithReader(reader))
	}

	return sdkmetric.NewMeterProvider(opts...), nil
}
