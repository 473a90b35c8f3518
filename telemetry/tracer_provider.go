package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
)

// newTracerProvider spans feed the trace_id field of every ctx log line
func newTracerProvider(ctx context.Context, cfg Config, res *resource.Resource) (*trace.TracerProvider, error) {
	exporter, err := newSpanExporter(ctx, cfg.Exporter)
	if err != nil {
		return nil, fmt.Errorf("create span exporter failed: %w", err)
	}

	opts := []trace.TracerProviderOption{
		trace.WithResource(res),
		trace.WithSampler(newSampler(cfg.Sampler)),
	}

	if cfg.Batch.Enabled {
		opts = append(opts, trace.WithBatcher(exporter,
			trace.WithMaxQueueSize(cfg.Batch.MaxQueueSize),
			trace.WithMaxExportBatchSize(cfg.Batch.MaxExportBatchSize),
			trace.WithBatchTimeout(cfg.Batch.ScheduleDelay),
			trace.WithExportTimeout(cfg.Batch.ExportTimeout),
		))
	} else {
		opts = append(opts, trace.WithSyncer(exporter))
	}

	return trace.NewTracerProvider(opts...), nil
}

func newSampler(cfg SamplerConfig) trace.Sampler {
	switch cfg.Type {
	case "always_on":
		return trace.AlwaysSample()
	case "always_off":
		return trace.NeverSample()
	case "trace_id_ratio":
		return trace.TraceIDRatioBased(cfg.Ratio)
	default:
		return trace.ParentBased(trace.AlwaysSample())
	}
}
