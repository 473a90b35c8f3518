package redis

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
)

// MetricsHook implements redis.Hook to record command metrics of one handle
type MetricsHook struct {
	metrics    *Metrics
	generation uint64
}

// NewMetricsHook creates a hook bound to a handle generation
func NewMetricsHook(metrics *Metrics, generation uint64) *MetricsHook {
	return &MetricsHook{
		metrics:    metrics,
		generation: generation,
	}
}

// DialHook pass through
func (h *MetricsHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

// ProcessHook records single commands; redis.Nil is a miss, not an error
func (h *MetricsHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		h.metrics.RecordCommand(ctx, h.generation, cmd.Name(), time.Since(start), commandError(err))
		return err
	}
}

// ProcessPipelineHook records every command of a pipeline with an even share of its duration
func (h *MetricsHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)
		if len(cmds) == 0 {
			return err
		}

		share := time.Since(start) / time.Duration(len(cmds))
		for _, cmd := range cmds {
			h.metrics.RecordCommand(ctx, h.generation, cmd.Name(), share, commandError(cmd.Err()))
		}
		return err
	}
}

func commandError(err error) error {
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}
