package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/KOMKZ/go-yogan-throttle/logger"
	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// retirer closes replaced handles once their grace delay has elapsed.
// A retiring handle stays usable by whoever already holds it; the pool never hands it out again.
type retirer struct {
	scheduler gocron.Scheduler
	delay     time.Duration
	logger    *logger.CtxZapLogger
	metrics   *Metrics

	mu      sync.Mutex
	pending map[uuid.UUID]*handle
	closed  bool
}

func newRetirer(delay time.Duration, log *logger.CtxZapLogger, metrics *Metrics) (*retirer, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create retire scheduler: %w", err)
	}
	scheduler.Start()

	return &retirer{
		scheduler: scheduler,
		delay:     delay,
		logger:    log,
		metrics:   metrics,
		pending:   make(map[uuid.UUID]*handle),
	}, nil
}

// retire schedules h to be closed after the grace delay
func (r *retirer) retire(h *handle) {
	if h == nil {
		return
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.close(h)
		return
	}
	r.pending[h.id] = h
	r.mu.Unlock()

	if r.delay <= 0 {
		r.finish(h.id)
		return
	}

	_, err := r.scheduler.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(time.Now().Add(r.delay))),
		gocron.NewTask(r.finish, h.id),
		gocron.WithName(fmt.Sprintf("retire-redis-handle-%d", h.generation)),
	)
	if err != nil {
		r.logger.Error("schedule handle retirement failed, using timer",
			zap.Uint64("generation", h.generation), zap.Error(err))
		time.AfterFunc(r.delay, func() { r.finish(h.id) })
	}
}

// finish closes a pending handle; a handle already closed by shutdown is skipped
func (r *retirer) finish(id uuid.UUID) {
	r.mu.Lock()
	h, ok := r.pending[id]
	delete(r.pending, id)
	r.mu.Unlock()

	if ok {
		r.close(h)
	}
}

func (r *retirer) close(h *handle) {
	err := h.client.Close()
	if r.metrics != nil {
		r.metrics.RecordRetirement(context.Background(), err)
	}
	if err != nil {
		r.logger.Error("failed to close retired redis handle",
			zap.Uint64("generation", h.generation), zap.Error(err))
		return
	}
	r.logger.Debug("retired redis handle closed",
		zap.Uint64("generation", h.generation), zap.Int("capacity", h.capacity))
}

// count handles still waiting for their grace delay
func (r *retirer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// shutdown stops the scheduler and closes every pending handle immediately
func (r *retirer) shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	pending := r.pending
	r.pending = make(map[uuid.UUID]*handle)
	r.mu.Unlock()

	if err := r.scheduler.Shutdown(); err != nil {
		r.logger.WarnCtx(ctx, "retire scheduler shutdown", zap.Error(err))
	}

	g, _ := errgroup.WithContext(ctx)
	for _, h := range pending {
		g.Go(func() error {
			if err := h.client.Close(); err != nil {
				return fmt.Errorf("close retiring handle %d: %w", h.generation, err)
			}
			return nil
		})
	}
	return g.Wait()
}
