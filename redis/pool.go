// Package redis provides a shared Redis handle whose connection capacity follows host load.
package redis

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/KOMKZ/go-yogan-throttle/logger"
	"github.com/KOMKZ/go-yogan-throttle/validator"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// handle one go-redis client; replaced, never resized in place
type handle struct {
	id         uuid.UUID
	generation uint64
	capacity   int
	client     *redis.Client
}

// Stats point-in-time view of the pool
type Stats struct {
	Current        int
	Min            int
	Max            int
	Generation     uint64 // generation of the active handle, 0 while no handle is live
	Retiring       int
	LastAdjustment time.Time
}

// Option configures a Pool
type Option func(*Pool)

// WithLoadSampler replaces the gopsutil host sampler
func WithLoadSampler(s LoadSampler) Option {
	return func(p *Pool) { p.sampler = s }
}

// WithClientFactory replaces NewClient
func WithClientFactory(f ClientFactory) Option {
	return func(p *Pool) { p.factory = f }
}

// WithClientCounter replaces ConnectedClients
func WithClientCounter(c ClientCounter) Option {
	return func(p *Pool) { p.counter = c }
}

// WithClock drives the adjustment interval (tests use a fake clock)
func WithClock(c clockwork.Clock) Option {
	return func(p *Pool) { p.clock = c }
}

// WithMetrics attaches otel instruments
func WithMetrics(m *Metrics) Option {
	return func(p *Pool) { p.metrics = m }
}

// WithName label used in metrics (default "default")
func WithName(name string) Option {
	return func(p *Pool) { p.name = name }
}

// Pool adaptive shared Redis handle.
// mu serializes handle creation and adjustment; Acquire callers queue behind an
// in-progress creation instead of building their own client.
type Pool struct {
	cfg     Config
	name    string
	logger  *logger.CtxZapLogger
	sampler LoadSampler
	factory ClientFactory
	counter ClientCounter
	clock   clockwork.Clock
	metrics *Metrics
	retirer *retirer

	mu     sync.Mutex
	active *handle
	closed bool

	current        atomic.Int64
	generation     atomic.Uint64
	activeGen      atomic.Uint64
	lastAdjustment atomic.Int64 // unix nanos on p.clock
}

// NewPool validates cfg and builds an idle pool; the first Acquire dials.
// log must not be nil.
func NewPool(cfg Config, log *logger.CtxZapLogger, opts ...Option) (*Pool, error) {
	if log == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	cfg.ApplyDefaults()
	if err := validator.ValidateAs(ErrInvalidConfig, cfg); err != nil {
		return nil, err
	}

	p := &Pool{
		cfg:     cfg,
		name:    "default",
		logger:  log,
		sampler: SystemLoadSampler{},
		factory: NewClient,
		counter: ConnectedClients,
		clock:   clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(p)
	}

	r, err := newRetirer(cfg.GraceDelay, log, p.metrics)
	if err != nil {
		return nil, err
	}
	p.retirer = r

	p.current.Store(int64(cfg.InitialCapacity))
	p.lastAdjustment.Store(p.clock.Now().UnixNano())
	if p.metrics != nil {
		p.metrics.RegisterPool(p.name, p.Stats)
	}

	log.Debug("redis pool created",
		zap.String("addr", cfg.Addr),
		zap.Int("min", cfg.MinCapacity),
		zap.Int("max", cfg.MaxCapacity),
		zap.Int("initial", cfg.InitialCapacity))
	return p, nil
}

// Acquire returns a handle that answered a liveness probe.
// A stale or missing handle is recreated first; failure to do so is returned as
// ErrAcquireFailed. When AdjustInterval has elapsed the capacity is recomputed
// before returning; adjustment problems never fail the call.
func (p *Pool) Acquire(ctx context.Context) (*redis.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPoolClosed
	}

	if err := p.ensureLive(ctx); err != nil {
		if p.metrics != nil {
			p.metrics.RecordAcquireError(ctx)
		}
		p.logger.ErrorCtx(ctx, "redis handle unavailable", zap.Error(err))
		return nil, ErrAcquireFailed.Wrap(err)
	}

	if p.clock.Since(time.Unix(0, p.lastAdjustment.Load())) > p.cfg.AdjustInterval {
		p.adjust(ctx)
	}

	return p.active.client, nil
}

// ensureLive probes the active handle and replaces it when the probe fails. Caller holds mu.
func (p *Pool) ensureLive(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if p.active != nil {
		err := p.active.client.Ping(ctx).Err()
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		p.logger.WarnCtx(ctx, "redis handle probe failed, recreating",
			zap.Uint64("generation", p.active.generation), zap.Error(err))
		stale := p.active
		p.active = nil
		p.activeGen.Store(0)
		p.retirer.retire(stale)
	}

	h, err := p.newHandle(ctx, p.Capacity())
	if err != nil {
		return err
	}
	p.setActive(h)
	return nil
}

func (p *Pool) newHandle(ctx context.Context, capacity int) (*handle, error) {
	// generations are only consumed by handles that answered the probe
	gen := p.generation.Load() + 1
	client := p.factory(p.cfg, capacity)
	if p.metrics != nil && p.metrics.config.RecordCommands {
		client.AddHook(NewMetricsHook(p.metrics, gen))
	}

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("probe new handle (capacity %d): %w", capacity, err)
	}
	p.generation.Store(gen)

	p.logger.DebugCtx(ctx, "redis handle created",
		zap.Uint64("generation", gen), zap.Int("capacity", capacity))
	return &handle{id: uuid.New(), generation: gen, capacity: capacity, client: client}, nil
}

func (p *Pool) setActive(h *handle) {
	p.active = h
	p.current.Store(int64(h.capacity))
	p.activeGen.Store(h.generation)
}

// adjust runs one capacity cycle. Caller holds mu and an active handle exists.
// The adjustment time advances whatever the outcome.
func (p *Pool) adjust(ctx context.Context) {
	defer p.lastAdjustment.Store(p.clock.Now().UnixNano())

	if err := p.resize(ctx); err != nil {
		p.logger.WarnCtx(ctx, "redis pool adjustment skipped", zap.Error(err))
	}
}

func (p *Pool) resize(ctx context.Context) error {
	sample, err := p.sampler.Sample(ctx)
	if err != nil {
		return fmt.Errorf("sample load: %w", err)
	}
	load := sample.Score()
	current := p.Capacity()

	connected := 0
	if needsConnected(load) {
		connected, err = p.counter(ctx, p.active.client)
		if err != nil {
			return fmt.Errorf("read connected clients: %w", err)
		}
	}

	target := clamp(TargetCapacity(load, connected, current, p.cfg.MinCapacity, p.cfg.MaxCapacity),
		p.cfg.MinCapacity, p.cfg.MaxCapacity)
	if abs(target-current) < p.cfg.Hysteresis {
		p.logger.DebugCtx(ctx, "redis pool capacity unchanged",
			zap.Int("current", current), zap.Int("target", target), zap.Float64("load", load))
		return nil
	}

	h, err := p.newHandle(ctx, target)
	if err != nil {
		return err
	}
	old := p.active
	p.setActive(h)
	p.retirer.retire(old)

	if p.metrics != nil {
		p.metrics.RecordAdjustment(ctx, current, target)
	}
	p.logger.InfoCtx(ctx, "redis pool resized",
		zap.Int("from", current),
		zap.Int("to", target),
		zap.Float64("load", load),
		zap.Int("connected", connected))
	return nil
}

// Capacity current connection capacity
func (p *Pool) Capacity() int {
	return int(p.current.Load())
}

// Stats snapshot; does not wait for an in-progress Acquire
func (p *Pool) Stats() Stats {
	return Stats{
		Current:        p.Capacity(),
		Min:            p.cfg.MinCapacity,
		Max:            p.cfg.MaxCapacity,
		Generation:     p.activeGen.Load(),
		Retiring:       p.retirer.count(),
		LastAdjustment: time.Unix(0, p.lastAdjustment.Load()),
	}
}

// Config effective configuration (defaults applied)
func (p *Pool) Config() Config {
	return p.cfg
}

// Shutdown closes the active handle and every retiring one. Safe to call more
// than once and before any Acquire; Acquire afterwards returns ErrPoolClosed.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	active := p.active
	p.active = nil
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.UnregisterPool(p.name)
	}

	var g errgroup.Group
	if active != nil {
		g.Go(func() error {
			if err := active.client.Close(); err != nil {
				return fmt.Errorf("close active handle: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error { return p.retirer.shutdown(ctx) })

	if err := g.Wait(); err != nil {
		p.logger.ErrorCtx(ctx, "redis pool shutdown", zap.Error(err))
		return err
	}
	p.logger.DebugCtx(ctx, "redis pool closed")
	return nil
}
