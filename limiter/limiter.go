// Package limiter admits requests per identity over fixed, clock-aligned windows.
// Each identity's quota follows an exponential moving average of how much of its
// quota it used, so steady heavy users get a larger window allowance.
package limiter

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/KOMKZ/go-yogan-throttle/logger"
	"github.com/KOMKZ/go-yogan-throttle/validator"
	"github.com/jonboulle/clockwork"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

const (
	windowKeyPrefix = "ratelimit:"
	usageKeyPrefix  = "usage_history:"

	// releaseTimeout bounds how long Close waits for in-flight usage updates
	releaseTimeout = 5 * time.Second
)

// Status quota view of one identity in the current window
type Status struct {
	Identity   string        `json:"identity"`
	Limit      int           `json:"limit"`
	Count      int64         `json:"count"`
	Remaining  int           `json:"remaining"`
	ResetAt    time.Time     `json:"reset_at"`
	RetryAfter time.Duration `json:"retry_after"` // zero while Remaining > 0
}

// Option configures a Limiter
type Option func(*Limiter)

// WithClock drives window alignment (tests use a fake clock)
func WithClock(c clockwork.Clock) Option {
	return func(l *Limiter) { l.clock = c }
}

// WithStore replaces the Redis store built from the ClientSource
func WithStore(s Store) Option {
	return func(l *Limiter) { l.store = s }
}

// WithMetrics attaches otel instruments
func WithMetrics(m *Metrics) Option {
	return func(l *Limiter) { l.metrics = m }
}

// WithEventBus publishes decisions to bus; the limiter closes it on Close
func WithEventBus(bus EventBus) Option {
	return func(l *Limiter) { l.events = bus }
}

// Limiter adaptive per-identity rate limiter
type Limiter struct {
	cfg     Config
	store   Store
	clock   clockwork.Clock
	logger  *logger.CtxZapLogger
	workers *ants.Pool
	events  EventBus
	metrics *Metrics
	closed  atomic.Bool
}

// New builds a limiter on top of clients (normally the adaptive Redis pool).
// log must not be nil.
func New(cfg Config, clients ClientSource, log *logger.CtxZapLogger, opts ...Option) (*Limiter, error) {
	if log == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	cfg.ApplyDefaults()
	if err := validator.ValidateAs(ErrInvalidConfig, cfg); err != nil {
		return nil, err
	}

	l := &Limiter{
		cfg:    cfg,
		clock:  clockwork.NewRealClock(),
		logger: log,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.store == nil {
		if clients == nil {
			return nil, fmt.Errorf("client source cannot be nil")
		}
		l.store = NewRedisStore(clients, cfg.KeyPrefix)
	}

	workers, err := ants.NewPool(cfg.Workers,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(r interface{}) {
			log.Error("usage update panicked", zap.Any("panic", r))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create usage worker pool: %w", err)
	}
	l.workers = workers

	return l, nil
}

// Config effective configuration (defaults applied)
func (l *Limiter) Config() Config {
	return l.cfg
}

// windowID index of the aligned window containing t
func (l *Limiter) windowID(t time.Time) int64 {
	return t.UnixNano() / int64(l.cfg.Window)
}

// windowEnd start of the window after the one containing t
func (l *Limiter) windowEnd(t time.Time) time.Time {
	return time.Unix(0, (l.windowID(t)+1)*int64(l.cfg.Window))
}

// WindowKey counter key of identity for the current window, e.g. ratelimit:u1:28512345
func (l *Limiter) WindowKey(identity string) string {
	return windowKeyPrefix + identity + ":" + strconv.FormatInt(l.windowID(l.clock.Now()), 10)
}

// UsageKey key of identity's usage pattern
func UsageKey(identity string) string {
	return usageKeyPrefix + identity
}

// limitFor maps a usage pattern to its band
func (l *Limiter) limitFor(pattern float64) int {
	switch {
	case pattern < l.cfg.lowWatermark():
		return l.cfg.BaseLimit
	case pattern < l.cfg.HighWatermark:
		return min(2*l.cfg.BaseLimit, l.cfg.MaxLimit)
	default:
		return l.cfg.MaxLimit
	}
}

// usagePattern reads the stored EMA, clamped to [0, 1]. Absent or malformed reads as 0.
func (l *Limiter) usagePattern(ctx context.Context, identity string) (float64, error) {
	pattern, err := l.store.GetFloat(ctx, UsageKey(identity))
	if errors.Is(err, ErrMalformedValue) {
		l.logger.WarnCtx(ctx, "ignoring malformed usage pattern",
			zap.String("identity", identity), zap.Error(err))
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return clampUnit(pattern), nil
}

// EffectiveLimit current per-window limit of identity; BaseLimit when the pattern cannot be read
func (l *Limiter) EffectiveLimit(ctx context.Context, identity string) int {
	pattern, err := l.usagePattern(ctx, identity)
	if err != nil {
		l.logger.WarnCtx(ctx, "usage pattern unavailable, using base limit",
			zap.String("identity", identity), zap.Error(err))
		return l.cfg.BaseLimit
	}
	return l.limitFor(pattern)
}

// Allow counts one request of identity against the current window.
// A full window denies without counting. Any Redis failure admits the request.
// The check and the increment are separate round trips, so concurrent callers
// can overshoot the limit by the number of checks in flight.
func (l *Limiter) Allow(ctx context.Context, identity string) bool {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.OpTimeout)
	defer cancel()

	key := l.WindowKey(identity)
	count, err := l.store.GetInt64(ctx, key)
	if err != nil {
		l.degrade(ctx, identity, "read window counter", err)
		return true
	}

	limit := l.EffectiveLimit(ctx, identity)
	if count >= int64(limit) {
		l.reject(ctx, identity, count, limit)
		return false
	}

	n, err := l.store.IncrExpire(ctx, key, l.cfg.Window)
	if err != nil {
		l.degrade(ctx, identity, "increment window counter", err)
		return true
	}

	l.scheduleUsageUpdate(ctx, identity, count+1)

	if l.metrics != nil {
		l.metrics.RecordDecision(ctx, "allowed", limit)
	}
	l.publish(&AllowedEvent{
		BaseEvent: NewBaseEvent(ctx, EventAllowed, identity, l.clock.Now()),
		Count:     n,
		Limit:     limit,
	})
	return true
}

func (l *Limiter) reject(ctx context.Context, identity string, count int64, limit int) {
	retryAfter := l.WindowRemaining(identity)
	l.logger.DebugCtx(ctx, "rate limit exceeded",
		zap.String("identity", identity),
		zap.Int64("count", count),
		zap.Int("limit", limit),
		zap.Duration("retry_after", retryAfter))

	if l.metrics != nil {
		l.metrics.RecordDecision(ctx, "rejected", limit)
	}
	l.publish(&RejectedEvent{
		BaseEvent:  NewBaseEvent(ctx, EventRejected, identity, l.clock.Now()),
		Count:      count,
		Limit:      limit,
		RetryAfter: retryAfter,
	})
}

func (l *Limiter) degrade(ctx context.Context, identity, op string, err error) {
	l.logger.ErrorCtx(ctx, "rate limiter degraded, allowing request",
		zap.String("identity", identity),
		zap.String("op", op),
		zap.Error(err))

	if l.metrics != nil {
		l.metrics.RecordDecision(ctx, "degraded", 0)
	}
	l.publish(&DegradedEvent{
		BaseEvent: NewBaseEvent(ctx, EventDegraded, identity, l.clock.Now()),
		Op:        op,
		Err:       err,
	})
}

// scheduleUsageUpdate runs UpdateUsagePattern on the worker pool.
// The task keeps the caller's values (trace id) but not its deadline.
func (l *Limiter) scheduleUsageUpdate(ctx context.Context, identity string, count int64) {
	if l.closed.Load() {
		return
	}

	taskCtx := context.WithoutCancel(ctx)
	err := l.workers.Submit(func() {
		ctx, cancel := context.WithTimeout(taskCtx, l.cfg.OpTimeout)
		defer cancel()

		if err := l.UpdateUsagePattern(ctx, identity, count); err != nil {
			l.logger.WarnCtx(ctx, "usage pattern update failed",
				zap.String("identity", identity), zap.Error(err))
		}
	})
	if err != nil {
		if l.metrics != nil {
			l.metrics.RecordUsageUpdate(ctx, "dropped")
		}
		l.logger.WarnCtx(ctx, "usage pattern update dropped",
			zap.String("identity", identity), zap.Error(err))
	}
}

// UpdateUsagePattern folds requestCount into identity's EMA:
// new = (1-α)·old + α·min(requestCount/limit, 1), stored for UsageTTL.
func (l *Limiter) UpdateUsagePattern(ctx context.Context, identity string, requestCount int64) (err error) {
	if l.metrics != nil {
		defer func() {
			result := "ok"
			if err != nil {
				result = "error"
			}
			l.metrics.RecordUsageUpdate(ctx, result)
		}()
	}

	old, err := l.usagePattern(ctx, identity)
	if err != nil {
		return fmt.Errorf("read usage pattern: %w", err)
	}
	limit := l.limitFor(old)

	ratio := clampUnit(float64(requestCount) / float64(limit))
	next := clampUnit((1-l.cfg.Smoothing)*old + l.cfg.Smoothing*ratio)

	if err := l.store.SetFloat(ctx, UsageKey(identity), next, l.cfg.UsageTTL); err != nil {
		return fmt.Errorf("store usage pattern: %w", err)
	}

	if newLimit := l.limitFor(next); newLimit != limit {
		l.logger.InfoCtx(ctx, "rate limit tier changed",
			zap.String("identity", identity),
			zap.Int("from", limit),
			zap.Int("to", newLimit),
			zap.Float64("pattern", next))
		l.publish(&TierChangedEvent{
			BaseEvent: NewBaseEvent(ctx, EventTierChanged, identity, l.clock.Now()),
			OldLimit:  limit,
			NewLimit:  newLimit,
			Pattern:   next,
		})
	}
	return nil
}

// WindowRemaining time until the current window rolls over; identity does not
// matter because windows are aligned to the clock
func (l *Limiter) WindowRemaining(identity string) time.Duration {
	now := l.clock.Now()
	return l.windowEnd(now).Sub(now)
}

// Status reports limit, count and reset time of identity without counting a request.
// Unlike Allow, Redis errors are returned.
func (l *Limiter) Status(ctx context.Context, identity string) (*Status, error) {
	if l.closed.Load() {
		return nil, ErrLimiterClosed
	}

	ctx, cancel := context.WithTimeout(ctx, l.cfg.OpTimeout)
	defer cancel()

	now := l.clock.Now()
	count, err := l.store.GetInt64(ctx, l.WindowKey(identity))
	if err != nil {
		return nil, fmt.Errorf("read window counter: %w", err)
	}
	pattern, err := l.usagePattern(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("read usage pattern: %w", err)
	}

	limit := l.limitFor(pattern)
	s := &Status{
		Identity:  identity,
		Limit:     limit,
		Count:     count,
		Remaining: max(0, limit-int(count)),
		ResetAt:   l.windowEnd(now),
	}
	if s.Remaining == 0 {
		s.RetryAfter = s.ResetAt.Sub(now)
	}
	return s, nil
}

func (l *Limiter) publish(event Event) {
	if l.events != nil {
		l.events.Publish(event)
	}
}

// Close waits for queued usage updates (bounded) and closes the event bus. Idempotent.
func (l *Limiter) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}

	err := l.workers.ReleaseTimeout(releaseTimeout)
	if l.events != nil {
		l.events.Close()
	}
	if err != nil {
		return fmt.Errorf("release usage workers: %w", err)
	}
	return nil
}

// Shutdown samber/do hook
func (l *Limiter) Shutdown(context.Context) error {
	return l.Close()
}

func clampUnit(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
