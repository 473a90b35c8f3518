package limiter

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/KOMKZ/go-yogan-throttle/logger"
	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 1_700_000_010 is 30s into window 28333333 of 60s
var testNow = time.Unix(1_700_000_010, 0)

type staticSource struct {
	client *redis.Client
	err    error
}

func (s staticSource) Acquire(context.Context) (*redis.Client, error) {
	return s.client, s.err
}

type limiterFixture struct {
	limiter *Limiter
	server  *miniredis.Miniredis
	client  *redis.Client
	clock   *clockwork.FakeClock
	logs    *logger.TestLogs
}

func newLimiterFixture(t *testing.T, cfg Config, opts ...Option) *limiterFixture {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	f := &limiterFixture{
		server: server,
		client: client,
		clock:  clockwork.NewFakeClockAt(testNow),
	}
	log, logs := logger.NewTestLogger("limiter")
	f.logs = logs

	opts = append([]Option{WithClock(f.clock)}, opts...)
	l, err := New(cfg, staticSource{client: client}, log, opts...)
	require.NoError(t, err)
	f.limiter = l
	t.Cleanup(func() { _ = l.Close() })
	return f
}

func float(v float64) *float64 { return &v }

func (f *limiterFixture) pattern(t *testing.T, identity string) float64 {
	t.Helper()
	raw, err := f.server.Get(UsageKey(identity))
	if err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	require.NoError(t, err)
	return v
}

func TestNew_Validation(t *testing.T) {
	log, _ := logger.NewTestLogger("limiter")
	src := staticSource{}

	_, err := New(Config{}, src, nil)
	assert.Error(t, err)

	_, err = New(Config{}, nil, log)
	assert.Error(t, err)

	tests := []struct {
		name string
		cfg  Config
	}{
		{"max below base", Config{BaseLimit: 30, MaxLimit: 10}},
		{"smoothing above one", Config{Smoothing: 1.5}},
		{"watermarks inverted", Config{LowWatermark: float(0.8), HighWatermark: 0.5}},
		{"sub-second window", Config{Window: time.Millisecond}},
		{"negative workers", Config{Workers: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg, src, log)
			assert.Nil(t, l)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestConfig_Defaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 20, cfg.BaseLimit)
	assert.Equal(t, 50, cfg.MaxLimit)
	assert.Equal(t, 60*time.Second, cfg.Window)
	assert.Equal(t, 24*time.Hour, cfg.UsageTTL)
	assert.InDelta(t, 0.3, cfg.Smoothing, 1e-9)
	require.NotNil(t, cfg.LowWatermark)
	assert.InDelta(t, 0.3, *cfg.LowWatermark, 1e-9)
	assert.NoError(t, cfg.Validate())
}

func TestLimiter_WindowKeyAndRemaining(t *testing.T) {
	f := newLimiterFixture(t, Config{})

	assert.Equal(t, "ratelimit:U:28333333", f.limiter.WindowKey("U"))
	assert.Equal(t, 30*time.Second, f.limiter.WindowRemaining("U"))

	f.clock.Advance(29 * time.Second)
	assert.Equal(t, time.Second, f.limiter.WindowRemaining("U"))

	f.clock.Advance(time.Second)
	assert.Equal(t, "ratelimit:U:28333334", f.limiter.WindowKey("U"))
	assert.Equal(t, 60*time.Second, f.limiter.WindowRemaining("U"))
}

func TestLimiter_EffectiveLimitBands(t *testing.T) {
	f := newLimiterFixture(t, Config{})
	ctx := context.Background()

	assert.Equal(t, 20, f.limiter.EffectiveLimit(ctx, "cold"))

	tests := []struct {
		pattern string
		want    int
	}{
		{"0", 20},
		{"0.29", 20},
		{"0.3", 40},
		{"0.5", 40},
		{"0.69", 40},
		{"0.7", 50},
		{"0.9", 50},
		{"7", 50},   // clamped to 1
		{"-2", 20},  // clamped to 0
		{"abc", 20}, // malformed reads as 0
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			require.NoError(t, f.server.Set(UsageKey("U"), tt.pattern))
			assert.Equal(t, tt.want, f.limiter.EffectiveLimit(ctx, "U"))
		})
	}
}

func TestLimiter_ZeroLowWatermark(t *testing.T) {
	f := newLimiterFixture(t, Config{LowWatermark: float(0)})
	ctx := context.Background()

	assert.InDelta(t, 0.0, *f.limiter.Config().LowWatermark, 1e-9)
	assert.Equal(t, 40, f.limiter.EffectiveLimit(ctx, "cold"))

	require.NoError(t, f.server.Set(UsageKey("U"), "0.8"))
	assert.Equal(t, 50, f.limiter.EffectiveLimit(ctx, "U"))
}

func TestLimiter_EffectiveLimitFailsToBase(t *testing.T) {
	f := newLimiterFixture(t, Config{})
	require.NoError(t, f.server.Set(UsageKey("U"), "0.9"))
	f.server.Close()

	assert.Equal(t, 20, f.limiter.EffectiveLimit(context.Background(), "U"))
	assert.True(t, f.logs.HasLog("warn", "usage pattern unavailable, using base limit"))
}

func TestLimiter_AllowUntilLimit(t *testing.T) {
	// low smoothing keeps the identity in the base band while the background updates run
	f := newLimiterFixture(t, Config{Smoothing: 0.01})
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		assert.True(t, f.limiter.Allow(ctx, "U"), "request %d", i+1)
	}
	assert.False(t, f.limiter.Allow(ctx, "U"))
	assert.False(t, f.limiter.Allow(ctx, "U"))

	count, err := f.client.Get(ctx, f.limiter.WindowKey("U")).Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(20), count, "denied requests are not counted")
	assert.Equal(t, 60*time.Second, f.server.TTL(f.limiter.WindowKey("U")))

	assert.True(t, f.limiter.Allow(ctx, "other"))
}

func TestLimiter_ConcurrentAllowSameIdentity(t *testing.T) {
	const inFlight = 100
	// 100 updates at 0.001 keep the pattern below 0.1, so the limit stays at 20
	f := newLimiterFixture(t, Config{Smoothing: 0.001})
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
		start   = make(chan struct{})
	)
	for i := 0; i < inFlight; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if f.limiter.Allow(ctx, "U") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	require.False(t, f.logs.HasLog("error", "rate limiter degraded, allowing request"))

	// check-then-increment may overshoot by the checks in flight, never under-count
	count, err := f.client.Get(ctx, f.limiter.WindowKey("U")).Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(allowed), count)
	assert.GreaterOrEqual(t, allowed, 20)
	assert.LessOrEqual(t, allowed, 20+inFlight)

	// once the burst settles the identity is over its limit
	assert.False(t, f.limiter.Allow(ctx, "U"))
}

func TestLimiter_WindowRollover(t *testing.T) {
	f := newLimiterFixture(t, Config{Smoothing: 0.01})
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		require.True(t, f.limiter.Allow(ctx, "U"))
	}
	require.False(t, f.limiter.Allow(ctx, "U"))

	f.clock.Advance(60 * time.Second)
	f.server.FastForward(60 * time.Second)

	assert.True(t, f.limiter.Allow(ctx, "U"))
}

func TestLimiter_AllowSchedulesUsageUpdate(t *testing.T) {
	f := newLimiterFixture(t, Config{})
	ctx := context.Background()

	require.True(t, f.limiter.Allow(ctx, "U"))

	// 0.7*0 + 0.3*(1/20)
	assert.Eventually(t, func() bool {
		return f.server.Exists(UsageKey("U"))
	}, time.Second, 5*time.Millisecond)
	assert.InDelta(t, 0.015, f.pattern(t, "U"), 1e-9)
	assert.Equal(t, 24*time.Hour, f.server.TTL(UsageKey("U")))
}

func TestLimiter_UpdateUsagePatternRoundTrip(t *testing.T) {
	f := newLimiterFixture(t, Config{})
	ctx := context.Background()
	require.NoError(t, f.server.Set(UsageKey("U"), "0.5"))

	// limit 40, ratio min(40/40, 1) = 1
	require.NoError(t, f.limiter.UpdateUsagePattern(ctx, "U", 40))
	assert.InDelta(t, 0.65, f.pattern(t, "U"), 1e-9)
	assert.Equal(t, 40, f.limiter.EffectiveLimit(ctx, "U"))

	// ratio capped at 1
	require.NoError(t, f.limiter.UpdateUsagePattern(ctx, "U", 400))
	assert.InDelta(t, 0.755, f.pattern(t, "U"), 1e-9)
	assert.Equal(t, 50, f.limiter.EffectiveLimit(ctx, "U"))
	assert.True(t, f.logs.HasLogWithField("info", "rate limit tier changed", "to", int64(50)))

	// idle identity decays
	for i := 0; i < 5; i++ {
		require.NoError(t, f.limiter.UpdateUsagePattern(ctx, "U", 0))
	}
	assert.InDelta(t, 0.755*0.16807, f.pattern(t, "U"), 1e-9)
	assert.Equal(t, 20, f.limiter.EffectiveLimit(ctx, "U"))
}

func TestLimiter_UsagePatternStaysInUnitRange(t *testing.T) {
	f := newLimiterFixture(t, Config{})
	ctx := context.Background()

	for _, count := range []int64{-5, 0, 1, 1000, 50, 3, 1 << 40} {
		require.NoError(t, f.limiter.UpdateUsagePattern(ctx, "U", count))
		p := f.pattern(t, "U")
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
	}
}

func TestLimiter_FailOpen(t *testing.T) {
	t.Run("server down", func(t *testing.T) {
		f := newLimiterFixture(t, Config{})
		f.server.Close()

		for i := 0; i < 30; i++ {
			assert.True(t, f.limiter.Allow(context.Background(), "U"))
		}
		assert.True(t, f.logs.HasLog("error", "rate limiter degraded, allowing request"))
	})

	t.Run("no handle", func(t *testing.T) {
		log, logs := logger.NewTestLogger("limiter")
		l, err := New(Config{}, staticSource{err: errors.New("pool exhausted")}, log)
		require.NoError(t, err)
		defer l.Close()

		assert.True(t, l.Allow(context.Background(), "U"))
		assert.True(t, logs.HasLogWithField("error", "rate limiter degraded, allowing request", "op", "read window counter"))
	})

	t.Run("usage update failure stays in background", func(t *testing.T) {
		f := newLimiterFixture(t, Config{})
		// a hash under the usage key makes GET fail with WRONGTYPE
		f.server.HSet(UsageKey("U"), "f", "v")

		assert.True(t, f.limiter.Allow(context.Background(), "U"))
		assert.Eventually(t, func() bool {
			return f.logs.HasLog("warn", "usage pattern update failed")
		}, time.Second, 5*time.Millisecond)
	})
}

func TestLimiter_Status(t *testing.T) {
	f := newLimiterFixture(t, Config{Smoothing: 0.01})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.True(t, f.limiter.Allow(ctx, "U"))
	}

	s, err := f.limiter.Status(ctx, "U")
	require.NoError(t, err)
	assert.Equal(t, "U", s.Identity)
	assert.Equal(t, 20, s.Limit)
	assert.Equal(t, int64(3), s.Count)
	assert.Equal(t, 17, s.Remaining)
	assert.True(t, s.ResetAt.Equal(time.Unix(1_700_000_040, 0)))
	assert.Zero(t, s.RetryAfter)

	for i := 0; i < 20; i++ {
		f.limiter.Allow(ctx, "U")
	}
	s, err = f.limiter.Status(ctx, "U")
	require.NoError(t, err)
	assert.Equal(t, 0, s.Remaining)
	assert.Equal(t, 30*time.Second, s.RetryAfter)

	f.server.Close()
	_, err = f.limiter.Status(ctx, "U")
	assert.Error(t, err)
}

func TestLimiter_Events(t *testing.T) {
	var (
		mu     sync.Mutex
		events []Event
	)
	log, _ := logger.NewTestLogger("limiter")
	bus := NewEventBus(100, log)
	bus.Subscribe(EventListenerFunc(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	}))

	f := newLimiterFixture(t, Config{BaseLimit: 1, MaxLimit: 1, Smoothing: 0.01}, WithEventBus(bus))
	ctx := context.Background()

	require.True(t, f.limiter.Allow(ctx, "U"))
	require.False(t, f.limiter.Allow(ctx, "U"))
	require.NoError(t, f.limiter.Close())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 2)

	allowed, ok := events[0].(*AllowedEvent)
	require.True(t, ok)
	assert.Equal(t, EventAllowed, allowed.Type())
	assert.Equal(t, "U", allowed.Identity())
	assert.Equal(t, int64(1), allowed.Count)
	assert.True(t, allowed.Timestamp().Equal(testNow))

	rejected, ok := events[1].(*RejectedEvent)
	require.True(t, ok)
	assert.Equal(t, EventRejected, rejected.Type())
	assert.Equal(t, 1, rejected.Limit)
	assert.Equal(t, 30*time.Second, rejected.RetryAfter)
}

func TestLimiter_Close(t *testing.T) {
	f := newLimiterFixture(t, Config{})
	ctx := context.Background()

	require.NoError(t, f.limiter.Close())
	require.NoError(t, f.limiter.Close())

	// admission keeps working; only background updates stop
	assert.True(t, f.limiter.Allow(ctx, "U"))
	_, err := f.limiter.Status(ctx, "U")
	assert.ErrorIs(t, err, ErrLimiterClosed)
}
