package redis

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/KOMKZ/go-yogan-throttle/logger"
	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type poolFixture struct {
	pool    *Pool
	server  *miniredis.Miniredis
	clock   *clockwork.FakeClock
	sampler *StaticLoadSampler
	logs    *logger.TestLogs
}

func newPoolFixture(t *testing.T, cfg Config, opts ...Option) *poolFixture {
	t.Helper()

	server := miniredis.RunT(t)
	cfg.Addr = server.Addr()
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = -1
	}

	f := &poolFixture{
		server:  server,
		clock:   clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)),
		sampler: &StaticLoadSampler{},
	}
	log, logs := logger.NewTestLogger("redis")
	f.logs = logs

	opts = append([]Option{WithClock(f.clock), WithLoadSampler(f.sampler)}, opts...)
	pool, err := NewPool(cfg, log, opts...)
	require.NoError(t, err)
	f.pool = pool
	t.Cleanup(func() { _ = pool.Shutdown(context.Background()) })
	return f
}

// cycle advances past the adjustment interval and acquires, which runs one adjustment
func (f *poolFixture) cycle(t *testing.T) *redis.Client {
	t.Helper()
	f.clock.Advance(f.pool.Config().AdjustInterval + time.Second)
	client, err := f.pool.Acquire(context.Background())
	require.NoError(t, err)
	return client
}

func TestNewPool_NilLogger(t *testing.T) {
	p, err := NewPool(Config{}, nil)
	assert.Error(t, err)
	assert.Nil(t, p)
	assert.Contains(t, err.Error(), "logger cannot be nil")
}

func TestNewPool_InvalidConfig(t *testing.T) {
	log, _ := logger.NewTestLogger("redis")

	tests := []struct {
		name string
		cfg  Config
	}{
		{"min above max", Config{MinCapacity: 10, MaxCapacity: 5}},
		{"initial below min", Config{MinCapacity: 10, MaxCapacity: 20, InitialCapacity: 5}},
		{"initial above max", Config{MinCapacity: 5, MaxCapacity: 20, InitialCapacity: 30}},
		{"db out of range", Config{DB: 16}},
		{"negative hysteresis", Config{Hysteresis: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPool(tt.cfg, log)
			assert.Nil(t, p)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestConfig_Defaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "localhost:6379", cfg.Addr)
	assert.Equal(t, 5, cfg.MinCapacity)
	assert.Equal(t, 50, cfg.MaxCapacity)
	assert.Equal(t, 5, cfg.InitialCapacity)
	assert.Equal(t, 30*time.Second, cfg.AdjustInterval)
	assert.Equal(t, 10*time.Second, cfg.GraceDelay)
	assert.Equal(t, 5, cfg.Hysteresis)
	assert.Equal(t, 5*time.Second, cfg.DialTimeout)
	assert.NoError(t, cfg.Validate())
}

func TestPool_AcquireCreatesAndReusesHandle(t *testing.T) {
	f := newPoolFixture(t, Config{})
	ctx := context.Background()

	assert.Equal(t, uint64(0), f.pool.Stats().Generation)

	c1, err := f.pool.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, c1.Set(ctx, "k", "v", 0).Err())

	c2, err := f.pool.Acquire(ctx)
	require.NoError(t, err)
	assert.Same(t, c1, c2)

	stats := f.pool.Stats()
	assert.Equal(t, 5, stats.Current)
	assert.Equal(t, uint64(1), stats.Generation)
	assert.Equal(t, 0, stats.Retiring)
	assert.Equal(t, 5, c1.Options().PoolSize)
}

func TestPool_ConcurrentAcquireBuildsOneHandle(t *testing.T) {
	var built atomic.Int32
	factory := func(cfg Config, capacity int) *redis.Client {
		built.Add(1)
		return NewClient(cfg, capacity)
	}
	f := newPoolFixture(t, Config{}, WithClientFactory(factory))

	var wg sync.WaitGroup
	clients := make([]*redis.Client, 20)
	for i := range clients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := f.pool.Acquire(context.Background())
			assert.NoError(t, err)
			clients[i] = c
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), built.Load())
	for _, c := range clients {
		assert.Same(t, clients[0], c)
	}
}

func TestPool_HighLoadGrowth(t *testing.T) {
	f := newPoolFixture(t, Config{InitialCapacity: 20, Hysteresis: 4})
	f.sampler.Set(85, 85)

	first, err := f.pool.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 20, f.pool.Capacity())

	second := f.cycle(t)
	assert.Equal(t, 24, f.pool.Capacity())
	assert.NotSame(t, first, second)
	assert.Equal(t, 24, second.Options().PoolSize)

	third := f.cycle(t)
	assert.Equal(t, 29, f.pool.Capacity())
	assert.NotSame(t, second, third)

	stats := f.pool.Stats()
	assert.Equal(t, uint64(3), stats.Generation)
	assert.Equal(t, 2, stats.Retiring)
	assert.True(t, f.logs.HasLogWithField("info", "redis pool resized", "to", int64(29)))
}

func TestPool_HysteresisBlocksSmallGrowth(t *testing.T) {
	f := newPoolFixture(t, Config{InitialCapacity: 20})
	f.sampler.Set(85, 85)

	first, err := f.pool.Acquire(context.Background())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		c := f.cycle(t)
		assert.Same(t, first, c)
		assert.Equal(t, 20, f.pool.Capacity())
	}
	assert.True(t, f.pool.Stats().LastAdjustment.Equal(f.clock.Now()))
	assert.Equal(t, 0, f.pool.Stats().Retiring)
}

func TestPool_LowLoadShrinks(t *testing.T) {
	f := newPoolFixture(t, Config{InitialCapacity: 50})
	f.sampler.Set(10, 20)

	_, err := f.pool.Acquire(context.Background())
	require.NoError(t, err)

	var got []int
	for i := 0; i < 5; i++ {
		f.cycle(t)
		got = append(got, f.pool.Capacity())
	}
	// 20 -> 16 is below the hysteresis and is not applied
	assert.Equal(t, []int{40, 32, 25, 20, 20}, got)
}

func TestPool_MediumLoadUsesConnectedClients(t *testing.T) {
	var connected atomic.Int64
	counter := func(context.Context, *redis.Client) (int, error) {
		return int(connected.Load()), nil
	}
	f := newPoolFixture(t, Config{InitialCapacity: 20}, WithClientCounter(counter))
	f.sampler.Set(50, 50)

	_, err := f.pool.Acquire(context.Background())
	require.NoError(t, err)

	connected.Store(18)
	f.cycle(t)
	assert.Equal(t, 25, f.pool.Capacity())

	connected.Store(12)
	f.cycle(t)
	assert.Equal(t, 25, f.pool.Capacity())

	connected.Store(2)
	f.cycle(t)
	assert.Equal(t, 20, f.pool.Capacity())
}

func TestPool_DefaultCounterReadsServer(t *testing.T) {
	f := newPoolFixture(t, Config{InitialCapacity: 20})
	f.sampler.Set(50, 50)

	_, err := f.pool.Acquire(context.Background())
	require.NoError(t, err)

	// a single test connection is well under 40% of 20
	f.cycle(t)
	assert.Equal(t, 15, f.pool.Capacity())
}

func TestConnectedClients(t *testing.T) {
	server := miniredis.RunT(t)
	cfg := DefaultConfig()
	cfg.Addr = server.Addr()
	client := NewClient(cfg, 5)
	t.Cleanup(func() { _ = client.Close() })

	n, err := ConnectedClients(context.Background(), client)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	server.Close()
	_, err = ConnectedClients(context.Background(), client)
	assert.ErrorContains(t, err, "info clients")
}

func TestPool_AdjustmentFailuresAreSwallowed(t *testing.T) {
	t.Run("sampler error", func(t *testing.T) {
		f := newPoolFixture(t, Config{InitialCapacity: 20})
		f.sampler.Err = errors.New("no /proc")

		_, err := f.pool.Acquire(context.Background())
		require.NoError(t, err)

		f.cycle(t)
		assert.Equal(t, 20, f.pool.Capacity())
		assert.True(t, f.pool.Stats().LastAdjustment.Equal(f.clock.Now()))
		assert.True(t, f.logs.HasLog("warn", "redis pool adjustment skipped"))
	})

	t.Run("counter error", func(t *testing.T) {
		counter := func(context.Context, *redis.Client) (int, error) {
			return 0, errors.New("info disabled")
		}
		f := newPoolFixture(t, Config{InitialCapacity: 20}, WithClientCounter(counter))
		f.sampler.Set(50, 50)

		_, err := f.pool.Acquire(context.Background())
		require.NoError(t, err)

		f.cycle(t)
		assert.Equal(t, 20, f.pool.Capacity())
		assert.True(t, f.logs.HasLog("warn", "redis pool adjustment skipped"))
	})
}

type countingSampler struct {
	calls atomic.Int32
	load  LoadSample
}

func (s *countingSampler) Sample(context.Context) (LoadSample, error) {
	s.calls.Add(1)
	return s.load, nil
}

func TestPool_AdjustmentIsDebounced(t *testing.T) {
	sampler := &countingSampler{load: LoadSample{CPUPercent: 50, MemPercent: 50}}
	counter := func(context.Context, *redis.Client) (int, error) { return 10, nil }
	f := newPoolFixture(t, Config{InitialCapacity: 20}, WithLoadSampler(sampler), WithClientCounter(counter))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := f.pool.Acquire(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(0), sampler.calls.Load())

	f.clock.Advance(29 * time.Second)
	_, err := f.pool.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(0), sampler.calls.Load())

	f.clock.Advance(2 * time.Second)
	_, err = f.pool.Acquire(ctx)
	require.NoError(t, err)
	_, err = f.pool.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), sampler.calls.Load())
}

func TestPool_CapacityStaysInBounds(t *testing.T) {
	var connected atomic.Int64
	counter := func(context.Context, *redis.Client) (int, error) {
		return int(connected.Load()), nil
	}
	f := newPoolFixture(t, Config{MinCapacity: 5, MaxCapacity: 30, InitialCapacity: 10}, WithClientCounter(counter))

	_, err := f.pool.Acquire(context.Background())
	require.NoError(t, err)

	steps := []struct {
		cpu, mem float64
		conn     int64
	}{
		{90, 90, 0}, {95, 80, 0}, {99, 99, 0}, {99, 99, 0}, {99, 99, 0},
		{50, 50, 100}, {50, 50, 100}, {0, 0, 0}, {5, 5, 0}, {5, 5, 0},
		{5, 5, 0}, {5, 5, 0}, {50, 50, 0}, {50, 50, 0}, {80, 60, 0},
	}
	for _, s := range steps {
		f.sampler.Set(s.cpu, s.mem)
		connected.Store(s.conn)
		before := f.pool.Capacity()

		f.cycle(t)
		got := f.pool.Capacity()
		assert.GreaterOrEqual(t, got, 5)
		assert.LessOrEqual(t, got, 30)

		load := (s.cpu + s.mem) / 2
		if load >= 70 {
			assert.GreaterOrEqual(t, got, before)
		}
		if load < 30 {
			assert.LessOrEqual(t, got, before)
		}
	}
}

func TestPool_AcquireFailurePropagates(t *testing.T) {
	f := newPoolFixture(t, Config{})
	f.server.Close()

	client, err := f.pool.Acquire(context.Background())
	assert.Nil(t, client)
	assert.ErrorIs(t, err, ErrAcquireFailed)
	assert.True(t, f.logs.HasLog("error", "redis handle unavailable"))
}

func TestPool_GenerationDuringOutage(t *testing.T) {
	f := newPoolFixture(t, Config{})
	ctx := context.Background()

	_, err := f.pool.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), f.pool.Stats().Generation)

	f.server.Close()
	for i := 0; i < 3; i++ {
		_, err = f.pool.Acquire(ctx)
		require.ErrorIs(t, err, ErrAcquireFailed)
		assert.Equal(t, uint64(0), f.pool.Stats().Generation)
	}

	require.NoError(t, f.server.Restart())
	_, err = f.pool.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), f.pool.Stats().Generation)
}

func TestPool_CancelledContext(t *testing.T) {
	f := newPoolFixture(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.pool.Acquire(ctx)
	assert.ErrorIs(t, err, ErrAcquireFailed)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPool_FailedProbeRecreatesHandle(t *testing.T) {
	f := newPoolFixture(t, Config{})
	ctx := context.Background()

	stale, err := f.pool.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, stale.Close())

	fresh, err := f.pool.Acquire(ctx)
	require.NoError(t, err)
	assert.NotSame(t, stale, fresh)
	assert.NoError(t, fresh.Ping(ctx).Err())

	stats := f.pool.Stats()
	assert.Equal(t, uint64(2), stats.Generation)
	assert.Equal(t, 1, stats.Retiring)
	assert.True(t, f.logs.HasLog("warn", "redis handle probe failed, recreating"))
}

func TestPool_RetiresAfterGraceDelay(t *testing.T) {
	server := miniredis.RunT(t)
	log, logs := logger.NewTestLogger("redis")
	sampler := &StaticLoadSampler{}
	sampler.Set(90, 90)

	pool, err := NewPool(Config{
		Addr:            server.Addr(),
		InitialCapacity: 20,
		GraceDelay:      50 * time.Millisecond,
		Hysteresis:      4,
		MaxRetries:      -1,
	}, log, WithLoadSampler(sampler))
	require.NoError(t, err)
	defer pool.Shutdown(context.Background())

	ctx := context.Background()
	old, err := pool.Acquire(ctx)
	require.NoError(t, err)

	pool.mu.Lock()
	pool.adjust(ctx)
	pool.mu.Unlock()

	assert.Equal(t, 24, pool.Capacity())
	assert.Equal(t, 1, pool.Stats().Retiring)

	// still usable by holders during the grace delay
	assert.NoError(t, old.Ping(ctx).Err())

	assert.Eventually(t, func() bool {
		return logs.HasLog("debug", "retired redis handle closed")
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, pool.Stats().Retiring)
	assert.ErrorIs(t, old.Ping(ctx).Err(), redis.ErrClosed)
}

func TestPool_Shutdown(t *testing.T) {
	t.Run("never acquired, twice", func(t *testing.T) {
		f := newPoolFixture(t, Config{})
		assert.NoError(t, f.pool.Shutdown(context.Background()))
		assert.NoError(t, f.pool.Shutdown(context.Background()))
	})

	t.Run("closes active and retiring handles", func(t *testing.T) {
		f := newPoolFixture(t, Config{InitialCapacity: 20, Hysteresis: 4})
		f.sampler.Set(85, 85)
		ctx := context.Background()

		old, err := f.pool.Acquire(ctx)
		require.NoError(t, err)
		active := f.cycle(t)
		require.Equal(t, 1, f.pool.Stats().Retiring)

		require.NoError(t, f.pool.Shutdown(ctx))
		assert.ErrorIs(t, old.Ping(ctx).Err(), redis.ErrClosed)
		assert.ErrorIs(t, active.Ping(ctx).Err(), redis.ErrClosed)
		assert.Equal(t, 0, f.pool.Stats().Retiring)
		assert.NoError(t, f.pool.Shutdown(ctx))
	})

	t.Run("acquire after shutdown", func(t *testing.T) {
		f := newPoolFixture(t, Config{})
		require.NoError(t, f.pool.Shutdown(context.Background()))

		c, err := f.pool.Acquire(context.Background())
		assert.Nil(t, c)
		assert.ErrorIs(t, err, ErrPoolClosed)
	})
}

func TestHealthChecker(t *testing.T) {
	f := newPoolFixture(t, Config{})
	checker := NewHealthChecker(f.pool)

	assert.Equal(t, "redis_pool", checker.Name())
	assert.NoError(t, checker.Check(context.Background()))

	f.server.Close()
	assert.Error(t, checker.Check(context.Background()))

	assert.Error(t, NewHealthChecker(nil).Check(context.Background()))
}
