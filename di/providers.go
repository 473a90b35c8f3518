package di

import (
	"context"
	"fmt"

	"github.com/KOMKZ/go-yogan-throttle/config"
	"github.com/KOMKZ/go-yogan-throttle/health"
	"github.com/KOMKZ/go-yogan-throttle/limiter"
	"github.com/KOMKZ/go-yogan-throttle/logger"
	"github.com/KOMKZ/go-yogan-throttle/redis"
	"github.com/KOMKZ/go-yogan-throttle/telemetry"
	"github.com/samber/do/v2"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// EnvKeys 允许通过 THROTTLE_* 环境变量覆盖的配置项
var EnvKeys = []string{
	"redis.addr",
	"redis.password",
	"redis.db",
	"redis.min_capacity",
	"redis.max_capacity",
	"redis.initial_capacity",
	"redis.adjust_interval",
	"redis.grace_delay",
	"redis.hysteresis",
	"redis.metrics.enabled",
	"limiter.base_limit",
	"limiter.max_limit",
	"limiter.window",
	"limiter.usage_ttl",
	"limiter.key_prefix",
	"limiter.workers",
	"limiter.metrics.enabled",
	"health.enabled",
	"health.require_redis",
	"logger.level",
	"logger.encoding",
	"server.addr",
	"server.mode",
	"server.metrics.enabled",
	"telemetry.enabled",
	"telemetry.exporter.type",
	"telemetry.exporter.endpoint",
	"telemetry.metrics.enabled",
}

// ============================================
// 基础组件 Provider（Config, Logger, Telemetry）
// ============================================

// ProvideLoggerManager 依赖 config.Loader；缺少 logger 配置时使用默认值
func ProvideLoggerManager(i do.Injector) (*logger.Manager, error) {
	cfg := logger.DefaultManagerConfig()

	loader, err := do.Invoke[*config.Loader](i)
	if err != nil {
		return logger.NewManager(cfg), nil
	}
	if err := loader.Unmarshal("logger", &cfg); err != nil {
		return nil, fmt.Errorf("decode logger config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return logger.NewManager(cfg), nil
}

// ProvideCtxLogger 模块 logger，Manager 不可用时回退到全局 logger
func ProvideCtxLogger(moduleName string) func(do.Injector) (*logger.CtxZapLogger, error) {
	return func(i do.Injector) (*logger.CtxZapLogger, error) {
		mgr, err := do.Invoke[*logger.Manager](i)
		if err != nil {
			return logger.GetLogger(moduleName), nil
		}
		return mgr.GetLogger(moduleName), nil
	}
}

// ProvideTelemetry 启动 tracer/meter provider（yaml key: telemetry）
func ProvideTelemetry(i do.Injector) (*telemetry.Manager, error) {
	loader, mgr, err := base(i)
	if err != nil {
		return nil, err
	}

	cfg := telemetry.DefaultConfig()
	if err := loader.Unmarshal("telemetry", &cfg); err != nil {
		return nil, fmt.Errorf("decode telemetry config: %w", err)
	}

	opts := []telemetry.Option{}
	if reader, err := do.Invoke[sdkmetric.Reader](i); err == nil {
		opts = append(opts, telemetry.WithMetricReader(reader))
	}

	tm := telemetry.NewManager(cfg, mgr.GetLogger("telemetry"), opts...)
	if err := tm.Start(context.Background()); err != nil {
		return nil, err
	}
	return tm, nil
}

func base(i do.Injector) (*config.Loader, *logger.Manager, error) {
	loader, err := do.Invoke[*config.Loader](i)
	if err != nil {
		return nil, nil, err
	}
	mgr, err := do.Invoke[*logger.Manager](i)
	if err != nil {
		return nil, nil, err
	}
	return loader, mgr, nil
}

func registerMetrics(i do.Injector, provider telemetry.MetricsProvider) error {
	tm, err := do.Invoke[*telemetry.Manager](i)
	if err != nil {
		return fmt.Errorf("metrics need telemetry: %w", err)
	}
	return tm.Register(provider)
}

// ============================================
// Redis Pool / Limiter Provider
// 依赖：Config, Logger, Telemetry
// ============================================

// ProvideRedisPool 自适应连接池（yaml key: redis, redis.metrics）
func ProvideRedisPool(i do.Injector) (*redis.Pool, error) {
	loader, mgr, err := base(i)
	if err != nil {
		return nil, err
	}

	var cfg redis.Config
	if err := loader.Unmarshal("redis", &cfg); err != nil {
		return nil, fmt.Errorf("decode redis config: %w", err)
	}

	var opts []redis.Option
	metrics, err := poolMetrics(i, loader)
	if err != nil {
		return nil, err
	}
	if metrics != nil {
		opts = append(opts, redis.WithMetrics(metrics))
	}
	if sampler, err := do.Invoke[redis.LoadSampler](i); err == nil {
		opts = append(opts, redis.WithLoadSampler(sampler))
	}

	return redis.NewPool(cfg, mgr.GetLogger("redis"), opts...)
}

func poolMetrics(i do.Injector, loader *config.Loader) (*redis.Metrics, error) {
	var mc redis.MetricsConfig
	if err := loader.Unmarshal("redis.metrics", &mc); err != nil {
		return nil, fmt.Errorf("decode redis metrics config: %w", err)
	}
	if !mc.Enabled {
		return nil, nil
	}
	metrics := redis.NewMetrics(mc)
	if err := registerMetrics(i, metrics); err != nil {
		return nil, err
	}
	return metrics, nil
}

// ProvideLimiter 自适应限流器，存储走 redis.Pool（yaml key: limiter, limiter.metrics）
func ProvideLimiter(i do.Injector) (*limiter.Limiter, error) {
	loader, mgr, err := base(i)
	if err != nil {
		return nil, err
	}

	pool, err := do.Invoke[*redis.Pool](i)
	if err != nil {
		return nil, fmt.Errorf("limiter needs the redis pool: %w", err)
	}

	var cfg limiter.Config
	if err := loader.Unmarshal("limiter", &cfg); err != nil {
		return nil, fmt.Errorf("decode limiter config: %w", err)
	}
	cfg.ApplyDefaults()

	log := mgr.GetLogger("limiter")
	opts := []limiter.Option{
		limiter.WithEventBus(limiter.NewEventBus(cfg.EventBusBuffer, log)),
	}

	var mc limiter.MetricsConfig
	if err := loader.Unmarshal("limiter.metrics", &mc); err != nil {
		return nil, fmt.Errorf("decode limiter metrics config: %w", err)
	}
	if mc.Enabled {
		metrics := limiter.NewMetrics(mc)
		if err := registerMetrics(i, metrics); err != nil {
			return nil, err
		}
		opts = append(opts, limiter.WithMetrics(metrics))
	}

	return limiter.New(cfg, pool, log, opts...)
}

// ProvideHealthAggregator 未启用时返回 nil，路由层据此跳过 /health（yaml key: health）
func ProvideHealthAggregator(i do.Injector) (*health.Aggregator, error) {
	loader, err := do.Invoke[*config.Loader](i)
	if err != nil {
		return nil, err
	}

	cfg := health.DefaultConfig()
	if err := loader.Unmarshal("health", &cfg); err != nil {
		return nil, fmt.Errorf("decode health config: %w", err)
	}

	if !cfg.Enabled {
		return nil, nil
	}

	agg := health.NewAggregator(cfg.Timeout)
	if pool, err := do.Invoke[*redis.Pool](i); err == nil {
		if cfg.RequireRedis {
			agg.Register(redis.NewHealthChecker(pool))
		} else {
			agg.RegisterOptional(redis.NewHealthChecker(pool))
		}
	}
	return agg, nil
}
