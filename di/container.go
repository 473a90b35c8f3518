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
	"go.uber.org/zap"
)

// Options 容器选项
type Options struct {
	Name       string // 应用 logger 的模块名（默认 throttled）
	ConfigPath string
	ConfigFile string
	EnvPrefix  string // 默认 THROTTLE
	Flags      *config.FlagSource
	Defaults   map[string]interface{}
}

// Container process-scoped services wired through samber/do.
// Services are built lazily on first Invoke and shut down in reverse
// dependency order: limiter, pool, telemetry, logger.
type Container struct {
	injector *do.RootScope
	name     string
	logger   *logger.CtxZapLogger
}

// NewContainer registers every provider; nothing is built yet.
// Extra values (a LoadSampler, a metric Reader, a ready Loader) can be
// provided on Injector() before the first Invoke.
func NewContainer(opts Options) *Container {
	if opts.Name == "" {
		opts.Name = "throttled"
	}
	if opts.EnvPrefix == "" {
		opts.EnvPrefix = "THROTTLE"
	}

	injector := do.New()
	do.Provide(injector, config.ProvideLoader(config.ProvideLoaderOptions{
		ConfigPath: opts.ConfigPath,
		ConfigFile: opts.ConfigFile,
		EnvPrefix:  opts.EnvPrefix,
		EnvKeys:    EnvKeys,
		Flags:      opts.Flags,
		Defaults:   opts.Defaults,
	}))
	do.Provide(injector, ProvideLoggerManager)
	do.Provide(injector, ProvideCtxLogger(opts.Name))
	do.Provide(injector, ProvideTelemetry)
	do.Provide(injector, ProvideRedisPool)
	do.Provide(injector, ProvideLimiter)
	do.Provide(injector, ProvideHealthAggregator)

	return &Container{injector: injector, name: opts.Name}
}

// Injector 获取 do.Injector
func (c *Container) Injector() *do.RootScope {
	return c.injector
}

// Setup loads config and logging, then starts telemetry so later services
// can register their metrics
func (c *Container) Setup() error {
	loader, err := do.Invoke[*config.Loader](c.injector)
	if err != nil {
		return fmt.Errorf("init config: %w", err)
	}

	log, err := do.Invoke[*logger.CtxZapLogger](c.injector)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	c.logger = log

	if _, err := do.Invoke[*telemetry.Manager](c.injector); err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	log.Info("container ready",
		zap.String("name", c.name),
		zap.Strings("config_files", loader.GetLoadedFiles()),
	)
	return nil
}

// Config 配置加载器
func (c *Container) Config() (*config.Loader, error) {
	return Resolve[*config.Loader](c)
}

// Logger nil before Setup
func (c *Container) Logger() *logger.CtxZapLogger {
	return c.logger
}

// ModuleLogger logger for a module other than the container's own
func (c *Container) ModuleLogger(module string) *logger.CtxZapLogger {
	mgr, err := Resolve[*logger.Manager](c)
	if err != nil {
		return logger.GetLogger(module)
	}
	return mgr.GetLogger(module)
}

// Telemetry tracer and meter providers, started by Setup
func (c *Container) Telemetry() (*telemetry.Manager, error) {
	return Resolve[*telemetry.Manager](c)
}

// Pool 自适应连接池
func (c *Container) Pool() (*redis.Pool, error) {
	return Resolve[*redis.Pool](c)
}

// Limiter 限流器
func (c *Container) Limiter() (*limiter.Limiter, error) {
	return Resolve[*limiter.Limiter](c)
}

// Health 健康检查聚合器
func (c *Container) Health() (*health.Aggregator, error) {
	return Resolve[*health.Aggregator](c)
}

// Shutdown closes every built service that implements a Shutdown method
func (c *Container) Shutdown(ctx context.Context) error {
	report := c.injector.ShutdownWithContext(ctx)
	if report != nil && !report.Succeed {
		if c.logger != nil {
			c.logger.Warn("injector shutdown failed", zap.Error(report))
		}
		return report
	}
	return nil
}
