// Package application runs the throttle service: DI container, gin engine,
// HTTP server and the signal driven lifecycle around them.
package application

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/KOMKZ/go-yogan-throttle/di"
	"github.com/KOMKZ/go-yogan-throttle/logger"
	"go.uber.org/zap"
)

// AppState application state
type AppState int

const (
	StateInit AppState = iota
	StateSetup
	StateRunning
	StateStopping
	StateStopped
)

// String 状态字符串表示
func (s AppState) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateSetup:
		return "Setup"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// Application HTTP service lifecycle. Every service lives in the di.Container
// and is shut down through it after the server has drained.
type Application struct {
	container *di.Container
	routers   []Router
	version   string

	cfg    ServerConfig
	server *HTTPServer
	log    *logger.CtxZapLogger

	ctx    context.Context
	cancel context.CancelFunc
	state  AppState
	mu     sync.RWMutex
}

// New creates the application; nothing is built before Setup
func New(opts di.Options) *Application {
	return NewWithContainer(di.NewContainer(opts))
}

// NewWithContainer uses a prepared container (tests provide values on its injector)
func NewWithContainer(container *di.Container) *Application {
	ctx, cancel := context.WithCancel(context.Background())
	return &Application{
		container: container,
		ctx:       ctx,
		cancel:    cancel,
		state:     StateInit,
	}
}

// WithVersion 设置应用版本号（链式调用）
func (a *Application) WithVersion(version string) *Application {
	a.version = version
	return a
}

// WithRouters replaces DefaultRouters
func (a *Application) WithRouters(routers ...Router) *Application {
	a.routers = routers
	return a
}

// Setup builds config, logging, telemetry, pool, limiter and the HTTP server
func (a *Application) Setup() error {
	if err := a.container.Setup(); err != nil {
		return err
	}
	a.log = a.container.Logger()
	a.setState(StateSetup)

	loader, err := a.container.Config()
	if err != nil {
		return err
	}
	a.cfg, err = LoadServerConfig(loader)
	if err != nil {
		return err
	}

	deps, err := a.resolveDeps()
	if err != nil {
		return err
	}

	engine, err := NewEngine(a.cfg, deps, a.routers...)
	if err != nil {
		return err
	}
	a.server = NewHTTPServer(a.cfg, engine, a.container.ModuleLogger("http"))
	return nil
}

func (a *Application) resolveDeps() (*Deps, error) {
	pool, err := a.container.Pool()
	if err != nil {
		return nil, fmt.Errorf("init redis pool: %w", err)
	}
	lim, err := a.container.Limiter()
	if err != nil {
		return nil, fmt.Errorf("init limiter: %w", err)
	}
	agg, err := a.container.Health()
	if err != nil {
		return nil, fmt.Errorf("init health: %w", err)
	}
	tm, err := a.container.Telemetry()
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	if agg != nil && a.version != "" {
		agg.SetMetadata("version", a.version)
	}

	return &Deps{
		Limiter:   lim,
		Clients:   pool,
		Health:    agg,
		Telemetry: tm,
		Logger:    a.container.ModuleLogger("http"),
	}, nil
}

// Start begins serving; Setup must have succeeded
func (a *Application) Start() error {
	if a.server == nil {
		return fmt.Errorf("application not set up")
	}
	if err := a.server.Start(); err != nil {
		return err
	}
	a.setState(StateRunning)
	a.log.Info("throttle service running",
		zap.String("addr", a.server.Addr()),
		zap.String("version", a.version))
	return nil
}

// Run Setup, Start, block until a signal, Cancel or a server failure, then Shutdown
func (a *Application) Run() error {
	if err := a.Setup(); err != nil {
		_ = a.container.Shutdown(context.Background())
		return fmt.Errorf("setup failed: %w", err)
	}
	if err := a.Start(); err != nil {
		_ = a.Shutdown()
		return err
	}

	serveErr := a.waitShutdown()
	if err := a.Shutdown(); err != nil {
		return err
	}
	return serveErr
}

// waitShutdown 双信号机制：第一次信号触发优雅关停，第二次信号立即强制退出
func (a *Application) waitShutdown() error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		a.log.Info("shutdown signal received", zap.String("signal", sig.String()))
		a.cancel()

		go func() {
			sig := <-quit
			a.log.Warn("second signal received, forcing exit", zap.String("signal", sig.String()))
			os.Exit(1)
		}()
		return nil

	case <-a.ctx.Done():
		signal.Stop(quit)
		return nil

	case err := <-a.server.Err():
		signal.Stop(quit)
		return fmt.Errorf("http server failed: %w", err)
	}
}

// Shutdown drains HTTP first, then closes limiter, pool, telemetry and
// loggers through the container
func (a *Application) Shutdown() error {
	a.setState(StateStopping)

	timeout := a.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultServerConfig().ShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var firstErr error
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			firstErr = err
			if a.log != nil {
				a.log.Error("http server shutdown failed", zap.Error(err))
			}
		}
	}
	if err := a.container.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}

	a.setState(StateStopped)
	return firstErr
}

// Cancel 手动触发关闭（用于测试或程序控制）
func (a *Application) Cancel() {
	a.cancel()
}

// Container DI container
func (a *Application) Container() *di.Container {
	return a.container
}

// Server nil before Setup
func (a *Application) Server() *HTTPServer {
	return a.server
}

// Context 获取应用上下文
func (a *Application) Context() context.Context {
	return a.ctx
}

// GetState 获取当前状态（线程安全）
func (a *Application) GetState() AppState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

func (a *Application) setState(state AppState) {
	a.mu.Lock()
	defer a.mu.Unlock()

	oldState := a.state
	a.state = state

	if a.log != nil {
		a.log.Debug("state changed",
			zap.String("from", oldState.String()),
			zap.String("to", state.String()))
	}
}
