package application

import (
	"fmt"

	"github.com/KOMKZ/go-yogan-throttle/health"
	"github.com/KOMKZ/go-yogan-throttle/httpx"
	"github.com/KOMKZ/go-yogan-throttle/limiter"
	"github.com/KOMKZ/go-yogan-throttle/logger"
	"github.com/KOMKZ/go-yogan-throttle/middleware"
	"github.com/KOMKZ/go-yogan-throttle/telemetry"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Deps services the HTTP layer is built on
type Deps struct {
	Limiter   *limiter.Limiter
	Clients   limiter.ClientSource // normally the *redis.Pool
	Health    *health.Aggregator
	Telemetry *telemetry.Manager // optional
	Logger    *logger.CtxZapLogger
}

// Router registers one group of routes
type Router interface {
	Register(engine *gin.Engine, deps *Deps, cfg ServerConfig)
}

// RouterFunc functional routing registrar
type RouterFunc func(engine *gin.Engine, deps *Deps, cfg ServerConfig)

// Register implements Router
func (f RouterFunc) Register(engine *gin.Engine, deps *Deps, cfg ServerConfig) {
	f(engine, deps, cfg)
}

// DefaultRouters health probes plus the rate limited chat API
func DefaultRouters() []Router {
	return []Router{
		RouterFunc(registerHealthRoutes),
		RouterFunc(registerChatRoutes),
	}
}

// NewEngine builds the gin engine. Middleware order: recovery, otel span,
// trace id, metrics, access log, error logging config. Admission runs per
// route so the status endpoint never consumes quota.
func NewEngine(cfg ServerConfig, deps *Deps, routers ...Router) (*gin.Engine, error) {
	if deps == nil || deps.Limiter == nil || deps.Logger == nil {
		return nil, fmt.Errorf("http engine needs a limiter and a logger")
	}

	gin.SetMode(cfg.Mode)
	gin.DefaultWriter = logger.NewGinLogWriter(deps.Logger)
	gin.DefaultErrorWriter = logger.NewGinLogWriter(deps.Logger)

	engine := gin.New()
	engine.HandleMethodNotAllowed = true

	engine.Use(middleware.Recovery(deps.Logger))

	if deps.Telemetry != nil && deps.Telemetry.IsEnabled() {
		engine.Use(otelgin.Middleware(deps.Telemetry.GetConfig().ServiceName,
			otelgin.WithTracerProvider(deps.Telemetry.TracerProvider())))
	}

	engine.Use(middleware.TraceID(middleware.TraceConfig{
		TraceIDHeader:        cfg.Middleware.TraceID.TraceIDHeader,
		EnableResponseHeader: boolValue(cfg.Middleware.TraceID.EnableResponseHeader, true),
	}))

	httpMetrics := middleware.NewHTTPMetrics(cfg.Metrics)
	if deps.Telemetry != nil {
		if err := deps.Telemetry.Register(httpMetrics); err != nil {
			return nil, fmt.Errorf("register http metrics: %w", err)
		}
	}
	engine.Use(httpMetrics.Handler())

	if boolValue(cfg.Middleware.RequestLog.Enable, true) {
		engine.Use(middleware.RequestLog(deps.Logger, middleware.RequestLogConfig{
			SkipPaths:    cfg.Middleware.RequestLog.SkipPaths,
			IdentityFunc: middleware.IdentityFromHeader(cfg.Middleware.RateLimit.IdentityHeader),
		}))
	}

	engine.Use(httpx.ErrorLoggingMiddleware(cfg.ErrorLogging, deps.Logger))

	engine.NoRoute(httpx.NoRouteHandler())
	engine.NoMethod(httpx.NoMethodHandler())

	if len(routers) == 0 {
		routers = DefaultRouters()
	}
	for _, r := range routers {
		r.Register(engine, deps, cfg)
	}
	return engine, nil
}

func registerHealthRoutes(engine *gin.Engine, deps *Deps, _ ServerConfig) {
	middleware.RegisterHealthRoutes(engine, deps.Health)
}

func registerChatRoutes(engine *gin.Engine, deps *Deps, cfg ServerConfig) {
	identity := middleware.IdentityFromHeader(cfg.Middleware.RateLimit.IdentityHeader)

	rateCfg := middleware.DefaultRateLimiterConfig()
	rateCfg.KeyFunc = identity
	rateCfg.SkipPaths = cfg.Middleware.RateLimit.SkipPaths

	chat := engine.Group("/api/chat")
	chat.GET("/limit/status", middleware.RateLimitStatusHandler(deps.Limiter, identity))
	chat.GET("/:query", middleware.RateLimiter(deps.Limiter, rateCfg),
		httpx.Wrap(newChatHandler(deps.Clients, identity).Handle))
}

func boolValue(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
