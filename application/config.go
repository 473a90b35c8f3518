package application

import (
	"fmt"
	"time"

	"github.com/KOMKZ/go-yogan-throttle/config"
	"github.com/KOMKZ/go-yogan-throttle/httpx"
	"github.com/KOMKZ/go-yogan-throttle/middleware"
	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// ServerConfig HTTP server configuration (yaml key: server)
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	Mode            string        `mapstructure:"mode"` // debug, release, test
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	Middleware   MiddlewareConfig             `mapstructure:"middleware"`
	Metrics      middleware.HTTPMetricsConfig `mapstructure:"metrics"`
	ErrorLogging httpx.ErrorLoggingConfig     `mapstructure:"error_logging"`
}

// MiddlewareConfig middleware configuration
type MiddlewareConfig struct {
	TraceID    TraceIDConfig    `mapstructure:"trace_id"`
	RequestLog RequestLogConfig `mapstructure:"request_log"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
}

// TraceIDConfig Trace ID middleware configuration
type TraceIDConfig struct {
	// TraceIDHeader is the key in the HTTP Header (default "X-Trace-ID")
	TraceIDHeader string `mapstructure:"trace_id_header"`

	// EnableResponseHeader whether to write TraceID into Response Header (default true)
	EnableResponseHeader *bool `mapstructure:"enable_response_header"`
}

// RequestLogConfig HTTP request log middleware configuration
type RequestLogConfig struct {
	// Enable request log middleware (default true)
	Enable *bool `mapstructure:"enable"`

	// SkipPaths list of paths to skip recording (default the liveness probe)
	SkipPaths []string `mapstructure:"skip_paths"`
}

// RateLimitConfig admission middleware configuration
type RateLimitConfig struct {
	// IdentityHeader carries the caller identity (default X-User-ID, client IP when absent)
	IdentityHeader string `mapstructure:"identity_header"`

	SkipPaths []string `mapstructure:"skip_paths"`
}

// DefaultServerConfig defaults used for missing keys
func DefaultServerConfig() ServerConfig {
	cfg := ServerConfig{ErrorLogging: httpx.DefaultErrorLoggingConfig()}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero values
func (c *ServerConfig) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.Mode == "" {
		c.Mode = gin.ReleaseMode
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 15 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 15 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}

	if c.Middleware.TraceID.TraceIDHeader == "" {
		c.Middleware.TraceID.TraceIDHeader = middleware.TraceIDHeaderDefault
	}
	if c.Middleware.TraceID.EnableResponseHeader == nil {
		enabled := true
		c.Middleware.TraceID.EnableResponseHeader = &enabled
	}
	if c.Middleware.RequestLog.Enable == nil {
		enabled := true
		c.Middleware.RequestLog.Enable = &enabled
	}
	if c.Middleware.RequestLog.SkipPaths == nil {
		c.Middleware.RequestLog.SkipPaths = middleware.DefaultRequestLogConfig().SkipPaths
	}
	if c.Middleware.RateLimit.IdentityHeader == "" {
		c.Middleware.RateLimit.IdentityHeader = middleware.IdentityHeaderDefault
	}
	if c.ErrorLogging.LogLevel == "" {
		c.ErrorLogging.LogLevel = "error"
	}
}

// Validate checks the server configuration
func (c ServerConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Addr, validation.Required),
		validation.Field(&c.Mode, validation.In(gin.DebugMode, gin.ReleaseMode, gin.TestMode)),
		validation.Field(&c.ReadTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.WriteTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.ShutdownTimeout, validation.Required, validation.Min(time.Millisecond)),
	)
}

// LoadServerConfig decodes the "server" key, applies defaults and validates
func LoadServerConfig(loader *config.Loader) (ServerConfig, error) {
	cfg := ServerConfig{ErrorLogging: httpx.DefaultErrorLoggingConfig()}
	if err := loader.Unmarshal("server", &cfg); err != nil {
		return ServerConfig{}, fmt.Errorf("decode server config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return ServerConfig{}, fmt.Errorf("invalid server config: %w", err)
	}
	return cfg, nil
}
