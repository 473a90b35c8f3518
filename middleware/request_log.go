package middleware

import (
	"time"

	"github.com/KOMKZ/go-yogan-throttle/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLogConfig HTTP request log configuration
type RequestLogConfig struct {
	// SkipPaths paths that are never logged (probes)
	SkipPaths []string

	// IdentityFunc adds an "identity" field when set
	IdentityFunc func(*gin.Context) string
}

// DefaultRequestLogConfig default request log configuration
func DefaultRequestLogConfig() RequestLogConfig {
	return RequestLogConfig{
		SkipPaths:    []string{"/health/liveness"},
		IdentityFunc: IdentityFromHeader(IdentityHeaderDefault),
	}
}

// RequestLog structured access log. 5xx logs at error, 4xx at warn (429 included),
// the rest at info. Install after TraceID so lines carry the trace id.
func RequestLog(log *logger.CtxZapLogger, cfg RequestLogConfig) gin.HandlerFunc {
	skipPathsMap := make(map[string]bool, len(cfg.SkipPaths))
	for _, path := range cfg.SkipPaths {
		skipPathsMap[path] = true
	}

	return func(c *gin.Context) {
		if skipPathsMap[c.Request.URL.Path] {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		statusCode := c.Writer.Status()
		fields := []zap.Field{
			zap.Int("status", statusCode),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("body_size", c.Writer.Size()),
		}
		if cfg.IdentityFunc != nil {
			fields = append(fields, zap.String("identity", cfg.IdentityFunc(c)))
		}
		if errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String(); errorMessage != "" {
			fields = append(fields, zap.String("error", errorMessage))
		}

		ctx := c.Request.Context()
		switch {
		case statusCode >= 500:
			log.ErrorCtx(ctx, "http request", fields...)
		case statusCode >= 400:
			log.WarnCtx(ctx, "http request", fields...)
		default:
			log.InfoCtx(ctx, "http request", fields...)
		}
	}
}
