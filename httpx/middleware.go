package httpx

import (
	"github.com/KOMKZ/go-yogan-throttle/logger"
	"github.com/gin-gonic/gin"
)

const errorLoggingKey = "httpx:error_logging"

// errorLogging is the per-engine logging policy HandleError reads from the gin context
type errorLogging struct {
	enabled   bool
	ignore    map[int]bool
	fullChain bool
	level     string
	log       *logger.CtxZapLogger
}

func (e errorLogging) shouldLog(status int) bool {
	return e.enabled && !e.ignore[status]
}

// ErrorLoggingMiddleware makes HandleError log failures through log according to cfg.
// A nil log falls back to the "httpx" module logger.
func ErrorLoggingMiddleware(cfg ErrorLoggingConfig, log *logger.CtxZapLogger) gin.HandlerFunc {
	if log == nil {
		log = logger.GetLogger("httpx")
	}
	policy := errorLogging{
		enabled:   cfg.Enable,
		ignore:    make(map[int]bool, len(cfg.IgnoreHTTPStatus)),
		fullChain: cfg.FullErrorChain,
		level:     cfg.LogLevel,
		log:       log,
	}
	for _, status := range cfg.IgnoreHTTPStatus {
		policy.ignore[status] = true
	}

	return func(c *gin.Context) {
		c.Set(errorLoggingKey, policy)
		c.Next()
	}
}

// errorLoggingFrom without the middleware nothing is logged
func errorLoggingFrom(c *gin.Context) errorLogging {
	if val, ok := c.Get(errorLoggingKey); ok {
		if policy, ok := val.(errorLogging); ok {
			return policy
		}
	}
	return errorLogging{}
}
