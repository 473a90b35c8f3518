package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/KOMKZ/go-yogan-throttle/errcode"
	"github.com/KOMKZ/go-yogan-throttle/httpx"
	"github.com/KOMKZ/go-yogan-throttle/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Recovery turns a handler panic into a 500 envelope and logs the stack.
// The panic value is never sent to the client.
func Recovery(log *logger.CtxZapLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.ErrorCtx(c.Request.Context(), "panic recovered",
					zap.Any("error", r),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.String("client_ip", c.ClientIP()),
					zap.String("stack", string(debug.Stack())),
				)
				httpx.AbortWithError(c, errcode.ErrInternal.Wrap(fmt.Errorf("panic: %v", r)))
			}
		}()

		c.Next()
	}
}
