// Package httpx provides the unified JSON envelope of the throttle HTTP API
package httpx

import (
	"errors"
	"net/http"

	"github.com/KOMKZ/go-yogan-throttle/errcode"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response unified response format
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// OkJson successful response
func OkJson(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// NoRouteHandler 404 for engine.NoRoute()
func NoRouteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusNotFound, Response{
			Code:    http.StatusNotFound,
			Message: "route not found: " + c.Request.Method + " " + c.Request.URL.Path,
		})
	}
}

// NoMethodHandler 405 for engine.NoMethod()
func NoMethodHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, Response{
			Code:    http.StatusMethodNotAllowed,
			Message: "method not allowed: " + c.Request.Method + " " + c.Request.URL.Path,
		})
	}
}

// HandleError writes err as JSON. A LayeredError keeps its HTTP status, code,
// message and data; anything else becomes errcode.ErrInternal without leaking
// the cause. Logging follows ErrorLoggingMiddleware.
func HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	var layeredErr *errcode.LayeredError
	if !errors.As(err, &layeredErr) {
		layeredErr = errcode.ErrInternal.Wrap(err)
	}

	if policy := errorLoggingFrom(c); policy.shouldLog(layeredErr.HTTPStatus()) {
		logError(c, policy, layeredErr, err)
	}

	c.JSON(layeredErr.HTTPStatus(), Response{
		Code:    layeredErr.Code(),
		Message: layeredErr.Message(),
		Data:    layeredErr.Data(),
	})
}

// AbortWithError HandleError followed by c.Abort()
func AbortWithError(c *gin.Context, err error) {
	HandleError(c, err)
	c.Abort()
}

func logError(c *gin.Context, policy errorLogging, layeredErr *errcode.LayeredError, err error) {
	fields := []zap.Field{
		zap.Int("error_code", layeredErr.Code()),
		zap.String("error_msg", layeredErr.Message()),
		zap.String("path", c.Request.URL.Path),
	}
	if policy.fullChain {
		fields = append(fields,
			zap.String("error_chain", layeredErr.String()),
			zap.Error(err),
		)
	}

	log := policy.log
	ctx := c.Request.Context()
	switch policy.level {
	case "warn":
		log.WarnCtx(ctx, "request failed", fields...)
	case "info":
		log.InfoCtx(ctx, "request failed", fields...)
	default:
		log.ErrorCtx(ctx, "request failed", fields...)
	}
}
