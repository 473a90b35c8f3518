package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/KOMKZ/go-yogan-throttle/httpx"
	"github.com/KOMKZ/go-yogan-throttle/limiter"
	"github.com/gin-gonic/gin"
)

// IdentityHeaderDefault header carrying the caller identity
const IdentityHeaderDefault = "X-User-ID"

// Limiter the admission surface the middleware needs; *limiter.Limiter satisfies it
type Limiter interface {
	Allow(ctx context.Context, identity string) bool
	EffectiveLimit(ctx context.Context, identity string) int
	WindowRemaining(identity string) time.Duration
	Status(ctx context.Context, identity string) (*limiter.Status, error)
}

// RateLimiterConfig 限流中间件配置
type RateLimiterConfig struct {
	// KeyFunc 请求身份（默认 X-User-ID，缺失时使用客户端 IP）
	KeyFunc func(*gin.Context) string

	// RateLimitHandler 自定义 429 响应（默认 RejectRateLimited）
	RateLimitHandler func(c *gin.Context, limit int, retryAfter time.Duration)

	// SkipFunc 跳过限流的条件函数（可选）
	SkipFunc func(*gin.Context) bool

	// SkipPaths 跳过限流的路径列表（可选）
	SkipPaths []string
}

// DefaultRateLimiterConfig 默认限流配置
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		KeyFunc:          IdentityFromHeader(IdentityHeaderDefault),
		RateLimitHandler: RejectRateLimited,
	}
}

// RateLimiter admits each request against the identity's adaptive quota.
// The limiter fails open on its own, so there is no error path here.
//
//	cfg := middleware.DefaultRateLimiterConfig()
//	cfg.SkipPaths = []string{"/health"}
//	api.Use(middleware.RateLimiter(l, cfg))
func RateLimiter(l Limiter, cfg RateLimiterConfig) gin.HandlerFunc {
	if l == nil {
		panic("RateLimiter: limiter cannot be nil")
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = IdentityFromHeader(IdentityHeaderDefault)
	}
	if cfg.RateLimitHandler == nil {
		cfg.RateLimitHandler = RejectRateLimited
	}

	skipPathsMap := make(map[string]bool, len(cfg.SkipPaths))
	for _, path := range cfg.SkipPaths {
		skipPathsMap[path] = true
	}

	return func(c *gin.Context) {
		if skipPathsMap[c.Request.URL.Path] || (cfg.SkipFunc != nil && cfg.SkipFunc(c)) {
			c.Next()
			return
		}

		identity := cfg.KeyFunc(c)
		ctx := c.Request.Context()
		if l.Allow(ctx, identity) {
			c.Next()
			return
		}

		cfg.RateLimitHandler(c, l.EffectiveLimit(ctx, identity), l.WindowRemaining(identity))
	}
}

// RejectRateLimited writes 429 with the limiter error envelope and a Retry-After header:
// {"code":220001,"message":"Rate limit exceeded","data":{"retry_after":<sec>,"limit":<n>}}
func RejectRateLimited(c *gin.Context, limit int, retryAfter time.Duration) {
	seconds := retryAfterSeconds(retryAfter)
	c.Header("Retry-After", strconv.Itoa(seconds))
	httpx.AbortWithError(c, limiter.ErrRateLimited.
		WithData("retry_after", seconds).
		WithData("limit", limit))
}

// retryAfterSeconds rounds up to whole seconds
func retryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

// IdentityFromHeader reads the identity from header, falling back to the client IP
func IdentityFromHeader(header string) func(*gin.Context) string {
	return func(c *gin.Context) string {
		if id := c.GetHeader(header); id != "" {
			return id
		}
		return c.ClientIP()
	}
}

// RateLimitStatus body of the status endpoint; ResetTime is unix seconds
type RateLimitStatus struct {
	CurrentLimit      int   `json:"current_limit"`
	RequestsRemaining int   `json:"requests_remaining"`
	ResetTime         int64 `json:"reset_time"`
}

// RateLimitStatusHandler reports the caller's quota without consuming it
func RateLimitStatusHandler(l Limiter, keyFunc func(*gin.Context) string) gin.HandlerFunc {
	if keyFunc == nil {
		keyFunc = IdentityFromHeader(IdentityHeaderDefault)
	}
	return func(c *gin.Context) {
		status, err := l.Status(c.Request.Context(), keyFunc(c))
		if err != nil {
			httpx.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, RateLimitStatus{
			CurrentLimit:      status.Limit,
			RequestsRemaining: status.Remaining,
			ResetTime:         status.ResetAt.Unix(),
		})
	}
}
