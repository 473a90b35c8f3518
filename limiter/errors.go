package limiter

import (
	"errors"
	"net/http"

	"github.com/KOMKZ/go-yogan-throttle/errcode"
)

var (
	// ErrRateLimited identity used up its quota for the current window
	ErrRateLimited = errcode.Register(errcode.New(errcode.ModuleLimiter, 1, "limiter",
		"error.limiter.rate_limited", "Rate limit exceeded", http.StatusTooManyRequests))

	// ErrInvalidConfig limiter configuration rejected
	ErrInvalidConfig = errcode.Register(errcode.New(errcode.ModuleLimiter, 2, "limiter",
		"error.limiter.invalid_config", "invalid limiter config", http.StatusInternalServerError))

	// ErrLimiterClosed limiter already released its workers
	ErrLimiterClosed = errcode.Register(errcode.New(errcode.ModuleLimiter, 3, "limiter",
		"error.limiter.closed", "rate limiter closed", http.StatusServiceUnavailable))

	// ErrMalformedValue stored value cannot be parsed
	ErrMalformedValue = errors.New("malformed stored value")
)
