package redis

import (
	"net/http"

	"github.com/KOMKZ/go-yogan-throttle/errcode"
)

var (
	// ErrAcquireFailed no live handle could be created or probed
	ErrAcquireFailed = errcode.Register(errcode.New(errcode.ModuleRedis, 1, "redis",
		"error.redis.acquire_failed", "redis unavailable", http.StatusServiceUnavailable))

	// ErrPoolClosed Acquire after Shutdown
	ErrPoolClosed = errcode.Register(errcode.New(errcode.ModuleRedis, 2, "redis",
		"error.redis.pool_closed", "redis pool closed", http.StatusServiceUnavailable))

	// ErrInvalidConfig pool configuration rejected
	ErrInvalidConfig = errcode.Register(errcode.New(errcode.ModuleRedis, 3, "redis",
		"error.redis.invalid_config", "invalid redis pool config", http.StatusInternalServerError))
)
