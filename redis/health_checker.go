package redis

import (
	"context"
	"fmt"
)

// HealthChecker for the adaptive pool
type HealthChecker struct {
	pool *Pool
}

// NewHealthChecker creates a pool health checker
func NewHealthChecker(pool *Pool) *HealthChecker {
	return &HealthChecker{
		pool: pool,
	}
}

// Name check item name
func (h *HealthChecker) Name() string {
	return "redis_pool"
}

// Check acquires a handle, which already includes a liveness probe
func (h *HealthChecker) Check(ctx context.Context) error {
	if h.pool == nil {
		return fmt.Errorf("redis pool not initialized")
	}
	if _, err := h.pool.Acquire(ctx); err != nil {
		return fmt.Errorf("redis pool: %w", err)
	}
	return nil
}
