package health

import (
	"context"
	"sync"
	"time"
)

type registration struct {
	checker  Checker
	optional bool
}

// Aggregator runs every registered check concurrently under one timeout
type Aggregator struct {
	checks   []registration
	timeout  time.Duration
	mu       sync.RWMutex
	metadata map[string]interface{}
}

// NewAggregator creates a health check aggregator (timeout defaults to 5s)
func NewAggregator(timeout time.Duration) *Aggregator {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Aggregator{
		timeout:  timeout,
		metadata: make(map[string]interface{}),
	}
}

// Register adds a check whose failure makes the service unhealthy
func (a *Aggregator) Register(checker Checker) {
	a.register(checker, false)
}

// RegisterOptional adds a check whose failure only degrades the service,
// e.g. Redis behind a limiter that fails open
func (a *Aggregator) RegisterOptional(checker Checker) {
	a.register(checker, true)
}

func (a *Aggregator) register(checker Checker, optional bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.checks = append(a.checks, registration{checker: checker, optional: optional})
}

// SetMetadata Set metadata
func (a *Aggregator) SetMetadata(key string, value interface{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.metadata[key] = value
}

// Check runs all checks
func (a *Aggregator) Check(ctx context.Context) *Response {
	start := time.Now()

	checkCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	a.mu.RLock()
	checks := make([]registration, len(a.checks))
	copy(checks, a.checks)
	metadata := make(map[string]interface{}, len(a.metadata))
	for k, v := range a.metadata {
		metadata[k] = v
	}
	a.mu.RUnlock()

	results := make(chan CheckResult, len(checks))
	for _, reg := range checks {
		go func() {
			results <- checkOne(checkCtx, reg)
		}()
	}

	out := make(map[string]CheckResult, len(checks))
	for range checks {
		result := <-results
		out[result.Name] = result
	}

	return &Response{
		Status:    overallStatus(out),
		Timestamp: time.Now(),
		Duration:  time.Since(start),
		Checks:    out,
		Metadata:  metadata,
	}
}

func checkOne(ctx context.Context, reg registration) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:      reg.checker.Name(),
		Timestamp: start,
	}

	err := reg.checker.Check(ctx)
	result.Duration = time.Since(start)

	switch {
	case err == nil:
		result.Status = StatusHealthy
		result.Message = "OK"
	case reg.optional:
		result.Status = StatusDegraded
		result.Error = err.Error()
		result.Message = "Optional dependency unavailable"
	default:
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		result.Message = "Health check failed"
	}
	return result
}

// overallStatus worst status wins; no checks means healthy
func overallStatus(checks map[string]CheckResult) Status {
	status := StatusHealthy
	for _, result := range checks {
		switch result.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}
