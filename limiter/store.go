package limiter

import (
	"context"
	"time"
)

// Store counter and usage-pattern storage used by the limiter.
// Missing keys read as zero.
type Store interface {
	// GetInt64 get integer value
	GetInt64(ctx context.Context, key string) (int64, error)

	// GetFloat get float value; unparsable content returns ErrMalformedValue
	GetFloat(ctx context.Context, key string) (float64, error)

	// SetFloat set float value with expiration
	SetFloat(ctx context.Context, key string, value float64, ttl time.Duration) error

	// IncrExpire atomically increments key and (re)sets its expiration, returning the new value
	IncrExpire(ctx context.Context, key string, ttl time.Duration) (int64, error)
}
