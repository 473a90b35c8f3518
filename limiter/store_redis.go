package limiter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ClientSource hands out a live Redis handle; satisfied by *redis.Pool of this module
type ClientSource interface {
	Acquire(ctx context.Context) (*redis.Client, error)
}

// RedisStore Redis storage implementation.
// Every call acquires the handle again so capacity changes of the pool take effect immediately.
type RedisStore struct {
	clients   ClientSource
	keyPrefix string
}

// NewRedisStore creates Redis storage
func NewRedisStore(clients ClientSource, keyPrefix string) *RedisStore {
	return &RedisStore{
		clients:   clients,
		keyPrefix: keyPrefix,
	}
}

// buildKey Construct the complete key
func (s *RedisStore) buildKey(key string) string {
	return s.keyPrefix + key
}

func (s *RedisStore) get(ctx context.Context, key string) (string, bool, error) {
	client, err := s.clients.Acquire(ctx)
	if err != nil {
		return "", false, err
	}

	val, err := client.Get(ctx, s.buildKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get failed: %w", err)
	}
	return val, true, nil
}

// GetInt64 get integer value
func (s *RedisStore) GetInt64(ctx context.Context, key string) (int64, error) {
	val, ok, err := s.get(ctx, key)
	if err != nil || !ok {
		return 0, err
	}

	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrMalformedValue, key, val)
	}
	return count, nil
}

// GetFloat get float value
func (s *RedisStore) GetFloat(ctx context.Context, key string) (float64, error) {
	val, ok, err := s.get(ctx, key)
	if err != nil || !ok {
		return 0, err
	}

	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrMalformedValue, key, val)
	}
	return f, nil
}

// SetFloat set float value with expiration
func (s *RedisStore) SetFloat(ctx context.Context, key string, value float64, ttl time.Duration) error {
	client, err := s.clients.Acquire(ctx)
	if err != nil {
		return err
	}
	return client.Set(ctx, s.buildKey(key), strconv.FormatFloat(value, 'f', -1, 64), ttl).Err()
}

// IncrExpire INCR + EXPIRE in one MULTI/EXEC pipeline
func (s *RedisStore) IncrExpire(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	client, err := s.clients.Acquire(ctx)
	if err != nil {
		return 0, err
	}

	fullKey := s.buildKey(key)
	var incr *redis.IntCmd
	_, err = client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, fullKey)
		pipe.Expire(ctx, fullKey, ttl)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis incr failed: %w", err)
	}
	return incr.Val(), nil
}
