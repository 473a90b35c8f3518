package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// ClientFactory builds a handle whose connection pool is sized to capacity
type ClientFactory func(cfg Config, capacity int) *redis.Client

// ClientCounter reports how many clients the server currently sees
type ClientCounter func(ctx context.Context, client *redis.Client) (int, error)

// NewClient default ClientFactory
func NewClient(cfg Config, capacity int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     capacity,
		MinIdleConns: min(cfg.MinIdleConns, capacity),
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
}

// ConnectedClients default ClientCounter, reads connected_clients from INFO clients
func ConnectedClients(ctx context.Context, client *redis.Client) (int, error) {
	info := client.InfoMap(ctx, "clients")
	if err := info.Err(); err != nil {
		return 0, fmt.Errorf("info clients: %w", err)
	}
	return parseConnectedClients(info.Item("Clients", "connected_clients"))
}

func parseConnectedClients(value string) (int, error) {
	if value == "" {
		return 0, fmt.Errorf("connected_clients not reported")
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("parse connected_clients %q: %w", value, err)
	}
	return n, nil
}
