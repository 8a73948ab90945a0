package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"faceledger/internal/platform/config"
)

// Client wraps go-redis with the health probe the readiness endpoint uses.
type Client struct {
	*redis.Client
}

// New dials Redis for the camera lease store. A missing URL is not an
// error: the engine falls back to in-process leases, so both the client
// and the error come back nil and the caller checks for the nil client.
func New(cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opts)

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{Client: client}, nil
}

// Health pings the server. A failing lease backend degrades camera
// exclusivity across instances, so /healthz surfaces it.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

// Close closes the underlying connection pool.
func (c *Client) Close() error {
	return c.Client.Close()
}
