// Package redis connects the server to the Redis instance backing the
// session store. Redis is optional; without it sessions live in process
// memory and do not survive a restart.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"medguard/internal/platform/config"
)

// Client wraps the go-redis client so callers can health-check the
// connection alongside the other platform dependencies.
type Client struct {
	*redis.Client
}

// New dials Redis using the configured URL and verifies the connection
// with a ping before handing it out. A nil client with a nil error means
// Redis is not configured and the caller should fall back to in-memory
// sessions.
func New(cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	applyPoolSettings(opts, cfg)

	client := redis.NewClient(opts)

	// Fail at startup rather than on the first login. Session writes are
	// on the authentication path and a dead Redis would surface there as
	// confusing auth failures.
	ctx, cancel := context.WithTimeout(context.Background(), opts.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return &Client{Client: client}, nil
}

// applyPoolSettings overrides go-redis defaults with configured values,
// leaving zero-valued settings to the library.
func applyPoolSettings(opts *redis.Options, cfg config.RedisConfig) {
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
}

// Health reports whether the connection still answers a ping.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.Client.Close()
}
