// Package redis connects the shared rate-limit and refresh-token stores.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"onboarding/internal/platform/config"
)

// Client is a connected go-redis client. It satisfies goredis.UniversalClient
// so stores accept it directly.
type Client struct {
	*goredis.Client
}

// New connects to cfg.URL and verifies the server answers. Without a URL it
// returns a nil client and the caller falls back to in-memory stores.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	opts, err := options(cfg)
	if err != nil {
		return nil, err
	}
	c := &Client{Client: goredis.NewClient(opts)}
	if err := c.Health(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return c, nil
}

// options overlays the pool and timeout settings on the URL. A zero pool size
// or timeout keeps the go-redis default.
func options(cfg config.RedisConfig) (*goredis.Options, error) {
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.MinIdleConns = cfg.MinIdleConns
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	for _, d := range []struct {
		dst *time.Duration
		v   time.Duration
	}{
		{&opts.DialTimeout, cfg.DialTimeout},
		{&opts.ReadTimeout, cfg.ReadTimeout},
		{&opts.WriteTimeout, cfg.WriteTimeout},
	} {
		if d.v > 0 {
			*d.dst = d.v
		}
	}
	return opts, nil
}

// Health pings the server. /readyz reports it as the "redis" backend.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}
