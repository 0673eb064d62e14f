package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/retailhub/hybridsync/pkg/config"
)

// ErrNotConfigured means no addresses were given; callers run without notifications.
var ErrNotConfigured = errors.New("redis addresses not configured")

// Client holds the connection used by the notification bus.
type Client struct {
	rdb redis.UniversalClient
}

func NewClient(ctx context.Context, cfg *config.RedisConfig) (*Client, error) {
	if len(cfg.Addresses) == 0 {
		return nil, ErrNotConfigured
	}

	opts := &redis.UniversalOptions{
		Addrs:       cfg.Addresses,
		Password:    cfg.Password,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout,
	}
	var rdb redis.UniversalClient
	if cfg.ClusterMode {
		rdb = redis.NewClusterClient(opts.Cluster())
	} else {
		// A single node only uses the first address.
		opts.Addrs = cfg.Addresses[:1]
		opts.DB = cfg.DB
		rdb = redis.NewClient(opts.Simple())
	}

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %v: %w", cfg.Addresses, err)
	}

	return &Client{rdb: rdb}, nil
}

func (c *Client) Client() redis.UniversalClient {
	return c.rdb
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
