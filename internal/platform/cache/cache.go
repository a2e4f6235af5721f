// Package cache opens the Dragonfly/Redis client used by the redis progress
// medium.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Vladislav15-maker/English-family-app-sub000/internal/platform/config"
)

// Cache wraps a Redis/Dragonfly client and the key namespace this service
// writes under.
type Cache struct {
	Client *redis.Client
	prefix string
}

// ParseURL validates a Redis connection URL.
func ParseURL(url string) (*redis.Options, error) {
	if url == "" {
		return nil, fmt.Errorf("cache URL is empty")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid cache URL: %w", err)
	}
	return opts, nil
}

// Open connects using cfg and pings the server once. A server that keeps
// nothing on disk is logged as a warning, since the progress blob would be
// its only copy.
func Open(ctx context.Context, cfg config.CacheConfig) (*Cache, error) {
	opts, err := ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	c := &Cache{Client: redis.NewClient(opts), prefix: cfg.Prefix}

	if err := c.Client.Ping(ctx).Err(); err != nil {
		c.Client.Close()
		return nil, fmt.Errorf("pinging cache: %w", err)
	}

	durable, err := c.Persistent(ctx)
	switch {
	case err != nil:
		slog.Debug("cache persistence unknown", "error", err)
	case !durable:
		slog.Warn("cache server has no RDB or AOF persistence, progress is lost on its restart", "addr", opts.Addr)
	}

	slog.Info("cache connected", "addr", opts.Addr, "db", opts.DB, "prefix", cfg.Prefix)
	return c, nil
}

// Key returns name inside this service's namespace.
func (c *Cache) Key(name string) string {
	return c.prefix + name
}

// Persistent reports whether the server snapshots or appends to disk.
// Managed servers often disable CONFIG; the error is returned as is.
func (c *Cache) Persistent(ctx context.Context) (bool, error) {
	aof, err := c.Client.ConfigGet(ctx, "appendonly").Result()
	if err != nil {
		return false, fmt.Errorf("reading appendonly: %w", err)
	}
	if strings.EqualFold(aof["appendonly"], "yes") {
		return true, nil
	}

	save, err := c.Client.ConfigGet(ctx, "save").Result()
	if err != nil {
		return false, fmt.Errorf("reading save: %w", err)
	}
	return strings.TrimSpace(save["save"]) != "", nil
}

// Close shuts down the cache client.
func (c *Cache) Close() error {
	return c.Client.Close()
}

// HealthCheck verifies the cache connection is alive.
func (c *Cache) HealthCheck(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}
