package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Cache is a JSON read-through cache. A nil client disables Redis and every
// read goes to the loader, still collapsed by singleflight.
type Cache struct {
	rdb *redis.Client
	sf  singleflight.Group
}

func New(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

// Connect parses a redis:// URL and pings the server. An empty URL returns a
// nil client.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

func (c *Cache) Enabled() bool {
	return c != nil && c.rdb != nil
}

// GetOrLoad returns the cached value under key, or calls load, stores the
// result for ttl and returns it. Redis failures fall back to load.
func GetOrLoad[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	if c.Enabled() {
		raw, err := c.rdb.Get(ctx, key).Result()
		switch {
		case err == nil:
			var cached T
			if jsonErr := json.Unmarshal([]byte(raw), &cached); jsonErr == nil {
				return cached, nil
			}
			slog.Warn("cache entry is not valid json", "key", key)
		case !errors.Is(err, redis.Nil):
			slog.Warn("cache read failed", "key", key, "error", err)
		}
	}

	v, err, _ := c.sf.Do(key, func() (any, error) {
		value, err := load(ctx)
		if err != nil {
			return value, err
		}
		if c.Enabled() {
			data, err := json.Marshal(value)
			if err == nil {
				err = c.rdb.Set(ctx, key, string(data), ttl).Err()
			}
			if err != nil {
				slog.Warn("cache write failed", "key", key, "error", err)
			}
		}
		return value, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Invalidate drops keys. Errors are logged and swallowed; a stale entry
// expires with its TTL.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) {
	if !c.Enabled() || len(keys) == 0 {
		return
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		slog.Warn("cache invalidation failed", "keys", keys, "error", err)
	}
}
