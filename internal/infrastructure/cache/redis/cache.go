// Package redis provides a stage cache shared between API replicas.
package redis

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kirillkom/floraqa/internal/core/domain"
)

const defaultTTL = 30 * time.Minute

// Cache stores stage results as JSON under prefix. A capacity counter key
// caps the number of inserts until the next Clear. Redis errors degrade to
// cache misses.
type Cache struct {
	client   *goredis.Client
	prefix   string
	capacity int64
	ttl      time.Duration
}

func New(client *goredis.Client, prefix string, capacity int, ttl time.Duration) *Cache {
	if prefix == "" {
		prefix = "floraqa:stage:"
	}
	if capacity <= 0 {
		capacity = 1000
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Cache{client: client, prefix: prefix, capacity: int64(capacity), ttl: ttl}
}

func (c *Cache) countKey() string { return c.prefix + "count" }

func (c *Cache) Get(ctx context.Context, key string) ([]domain.SearchHit, bool) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if err != goredis.Nil {
			slog.Warn("stage_cache_get_failed", "key", key, "error", err)
		}
		return nil, false
	}
	var hits []domain.SearchHit
	if err := json.Unmarshal(data, &hits); err != nil {
		slog.Warn("stage_cache_decode_failed", "key", key, "error", err)
		return nil, false
	}
	return hits, true
}

func (c *Cache) Set(ctx context.Context, key string, hits []domain.SearchHit) {
	n, err := c.client.Incr(ctx, c.countKey()).Result()
	if err != nil {
		slog.Warn("stage_cache_count_failed", "error", err)
		return
	}
	if n > c.capacity {
		return
	}
	data, err := json.Marshal(hits)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		slog.Warn("stage_cache_set_failed", "key", key, "error", err)
	}
}

// Clear deletes every key under the prefix, including the capacity counter.
func (c *Cache) Clear(ctx context.Context) {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 500).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		slog.Warn("stage_cache_scan_failed", "error", err)
	}
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		slog.Warn("stage_cache_clear_failed", "error", err)
		return
	}
	slog.Info("stage_cache_cleared", "keys_deleted", len(keys))
}
