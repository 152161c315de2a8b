package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"cleanplate/internal/establishment/models"
	"cleanplate/internal/platform/metrics"
)

const establishmentKeyPrefix = "cleanplate:establishment:"

// RedisCache stores establishment snapshots as JSON with a Redis TTL, so
// several CLI processes or watchers can share one cache.
type RedisCache struct {
	client   *redis.Client
	cacheTTL time.Duration
	metrics  *metrics.Metrics
}

// NewRedisCache constructs a Redis-backed establishment cache.
func NewRedisCache(client *redis.Client, cacheTTL time.Duration, m *metrics.Metrics) *RedisCache {
	return &RedisCache{client: client, cacheTTL: cacheTTL, metrics: m}
}

// Save writes e with SET EX. Records without an identifier are ignored.
func (c *RedisCache) Save(ctx context.Context, e models.Establishment) error {
	if e.CAMIS == "" {
		return nil
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode establishment: %w", err)
	}
	if err := c.client.Set(ctx, establishmentKeyPrefix+e.CAMIS, payload, c.cacheTTL).Err(); err != nil {
		return fmt.Errorf("save establishment cache: %w", err)
	}
	return nil
}

// Find returns the cached record or ErrNotFound once Redis expired it.
func (c *RedisCache) Find(ctx context.Context, camis string) (*models.Establishment, error) {
	raw, err := c.client.Get(ctx, establishmentKeyPrefix+camis).Bytes()
	if errors.Is(err, redis.Nil) {
		c.metrics.RecordCacheMiss("redis")
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find establishment cache: %w", err)
	}
	var e models.Establishment
	if err := json.Unmarshal(raw, &e); err != nil {
		// A snapshot written by an incompatible version is treated as a miss.
		c.metrics.RecordCacheMiss("redis")
		return nil, ErrNotFound
	}
	c.metrics.RecordCacheHit("redis")
	return &e, nil
}

// Delete drops the record for camis.
func (c *RedisCache) Delete(ctx context.Context, camis string) error {
	return c.client.Del(ctx, establishmentKeyPrefix+camis).Err()
}
