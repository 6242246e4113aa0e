package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheVersionKey = "pricing:version"

// Cache keeps whole lineages in Redis under a global version that is bumped
// whenever any record is inserted or deleted.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if !c.enabled() {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, cacheVersionKey).Int64()
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// Lineage loads the records of key from cache or through loader.
func (c *Cache) Lineage(ctx context.Context, key DimensionKey, loader func(context.Context) ([]Record, error)) ([]Record, error) {
	if !c.enabled() {
		return loader(ctx)
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return nil, err
	}
	cacheKey := fmt.Sprintf("pricing:lineage:%s:%d", key, ver)
	payload, err := c.client.Get(ctx, cacheKey).Bytes()
	if err == nil {
		var records []Record
		if err := json.Unmarshal(payload, &records); err == nil {
			return records, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return nil, err
	}
	records, err := loader(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return nil, err
	}
	if err := c.client.Set(ctx, cacheKey, raw, c.ttl).Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// Bump invalidates every cached lineage.
func (c *Cache) Bump(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	return c.client.Incr(ctx, cacheVersionKey).Err()
}
