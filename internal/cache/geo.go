package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// geoCachePrefix is the Redis key prefix for cached feature collections,
// keyed by a hash of the structured intent.
const geoCachePrefix = "geo:fc:"

// GetFeatureCollection retrieves a cached feature collection payload.
// Returns ErrCacheMiss if not cached.
func (c *Cache) GetFeatureCollection(ctx context.Context, intentKey string) ([]byte, error) {
	data, err := c.client.Get(ctx, geoCachePrefix+intentKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get cached feature collection: %w", err)
	}

	return data, nil
}

// SetFeatureCollection caches a feature collection payload.
func (c *Cache) SetFeatureCollection(ctx context.Context, intentKey string, data []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, geoCachePrefix+intentKey, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache feature collection: %w", err)
	}

	return nil
}

// ScanGeoCacheKeys returns all cached feature collection keys.
// Used by the periodic geo cache refresh job.
func (c *Cache) ScanGeoCacheKeys(ctx context.Context) ([]string, error) {
	var keys []string
	var cursor uint64

	for {
		var scanKeys []string
		var err error

		scanKeys, cursor, err = c.client.Scan(ctx, cursor, geoCachePrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan geo cache keys: %w", err)
		}

		keys = append(keys, scanKeys...)

		if cursor == 0 {
			break
		}
	}

	return keys, nil
}

// ExpireGeoCacheBelow drops cached feature collections whose remaining TTL is
// under the threshold, forcing a fresh provider fetch on next access. Returns
// the number of dropped entries.
func (c *Cache) ExpireGeoCacheBelow(ctx context.Context, threshold time.Duration) (int, error) {
	keys, err := c.ScanGeoCacheKeys(ctx)
	if err != nil {
		return 0, err
	}

	dropped := 0
	for _, key := range keys {
		ttl, err := c.client.TTL(ctx, key).Result()
		if err != nil {
			continue
		}
		if ttl >= 0 && ttl < threshold {
			if err := c.client.Del(ctx, key).Err(); err == nil {
				dropped++
			}
		}
	}

	return dropped, nil
}
