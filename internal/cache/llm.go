package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// llmCachePrefix is the Redis key prefix for cached language model responses,
// keyed by request fingerprint.
const llmCachePrefix = "llm:resp:"

// GetLLMResponse retrieves a cached raw model response by request fingerprint.
// Returns ErrCacheMiss if not cached.
func (c *Cache) GetLLMResponse(ctx context.Context, fingerprint string) ([]byte, error) {
	data, err := c.client.Get(ctx, llmCachePrefix+fingerprint).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get cached model response: %w", err)
	}

	return data, nil
}

// SetLLMResponse caches a raw model response under its request fingerprint.
func (c *Cache) SetLLMResponse(ctx context.Context, fingerprint string, data []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, llmCachePrefix+fingerprint, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache model response: %w", err)
	}

	return nil
}
