package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const memoryCacheCleanupInterval = time.Minute

// MemoryCache adapts an expiring in-process cache to the KeyValueCache
// contract. Values are copied both ways so callers never share a backing
// array with the cache.
type MemoryCache struct {
	entries *gocache.Cache
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: gocache.New(gocache.NoExpiration, memoryCacheCleanupInterval),
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	if c == nil || c.entries == nil {
		return nil, false, fmt.Errorf("core: cache is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, false, fmt.Errorf("core: cache key is required")
	}
	value, found := c.entries.Get(key)
	if !found {
		return nil, false, nil
	}
	payload, ok := value.([]byte)
	if !ok {
		return nil, false, fmt.Errorf("core: cache entry %q holds unexpected type %T", key, value)
	}
	return append([]byte(nil), payload...), true, nil
}

func (c *MemoryCache) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if c == nil || c.entries == nil {
		return fmt.Errorf("core: cache is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("core: cache key is required")
	}
	expiration := ttl
	if expiration <= 0 {
		expiration = gocache.NoExpiration
	}
	c.entries.Set(key, append([]byte(nil), value...), expiration)
	return nil
}

func (c *MemoryCache) Forget(_ context.Context, key string) (bool, error) {
	if c == nil || c.entries == nil {
		return false, fmt.Errorf("core: cache is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return false, fmt.Errorf("core: cache key is required")
	}
	_, found := c.entries.Get(key)
	c.entries.Delete(key)
	return found, nil
}

var _ KeyValueCache = (*MemoryCache)(nil)
