package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-lifecycle/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const operationCacheKeyPrefix = "go-lifecycle::operation::v1"

// CachedOperationStore decorates an OperationStore with read-through
// caching on Find. Every write path deletes the cached entry, so readers
// fall back to the base store after a mutation.
type CachedOperationStore struct {
	base  core.OperationStore
	cache repositorycache.CacheService
}

func NewCachedOperationStore(
	base core.OperationStore,
	cacheService repositorycache.CacheService,
) (*CachedOperationStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base operation store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: operation cache service is required")
	}
	return &CachedOperationStore{base: base, cache: cacheService}, nil
}

// OperationCacheKey returns the deterministic cache key contract for
// operation reads: go-lifecycle::operation::v1::<id> with the id
// URL-path escaped.
func OperationCacheKey(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("sqlstore: operation id is required")
	}
	return operationCacheKeyPrefix + "::" + url.PathEscape(id), nil
}

func (s *CachedOperationStore) Find(ctx context.Context, id string) (core.Operation, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Operation{}, fmt.Errorf("sqlstore: cached operation store is not configured")
	}
	cacheKey, err := OperationCacheKey(id)
	if err != nil {
		return core.Operation{}, err
	}

	operation, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.Operation, error) {
		fetched, fetchErr := s.base.Find(ctx, id)
		if fetchErr != nil {
			return core.Operation{}, fetchErr
		}
		return core.CloneOperation(fetched), nil
	})
	if err != nil {
		return core.Operation{}, err
	}
	return core.CloneOperation(operation), nil
}

func (s *CachedOperationStore) Save(ctx context.Context, op core.Operation, expectedVersion int64) (core.Operation, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Operation{}, fmt.Errorf("sqlstore: cached operation store is not configured")
	}
	saved, err := s.base.Save(ctx, op, expectedVersion)
	if err != nil {
		return core.Operation{}, err
	}
	if err := s.invalidate(ctx, saved.ID); err != nil {
		return core.Operation{}, err
	}
	return saved, nil
}

func (s *CachedOperationStore) Delete(ctx context.Context, id string) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached operation store is not configured")
	}
	if err := s.base.Delete(ctx, id); err != nil {
		return err
	}
	return s.invalidate(ctx, id)
}

func (s *CachedOperationStore) List(ctx context.Context, filter core.OperationListFilter) (core.OperationPage, error) {
	if s == nil || s.base == nil {
		return core.OperationPage{}, fmt.Errorf("sqlstore: cached operation store is not configured")
	}
	return s.base.List(ctx, filter)
}

func (s *CachedOperationStore) CountActiveByOwner(ctx context.Context, ownerID string) (int, error) {
	if s == nil || s.base == nil {
		return 0, fmt.Errorf("sqlstore: cached operation store is not configured")
	}
	return s.base.CountActiveByOwner(ctx, ownerID)
}

// DeleteExpired passes through without invalidation; the ids dropped by
// the base store are unknown here, so stale reads age out with the cache
// service TTL instead.
func (s *CachedOperationStore) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	if s == nil || s.base == nil {
		return 0, fmt.Errorf("sqlstore: cached operation store is not configured")
	}
	return s.base.DeleteExpired(ctx, before, limit)
}

func (s *CachedOperationStore) invalidate(ctx context.Context, id string) error {
	cacheKey, err := OperationCacheKey(id)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

var _ core.OperationStore = (*CachedOperationStore)(nil)
