package sqlstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-lifecycle/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

type stubOperationStore struct {
	mu          sync.Mutex
	operation   core.Operation
	findCalls   int
	saveCalls   int
	deleteCalls int
	findErr     error
	saveErr     error
}

func (s *stubOperationStore) Find(_ context.Context, _ string) (core.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findCalls++
	if s.findErr != nil {
		return core.Operation{}, s.findErr
	}
	return core.CloneOperation(s.operation), nil
}

func (s *stubOperationStore) Save(_ context.Context, op core.Operation, expectedVersion int64) (core.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveCalls++
	if s.saveErr != nil {
		return core.Operation{}, s.saveErr
	}
	op.Version = expectedVersion + 1
	s.operation = core.CloneOperation(op)
	return core.CloneOperation(op), nil
}

func (s *stubOperationStore) Delete(_ context.Context, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteCalls++
	s.operation = core.Operation{}
	return nil
}

func (s *stubOperationStore) List(_ context.Context, _ core.OperationListFilter) (core.OperationPage, error) {
	return core.OperationPage{}, nil
}

func (s *stubOperationStore) CountActiveByOwner(_ context.Context, _ string) (int, error) {
	return 0, nil
}

func (s *stubOperationStore) DeleteExpired(_ context.Context, _ time.Time, _ int) (int, error) {
	return 0, nil
}

func TestCachedOperationStore_Find_MissFetchThenHit(t *testing.T) {
	cacheService := newTestOperationCacheService(t)
	base := &stubOperationStore{
		operation: core.Operation{
			ID:       "op_00000000000000000000c001",
			Function: "export",
			Status:   core.OperationStatusPending,
			Metadata: map[string]any{"source": "base"},
			Version:  1,
		},
	}

	store, err := NewCachedOperationStore(base, cacheService)
	if err != nil {
		t.Fatalf("new cached operation store: %v", err)
	}

	if _, err := store.Find(context.Background(), "op_00000000000000000000c001"); err != nil {
		t.Fatalf("first find: %v", err)
	}
	if base.findCalls != 1 {
		t.Fatalf("expected first find to fetch base store once, got %d", base.findCalls)
	}

	operation, err := store.Find(context.Background(), "op_00000000000000000000c001")
	if err != nil {
		t.Fatalf("second find: %v", err)
	}
	if base.findCalls != 1 {
		t.Fatalf("expected second find to be cache hit, base find calls=%d", base.findCalls)
	}

	operation.Metadata["source"] = "mutated"
	refetched, err := store.Find(context.Background(), "op_00000000000000000000c001")
	if err != nil {
		t.Fatalf("find after caller mutation: %v", err)
	}
	if refetched.Metadata["source"] != "base" {
		t.Fatalf("expected cached operation isolated from caller mutation, got %v", refetched.Metadata)
	}
}

func TestCachedOperationStore_Save_InvalidatesCachedID(t *testing.T) {
	cacheService := newTestOperationCacheService(t)
	base := &stubOperationStore{
		operation: core.Operation{
			ID:       "op_00000000000000000000c002",
			Function: "export",
			Status:   core.OperationStatusPending,
			Version:  1,
		},
	}

	store, err := NewCachedOperationStore(base, cacheService)
	if err != nil {
		t.Fatalf("new cached operation store: %v", err)
	}

	if _, err := store.Find(context.Background(), "op_00000000000000000000c002"); err != nil {
		t.Fatalf("prime cache with find: %v", err)
	}
	if base.findCalls != 1 {
		t.Fatalf("expected one base read after cache prime, got %d", base.findCalls)
	}

	saved, err := store.Save(context.Background(), core.Operation{
		ID:       "op_00000000000000000000c002",
		Function: "export",
		Status:   core.OperationStatusProcessing,
	}, 1)
	if err != nil {
		t.Fatalf("save through cached store: %v", err)
	}
	if base.saveCalls != 1 {
		t.Fatalf("expected base save call count=1, got %d", base.saveCalls)
	}
	if saved.Version != 2 {
		t.Fatalf("expected save to return refreshed version, got %d", saved.Version)
	}

	operation, err := store.Find(context.Background(), "op_00000000000000000000c002")
	if err != nil {
		t.Fatalf("find after save invalidation: %v", err)
	}
	if base.findCalls != 2 {
		t.Fatalf("expected invalidated id to force second base read, got %d", base.findCalls)
	}
	if operation.Status != core.OperationStatusProcessing {
		t.Fatalf("expected refreshed status processing, got %s", operation.Status)
	}
}

func TestCachedOperationStore_Delete_InvalidatesCachedID(t *testing.T) {
	cacheService := newTestOperationCacheService(t)
	base := &stubOperationStore{
		operation: core.Operation{
			ID:       "op_00000000000000000000c003",
			Function: "export",
			Status:   core.OperationStatusCompleted,
			Version:  3,
		},
	}

	store, err := NewCachedOperationStore(base, cacheService)
	if err != nil {
		t.Fatalf("new cached operation store: %v", err)
	}

	if _, err := store.Find(context.Background(), "op_00000000000000000000c003"); err != nil {
		t.Fatalf("prime cache with find: %v", err)
	}
	if err := store.Delete(context.Background(), "op_00000000000000000000c003"); err != nil {
		t.Fatalf("delete through cached store: %v", err)
	}
	if base.deleteCalls != 1 {
		t.Fatalf("expected base delete call count=1, got %d", base.deleteCalls)
	}

	if _, err := store.Find(context.Background(), "op_00000000000000000000c003"); err != nil {
		t.Fatalf("find after delete invalidation: %v", err)
	}
	if base.findCalls != 2 {
		t.Fatalf("expected deleted id to force second base read, got %d", base.findCalls)
	}
}

func TestOperationCacheKey_Contract(t *testing.T) {
	key, err := OperationCacheKey("  op_00000000000000000000c0de  ")
	if err != nil {
		t.Fatalf("build cache key: %v", err)
	}

	const expected = "go-lifecycle::operation::v1::op_00000000000000000000c0de"
	if key != expected {
		t.Fatalf("unexpected cache key contract: got %q want %q", key, expected)
	}

	escaped, err := OperationCacheKey("op/alpha team")
	if err != nil {
		t.Fatalf("build escaped cache key: %v", err)
	}
	if escaped != "go-lifecycle::operation::v1::op%2Falpha%20team" {
		t.Fatalf("expected path-escaped id segment, got %q", escaped)
	}

	if _, err := OperationCacheKey("   "); err == nil {
		t.Fatalf("expected blank id rejection")
	}
}

func TestCachedOperationStore_PropagatesBaseErrors(t *testing.T) {
	cacheService := newTestOperationCacheService(t)
	base := &stubOperationStore{findErr: core.ErrOperationNotFound}
	store, err := NewCachedOperationStore(base, cacheService)
	if err != nil {
		t.Fatalf("new cached operation store: %v", err)
	}

	if _, err := store.Find(context.Background(), "op_00000000000000000000c404"); !errors.Is(err, core.ErrOperationNotFound) {
		t.Fatalf("expected base error propagation, got %v", err)
	}
}

func newTestOperationCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}
