package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryOperationStore is the in-process OperationStore used when no
// repository factory is wired. Save clones records on the way in and Find
// on the way out, so callers can never mutate stored state in place.
type MemoryOperationStore struct {
	mu         sync.Mutex
	operations map[string]Operation
}

func NewMemoryOperationStore() *MemoryOperationStore {
	return &MemoryOperationStore{
		operations: make(map[string]Operation),
	}
}

func (s *MemoryOperationStore) Find(_ context.Context, id string) (Operation, error) {
	if s == nil {
		return Operation{}, fmt.Errorf("core: operation store is not configured")
	}
	id = strings.TrimSpace(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	operation, ok := s.operations[id]
	if !ok {
		return Operation{}, fmt.Errorf("%w: id %q", ErrOperationNotFound, id)
	}
	return CloneOperation(operation), nil
}

func (s *MemoryOperationStore) Save(_ context.Context, op Operation, expectedVersion int64) (Operation, error) {
	if s == nil {
		return Operation{}, fmt.Errorf("core: operation store is not configured")
	}
	id := strings.TrimSpace(op.ID)
	if id == "" {
		return Operation{}, fmt.Errorf("core: operation id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.operations[id]
	if expectedVersion == 0 {
		if ok {
			return Operation{}, fmt.Errorf("%w: id %q", ErrOperationExists, id)
		}
		op.Version = 1
	} else {
		if !ok {
			return Operation{}, fmt.Errorf("%w: id %q", ErrOperationNotFound, id)
		}
		if existing.Version != expectedVersion {
			return Operation{}, fmt.Errorf("%w: id %q expected version %d, stored version %d",
				ErrOperationVersionConflict, id, expectedVersion, existing.Version)
		}
		op.Version = expectedVersion + 1
	}
	op.ID = id
	stored := CloneOperation(op)
	s.operations[id] = stored
	return CloneOperation(stored), nil
}

func (s *MemoryOperationStore) Delete(_ context.Context, id string) error {
	if s == nil {
		return fmt.Errorf("core: operation store is not configured")
	}
	id = strings.TrimSpace(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.operations[id]; !ok {
		return fmt.Errorf("%w: id %q", ErrOperationNotFound, id)
	}
	delete(s.operations, id)
	return nil
}

func (s *MemoryOperationStore) List(_ context.Context, filter OperationListFilter) (OperationPage, error) {
	if s == nil {
		return OperationPage{}, fmt.Errorf("core: operation store is not configured")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultOperationListLimit
	}

	s.mu.Lock()
	matched := make([]Operation, 0, len(s.operations))
	for _, operation := range s.operations {
		if !operationMatchesFilter(operation, filter) {
			continue
		}
		matched = append(matched, CloneOperation(operation))
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	start := 0
	if cursor := strings.TrimSpace(filter.Cursor); cursor != "" {
		for index, operation := range matched {
			if operation.ID == cursor {
				start = index + 1
				break
			}
		}
	}
	if start >= len(matched) {
		return OperationPage{Items: []Operation{}}, nil
	}

	remaining := matched[start:]
	page := OperationPage{}
	if len(remaining) > limit {
		page.Items = remaining[:limit]
		page.HasMore = true
		page.NextCursor = page.Items[len(page.Items)-1].ID
	} else {
		page.Items = remaining
	}
	return page, nil
}

func (s *MemoryOperationStore) CountActiveByOwner(_ context.Context, ownerID string) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("core: operation store is not configured")
	}
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, operation := range s.operations {
		if operation.OwnerID == ownerID && !operation.Status.Terminal() {
			count++
		}
	}
	return count, nil
}

func (s *MemoryOperationStore) DeleteExpired(_ context.Context, before time.Time, limit int) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("core: operation store is not configured")
	}
	if limit <= 0 {
		limit = defaultOperationListLimit
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for id, operation := range s.operations {
		if operation.ExpiresAt.IsZero() || !operation.ExpiresAt.Before(before) {
			continue
		}
		delete(s.operations, id)
		deleted++
		if deleted >= limit {
			break
		}
	}
	return deleted, nil
}

func operationMatchesFilter(operation Operation, filter OperationListFilter) bool {
	if function := strings.TrimSpace(filter.Function); function != "" && operation.Function != function {
		return false
	}
	if ownerID := strings.TrimSpace(filter.OwnerID); ownerID != "" && operation.OwnerID != ownerID {
		return false
	}
	if filter.Status != "" && operation.Status != filter.Status {
		return false
	}
	if filter.Active && operation.Status.Terminal() {
		return false
	}
	return true
}

var _ OperationStore = (*MemoryOperationStore)(nil)
