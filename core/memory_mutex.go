package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

type memoryMutexEntry struct {
	owner string
	until time.Time
}

// MemoryNamedMutex is the in-process NamedMutex. Entries expire by
// timestamp rather than by background sweep; an expired entry is treated
// as free on the next acquisition attempt.
type MemoryNamedMutex struct {
	mu    sync.Mutex
	locks map[string]memoryMutexEntry
	nowFn func() time.Time
}

func NewMemoryNamedMutex() *MemoryNamedMutex {
	return &MemoryNamedMutex{
		locks: make(map[string]memoryMutexEntry),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

// TryAcquire takes the mutex when it is free or expired. The current
// holder may re-acquire to extend its TTL.
func (m *MemoryNamedMutex) TryAcquire(_ context.Context, name, owner string, ttl time.Duration) (bool, error) {
	if m == nil {
		return false, fmt.Errorf("core: named mutex is not configured")
	}
	name = strings.TrimSpace(name)
	owner = strings.TrimSpace(owner)
	if name == "" || owner == "" {
		return false, fmt.Errorf("core: mutex name and owner are required")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	now := m.nowFn()
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.locks[name]; ok && now.Before(entry.until) && entry.owner != owner {
		return false, nil
	}
	m.locks[name] = memoryMutexEntry{owner: owner, until: now.Add(ttl)}
	return true, nil
}

// Release frees the mutex when owner still holds it, reporting false when
// the entry is absent, expired, or held by someone else.
func (m *MemoryNamedMutex) Release(_ context.Context, name, owner string) (bool, error) {
	if m == nil {
		return false, fmt.Errorf("core: named mutex is not configured")
	}
	name = strings.TrimSpace(name)
	owner = strings.TrimSpace(owner)
	if name == "" || owner == "" {
		return false, fmt.Errorf("core: mutex name and owner are required")
	}

	now := m.nowFn()
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.locks[name]
	if !ok {
		return false, nil
	}
	if entry.owner != owner {
		return false, nil
	}
	delete(m.locks, name)
	return now.Before(entry.until), nil
}

func (m *MemoryNamedMutex) ForceRelease(_ context.Context, name string) (bool, error) {
	if m == nil {
		return false, fmt.Errorf("core: named mutex is not configured")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return false, fmt.Errorf("core: mutex name is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.locks[name]
	delete(m.locks, name)
	return ok, nil
}

var _ NamedMutex = (*MemoryNamedMutex)(nil)
