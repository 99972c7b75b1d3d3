package core

import (
	"context"
	"sync"
	"testing"
	"time"
)

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock(start time.Time) *manualClock {
	return &manualClock{now: start.UTC()}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(delta time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(delta)
}

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	base := []Option{
		WithLogger(stubLogger{}),
		WithLoggerProvider(stubLoggerProvider{logger: stubLogger{}}),
	}
	svc, err := NewService(Config{}, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

// failingPutCache delegates to a real memory cache but fails writes, for
// exercising rollback paths.
type failingPutCache struct {
	*MemoryCache
	putErr error
}

func (c *failingPutCache) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if c.putErr != nil {
		return c.putErr
	}
	return c.MemoryCache.Put(ctx, key, value, ttl)
}

type failingOperationStore struct {
	OperationStore
	findErr error
	saveErr error
}

func (s *failingOperationStore) Find(ctx context.Context, id string) (Operation, error) {
	if s.findErr != nil {
		return Operation{}, s.findErr
	}
	return s.OperationStore.Find(ctx, id)
}

func (s *failingOperationStore) Save(ctx context.Context, op Operation, expectedVersion int64) (Operation, error) {
	if s.saveErr != nil {
		return Operation{}, s.saveErr
	}
	return s.OperationStore.Save(ctx, op, expectedVersion)
}
