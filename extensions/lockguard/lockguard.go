// Package lockguard guards request execution with a distributed lock.
// While the request validates it acquires the lock named by the request
// directives and parks the handle on the event state; after execution it
// releases the handle again when the directive asked for auto release.
package lockguard

import (
	"context"
	"fmt"

	"github.com/goliatone/go-lifecycle/core"
)

const ExtensionID = "lockguard"

const (
	DefaultAcquirePriority = 10
	DefaultReleasePriority = 90
)

// LockService is the slice of the lifecycle service this extension needs.
type LockService interface {
	AcquireLock(ctx context.Context, req core.AcquireLockRequest) (core.HeldLock, error)
	ReleaseLock(ctx context.Context, req core.ReleaseLockRequest) error
}

type Config struct {
	AcquirePriority int
	ReleasePriority int
}

func DefaultConfig() Config {
	return Config{
		AcquirePriority: DefaultAcquirePriority,
		ReleasePriority: DefaultReleasePriority,
	}
}

type Extension struct {
	service LockService
	config  Config
}

func New(service LockService, cfg Config) (*Extension, error) {
	if service == nil {
		return nil, fmt.Errorf("lockguard: lock service is required")
	}
	defaults := DefaultConfig()
	if cfg.AcquirePriority == 0 {
		cfg.AcquirePriority = defaults.AcquirePriority
	}
	if cfg.ReleasePriority == 0 {
		cfg.ReleasePriority = defaults.ReleasePriority
	}
	return &Extension{service: service, config: cfg}, nil
}

func (e *Extension) ID() string {
	return ExtensionID
}

// Subscriptions declares the acquire handler fatal, since a request that
// asked for a lock must not run without one. The release handler only
// records failures; by the time it runs the response is already produced.
func (e *Extension) Subscriptions() []core.Subscription {
	return []core.Subscription{
		{
			Event:    core.EventRequestValidated,
			Priority: e.config.AcquirePriority,
			Failure:  core.FailureModeFatal,
			Handler:  e.handleValidated,
		},
		{
			Event:    core.EventRequestExecuted,
			Priority: e.config.ReleasePriority,
			Failure:  core.FailureModeRecord,
			Handler:  e.handleExecuted,
		},
	}
}

func (e *Extension) handleValidated(ctx context.Context, event *core.Event) error {
	directive := event.Directives.Lock
	if directive == nil {
		return nil
	}
	lock, err := e.service.AcquireLock(ctx, core.AcquireLockRequest{
		Key:          directive.Key,
		Scope:        directive.Scope,
		Function:     event.Function,
		Owner:        directive.Owner,
		TTL:          directive.TTL,
		Block:        directive.Block,
		BlockTimeout: directive.BlockTimeout,
		Caller:       event.Caller,
	})
	if err != nil {
		return err
	}
	event.State.Lock = &lock
	return nil
}

func (e *Extension) handleExecuted(ctx context.Context, event *core.Event) error {
	directive := event.Directives.Lock
	lock := event.State.Lock
	if directive == nil || lock == nil || !directive.AutoRelease {
		return nil
	}
	event.State.Lock = nil
	if err := e.service.ReleaseLock(ctx, core.ReleaseLockRequest{
		Key:      lock.Key,
		Scope:    lock.Scope,
		Function: lock.Function,
		Owner:    lock.Owner,
		Caller:   event.Caller,
	}); err != nil {
		return fmt.Errorf("lockguard: auto release of %q failed: %w", lock.Key, err)
	}
	return nil
}

var _ core.Extension = (*Extension)(nil)
