package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidOperationID               = errors.New("core: invalid operation id")
	ErrOperationNotFound                = errors.New("core: operation not found")
	ErrOperationExists                  = errors.New("core: operation already exists")
	ErrInvalidOperationStatusTransition = errors.New("core: invalid operation status transition")
	ErrOperationVersionConflict         = errors.New("core: operation version conflict")
	ErrOperationOwnerMismatch           = errors.New("core: operation owner mismatch")
	ErrOwnerQuotaExceeded               = errors.New("core: active operation quota exceeded")
	ErrOperationIDExhausted             = errors.New("core: operation id generation attempts exhausted")
	ErrProgressNotMonotonic             = errors.New("core: operation progress may not decrease")
	ErrMetadataTooLarge                 = errors.New("core: operation metadata too large")
	ErrInvalidFunctionName              = errors.New("core: invalid function name")
	ErrInvalidLockKey                   = errors.New("core: invalid lock key")
	ErrLockNotFound                     = errors.New("core: lock not found")
	ErrLockAlreadyHeld                  = errors.New("core: lock already held")
	ErrLockOwnerMismatch                = errors.New("core: lock owner mismatch")
	ErrLockAcquireTimeout               = errors.New("core: lock acquisition timed out")
	ErrForceReleaseDenied               = errors.New("core: force release not authorized")
	ErrInvalidCancellationToken         = errors.New("core: invalid cancellation token")
	ErrCallbackURLRejected              = errors.New("core: callback url rejected")
)

// Identity is the caller identity threaded through every mutating
// operation. Ownership checks compare Subject against the owner recorded
// on the resource; Admin bypasses them.
type Identity struct {
	Subject string
	Admin   bool
}

func (i Identity) CanActOn(owner string) bool {
	owner = strings.TrimSpace(owner)
	if owner == "" || i.Admin {
		return true
	}
	return strings.TrimSpace(i.Subject) == owner
}

type OperationStatus string

const (
	OperationStatusPending    OperationStatus = "pending"
	OperationStatusProcessing OperationStatus = "processing"
	OperationStatusCompleted  OperationStatus = "completed"
	OperationStatusFailed     OperationStatus = "failed"
	OperationStatusCancelled  OperationStatus = "cancelled"
)

func (s OperationStatus) Terminal() bool {
	switch s {
	case OperationStatusCompleted, OperationStatusFailed, OperationStatusCancelled:
		return true
	}
	return false
}

func (s OperationStatus) Valid() bool {
	switch s {
	case OperationStatusPending, OperationStatusProcessing,
		OperationStatusCompleted, OperationStatusFailed, OperationStatusCancelled:
		return true
	}
	return false
}

type OperationError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type Operation struct {
	ID          string
	Function    string
	FnVersion   string
	OwnerID     string
	Status      OperationStatus
	Progress    *float64
	Result      map[string]any
	Errors      []OperationError
	Metadata    map[string]any
	CallbackURL string
	Version     int64
	StartedAt   *time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time
	ExpiresAt   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TransitionTo advances the lifecycle state machine. Terminal states reject
// every further transition, including a repeat of the same status.
func (o *Operation) TransitionTo(status OperationStatus, now time.Time) error {
	if o == nil {
		return nil
	}
	if !operationTransitionAllowed(o.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidOperationStatusTransition, o.Status, status)
	}
	o.Status = status
	o.UpdatedAt = now
	switch status {
	case OperationStatusProcessing:
		if o.StartedAt == nil {
			startedAt := now
			o.StartedAt = &startedAt
		}
	case OperationStatusCompleted:
		completedAt := now
		o.CompletedAt = &completedAt
		done := 1.0
		o.Progress = &done
	case OperationStatusFailed:
		completedAt := now
		o.CompletedAt = &completedAt
	case OperationStatusCancelled:
		cancelledAt := now
		o.CancelledAt = &cancelledAt
	}
	return nil
}

func operationTransitionAllowed(current, next OperationStatus) bool {
	allowed := map[OperationStatus]map[OperationStatus]struct{}{
		OperationStatusPending: {
			OperationStatusProcessing: {},
			OperationStatusCompleted:  {},
			OperationStatusFailed:     {},
			OperationStatusCancelled:  {},
		},
		OperationStatusProcessing: {
			OperationStatusCompleted: {},
			OperationStatusFailed:    {},
			OperationStatusCancelled: {},
		},
		OperationStatusCompleted: {},
		OperationStatusFailed:    {},
		OperationStatusCancelled: {},
	}
	_, ok := allowed[current][next]
	return ok
}

// OperationView is the wire shape of an operation. Optional fields are
// omitted entirely when absent, never emitted as null.
type OperationView struct {
	ID          string           `json:"id"`
	Function    string           `json:"function"`
	Version     string           `json:"version,omitempty"`
	Status      OperationStatus  `json:"status"`
	Progress    *float64         `json:"progress,omitempty"`
	Result      map[string]any   `json:"result,omitempty"`
	Errors      []OperationError `json:"errors,omitempty"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	CancelledAt *time.Time       `json:"cancelled_at,omitempty"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
}

func (o Operation) View() OperationView {
	view := OperationView{
		ID:          o.ID,
		Function:    o.Function,
		Version:     o.FnVersion,
		Status:      o.Status,
		Progress:    cloneFloatPointer(o.Progress),
		StartedAt:   cloneTimePointer(o.StartedAt),
		CompletedAt: cloneTimePointer(o.CompletedAt),
		CancelledAt: cloneTimePointer(o.CancelledAt),
	}
	if o.Status == OperationStatusCompleted && len(o.Result) > 0 {
		view.Result = copyAnyMap(o.Result)
	}
	if o.Status == OperationStatusFailed && len(o.Errors) > 0 {
		view.Errors = cloneOperationErrors(o.Errors)
	}
	if len(o.Metadata) > 0 {
		view.Metadata = copyAnyMap(o.Metadata)
	}
	return view
}

func CloneOperation(op Operation) Operation {
	cloned := op
	cloned.Progress = cloneFloatPointer(op.Progress)
	if op.Result != nil {
		cloned.Result = copyAnyMap(op.Result)
	}
	cloned.Errors = cloneOperationErrors(op.Errors)
	if op.Metadata != nil {
		cloned.Metadata = copyAnyMap(op.Metadata)
	}
	cloned.StartedAt = cloneTimePointer(op.StartedAt)
	cloned.CompletedAt = cloneTimePointer(op.CompletedAt)
	cloned.CancelledAt = cloneTimePointer(op.CancelledAt)
	return cloned
}

func cloneOperationErrors(in []OperationError) []OperationError {
	if len(in) == 0 {
		return nil
	}
	out := make([]OperationError, 0, len(in))
	for _, item := range in {
		cloned := item
		cloned.Details = copyAnyMap(item.Details)
		if len(item.Details) == 0 {
			cloned.Details = nil
		}
		out = append(out, cloned)
	}
	return out
}

type LockScope string

const (
	LockScopeFunction LockScope = "function"
	LockScopeGlobal   LockScope = "global"
)

func (s LockScope) Valid() bool {
	return s == LockScopeFunction || s == LockScopeGlobal
}

// HeldLock is the caller-facing handle for an acquired lock. Release goes
// through the service with the owner token; the handle carries no live
// connection to the mutex.
type HeldLock struct {
	Key          string
	EffectiveKey string
	Scope        LockScope
	Function     string
	Owner        string
	TTL          time.Duration
	AcquiredAt   time.Time
	ExpiresAt    time.Time
}

// LockStatus is the wire shape of a status query, derived from lock
// metadata alone.
type LockStatus struct {
	Key          string     `json:"key"`
	Locked       bool       `json:"locked"`
	Owner        string     `json:"owner,omitempty"`
	AcquiredAt   *time.Time `json:"acquired_at,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	TTLRemaining *int64     `json:"ttl_remaining,omitempty"`
}

type CancellationStatus string

const (
	CancellationStatusActive    CancellationStatus = "active"
	CancellationStatusCancelled CancellationStatus = "cancelled"
)

func cloneTimePointer(in *time.Time) *time.Time {
	if in == nil {
		return nil
	}
	value := in.UTC()
	return &value
}

func cloneFloatPointer(in *float64) *float64 {
	if in == nil {
		return nil
	}
	value := *in
	return &value
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
