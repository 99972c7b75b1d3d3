package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type CreateOperationRequest struct {
	Function    string
	FnVersion   string
	OwnerID     string
	Caller      Identity
	TTL         time.Duration
	Metadata    map[string]any
	CallbackURL string
}

// OperationTicket is returned on creation so callers can poll for the
// outcome instead of holding the request open.
type OperationTicket struct {
	ID     string          `json:"id"`
	Status OperationStatus `json:"status"`
	Poll   PollInfo        `json:"poll"`
}

type PollInfo struct {
	Href              string `json:"href"`
	RetryAfterSeconds int    `json:"retry_after"`
}

type MarkProcessingRequest struct {
	ID     string
	Caller Identity
}

type CompleteOperationRequest struct {
	ID     string
	Caller Identity
	Result map[string]any
}

type FailOperationRequest struct {
	ID     string
	Caller Identity
	Errors []OperationError
}

type CancelOperationRequest struct {
	ID     string
	Caller Identity
	Reason string
}

type UpdateProgressRequest struct {
	ID       string
	Caller   Identity
	Progress float64
	Message  string
}

type OperationListFilter struct {
	Function string
	OwnerID  string
	Status   OperationStatus
	Active   bool
	Cursor   string
	Limit    int
}

type OperationPage struct {
	Items      []Operation
	NextCursor string
	HasMore    bool
}

type AcquireLockRequest struct {
	Key          string
	Scope        LockScope
	Function     string
	Owner        string
	TTL          time.Duration
	Block        bool
	BlockTimeout time.Duration
	Caller       Identity
	Metadata     map[string]any
}

type ReleaseLockRequest struct {
	Key      string
	Scope    LockScope
	Function string
	Owner    string
	Caller   Identity
}

type ForceReleaseLockRequest struct {
	Key      string
	Scope    LockScope
	Function string
	Caller   Identity
	Reason   string
}

type LockStatusRequest struct {
	Key      string
	Scope    LockScope
	Function string
}

type RegisterCancellationRequest struct {
	Token string
	TTL   time.Duration
}

type CancelTokenRequest struct {
	Token string
}

type CleanupTokenRequest struct {
	Token string
}

// OperationStore persists operation records. Save performs a compare and
// swap on the record version: expectedVersion 0 inserts, any other value
// updates only when the stored version still matches, returning
// ErrOperationVersionConflict otherwise.
type OperationStore interface {
	Find(ctx context.Context, id string) (Operation, error)
	Save(ctx context.Context, op Operation, expectedVersion int64) (Operation, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter OperationListFilter) (OperationPage, error)
	CountActiveByOwner(ctx context.Context, ownerID string) (int, error)
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// KeyValueCache is the TTL'd key-value collaborator backing lock metadata
// and cancellation tokens.
type KeyValueCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Forget(ctx context.Context, key string) (bool, error)
}

// NamedMutex is the mutual-exclusion collaborator. Release is owner
// checked: it reports false when the mutex is not currently held by owner.
type NamedMutex interface {
	TryAcquire(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name, owner string) (bool, error)
	ForceRelease(ctx context.Context, name string) (bool, error)
}

type ForceReleaseAuthorizer interface {
	AuthorizeForceRelease(ctx context.Context, caller Identity, key string) error
}

type StoreProvider interface {
	OperationStore() OperationStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type OperationExecutionMessage struct {
	OperationID    string
	Function       string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type OperationNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type OperationEnqueuer interface {
	Enqueue(ctx context.Context, msg *OperationExecutionMessage) error
}

type OperationDelivery interface {
	Message() *OperationExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts OperationNackOptions) error
}

type OperationDequeuer interface {
	Dequeue(ctx context.Context) (OperationDelivery, error)
}

type OperationWorkerHook interface {
	OnStart(ctx context.Context, event OperationWorkerEvent)
	OnSuccess(ctx context.Context, event OperationWorkerEvent)
	OnFailure(ctx context.Context, event OperationWorkerEvent)
	OnRetry(ctx context.Context, event OperationWorkerEvent)
}

type OperationWorkerEvent struct {
	Message   *OperationExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

// ExpiredPurger is implemented by stores holding TTL'd rows that the
// sweeper should clean alongside expired operations.
type ExpiredPurger interface {
	PurgeExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

type SweepStats struct {
	OperationsDeleted int
	EntriesPurged     int
	Batches           int
}

type OperationSweeper interface {
	SweepOnce(ctx context.Context, batchSize int) (SweepStats, error)
}

type CommandMessage interface {
	Type() string
}

type CommandDispatcher interface {
	Dispatch(ctx context.Context, msg any) error
}

// OperationService is the full caller-facing surface of the lifecycle
// service.
type OperationService interface {
	CreateOperation(ctx context.Context, req CreateOperationRequest) (OperationTicket, error)
	GetOperation(ctx context.Context, id string) (Operation, error)
	ListOperations(ctx context.Context, filter OperationListFilter) (OperationPage, error)
	MarkProcessing(ctx context.Context, req MarkProcessingRequest) (Operation, error)
	CompleteOperation(ctx context.Context, req CompleteOperationRequest) (Operation, error)
	FailOperation(ctx context.Context, req FailOperationRequest) (Operation, error)
	CancelOperation(ctx context.Context, req CancelOperationRequest) (Operation, error)
	UpdateProgress(ctx context.Context, req UpdateProgressRequest) (Operation, error)
}

type LockService interface {
	AcquireLock(ctx context.Context, req AcquireLockRequest) (HeldLock, error)
	ReleaseLock(ctx context.Context, req ReleaseLockRequest) error
	ForceReleaseLock(ctx context.Context, req ForceReleaseLockRequest) error
	LockStatus(ctx context.Context, req LockStatusRequest) (LockStatus, error)
}

type CancellationService interface {
	RegisterCancellation(ctx context.Context, req RegisterCancellationRequest) (string, error)
	CheckAndConsumeCancellation(ctx context.Context, token string) (bool, error)
	CancelToken(ctx context.Context, req CancelTokenRequest) (bool, error)
	CleanupToken(ctx context.Context, req CleanupTokenRequest) error
}
