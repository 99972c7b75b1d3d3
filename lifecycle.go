package lifecycle

import "github.com/goliatone/go-lifecycle/core"

type Config = core.Config

type OperationsConfig = core.OperationsConfig
type LocksConfig = core.LocksConfig
type CancellationConfig = core.CancellationConfig
type CallbacksConfig = core.CallbacksConfig

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies
type OperationStore = core.OperationStore
type KeyValueCache = core.KeyValueCache
type NamedMutex = core.NamedMutex
type ForceReleaseAuthorizer = core.ForceReleaseAuthorizer
type MetricsRecorder = core.MetricsRecorder

type Identity = core.Identity
type Operation = core.Operation
type OperationTicket = core.OperationTicket
type HeldLock = core.HeldLock
type LockStatus = core.LockStatus

type CreateOperationRequest = core.CreateOperationRequest
type AcquireLockRequest = core.AcquireLockRequest
type ReleaseLockRequest = core.ReleaseLockRequest
type ForceReleaseLockRequest = core.ForceReleaseLockRequest
type LockStatusRequest = core.LockStatusRequest
type RegisterCancellationRequest = core.RegisterCancellationRequest

type Pipeline = core.Pipeline
type PipelineOption = core.PipelineOption
type Extension = core.Extension
type Subscription = core.Subscription
type Event = core.Event
type EventType = core.EventType
type HandlerFunc = core.HandlerFunc
type DispatchResult = core.DispatchResult

const (
	EventRequestValidated = core.EventRequestValidated
	EventRequestExecuting = core.EventRequestExecuting
	EventRequestExecuted  = core.EventRequestExecuted
)

var (
	WithLogger                 = core.WithLogger
	WithLoggerProvider         = core.WithLoggerProvider
	WithMetricsRecorder        = core.WithMetricsRecorder
	WithErrorFactory           = core.WithErrorFactory
	WithErrorMapper            = core.WithErrorMapper
	WithPersistenceClient      = core.WithPersistenceClient
	WithRepositoryFactory      = core.WithRepositoryFactory
	WithConfigProvider         = core.WithConfigProvider
	WithOptionsResolver        = core.WithOptionsResolver
	WithOperationStore         = core.WithOperationStore
	WithCache                  = core.WithCache
	WithNamedMutex             = core.WithNamedMutex
	WithForceReleaseAuthorizer = core.WithForceReleaseAuthorizer
	WithClock                  = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}

func NewPipeline(opts ...PipelineOption) *Pipeline {
	return core.NewPipeline(opts...)
}

func NewRequestEvent(function string, caller Identity, payload map[string]any) *Event {
	return core.NewRequestEvent(function, caller, payload)
}
