package lifecycle

import (
	"fmt"

	lifecyclecommand "github.com/goliatone/go-lifecycle/command"
	lifecyclequery "github.com/goliatone/go-lifecycle/query"
)

// CommandQueryService is the full lifecycle surface the facade wraps: the
// mutating operations plus the readers the queries are served from.
type CommandQueryService interface {
	lifecyclecommand.MutatingService
	lifecyclequery.OperationReader
	lifecyclequery.LockStatusReader
}

type Commands struct {
	CreateOperation      *lifecyclecommand.CreateOperationCommand
	MarkProcessing       *lifecyclecommand.MarkProcessingCommand
	CompleteOperation    *lifecyclecommand.CompleteOperationCommand
	FailOperation        *lifecyclecommand.FailOperationCommand
	CancelOperation      *lifecyclecommand.CancelOperationCommand
	UpdateProgress       *lifecyclecommand.UpdateProgressCommand
	AcquireLock          *lifecyclecommand.AcquireLockCommand
	ReleaseLock          *lifecyclecommand.ReleaseLockCommand
	ForceReleaseLock     *lifecyclecommand.ForceReleaseLockCommand
	RegisterCancellation *lifecyclecommand.RegisterCancellationCommand
	ConsumeCancellation  *lifecyclecommand.ConsumeCancellationCommand
	CancelToken          *lifecyclecommand.CancelTokenCommand
	CleanupToken         *lifecyclecommand.CleanupTokenCommand
}

type Queries struct {
	GetOperation   *lifecyclequery.GetOperationQuery
	ListOperations *lifecyclequery.ListOperationsQuery
	LockStatus     *lifecyclequery.LockStatusQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	operationReader lifecyclequery.OperationReader
}

// WithOperationReader overrides where the Get and List queries read from,
// for hosts that serve polls out of a replica or cached store instead of
// the live service.
func WithOperationReader(reader lifecyclequery.OperationReader) FacadeOption {
	return func(options *facadeOptions) {
		options.operationReader = reader
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("lifecycle: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	reader := cfg.operationReader
	if reader == nil {
		reader = service
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		CreateOperation:      lifecyclecommand.NewCreateOperationCommand(service),
		MarkProcessing:       lifecyclecommand.NewMarkProcessingCommand(service),
		CompleteOperation:    lifecyclecommand.NewCompleteOperationCommand(service),
		FailOperation:        lifecyclecommand.NewFailOperationCommand(service),
		CancelOperation:      lifecyclecommand.NewCancelOperationCommand(service),
		UpdateProgress:       lifecyclecommand.NewUpdateProgressCommand(service),
		AcquireLock:          lifecyclecommand.NewAcquireLockCommand(service),
		ReleaseLock:          lifecyclecommand.NewReleaseLockCommand(service),
		ForceReleaseLock:     lifecyclecommand.NewForceReleaseLockCommand(service),
		RegisterCancellation: lifecyclecommand.NewRegisterCancellationCommand(service),
		ConsumeCancellation:  lifecyclecommand.NewConsumeCancellationCommand(service),
		CancelToken:          lifecyclecommand.NewCancelTokenCommand(service),
		CleanupToken:         lifecyclecommand.NewCleanupTokenCommand(service),
	}
	facade.queries = Queries{
		GetOperation:   lifecyclequery.NewGetOperationQuery(reader),
		ListOperations: lifecyclequery.NewListOperationsQuery(reader),
		LockStatus:     lifecyclequery.NewLockStatusQuery(service),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}
