package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-lifecycle/core"
)

type MutatingService interface {
	CreateOperation(ctx context.Context, req core.CreateOperationRequest) (core.OperationTicket, error)
	MarkProcessing(ctx context.Context, req core.MarkProcessingRequest) (core.Operation, error)
	CompleteOperation(ctx context.Context, req core.CompleteOperationRequest) (core.Operation, error)
	FailOperation(ctx context.Context, req core.FailOperationRequest) (core.Operation, error)
	CancelOperation(ctx context.Context, req core.CancelOperationRequest) (core.Operation, error)
	UpdateProgress(ctx context.Context, req core.UpdateProgressRequest) (core.Operation, error)
	AcquireLock(ctx context.Context, req core.AcquireLockRequest) (core.HeldLock, error)
	ReleaseLock(ctx context.Context, req core.ReleaseLockRequest) error
	ForceReleaseLock(ctx context.Context, req core.ForceReleaseLockRequest) error
	RegisterCancellation(ctx context.Context, req core.RegisterCancellationRequest) (string, error)
	CheckAndConsumeCancellation(ctx context.Context, token string) (bool, error)
	CancelToken(ctx context.Context, req core.CancelTokenRequest) (bool, error)
	CleanupToken(ctx context.Context, req core.CleanupTokenRequest) error
}

type CreateOperationCommand struct {
	service MutatingService
}

func NewCreateOperationCommand(service MutatingService) *CreateOperationCommand {
	return &CreateOperationCommand{service: service}
}

func (c *CreateOperationCommand) Execute(ctx context.Context, msg CreateOperationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: operation service is required")
	}
	out, err := c.service.CreateOperation(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type MarkProcessingCommand struct {
	service MutatingService
}

func NewMarkProcessingCommand(service MutatingService) *MarkProcessingCommand {
	return &MarkProcessingCommand{service: service}
}

func (c *MarkProcessingCommand) Execute(ctx context.Context, msg MarkProcessingMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: operation service is required")
	}
	out, err := c.service.MarkProcessing(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CompleteOperationCommand struct {
	service MutatingService
}

func NewCompleteOperationCommand(service MutatingService) *CompleteOperationCommand {
	return &CompleteOperationCommand{service: service}
}

func (c *CompleteOperationCommand) Execute(ctx context.Context, msg CompleteOperationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: operation service is required")
	}
	out, err := c.service.CompleteOperation(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type FailOperationCommand struct {
	service MutatingService
}

func NewFailOperationCommand(service MutatingService) *FailOperationCommand {
	return &FailOperationCommand{service: service}
}

func (c *FailOperationCommand) Execute(ctx context.Context, msg FailOperationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: operation service is required")
	}
	out, err := c.service.FailOperation(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CancelOperationCommand struct {
	service MutatingService
}

func NewCancelOperationCommand(service MutatingService) *CancelOperationCommand {
	return &CancelOperationCommand{service: service}
}

func (c *CancelOperationCommand) Execute(ctx context.Context, msg CancelOperationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: operation service is required")
	}
	out, err := c.service.CancelOperation(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type UpdateProgressCommand struct {
	service MutatingService
}

func NewUpdateProgressCommand(service MutatingService) *UpdateProgressCommand {
	return &UpdateProgressCommand{service: service}
}

func (c *UpdateProgressCommand) Execute(ctx context.Context, msg UpdateProgressMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: operation service is required")
	}
	out, err := c.service.UpdateProgress(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type AcquireLockCommand struct {
	service MutatingService
}

func NewAcquireLockCommand(service MutatingService) *AcquireLockCommand {
	return &AcquireLockCommand{service: service}
}

func (c *AcquireLockCommand) Execute(ctx context.Context, msg AcquireLockMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: lock service is required")
	}
	out, err := c.service.AcquireLock(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ReleaseLockCommand struct {
	service MutatingService
}

func NewReleaseLockCommand(service MutatingService) *ReleaseLockCommand {
	return &ReleaseLockCommand{service: service}
}

func (c *ReleaseLockCommand) Execute(ctx context.Context, msg ReleaseLockMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: lock service is required")
	}
	return c.service.ReleaseLock(ctx, msg.Request)
}

type ForceReleaseLockCommand struct {
	service MutatingService
}

func NewForceReleaseLockCommand(service MutatingService) *ForceReleaseLockCommand {
	return &ForceReleaseLockCommand{service: service}
}

func (c *ForceReleaseLockCommand) Execute(ctx context.Context, msg ForceReleaseLockMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: lock service is required")
	}
	return c.service.ForceReleaseLock(ctx, msg.Request)
}

type RegisterCancellationCommand struct {
	service MutatingService
}

func NewRegisterCancellationCommand(service MutatingService) *RegisterCancellationCommand {
	return &RegisterCancellationCommand{service: service}
}

func (c *RegisterCancellationCommand) Execute(ctx context.Context, msg RegisterCancellationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: cancellation service is required")
	}
	token, err := c.service.RegisterCancellation(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, token)
	return nil
}

type ConsumeCancellationCommand struct {
	service MutatingService
}

func NewConsumeCancellationCommand(service MutatingService) *ConsumeCancellationCommand {
	return &ConsumeCancellationCommand{service: service}
}

func (c *ConsumeCancellationCommand) Execute(ctx context.Context, msg ConsumeCancellationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: cancellation service is required")
	}
	cancelled, err := c.service.CheckAndConsumeCancellation(ctx, msg.Token)
	if err != nil {
		return err
	}
	storeResult(ctx, cancelled)
	return nil
}

type CancelTokenCommand struct {
	service MutatingService
}

func NewCancelTokenCommand(service MutatingService) *CancelTokenCommand {
	return &CancelTokenCommand{service: service}
}

func (c *CancelTokenCommand) Execute(ctx context.Context, msg CancelTokenMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: cancellation service is required")
	}
	known, err := c.service.CancelToken(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, known)
	return nil
}

type CleanupTokenCommand struct {
	service MutatingService
}

func NewCleanupTokenCommand(service MutatingService) *CleanupTokenCommand {
	return &CleanupTokenCommand{service: service}
}

func (c *CleanupTokenCommand) Execute(ctx context.Context, msg CleanupTokenMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: cancellation service is required")
	}
	return c.service.CleanupToken(ctx, msg.Request)
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
