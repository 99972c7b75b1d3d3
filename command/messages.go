package command

import (
	"strings"

	"github.com/goliatone/go-lifecycle/core"
)

const (
	TypeCreateOperation      = "lifecycle.command.operation.create"
	TypeMarkProcessing       = "lifecycle.command.operation.mark_processing"
	TypeCompleteOperation    = "lifecycle.command.operation.complete"
	TypeFailOperation        = "lifecycle.command.operation.fail"
	TypeCancelOperation      = "lifecycle.command.operation.cancel"
	TypeUpdateProgress       = "lifecycle.command.operation.update_progress"
	TypeAcquireLock          = "lifecycle.command.lock.acquire"
	TypeReleaseLock          = "lifecycle.command.lock.release"
	TypeForceReleaseLock     = "lifecycle.command.lock.force_release"
	TypeRegisterCancellation = "lifecycle.command.cancellation.register"
	TypeConsumeCancellation  = "lifecycle.command.cancellation.consume"
	TypeCancelToken          = "lifecycle.command.cancellation.cancel"
	TypeCleanupToken         = "lifecycle.command.cancellation.cleanup"
)

type CreateOperationMessage struct {
	Request core.CreateOperationRequest
}

func (CreateOperationMessage) Type() string { return TypeCreateOperation }

func (m CreateOperationMessage) Validate() error {
	if strings.TrimSpace(m.Request.Function) == "" {
		return commandInvalidInputError("command: function is required")
	}
	return nil
}

type MarkProcessingMessage struct {
	Request core.MarkProcessingRequest
}

func (MarkProcessingMessage) Type() string { return TypeMarkProcessing }

func (m MarkProcessingMessage) Validate() error {
	return validateOperationID(m.Request.ID)
}

type CompleteOperationMessage struct {
	Request core.CompleteOperationRequest
}

func (CompleteOperationMessage) Type() string { return TypeCompleteOperation }

func (m CompleteOperationMessage) Validate() error {
	return validateOperationID(m.Request.ID)
}

type FailOperationMessage struct {
	Request core.FailOperationRequest
}

func (FailOperationMessage) Type() string { return TypeFailOperation }

func (m FailOperationMessage) Validate() error {
	return validateOperationID(m.Request.ID)
}

type CancelOperationMessage struct {
	Request core.CancelOperationRequest
}

func (CancelOperationMessage) Type() string { return TypeCancelOperation }

func (m CancelOperationMessage) Validate() error {
	return validateOperationID(m.Request.ID)
}

type UpdateProgressMessage struct {
	Request core.UpdateProgressRequest
}

func (UpdateProgressMessage) Type() string { return TypeUpdateProgress }

func (m UpdateProgressMessage) Validate() error {
	return validateOperationID(m.Request.ID)
}

type AcquireLockMessage struct {
	Request core.AcquireLockRequest
}

func (AcquireLockMessage) Type() string { return TypeAcquireLock }

func (m AcquireLockMessage) Validate() error {
	if strings.TrimSpace(m.Request.Key) == "" {
		return commandInvalidInputError("command: lock key is required")
	}
	if m.Request.Scope == core.LockScopeFunction && strings.TrimSpace(m.Request.Function) == "" {
		return commandInvalidInputError("command: function is required for function scoped locks")
	}
	return nil
}

type ReleaseLockMessage struct {
	Request core.ReleaseLockRequest
}

func (ReleaseLockMessage) Type() string { return TypeReleaseLock }

func (m ReleaseLockMessage) Validate() error {
	if strings.TrimSpace(m.Request.Key) == "" {
		return commandInvalidInputError("command: lock key is required")
	}
	if strings.TrimSpace(m.Request.Owner) == "" {
		return commandInvalidInputError("command: lock owner is required")
	}
	return nil
}

type ForceReleaseLockMessage struct {
	Request core.ForceReleaseLockRequest
}

func (ForceReleaseLockMessage) Type() string { return TypeForceReleaseLock }

func (m ForceReleaseLockMessage) Validate() error {
	if strings.TrimSpace(m.Request.Key) == "" {
		return commandInvalidInputError("command: lock key is required")
	}
	return nil
}

type RegisterCancellationMessage struct {
	Request core.RegisterCancellationRequest
}

func (RegisterCancellationMessage) Type() string { return TypeRegisterCancellation }

func (m RegisterCancellationMessage) Validate() error {
	return nil
}

type ConsumeCancellationMessage struct {
	Token string
}

func (ConsumeCancellationMessage) Type() string { return TypeConsumeCancellation }

func (m ConsumeCancellationMessage) Validate() error {
	if strings.TrimSpace(m.Token) == "" {
		return commandInvalidInputError("command: cancellation token is required")
	}
	return nil
}

type CancelTokenMessage struct {
	Request core.CancelTokenRequest
}

func (CancelTokenMessage) Type() string { return TypeCancelToken }

func (m CancelTokenMessage) Validate() error {
	if strings.TrimSpace(m.Request.Token) == "" {
		return commandInvalidInputError("command: cancellation token is required")
	}
	return nil
}

type CleanupTokenMessage struct {
	Request core.CleanupTokenRequest
}

func (CleanupTokenMessage) Type() string { return TypeCleanupToken }

func (m CleanupTokenMessage) Validate() error {
	if strings.TrimSpace(m.Request.Token) == "" {
		return commandInvalidInputError("command: cancellation token is required")
	}
	return nil
}

func validateOperationID(id string) error {
	if strings.TrimSpace(id) == "" {
		return commandInvalidInputError("command: operation id is required")
	}
	if !core.ValidOperationID(strings.TrimSpace(id)) {
		return commandInvalidInputError("command: operation id is malformed")
	}
	return nil
}
