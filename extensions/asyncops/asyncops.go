// Package asyncops turns a request into a pollable operation. The create
// handler answers with an accepted envelope and stops the validated
// dispatch; the host later drives the executing and executed phases around
// the actual work, which this extension mirrors onto the operation record.
package asyncops

import (
	"context"
	"fmt"
	"net/http"

	"github.com/goliatone/go-lifecycle/core"
)

const ExtensionID = "asyncops"

const (
	DefaultCreatePriority   = 30
	DefaultProcessPriority  = 30
	DefaultFinalizePriority = 20
)

// OperationService is the slice of the lifecycle service this extension
// needs.
type OperationService interface {
	CreateOperation(ctx context.Context, req core.CreateOperationRequest) (core.OperationTicket, error)
	MarkProcessing(ctx context.Context, req core.MarkProcessingRequest) (core.Operation, error)
	CompleteOperation(ctx context.Context, req core.CompleteOperationRequest) (core.Operation, error)
	FailOperation(ctx context.Context, req core.FailOperationRequest) (core.Operation, error)
}

type Config struct {
	CreatePriority   int
	ProcessPriority  int
	FinalizePriority int
}

func DefaultConfig() Config {
	return Config{
		CreatePriority:   DefaultCreatePriority,
		ProcessPriority:  DefaultProcessPriority,
		FinalizePriority: DefaultFinalizePriority,
	}
}

type Extension struct {
	service OperationService
	config  Config
}

func New(service OperationService, cfg Config) (*Extension, error) {
	if service == nil {
		return nil, fmt.Errorf("asyncops: operation service is required")
	}
	defaults := DefaultConfig()
	if cfg.CreatePriority == 0 {
		cfg.CreatePriority = defaults.CreatePriority
	}
	if cfg.ProcessPriority == 0 {
		cfg.ProcessPriority = defaults.ProcessPriority
	}
	if cfg.FinalizePriority == 0 {
		cfg.FinalizePriority = defaults.FinalizePriority
	}
	return &Extension{service: service, config: cfg}, nil
}

func (e *Extension) ID() string {
	return ExtensionID
}

// Subscriptions declares create and mark-processing fatal: a request that
// asked for an operation must not run untracked, and work must not start
// on an operation that already left pending. Finalization only records
// failures; the outcome response exists with or without the bookkeeping.
func (e *Extension) Subscriptions() []core.Subscription {
	return []core.Subscription{
		{
			Event:    core.EventRequestValidated,
			Priority: e.config.CreatePriority,
			Failure:  core.FailureModeFatal,
			Handler:  e.handleValidated,
		},
		{
			Event:    core.EventRequestExecuting,
			Priority: e.config.ProcessPriority,
			Failure:  core.FailureModeFatal,
			Handler:  e.handleExecuting,
		},
		{
			Event:    core.EventRequestExecuted,
			Priority: e.config.FinalizePriority,
			Failure:  core.FailureModeRecord,
			Handler:  e.handleExecuted,
		},
	}
}

func (e *Extension) handleValidated(ctx context.Context, event *core.Event) error {
	directive := event.Directives.Async
	if directive == nil {
		return nil
	}
	ownerID := directive.OwnerID
	if ownerID == "" {
		ownerID = event.Caller.Subject
	}
	ticket, err := e.service.CreateOperation(ctx, core.CreateOperationRequest{
		Function:    event.Function,
		FnVersion:   event.FnVersion,
		OwnerID:     ownerID,
		Caller:      event.Caller,
		TTL:         directive.TTL,
		Metadata:    directive.Metadata,
		CallbackURL: directive.CallbackURL,
	})
	if err != nil {
		return err
	}
	event.State.OperationID = ticket.ID
	event.Respond(http.StatusAccepted, map[string]any{
		"id":     ticket.ID,
		"status": string(ticket.Status),
		"poll": map[string]any{
			"href":        ticket.Poll.Href,
			"retry_after": ticket.Poll.RetryAfterSeconds,
		},
	})
	event.StopPropagation()
	return nil
}

func (e *Extension) handleExecuting(ctx context.Context, event *core.Event) error {
	operationID := event.State.OperationID
	if operationID == "" {
		return nil
	}
	if _, err := e.service.MarkProcessing(ctx, core.MarkProcessingRequest{
		ID:     operationID,
		Caller: event.Caller,
	}); err != nil {
		return err
	}
	return nil
}

func (e *Extension) handleExecuted(ctx context.Context, event *core.Event) error {
	operationID := event.State.OperationID
	if operationID == "" {
		return nil
	}

	response, responded := event.Response()
	if responded && response.Status >= http.StatusBadRequest {
		if _, err := e.service.FailOperation(ctx, core.FailOperationRequest{
			ID:     operationID,
			Caller: event.Caller,
			Errors: []core.OperationError{{
				Code:    "function_error",
				Message: fmt.Sprintf("function returned status %d", response.Status),
				Details: response.Body,
			}},
		}); err != nil {
			return fmt.Errorf("asyncops: fail of operation %q failed: %w", operationID, err)
		}
		return nil
	}

	var result map[string]any
	if responded {
		result = response.Body
	}
	if _, err := e.service.CompleteOperation(ctx, core.CompleteOperationRequest{
		ID:     operationID,
		Caller: event.Caller,
		Result: result,
	}); err != nil {
		return fmt.Errorf("asyncops: completion of operation %q failed: %w", operationID, err)
	}
	return nil
}

var _ core.Extension = (*Extension)(nil)
