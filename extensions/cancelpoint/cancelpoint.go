// Package cancelpoint wires cooperative cancellation into the request
// lifecycle: register the token while the request validates, poll it once
// right before execution, scrub it after the request finishes.
package cancelpoint

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goliatone/go-lifecycle/core"
)

const ExtensionID = "cancelpoint"

const (
	DefaultRegisterPriority = 20
	// DefaultPollPriority keeps the poll ahead of every other executing
	// handler, so a cancelled request stops before any of them run.
	DefaultPollPriority    = 10
	DefaultCleanupPriority = 80
)

// CancellationService is the slice of the lifecycle service this extension
// needs. Cancelling an in-flight request also cancels the operation the
// request may have opened, hence CancelOperation.
type CancellationService interface {
	RegisterCancellation(ctx context.Context, req core.RegisterCancellationRequest) (string, error)
	CheckAndConsumeCancellation(ctx context.Context, token string) (bool, error)
	CleanupToken(ctx context.Context, req core.CleanupTokenRequest) error
	CancelOperation(ctx context.Context, req core.CancelOperationRequest) (core.Operation, error)
}

type Config struct {
	RegisterPriority int
	PollPriority     int
	CleanupPriority  int
	TokenTTL         time.Duration
}

func DefaultConfig() Config {
	return Config{
		RegisterPriority: DefaultRegisterPriority,
		PollPriority:     DefaultPollPriority,
		CleanupPriority:  DefaultCleanupPriority,
	}
}

type Extension struct {
	service CancellationService
	config  Config
}

func New(service CancellationService, cfg Config) (*Extension, error) {
	if service == nil {
		return nil, fmt.Errorf("cancelpoint: cancellation service is required")
	}
	defaults := DefaultConfig()
	if cfg.RegisterPriority == 0 {
		cfg.RegisterPriority = defaults.RegisterPriority
	}
	if cfg.PollPriority == 0 {
		cfg.PollPriority = defaults.PollPriority
	}
	if cfg.CleanupPriority == 0 {
		cfg.CleanupPriority = defaults.CleanupPriority
	}
	return &Extension{service: service, config: cfg}, nil
}

func (e *Extension) ID() string {
	return ExtensionID
}

// Subscriptions declares registration fatal and the poll and cleanup
// handlers record-only: a request whose token cannot be registered must
// not run, while a failed poll or cleanup degrades to "not cancelled"
// rather than killing the request.
func (e *Extension) Subscriptions() []core.Subscription {
	return []core.Subscription{
		{
			Event:    core.EventRequestValidated,
			Priority: e.config.RegisterPriority,
			Failure:  core.FailureModeFatal,
			Handler:  e.handleValidated,
		},
		{
			Event:    core.EventRequestExecuting,
			Priority: e.config.PollPriority,
			Failure:  core.FailureModeRecord,
			Handler:  e.handleExecuting,
		},
		{
			Event:    core.EventRequestExecuted,
			Priority: e.config.CleanupPriority,
			Failure:  core.FailureModeRecord,
			Handler:  e.handleExecuted,
		},
	}
}

func (e *Extension) handleValidated(ctx context.Context, event *core.Event) error {
	directive := event.Directives.CancellationToken
	if directive == "" {
		return nil
	}
	token, err := e.service.RegisterCancellation(ctx, core.RegisterCancellationRequest{
		Token: directive,
		TTL:   e.config.TokenTTL,
	})
	if err != nil {
		return err
	}
	event.State.CancellationToken = token
	return nil
}

func (e *Extension) handleExecuting(ctx context.Context, event *core.Event) error {
	token := event.State.CancellationToken
	if token == "" {
		return nil
	}
	cancelled, err := e.service.CheckAndConsumeCancellation(ctx, token)
	if err != nil {
		return fmt.Errorf("cancelpoint: cancellation check failed: %w", err)
	}
	if !cancelled {
		return nil
	}

	body := map[string]any{"status": "cancelled"}
	var cancelErr error
	if operationID := event.State.OperationID; operationID != "" {
		body["operation_id"] = operationID
		if _, cancelErr = e.service.CancelOperation(ctx, core.CancelOperationRequest{
			ID:     operationID,
			Caller: event.Caller,
			Reason: "cancellation requested",
		}); cancelErr != nil {
			cancelErr = fmt.Errorf("cancelpoint: cancel of operation %q failed: %w", operationID, cancelErr)
		}
	}
	event.Respond(http.StatusConflict, body)
	event.StopPropagation()
	return cancelErr
}

func (e *Extension) handleExecuted(ctx context.Context, event *core.Event) error {
	token := event.State.CancellationToken
	if token == "" {
		return nil
	}
	event.State.CancellationToken = ""
	if err := e.service.CleanupToken(ctx, core.CleanupTokenRequest{Token: token}); err != nil {
		return fmt.Errorf("cancelpoint: token cleanup failed: %w", err)
	}
	return nil
}

var _ core.Extension = (*Extension)(nil)
