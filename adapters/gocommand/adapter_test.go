package gocommand

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-command"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	lifecyclecommand "github.com/goliatone/go-lifecycle/command"
	"github.com/goliatone/go-lifecycle/core"
	lifecyclequery "github.com/goliatone/go-lifecycle/query"
)

type okMessage struct{}

func (okMessage) Type() string { return "lifecycle.command.ok" }

type invalidMessage struct{}

func (invalidMessage) Type() string { return "" }

type failingMessage struct{}

func (failingMessage) Type() string { return "lifecycle.command.fail" }

func (failingMessage) Validate() error { return errors.New("invalid payload") }

type dispatchMessage struct {
	ID string
}

func (dispatchMessage) Type() string { return "lifecycle.command.test" }

type queueMessage struct{}

func (queueMessage) Type() string { return "lifecycle.command.queue" }

func TestValidateMessageContract(t *testing.T) {
	if err := ValidateMessageContract(okMessage{}); err != nil {
		t.Fatalf("expected valid message, got %v", err)
	}
	if err := ValidateMessageContract(invalidMessage{}); err == nil {
		t.Fatalf("expected empty type to fail contract validation")
	}
	if err := ValidateMessageContract(failingMessage{}); err == nil {
		t.Fatalf("expected Validate() failure to bubble")
	}
}

func TestRegistryAndDispatchWiring(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	executed := 0
	customResolverCalled := 0

	cmd := command.CommandFunc[dispatchMessage](func(context.Context, dispatchMessage) error {
		executed++
		return nil
	})

	if _, err := RegisterAndSubscribe(adapter, cmd); err != nil {
		t.Fatalf("register and subscribe: %v", err)
	}
	if err := adapter.AddResolver("custom", func(any, command.CommandMeta, *command.Registry) error {
		customResolverCalled++
		return nil
	}); err != nil {
		t.Fatalf("add resolver: %v", err)
	}
	if !adapter.HasResolver("custom") {
		t.Fatalf("expected custom resolver to be registered")
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}
	if customResolverCalled == 0 {
		t.Fatalf("expected resolver hook to run during initialization")
	}

	if err := Dispatch(context.Background(), dispatchMessage{ID: "m1"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if executed != 1 {
		t.Fatalf("expected command execution count=1, got %d", executed)
	}
}

func TestQueueResolverHookWiring(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	queueRegistry := jobqueuecommand.NewRegistry()

	cmd := command.CommandFunc[queueMessage](func(context.Context, queueMessage) error { return nil })

	if err := adapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	if err := adapter.RegisterCommand(cmd); err != nil {
		t.Fatalf("register command: %v", err)
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	if _, ok := queueRegistry.Get("lifecycle.command.queue"); !ok {
		t.Fatalf("expected command to be mirrored into queue registry")
	}
}

func TestRegisterServiceHandlersWiresFullSurface(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	svc := &stubLifecycleService{}

	subscriptions, err := RegisterServiceHandlers(adapter, svc)
	if err != nil {
		t.Fatalf("register service handlers: %v", err)
	}
	defer func() {
		for _, subscription := range subscriptions {
			subscription.Unsubscribe()
		}
	}()
	if len(subscriptions) != 16 {
		t.Fatalf("expected 16 wrapper subscriptions, got %d", len(subscriptions))
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	if err := Dispatch(context.Background(), lifecyclecommand.CreateOperationMessage{
		Request: core.CreateOperationRequest{Function: "reports.generate"},
	}); err != nil {
		t.Fatalf("dispatch create operation: %v", err)
	}
	if svc.creates != 1 {
		t.Fatalf("expected create operation wrapper invocation, got %d", svc.creates)
	}

	if err := Dispatch(context.Background(), lifecyclecommand.AcquireLockMessage{
		Request: core.AcquireLockRequest{Key: "resource:42", Scope: core.LockScopeGlobal},
	}); err != nil {
		t.Fatalf("dispatch acquire lock: %v", err)
	}
	if svc.acquires != 1 {
		t.Fatalf("expected acquire lock wrapper invocation, got %d", svc.acquires)
	}

	operation, err := Query[lifecyclequery.GetOperationMessage, core.Operation](
		context.Background(),
		lifecyclequery.GetOperationMessage{ID: "op_00000000000000000000c0de"},
	)
	if err != nil {
		t.Fatalf("query get operation: %v", err)
	}
	if operation.ID != "op_00000000000000000000c0de" {
		t.Fatalf("expected query wrapper to return the operation, got %q", operation.ID)
	}
	if svc.gets != 1 {
		t.Fatalf("expected get operation wrapper invocation, got %d", svc.gets)
	}
}

func TestRegisterServiceHandlersRequiresService(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	if _, err := RegisterServiceHandlers(adapter, nil); err == nil {
		t.Fatalf("expected nil service to be rejected")
	}
	if _, err := RegisterServiceHandlers(nil, &stubLifecycleService{}); err == nil {
		t.Fatalf("expected nil adapter to be rejected")
	}
}

type stubLifecycleService struct {
	creates  int
	acquires int
	gets     int
}

func (s *stubLifecycleService) CreateOperation(_ context.Context, req core.CreateOperationRequest) (core.OperationTicket, error) {
	s.creates++
	return core.OperationTicket{ID: "op_00000000000000000000c0de", Status: core.OperationStatusPending}, nil
}

func (s *stubLifecycleService) MarkProcessing(context.Context, core.MarkProcessingRequest) (core.Operation, error) {
	return core.Operation{}, nil
}

func (s *stubLifecycleService) CompleteOperation(context.Context, core.CompleteOperationRequest) (core.Operation, error) {
	return core.Operation{}, nil
}

func (s *stubLifecycleService) FailOperation(context.Context, core.FailOperationRequest) (core.Operation, error) {
	return core.Operation{}, nil
}

func (s *stubLifecycleService) CancelOperation(context.Context, core.CancelOperationRequest) (core.Operation, error) {
	return core.Operation{}, nil
}

func (s *stubLifecycleService) UpdateProgress(context.Context, core.UpdateProgressRequest) (core.Operation, error) {
	return core.Operation{}, nil
}

func (s *stubLifecycleService) AcquireLock(_ context.Context, req core.AcquireLockRequest) (core.HeldLock, error) {
	s.acquires++
	return core.HeldLock{Key: req.Key, Scope: req.Scope}, nil
}

func (s *stubLifecycleService) ReleaseLock(context.Context, core.ReleaseLockRequest) error {
	return nil
}

func (s *stubLifecycleService) ForceReleaseLock(context.Context, core.ForceReleaseLockRequest) error {
	return nil
}

func (s *stubLifecycleService) RegisterCancellation(context.Context, core.RegisterCancellationRequest) (string, error) {
	return "tok_stub", nil
}

func (s *stubLifecycleService) CheckAndConsumeCancellation(context.Context, string) (bool, error) {
	return false, nil
}

func (s *stubLifecycleService) CancelToken(context.Context, core.CancelTokenRequest) (bool, error) {
	return false, nil
}

func (s *stubLifecycleService) CleanupToken(context.Context, core.CleanupTokenRequest) error {
	return nil
}

func (s *stubLifecycleService) GetOperation(_ context.Context, id string) (core.Operation, error) {
	s.gets++
	return core.Operation{ID: id, Status: core.OperationStatusPending}, nil
}

func (s *stubLifecycleService) ListOperations(context.Context, core.OperationListFilter) (core.OperationPage, error) {
	return core.OperationPage{}, nil
}

func (s *stubLifecycleService) LockStatus(context.Context, core.LockStatusRequest) (core.LockStatus, error) {
	return core.LockStatus{}, nil
}
