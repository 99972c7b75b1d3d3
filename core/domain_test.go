package core

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestOperationTransitionTo_PendingThroughCompleted(t *testing.T) {
	now := time.Now().UTC()
	op := Operation{Status: OperationStatusPending}

	if err := op.TransitionTo(OperationStatusProcessing, now); err != nil {
		t.Fatalf("expected pending->processing to work: %v", err)
	}
	if op.Status != OperationStatusProcessing {
		t.Fatalf("expected processing status, got %q", op.Status)
	}
	if op.StartedAt == nil || !op.StartedAt.Equal(now) {
		t.Fatalf("expected started_at to be stamped, got %v", op.StartedAt)
	}

	later := now.Add(time.Minute)
	if err := op.TransitionTo(OperationStatusCompleted, later); err != nil {
		t.Fatalf("expected processing->completed to work: %v", err)
	}
	if op.CompletedAt == nil || !op.CompletedAt.Equal(later) {
		t.Fatalf("expected completed_at to be stamped, got %v", op.CompletedAt)
	}
	if op.Progress == nil || *op.Progress != 1.0 {
		t.Fatalf("expected progress forced to 1.0 on completion, got %v", op.Progress)
	}
	if op.StartedAt == nil || !op.StartedAt.Equal(now) {
		t.Fatalf("expected started_at to survive completion, got %v", op.StartedAt)
	}
}

func TestOperationTransitionTo_PendingToCancelled(t *testing.T) {
	now := time.Now().UTC()
	op := Operation{Status: OperationStatusPending}

	if err := op.TransitionTo(OperationStatusCancelled, now); err != nil {
		t.Fatalf("expected pending->cancelled to work: %v", err)
	}
	if op.CancelledAt == nil || !op.CancelledAt.Equal(now) {
		t.Fatalf("expected cancelled_at to be stamped, got %v", op.CancelledAt)
	}
	if op.StartedAt != nil {
		t.Fatalf("expected started_at to stay empty for a never started operation")
	}
}

func TestOperationTransitionTo_TerminalStatesRejectEverything(t *testing.T) {
	now := time.Now().UTC()
	terminals := []OperationStatus{
		OperationStatusCompleted,
		OperationStatusFailed,
		OperationStatusCancelled,
	}
	targets := []OperationStatus{
		OperationStatusPending,
		OperationStatusProcessing,
		OperationStatusCompleted,
		OperationStatusFailed,
		OperationStatusCancelled,
	}

	for _, terminal := range terminals {
		for _, target := range targets {
			op := Operation{
				ID:       "op_4f1d2c3b4a5968778695a4b3",
				Status:   terminal,
				Progress: floatPointer(0.5),
				Metadata: map[string]any{"step": "done"},
			}
			before := CloneOperation(op)

			err := op.TransitionTo(target, now)
			if !errors.Is(err, ErrInvalidOperationStatusTransition) {
				t.Fatalf("%s -> %s: expected invalid transition error, got %v", terminal, target, err)
			}
			if !reflect.DeepEqual(op, before) {
				t.Fatalf("%s -> %s: rejected transition mutated the operation: %+v", terminal, target, op)
			}
		}
	}
}

func TestOperationView_ResultOnlyWhenCompleted(t *testing.T) {
	result := map[string]any{"rows": 42}
	failures := []OperationError{{Code: "boom", Message: "it broke"}}

	completed := Operation{
		ID:       "op_4f1d2c3b4a5968778695a4b3",
		Function: "export",
		Status:   OperationStatusCompleted,
		Result:   result,
		Errors:   failures,
	}
	view := completed.View()
	if view.Result == nil {
		t.Fatalf("expected result on completed view")
	}
	if view.Errors != nil {
		t.Fatalf("expected no errors on completed view, got %v", view.Errors)
	}

	failed := completed
	failed.Status = OperationStatusFailed
	view = failed.View()
	if view.Result != nil {
		t.Fatalf("expected no result on failed view, got %v", view.Result)
	}
	if len(view.Errors) != 1 || view.Errors[0].Code != "boom" {
		t.Fatalf("expected failure errors on failed view, got %v", view.Errors)
	}
}

func TestOperationView_OmitsAbsentFieldsFromJSON(t *testing.T) {
	pending := Operation{
		ID:       "op_4f1d2c3b4a5968778695a4b3",
		Function: "export",
		Status:   OperationStatusPending,
	}
	encoded, err := json.Marshal(pending.View())
	if err != nil {
		t.Fatalf("marshal view: %v", err)
	}
	payload := string(encoded)
	for _, forbidden := range []string{"progress", "result", "errors", "started_at", "completed_at", "cancelled_at", "metadata"} {
		if strings.Contains(payload, `"`+forbidden+`"`) {
			t.Fatalf("expected %q to be omitted for a pending operation, got %s", forbidden, payload)
		}
	}
	if strings.Contains(payload, "null") {
		t.Fatalf("expected no null fields in view payload, got %s", payload)
	}
}

func TestCloneOperation_IsolatesMutableState(t *testing.T) {
	started := time.Now().UTC()
	original := Operation{
		ID:        "op_4f1d2c3b4a5968778695a4b3",
		Progress:  floatPointer(0.25),
		Result:    map[string]any{"rows": 10},
		Metadata:  map[string]any{"source": "api"},
		Errors:    []OperationError{{Code: "warn", Message: "slow", Details: map[string]any{"ms": 1200}}},
		StartedAt: &started,
	}

	cloned := CloneOperation(original)
	cloned.Result["rows"] = 99
	cloned.Metadata["source"] = "cli"
	cloned.Errors[0].Details["ms"] = 1
	*cloned.Progress = 0.9
	*cloned.StartedAt = started.Add(time.Hour)

	if original.Result["rows"] != 10 {
		t.Fatalf("expected original result untouched, got %v", original.Result["rows"])
	}
	if original.Metadata["source"] != "api" {
		t.Fatalf("expected original metadata untouched, got %v", original.Metadata["source"])
	}
	if original.Errors[0].Details["ms"] != 1200 {
		t.Fatalf("expected original error details untouched, got %v", original.Errors[0].Details["ms"])
	}
	if *original.Progress != 0.25 {
		t.Fatalf("expected original progress untouched, got %v", *original.Progress)
	}
	if !original.StartedAt.Equal(started) {
		t.Fatalf("expected original started_at untouched, got %v", original.StartedAt)
	}
}

func TestCloneOperation_PreservesNilMaps(t *testing.T) {
	cloned := CloneOperation(Operation{ID: "op_4f1d2c3b4a5968778695a4b3"})
	if cloned.Result != nil {
		t.Fatalf("expected nil result to stay nil, got %v", cloned.Result)
	}
	if cloned.Metadata != nil {
		t.Fatalf("expected nil metadata to stay nil, got %v", cloned.Metadata)
	}
	if cloned.Errors != nil {
		t.Fatalf("expected nil errors to stay nil, got %v", cloned.Errors)
	}
}

func TestIdentityCanActOn(t *testing.T) {
	owner := Identity{Subject: "usr_1"}
	if !owner.CanActOn("usr_1") {
		t.Fatalf("expected owner to act on own resource")
	}
	if owner.CanActOn("usr_2") {
		t.Fatalf("expected non-owner to be rejected")
	}
	if !owner.CanActOn("") {
		t.Fatalf("expected unowned resources to be open")
	}

	admin := Identity{Subject: "ops_1", Admin: true}
	if !admin.CanActOn("usr_2") {
		t.Fatalf("expected admin to bypass ownership")
	}
}

func TestOperationStatus_TerminalAndValid(t *testing.T) {
	for _, status := range []OperationStatus{OperationStatusCompleted, OperationStatusFailed, OperationStatusCancelled} {
		if !status.Terminal() {
			t.Fatalf("expected %q to be terminal", status)
		}
	}
	for _, status := range []OperationStatus{OperationStatusPending, OperationStatusProcessing} {
		if status.Terminal() {
			t.Fatalf("expected %q to be live", status)
		}
	}
	if OperationStatus("paused").Valid() {
		t.Fatalf("expected unknown status to be invalid")
	}
	if !LockScopeFunction.Valid() || !LockScopeGlobal.Valid() || LockScope("tenant").Valid() {
		t.Fatalf("expected exactly function and global lock scopes to be valid")
	}
}

func floatPointer(value float64) *float64 {
	return &value
}
