package core

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// collidingSaveStore forces insert collisions to exercise the id retry
// loop.
type collidingSaveStore struct {
	OperationStore
	collisions int
	attempts   int
}

func (s *collidingSaveStore) Save(ctx context.Context, op Operation, expectedVersion int64) (Operation, error) {
	if expectedVersion == 0 && s.attempts < s.collisions {
		s.attempts++
		return Operation{}, fmt.Errorf("%w: id %q", ErrOperationExists, op.ID)
	}
	return s.OperationStore.Save(ctx, op, expectedVersion)
}

// staleFindStore always serves a fixed snapshot so compare and swap runs
// against an outdated version.
type staleFindStore struct {
	OperationStore
	stale Operation
}

func (s *staleFindStore) Find(context.Context, string) (Operation, error) {
	return CloneOperation(s.stale), nil
}

func TestCreateOperation_ReturnsTicketAndPersistsPending(t *testing.T) {
	ctx := context.Background()
	frozen := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := newManualClock(frozen)
	svc := newTestService(t, WithClock(clock.Now))

	ticket, err := svc.CreateOperation(ctx, CreateOperationRequest{
		Function:  "export",
		FnVersion: "v2",
		OwnerID:   "usr_1",
		Caller:    Identity{Subject: "usr_1"},
		Metadata:  map[string]any{"format": "csv"},
	})
	if err != nil {
		t.Fatalf("create operation: %v", err)
	}
	if !ValidOperationID(ticket.ID) {
		t.Fatalf("expected well formed operation id, got %q", ticket.ID)
	}
	if ticket.Status != OperationStatusPending {
		t.Fatalf("expected pending ticket, got %q", ticket.Status)
	}
	if ticket.Poll.Href != "/operations/"+ticket.ID {
		t.Fatalf("expected poll href, got %q", ticket.Poll.Href)
	}
	if ticket.Poll.RetryAfterSeconds != 2 {
		t.Fatalf("expected default retry_after 2, got %d", ticket.Poll.RetryAfterSeconds)
	}

	op, err := svc.GetOperation(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("get operation: %v", err)
	}
	if op.Status != OperationStatusPending {
		t.Fatalf("expected pending operation, got %q", op.Status)
	}
	if op.Function != "export" || op.FnVersion != "v2" || op.OwnerID != "usr_1" {
		t.Fatalf("expected request fields persisted, got %+v", op)
	}
	if op.Metadata["format"] != "csv" {
		t.Fatalf("expected metadata persisted, got %v", op.Metadata)
	}
	if op.Version != 1 {
		t.Fatalf("expected fresh operation at version 1, got %d", op.Version)
	}
	if !op.CreatedAt.Equal(frozen) {
		t.Fatalf("expected created_at from service clock, got %v", op.CreatedAt)
	}
	if !op.ExpiresAt.Equal(frozen.Add(time.Hour)) {
		t.Fatalf("expected default 1h ttl, got %v", op.ExpiresAt)
	}
}

func TestCreateOperation_GeneratedIDsAreWellFormedAndUnique(t *testing.T) {
	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		id, err := generateOperationID()
		if err != nil {
			t.Fatalf("generate id: %v", err)
		}
		if !ValidOperationID(id) {
			t.Fatalf("expected canonical id form, got %q", id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id generated: %q", id)
		}
		seen[id] = struct{}{}
	}
}

func TestValidOperationID_RejectsMalformedIDs(t *testing.T) {
	bad := []string{
		"",
		"op_",
		"op_4f1d2c3b4a5968778695a4b",
		"op_4f1d2c3b4a5968778695a4b3f",
		"OP_4f1d2c3b4a5968778695a4b3",
		"op_4F1D2C3B4A5968778695A4B3",
		"op_4f1d2c3b4a5968778695a4bg",
		"xx_4f1d2c3b4a5968778695a4b3",
		" op_4f1d2c3b4a5968778695a4b3",
	}
	for _, id := range bad {
		if ValidOperationID(id) {
			t.Fatalf("expected %q to be rejected", id)
		}
	}
	if !ValidOperationID("op_4f1d2c3b4a5968778695a4b3") {
		t.Fatalf("expected canonical id to be accepted")
	}
}

func TestCreateOperation_EnforcesOwnerQuota(t *testing.T) {
	ctx := context.Background()
	quotaSvc, err := NewService(Config{Operations: OperationsConfig{MaxActivePerOwner: 2}},
		WithLogger(stubLogger{}),
		WithLoggerProvider(stubLoggerProvider{logger: stubLogger{}}),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	var lastTicket OperationTicket
	for i := 0; i < 2; i++ {
		lastTicket, err = quotaSvc.CreateOperation(ctx, CreateOperationRequest{
			Function: "export",
			OwnerID:  "usr_1",
			Caller:   Identity{Subject: "usr_1"},
		})
		if err != nil {
			t.Fatalf("create %d under quota: %v", i, err)
		}
	}

	_, err = quotaSvc.CreateOperation(ctx, CreateOperationRequest{
		Function: "export",
		OwnerID:  "usr_1",
		Caller:   Identity{Subject: "usr_1"},
	})
	if err == nil {
		t.Fatalf("expected quota rejection")
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected go-errors type, got %T", err)
	}
	if richErr.TextCode != LifecycleErrorQuotaExceeded {
		t.Fatalf("expected quota text code, got %q", richErr.TextCode)
	}
	if richErr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", richErr.Code)
	}

	// Other owners are unaffected by a full quota.
	if _, err = quotaSvc.CreateOperation(ctx, CreateOperationRequest{
		Function: "export",
		OwnerID:  "usr_2",
		Caller:   Identity{Subject: "usr_2"},
	}); err != nil {
		t.Fatalf("expected other owner to create freely: %v", err)
	}

	// Finishing an operation frees quota.
	if _, err = quotaSvc.CompleteOperation(ctx, CompleteOperationRequest{
		ID:     lastTicket.ID,
		Caller: Identity{Subject: "usr_1"},
	}); err != nil {
		t.Fatalf("complete operation: %v", err)
	}
	if _, err = quotaSvc.CreateOperation(ctx, CreateOperationRequest{
		Function: "export",
		OwnerID:  "usr_1",
		Caller:   Identity{Subject: "usr_1"},
	}); err != nil {
		t.Fatalf("expected create after completion to pass quota: %v", err)
	}
}

func TestCreateOperation_RejectsOversizedMetadata(t *testing.T) {
	ctx := context.Background()
	svc, err := NewService(Config{Operations: OperationsConfig{MetadataMaxBytes: 64}},
		WithLogger(stubLogger{}),
		WithLoggerProvider(stubLoggerProvider{logger: stubLogger{}}),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	_, err = svc.CreateOperation(ctx, CreateOperationRequest{
		Function: "export",
		Metadata: map[string]any{
			"blob": "this metadata payload is far larger than the sixty four byte limit",
		},
	})
	if err == nil {
		t.Fatalf("expected oversized metadata rejection")
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected go-errors type, got %T", err)
	}
	if richErr.TextCode != LifecycleErrorBadInput {
		t.Fatalf("expected bad input code, got %q", richErr.TextCode)
	}
}

func TestCreateOperation_RejectsInvalidFunctionName(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	for _, function := range []string{"", "bad::name", "spaced name", "emoji✨"} {
		_, err := svc.CreateOperation(ctx, CreateOperationRequest{Function: function})
		if err == nil {
			t.Fatalf("expected function %q to be rejected", function)
		}
		var richErr *goerrors.Error
		if !goerrors.As(err, &richErr) {
			t.Fatalf("expected go-errors type, got %T", err)
		}
		if richErr.TextCode != LifecycleErrorBadInput {
			t.Fatalf("function %q: expected bad input, got %q", function, richErr.TextCode)
		}
	}
}

func TestCreateOperation_ClampsTTLWithinBounds(t *testing.T) {
	ctx := context.Background()
	frozen := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	svc := newTestService(t, WithClock(newManualClock(frozen).Now))

	cases := []struct {
		name     string
		ttl      time.Duration
		expected time.Duration
	}{
		{"default", 0, time.Hour},
		{"below_floor", 10 * time.Second, 60 * time.Second},
		{"above_ceiling", 30 * 24 * time.Hour, 24 * time.Hour},
		{"within_bounds", 2 * time.Hour, 2 * time.Hour},
	}
	for _, tc := range cases {
		ticket, err := svc.CreateOperation(ctx, CreateOperationRequest{Function: "export", TTL: tc.ttl})
		if err != nil {
			t.Fatalf("%s: create operation: %v", tc.name, err)
		}
		op, err := svc.GetOperation(ctx, ticket.ID)
		if err != nil {
			t.Fatalf("%s: get operation: %v", tc.name, err)
		}
		if !op.ExpiresAt.Equal(frozen.Add(tc.expected)) {
			t.Fatalf("%s: expected expiry %v after create, got %v", tc.name, tc.expected, op.ExpiresAt.Sub(frozen))
		}
	}
}

func TestCreateOperation_RetriesIDCollisions(t *testing.T) {
	ctx := context.Background()
	store := &collidingSaveStore{OperationStore: NewMemoryOperationStore(), collisions: 2}
	svc := newTestService(t, WithOperationStore(store))

	ticket, err := svc.CreateOperation(ctx, CreateOperationRequest{Function: "export"})
	if err != nil {
		t.Fatalf("expected create to survive collisions: %v", err)
	}
	if store.attempts != 2 {
		t.Fatalf("expected 2 colliding attempts before success, got %d", store.attempts)
	}
	if !ValidOperationID(ticket.ID) {
		t.Fatalf("expected valid id after retries, got %q", ticket.ID)
	}
}

func TestCreateOperation_GivesUpAfterMaxIDAttempts(t *testing.T) {
	ctx := context.Background()
	store := &collidingSaveStore{OperationStore: NewMemoryOperationStore(), collisions: 100}
	svc, err := NewService(Config{Operations: OperationsConfig{IDMaxAttempts: 3}},
		WithLogger(stubLogger{}),
		WithLoggerProvider(stubLoggerProvider{logger: stubLogger{}}),
		WithOperationStore(store),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	_, err = svc.CreateOperation(ctx, CreateOperationRequest{Function: "export"})
	if err == nil {
		t.Fatalf("expected id exhaustion error")
	}
	if store.attempts != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", store.attempts)
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected go-errors type, got %T", err)
	}
	if richErr.TextCode != LifecycleErrorInternal {
		t.Fatalf("expected internal code, got %q", richErr.TextCode)
	}
}

func TestListOperations_FiltersAndPaginates(t *testing.T) {
	ctx := context.Background()
	frozen := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(t, WithClock(newManualClock(frozen).Now))

	ids := make([]string, 0, 5)
	for i := 0; i < 3; i++ {
		ticket, err := svc.CreateOperation(ctx, CreateOperationRequest{Function: "export", OwnerID: "usr_1", Caller: Identity{Subject: "usr_1"}})
		if err != nil {
			t.Fatalf("create export op: %v", err)
		}
		ids = append(ids, ticket.ID)
	}
	for i := 0; i < 2; i++ {
		ticket, err := svc.CreateOperation(ctx, CreateOperationRequest{Function: "import", OwnerID: "usr_2", Caller: Identity{Subject: "usr_2"}})
		if err != nil {
			t.Fatalf("create import op: %v", err)
		}
		ids = append(ids, ticket.ID)
	}
	sort.Strings(ids)

	page, err := svc.ListOperations(ctx, OperationListFilter{Limit: 3})
	if err != nil {
		t.Fatalf("list page 1: %v", err)
	}
	if len(page.Items) != 3 || !page.HasMore || page.NextCursor == "" {
		t.Fatalf("expected full first page with cursor, got %d items, more=%v", len(page.Items), page.HasMore)
	}
	for index, item := range page.Items {
		if item.ID != ids[index] {
			t.Fatalf("expected deterministic order, got %q at %d, want %q", item.ID, index, ids[index])
		}
	}

	page2, err := svc.ListOperations(ctx, OperationListFilter{Limit: 3, Cursor: page.NextCursor})
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(page2.Items) != 2 || page2.HasMore {
		t.Fatalf("expected final page of 2, got %d items, more=%v", len(page2.Items), page2.HasMore)
	}

	byFunction, err := svc.ListOperations(ctx, OperationListFilter{Function: "import"})
	if err != nil {
		t.Fatalf("list by function: %v", err)
	}
	if len(byFunction.Items) != 2 {
		t.Fatalf("expected 2 import operations, got %d", len(byFunction.Items))
	}

	if _, err = svc.CompleteOperation(ctx, CompleteOperationRequest{ID: byFunction.Items[0].ID, Caller: Identity{Subject: "usr_2"}}); err != nil {
		t.Fatalf("complete operation: %v", err)
	}
	active, err := svc.ListOperations(ctx, OperationListFilter{Function: "import", Active: true})
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active.Items) != 1 {
		t.Fatalf("expected 1 active import operation, got %d", len(active.Items))
	}

	if _, err = svc.ListOperations(ctx, OperationListFilter{Status: OperationStatus("weird")}); err == nil {
		t.Fatalf("expected invalid status filter to be rejected")
	}
}

func TestOperationLifecycle_ProcessingToCompleted(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	caller := Identity{Subject: "usr_1"}

	ticket, err := svc.CreateOperation(ctx, CreateOperationRequest{Function: "export", OwnerID: "usr_1", Caller: caller})
	if err != nil {
		t.Fatalf("create operation: %v", err)
	}

	processing, err := svc.MarkProcessing(ctx, MarkProcessingRequest{ID: ticket.ID, Caller: caller})
	if err != nil {
		t.Fatalf("mark processing: %v", err)
	}
	if processing.Status != OperationStatusProcessing || processing.StartedAt == nil {
		t.Fatalf("expected processing with started_at, got %+v", processing)
	}
	if processing.Version != 2 {
		t.Fatalf("expected version bump to 2, got %d", processing.Version)
	}

	completed, err := svc.CompleteOperation(ctx, CompleteOperationRequest{
		ID:     ticket.ID,
		Caller: caller,
		Result: map[string]any{"rows": 42},
	})
	if err != nil {
		t.Fatalf("complete operation: %v", err)
	}
	if completed.Status != OperationStatusCompleted {
		t.Fatalf("expected completed, got %q", completed.Status)
	}
	if completed.Result["rows"] != 42 {
		t.Fatalf("expected result persisted, got %v", completed.Result)
	}
	if completed.Progress == nil || *completed.Progress != 1.0 {
		t.Fatalf("expected progress 1.0 on completion, got %v", completed.Progress)
	}
}

func TestOperationLifecycle_TerminalStatesAreImmutable(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	caller := Identity{Subject: "usr_1"}

	ticket, err := svc.CreateOperation(ctx, CreateOperationRequest{Function: "export", OwnerID: "usr_1", Caller: caller})
	if err != nil {
		t.Fatalf("create operation: %v", err)
	}
	if _, err = svc.CompleteOperation(ctx, CompleteOperationRequest{ID: ticket.ID, Caller: caller, Result: map[string]any{"rows": 7}}); err != nil {
		t.Fatalf("complete operation: %v", err)
	}
	before, err := svc.GetOperation(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("get operation: %v", err)
	}

	attempts := []func() error{
		func() error { _, e := svc.MarkProcessing(ctx, MarkProcessingRequest{ID: ticket.ID, Caller: caller}); return e },
		func() error { _, e := svc.CompleteOperation(ctx, CompleteOperationRequest{ID: ticket.ID, Caller: caller}); return e },
		func() error { _, e := svc.FailOperation(ctx, FailOperationRequest{ID: ticket.ID, Caller: caller}); return e },
		func() error { _, e := svc.CancelOperation(ctx, CancelOperationRequest{ID: ticket.ID, Caller: caller}); return e },
		func() error {
			_, e := svc.UpdateProgress(ctx, UpdateProgressRequest{ID: ticket.ID, Caller: caller, Progress: 0.5})
			return e
		},
	}
	for index, attempt := range attempts {
		err := attempt()
		if err == nil {
			t.Fatalf("attempt %d: expected terminal operation to reject mutation", index)
		}
		var richErr *goerrors.Error
		if !goerrors.As(err, &richErr) {
			t.Fatalf("attempt %d: expected go-errors type, got %T", index, err)
		}
		if richErr.Code != http.StatusConflict {
			t.Fatalf("attempt %d: expected 409 conflict, got %d", index, richErr.Code)
		}
	}

	after, err := svc.GetOperation(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("get operation after attempts: %v", err)
	}
	if after.Status != before.Status || after.Version != before.Version {
		t.Fatalf("expected terminal operation unchanged, before=%+v after=%+v", before, after)
	}
	if after.Result["rows"] != 7 {
		t.Fatalf("expected stored result untouched, got %v", after.Result)
	}
	if !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Fatalf("expected updated_at untouched, got %v vs %v", after.UpdatedAt, before.UpdatedAt)
	}
}

func TestFailOperation_DefaultsErrorPayload(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	ticket, err := svc.CreateOperation(ctx, CreateOperationRequest{Function: "export"})
	if err != nil {
		t.Fatalf("create operation: %v", err)
	}
	failed, err := svc.FailOperation(ctx, FailOperationRequest{ID: ticket.ID})
	if err != nil {
		t.Fatalf("fail operation: %v", err)
	}
	if len(failed.Errors) != 1 || failed.Errors[0].Code != "unknown" {
		t.Fatalf("expected default error payload, got %v", failed.Errors)
	}
	if failed.CompletedAt == nil {
		t.Fatalf("expected completed_at on failure")
	}
}

func TestCancelOperation_RecordsReason(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	ticket, err := svc.CreateOperation(ctx, CreateOperationRequest{Function: "export"})
	if err != nil {
		t.Fatalf("create operation: %v", err)
	}
	cancelled, err := svc.CancelOperation(ctx, CancelOperationRequest{ID: ticket.ID, Reason: "user asked"})
	if err != nil {
		t.Fatalf("cancel operation: %v", err)
	}
	if cancelled.Status != OperationStatusCancelled || cancelled.CancelledAt == nil {
		t.Fatalf("expected cancelled with timestamp, got %+v", cancelled)
	}
	if cancelled.Metadata["cancel_reason"] != "user asked" {
		t.Fatalf("expected cancel reason in metadata, got %v", cancelled.Metadata)
	}
}

func TestOperationMutation_EnforcesOwnership(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	ticket, err := svc.CreateOperation(ctx, CreateOperationRequest{Function: "export", OwnerID: "usr_1", Caller: Identity{Subject: "usr_1"}})
	if err != nil {
		t.Fatalf("create operation: %v", err)
	}

	_, err = svc.CancelOperation(ctx, CancelOperationRequest{ID: ticket.ID, Caller: Identity{Subject: "usr_2"}})
	if err == nil {
		t.Fatalf("expected foreign caller to be rejected")
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected go-errors type, got %T", err)
	}
	if richErr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", richErr.Code)
	}

	// Admin bypasses ownership.
	if _, err = svc.CancelOperation(ctx, CancelOperationRequest{ID: ticket.ID, Caller: Identity{Subject: "ops", Admin: true}}); err != nil {
		t.Fatalf("expected admin cancel to pass: %v", err)
	}
}

func TestUpdateProgress_MonotonicClampedAndMessageTruncated(t *testing.T) {
	ctx := context.Background()
	frozen := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc, err := NewService(Config{Operations: OperationsConfig{ProgressMessageMaxLen: 10}},
		WithLogger(stubLogger{}),
		WithLoggerProvider(stubLoggerProvider{logger: stubLogger{}}),
		WithClock(newManualClock(frozen).Now),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	ticket, err := svc.CreateOperation(ctx, CreateOperationRequest{Function: "export"})
	if err != nil {
		t.Fatalf("create operation: %v", err)
	}
	if _, err = svc.MarkProcessing(ctx, MarkProcessingRequest{ID: ticket.ID}); err != nil {
		t.Fatalf("mark processing: %v", err)
	}

	updated, err := svc.UpdateProgress(ctx, UpdateProgressRequest{ID: ticket.ID, Progress: 0.4, Message: "reading source rows"})
	if err != nil {
		t.Fatalf("update progress: %v", err)
	}
	if updated.Progress == nil || *updated.Progress != 0.4 {
		t.Fatalf("expected progress 0.4, got %v", updated.Progress)
	}
	if updated.Metadata["progress_message"] != "reading so" {
		t.Fatalf("expected truncated message, got %v", updated.Metadata["progress_message"])
	}
	if updated.Metadata["progress_message_at"] != frozen.Format(time.RFC3339) {
		t.Fatalf("expected message timestamp, got %v", updated.Metadata["progress_message_at"])
	}

	// A repeat of the same value is allowed, a regression is not.
	if _, err = svc.UpdateProgress(ctx, UpdateProgressRequest{ID: ticket.ID, Progress: 0.4}); err != nil {
		t.Fatalf("expected equal progress to be accepted: %v", err)
	}
	_, err = svc.UpdateProgress(ctx, UpdateProgressRequest{ID: ticket.ID, Progress: 0.1})
	if err == nil {
		t.Fatalf("expected progress regression to be rejected")
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected go-errors type, got %T", err)
	}
	if richErr.Code != http.StatusConflict {
		t.Fatalf("expected 409 for regression, got %d", richErr.Code)
	}

	// The rejected write must leave the stored record untouched.
	current, err := svc.GetOperation(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("get operation: %v", err)
	}
	if current.Progress == nil || *current.Progress != 0.4 {
		t.Fatalf("expected stored progress 0.4 after rejection, got %v", current.Progress)
	}

	// Out of range values clamp to [0, 1].
	updated, err = svc.UpdateProgress(ctx, UpdateProgressRequest{ID: ticket.ID, Progress: 4.2})
	if err != nil {
		t.Fatalf("update with overshoot: %v", err)
	}
	if updated.Progress == nil || *updated.Progress != 1.0 {
		t.Fatalf("expected clamp to 1.0, got %v", updated.Progress)
	}
}

func TestOperationMutation_SurfacesVersionConflict(t *testing.T) {
	ctx := context.Background()
	memory := NewMemoryOperationStore()

	seed := Operation{
		ID:       "op_4f1d2c3b4a5968778695a4b3",
		Function: "export",
		Status:   OperationStatusPending,
	}
	stored, err := memory.Save(ctx, seed, 0)
	if err != nil {
		t.Fatalf("seed operation: %v", err)
	}
	stale := CloneOperation(stored)

	// Another writer advances the stored version past the snapshot.
	bumped := CloneOperation(stored)
	if err := bumped.TransitionTo(OperationStatusProcessing, time.Now().UTC()); err != nil {
		t.Fatalf("bump transition: %v", err)
	}
	if _, err := memory.Save(ctx, bumped, stored.Version); err != nil {
		t.Fatalf("bump save: %v", err)
	}

	svc := newTestService(t, WithOperationStore(&staleFindStore{OperationStore: memory, stale: stale}))
	_, err = svc.MarkProcessing(ctx, MarkProcessingRequest{ID: seed.ID})
	if err == nil {
		t.Fatalf("expected version conflict")
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected go-errors type, got %T", err)
	}
	if richErr.TextCode != LifecycleErrorVersionConflict {
		t.Fatalf("expected version conflict code, got %q", richErr.TextCode)
	}
	if richErr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", richErr.Code)
	}
}
