package core

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	operationIDPrefix      = "op_"
	operationIDRandomBytes = 12

	defaultOperationListLimit = 50
	maxOperationListLimit     = 200
)

// CreateOperation registers a new pending operation and hands back a
// polling ticket. The record is persisted before the ticket is returned,
// so a successful create is always observable through GetOperation.
func (s *Service) CreateOperation(ctx context.Context, req CreateOperationRequest) (ticket OperationTicket, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"function": req.Function,
		"owner_id": req.OwnerID,
	}
	defer func() {
		if ticket.ID != "" {
			fields["operation_id"] = ticket.ID
		}
		s.observeOperation(ctx, startedAt, "create_operation", err, fields)
	}()

	if s == nil || s.operationStore == nil {
		err = s.mapError(fmt.Errorf("core: operation store is required"))
		return OperationTicket{}, err
	}

	function := strings.TrimSpace(req.Function)
	if err = validateFunctionName(function); err != nil {
		err = s.mapError(err)
		return OperationTicket{}, err
	}

	ownerID := strings.TrimSpace(req.OwnerID)
	if ownerID != "" && s.config.Operations.MaxActivePerOwner > 0 {
		active, countErr := s.operationStore.CountActiveByOwner(ctx, ownerID)
		if countErr != nil {
			err = s.mapError(countErr)
			return OperationTicket{}, err
		}
		if active >= s.config.Operations.MaxActivePerOwner {
			err = s.mapError(goerrors.New(
				fmt.Sprintf("owner %q has %d active operations, limit is %d", ownerID, active, s.config.Operations.MaxActivePerOwner),
				goerrors.CategoryRateLimit,
			).WithTextCode(LifecycleErrorQuotaExceeded).WithMetadata(map[string]any{
				"owner_id": ownerID,
				"active":   active,
				"limit":    s.config.Operations.MaxActivePerOwner,
			}))
			return OperationTicket{}, err
		}
	}

	metadata := copyAnyMap(req.Metadata)
	if len(req.Metadata) > 0 {
		encoded, marshalErr := json.Marshal(metadata)
		if marshalErr != nil {
			err = s.mapError(fmt.Errorf("core: operation metadata is not serializable: %w", marshalErr))
			return OperationTicket{}, err
		}
		if maxBytes := s.config.Operations.MetadataMaxBytes; maxBytes > 0 && len(encoded) > maxBytes {
			err = s.mapError(fmt.Errorf("%w: %d bytes, limit is %d", ErrMetadataTooLarge, len(encoded), maxBytes))
			return OperationTicket{}, err
		}
	} else {
		metadata = nil
	}

	callbackURL := strings.TrimSpace(req.CallbackURL)
	if callbackURL != "" {
		if err = s.validateCallbackURL(callbackURL); err != nil {
			err = s.mapError(err)
			return OperationTicket{}, err
		}
	}

	now := s.clock()
	ttl := s.clampOperationTTL(req.TTL)

	operation := Operation{
		Function:    function,
		FnVersion:   strings.TrimSpace(req.FnVersion),
		OwnerID:     ownerID,
		Status:      OperationStatusPending,
		Metadata:    metadata,
		CallbackURL: callbackURL,
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	maxAttempts := s.config.Operations.IDMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	var saved Operation
	for attempt := 0; attempt < maxAttempts; attempt++ {
		id, generateErr := generateOperationID()
		if generateErr != nil {
			err = s.mapError(generateErr)
			return OperationTicket{}, err
		}
		operation.ID = id
		saved, err = s.operationStore.Save(ctx, operation, 0)
		if err == nil {
			break
		}
		if errors.Is(err, ErrOperationExists) {
			saved = Operation{}
			continue
		}
		err = s.mapError(err)
		return OperationTicket{}, err
	}
	if saved.ID == "" {
		err = s.mapError(fmt.Errorf("%w: %d attempts", ErrOperationIDExhausted, maxAttempts))
		return OperationTicket{}, err
	}

	ticket = OperationTicket{
		ID:     saved.ID,
		Status: saved.Status,
		Poll: PollInfo{
			Href:              s.operationPollHref(saved.ID),
			RetryAfterSeconds: s.config.Operations.PollRetryAfterSeconds,
		},
	}
	return ticket, nil
}

func (s *Service) GetOperation(ctx context.Context, id string) (operation Operation, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"operation_id": id,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "get_operation", err, fields)
	}()

	if s == nil || s.operationStore == nil {
		err = s.mapError(fmt.Errorf("core: operation store is required"))
		return Operation{}, err
	}
	id = strings.TrimSpace(id)
	if !ValidOperationID(id) {
		err = s.mapError(fmt.Errorf("%w: %q", ErrInvalidOperationID, id))
		return Operation{}, err
	}
	operation, err = s.operationStore.Find(ctx, id)
	if err != nil {
		err = s.mapError(err)
		return Operation{}, err
	}
	return operation, nil
}

func (s *Service) ListOperations(ctx context.Context, filter OperationListFilter) (page OperationPage, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"function": filter.Function,
		"owner_id": filter.OwnerID,
	}
	defer func() {
		fields["items"] = len(page.Items)
		s.observeOperation(ctx, startedAt, "list_operations", err, fields)
	}()

	if s == nil || s.operationStore == nil {
		err = s.mapError(fmt.Errorf("core: operation store is required"))
		return OperationPage{}, err
	}
	if filter.Status != "" && !filter.Status.Valid() {
		err = s.mapError(fmt.Errorf("core: invalid status filter %q", filter.Status))
		return OperationPage{}, err
	}
	filter.Function = strings.TrimSpace(filter.Function)
	filter.OwnerID = strings.TrimSpace(filter.OwnerID)
	filter.Cursor = strings.TrimSpace(filter.Cursor)
	if filter.Limit <= 0 {
		filter.Limit = defaultOperationListLimit
	}
	if filter.Limit > maxOperationListLimit {
		filter.Limit = maxOperationListLimit
	}

	page, err = s.operationStore.List(ctx, filter)
	if err != nil {
		err = s.mapError(err)
		return OperationPage{}, err
	}
	return page, nil
}

// MarkProcessing transitions a pending operation to processing and stamps
// its start time.
func (s *Service) MarkProcessing(ctx context.Context, req MarkProcessingRequest) (Operation, error) {
	return s.advanceOperation(ctx, "mark_processing", req.ID, req.Caller, func(op *Operation, now time.Time) error {
		return op.TransitionTo(OperationStatusProcessing, now)
	})
}

// CompleteOperation finalizes an operation with its result payload.
func (s *Service) CompleteOperation(ctx context.Context, req CompleteOperationRequest) (Operation, error) {
	return s.advanceOperation(ctx, "complete_operation", req.ID, req.Caller, func(op *Operation, now time.Time) error {
		if err := op.TransitionTo(OperationStatusCompleted, now); err != nil {
			return err
		}
		if len(req.Result) > 0 {
			op.Result = copyAnyMap(req.Result)
		}
		return nil
	})
}

// FailOperation finalizes an operation with one or more recorded errors.
func (s *Service) FailOperation(ctx context.Context, req FailOperationRequest) (Operation, error) {
	return s.advanceOperation(ctx, "fail_operation", req.ID, req.Caller, func(op *Operation, now time.Time) error {
		if err := op.TransitionTo(OperationStatusFailed, now); err != nil {
			return err
		}
		if len(req.Errors) > 0 {
			op.Errors = cloneOperationErrors(req.Errors)
		} else {
			op.Errors = []OperationError{{Code: "unknown", Message: "operation failed"}}
		}
		return nil
	})
}

// CancelOperation moves a pending or processing operation to cancelled.
func (s *Service) CancelOperation(ctx context.Context, req CancelOperationRequest) (Operation, error) {
	return s.advanceOperation(ctx, "cancel_operation", req.ID, req.Caller, func(op *Operation, now time.Time) error {
		if err := op.TransitionTo(OperationStatusCancelled, now); err != nil {
			return err
		}
		if reason := strings.TrimSpace(req.Reason); reason != "" {
			if op.Metadata == nil {
				op.Metadata = map[string]any{}
			}
			op.Metadata["cancel_reason"] = reason
		}
		return nil
	})
}

// UpdateProgress records a monotonic progress value on a live operation.
// Values are clamped to [0, 1] before the monotonicity check, so a clamped
// repeat of the current value is accepted while any decrease is rejected
// without touching the stored record.
func (s *Service) UpdateProgress(ctx context.Context, req UpdateProgressRequest) (Operation, error) {
	return s.advanceOperation(ctx, "update_progress", req.ID, req.Caller, func(op *Operation, now time.Time) error {
		if op.Status.Terminal() {
			return fmt.Errorf("%w: %s -> progress update", ErrInvalidOperationStatusTransition, op.Status)
		}
		progress := clampProgress(req.Progress)
		if op.Progress != nil && progress < *op.Progress {
			return fmt.Errorf("%w: %.4f -> %.4f", ErrProgressNotMonotonic, *op.Progress, progress)
		}
		op.Progress = &progress
		op.UpdatedAt = now
		if message := strings.TrimSpace(req.Message); message != "" {
			if op.Metadata == nil {
				op.Metadata = map[string]any{}
			}
			op.Metadata["progress_message"] = s.truncateProgressMessage(message)
			op.Metadata["progress_message_at"] = now.Format(time.RFC3339)
		}
		return nil
	})
}

// advanceOperation is the shared load, check ownership, mutate, compare
// and swap path for every operation mutation. A version conflict surfaces
// as a conflict error and is never retried here.
func (s *Service) advanceOperation(
	ctx context.Context,
	operationName string,
	id string,
	caller Identity,
	mutate func(op *Operation, now time.Time) error,
) (operation Operation, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"operation_id": id,
	}
	defer func() {
		if operation.Function != "" {
			fields["function"] = operation.Function
		}
		s.observeOperation(ctx, startedAt, operationName, err, fields)
	}()

	if s == nil || s.operationStore == nil {
		err = s.mapError(fmt.Errorf("core: operation store is required"))
		return Operation{}, err
	}
	id = strings.TrimSpace(id)
	if !ValidOperationID(id) {
		err = s.mapError(fmt.Errorf("%w: %q", ErrInvalidOperationID, id))
		return Operation{}, err
	}

	current, err := s.operationStore.Find(ctx, id)
	if err != nil {
		err = s.mapError(err)
		return Operation{}, err
	}
	if !caller.CanActOn(current.OwnerID) {
		err = s.mapError(fmt.Errorf("%w: operation %q belongs to %q", ErrOperationOwnerMismatch, id, current.OwnerID))
		return Operation{}, err
	}

	next := CloneOperation(current)
	if err = mutate(&next, s.clock()); err != nil {
		err = s.mapError(err)
		return Operation{}, err
	}

	operation, err = s.operationStore.Save(ctx, next, current.Version)
	if err != nil {
		err = s.mapError(err)
		return Operation{}, err
	}
	return operation, nil
}

func (s *Service) clampOperationTTL(ttl time.Duration) time.Duration {
	cfg := s.config.Operations
	if ttl <= 0 {
		ttl = time.Duration(cfg.DefaultTTLSeconds) * time.Second
	}
	if floor := time.Duration(cfg.MinTTLSeconds) * time.Second; floor > 0 && ttl < floor {
		ttl = floor
	}
	if ceiling := time.Duration(cfg.MaxTTLSeconds) * time.Second; ceiling > 0 && ttl > ceiling {
		ttl = ceiling
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return ttl
}

func (s *Service) truncateProgressMessage(message string) string {
	maxLen := s.config.Operations.ProgressMessageMaxLen
	if maxLen <= 0 {
		return message
	}
	runes := []rune(message)
	if len(runes) <= maxLen {
		return message
	}
	return string(runes[:maxLen])
}

func (s *Service) operationPollHref(id string) string {
	prefix := strings.TrimSpace(s.config.Operations.PollPathPrefix)
	if prefix == "" {
		prefix = "/operations"
	}
	return strings.TrimRight(prefix, "/") + "/" + id
}

func clampProgress(progress float64) float64 {
	if progress < 0 {
		return 0
	}
	if progress > 1 {
		return 1
	}
	return progress
}

func generateOperationID() (string, error) {
	buf := make([]byte, operationIDRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("core: operation id generation failed: %w", err)
	}
	return operationIDPrefix + hex.EncodeToString(buf), nil
}

// ValidOperationID reports whether id matches the canonical 27 character
// form: the "op_" prefix followed by 24 lowercase hex characters.
func ValidOperationID(id string) bool {
	if len(id) != len(operationIDPrefix)+operationIDRandomBytes*2 {
		return false
	}
	if !strings.HasPrefix(id, operationIDPrefix) {
		return false
	}
	for _, char := range id[len(operationIDPrefix):] {
		switch {
		case char >= '0' && char <= '9':
		case char >= 'a' && char <= 'f':
		default:
			return false
		}
	}
	return true
}

func validateFunctionName(function string) error {
	if function == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidFunctionName)
	}
	if len(function) > maxResourceKeyLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidFunctionName, maxResourceKeyLength)
	}
	if strings.Contains(function, resourceKeyDelimiter) {
		return fmt.Errorf("%w: name must not contain %q", ErrInvalidFunctionName, resourceKeyDelimiter)
	}
	if !validResourceKeyCharset(function) {
		return fmt.Errorf("%w: name contains unsupported characters", ErrInvalidFunctionName)
	}
	return nil
}
