package sqlstore

import (
	"time"

	"github.com/goliatone/go-lifecycle/core"
)

func newOperationRecord(op core.Operation) *operationRecord {
	record := &operationRecord{
		ID:          op.ID,
		Function:    op.Function,
		FnVersion:   op.FnVersion,
		OwnerID:     op.OwnerID,
		Status:      string(op.Status),
		Progress:    cloneFloatPointer(op.Progress),
		Result:      copyAnyMap(op.Result),
		Errors:      copyOperationErrors(op.Errors),
		Metadata:    copyAnyMap(op.Metadata),
		CallbackURL: op.CallbackURL,
		Version:     op.Version,
		StartedAt:   cloneTimePointer(op.StartedAt),
		CompletedAt: cloneTimePointer(op.CompletedAt),
		CancelledAt: cloneTimePointer(op.CancelledAt),
		CreatedAt:   op.CreatedAt,
		UpdatedAt:   op.UpdatedAt,
	}
	if record.Metadata == nil {
		record.Metadata = map[string]any{}
	}
	if !op.ExpiresAt.IsZero() {
		expiresAt := op.ExpiresAt.UTC()
		record.ExpiresAt = &expiresAt
	}
	return record
}

func (r *operationRecord) toDomain() core.Operation {
	if r == nil {
		return core.Operation{}
	}
	operation := core.Operation{
		ID:          r.ID,
		Function:    r.Function,
		FnVersion:   r.FnVersion,
		OwnerID:     r.OwnerID,
		Status:      core.OperationStatus(r.Status),
		Progress:    cloneFloatPointer(r.Progress),
		Result:      copyAnyMap(r.Result),
		Errors:      copyOperationErrors(r.Errors),
		Metadata:    copyAnyMap(r.Metadata),
		CallbackURL: r.CallbackURL,
		Version:     r.Version,
		StartedAt:   cloneTimePointer(r.StartedAt),
		CompletedAt: cloneTimePointer(r.CompletedAt),
		CancelledAt: cloneTimePointer(r.CancelledAt),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.ExpiresAt != nil {
		operation.ExpiresAt = r.ExpiresAt.UTC()
	}
	return operation
}

func copyOperationErrors(in []core.OperationError) []core.OperationError {
	if len(in) == 0 {
		return nil
	}
	out := make([]core.OperationError, 0, len(in))
	for _, item := range in {
		cloned := item
		if len(item.Details) > 0 {
			cloned.Details = copyAnyMap(item.Details)
		} else {
			cloned.Details = nil
		}
		out = append(out, cloned)
	}
	return out
}

func copyAnyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func cloneTimePointer(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := input.UTC()
	return &value
}

func cloneFloatPointer(input *float64) *float64 {
	if input == nil {
		return nil
	}
	value := *input
	return &value
}
