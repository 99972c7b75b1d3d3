package query

import (
	"context"

	"github.com/goliatone/go-lifecycle/core"
)

type OperationReader interface {
	GetOperation(ctx context.Context, id string) (core.Operation, error)
	ListOperations(ctx context.Context, filter core.OperationListFilter) (core.OperationPage, error)
}

type LockStatusReader interface {
	LockStatus(ctx context.Context, req core.LockStatusRequest) (core.LockStatus, error)
}

type GetOperationQuery struct {
	reader OperationReader
}

func NewGetOperationQuery(reader OperationReader) *GetOperationQuery {
	return &GetOperationQuery{reader: reader}
}

func (q *GetOperationQuery) Query(ctx context.Context, msg GetOperationMessage) (core.Operation, error) {
	if q == nil || q.reader == nil {
		return core.Operation{}, queryDependencyError("query: operation reader is required")
	}
	return q.reader.GetOperation(ctx, msg.ID)
}

type ListOperationsQuery struct {
	reader OperationReader
}

func NewListOperationsQuery(reader OperationReader) *ListOperationsQuery {
	return &ListOperationsQuery{reader: reader}
}

func (q *ListOperationsQuery) Query(ctx context.Context, msg ListOperationsMessage) (core.OperationPage, error) {
	if q == nil || q.reader == nil {
		return core.OperationPage{}, queryDependencyError("query: operation reader is required")
	}
	return q.reader.ListOperations(ctx, msg.Filter)
}

type LockStatusQuery struct {
	reader LockStatusReader
}

func NewLockStatusQuery(reader LockStatusReader) *LockStatusQuery {
	return &LockStatusQuery{reader: reader}
}

func (q *LockStatusQuery) Query(ctx context.Context, msg LockStatusMessage) (core.LockStatus, error) {
	if q == nil || q.reader == nil {
		return core.LockStatus{}, queryDependencyError("query: lock status reader is required")
	}
	return q.reader.LockStatus(ctx, msg.Request)
}
