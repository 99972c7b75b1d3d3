package query

import (
	"strings"

	"github.com/goliatone/go-lifecycle/core"
)

const (
	TypeGetOperation   = "lifecycle.query.operation.get"
	TypeListOperations = "lifecycle.query.operation.list"
	TypeLockStatus     = "lifecycle.query.lock.status"
)

type GetOperationMessage struct {
	ID string
}

func (GetOperationMessage) Type() string { return TypeGetOperation }

func (m GetOperationMessage) Validate() error {
	id := strings.TrimSpace(m.ID)
	if id == "" {
		return queryInvalidInputError("query: operation id is required")
	}
	if !core.ValidOperationID(id) {
		return queryInvalidInputError("query: operation id is malformed")
	}
	return nil
}

type ListOperationsMessage struct {
	Filter core.OperationListFilter
}

func (ListOperationsMessage) Type() string { return TypeListOperations }

func (m ListOperationsMessage) Validate() error {
	if m.Filter.Limit < 0 {
		return queryInvalidInputError("query: limit must be >= 0")
	}
	if m.Filter.Status != "" && !m.Filter.Status.Valid() {
		return queryInvalidInputError("query: unknown operation status")
	}
	return nil
}

type LockStatusMessage struct {
	Request core.LockStatusRequest
}

func (LockStatusMessage) Type() string { return TypeLockStatus }

func (m LockStatusMessage) Validate() error {
	if strings.TrimSpace(m.Request.Key) == "" {
		return queryInvalidInputError("query: lock key is required")
	}
	if m.Request.Scope == core.LockScopeFunction && strings.TrimSpace(m.Request.Function) == "" {
		return queryInvalidInputError("query: function is required for function scoped locks")
	}
	return nil
}
