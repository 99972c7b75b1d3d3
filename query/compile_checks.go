package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-lifecycle/core"
)

var (
	_ gocmd.Querier[GetOperationMessage, core.Operation]       = (*GetOperationQuery)(nil)
	_ gocmd.Querier[ListOperationsMessage, core.OperationPage] = (*ListOperationsQuery)(nil)
	_ gocmd.Querier[LockStatusMessage, core.LockStatus]        = (*LockStatusQuery)(nil)
)
