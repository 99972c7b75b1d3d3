package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[CreateOperationMessage]      = (*CreateOperationCommand)(nil)
	_ gocmd.Commander[MarkProcessingMessage]       = (*MarkProcessingCommand)(nil)
	_ gocmd.Commander[CompleteOperationMessage]    = (*CompleteOperationCommand)(nil)
	_ gocmd.Commander[FailOperationMessage]        = (*FailOperationCommand)(nil)
	_ gocmd.Commander[CancelOperationMessage]      = (*CancelOperationCommand)(nil)
	_ gocmd.Commander[UpdateProgressMessage]       = (*UpdateProgressCommand)(nil)
	_ gocmd.Commander[AcquireLockMessage]          = (*AcquireLockCommand)(nil)
	_ gocmd.Commander[ReleaseLockMessage]          = (*ReleaseLockCommand)(nil)
	_ gocmd.Commander[ForceReleaseLockMessage]     = (*ForceReleaseLockCommand)(nil)
	_ gocmd.Commander[RegisterCancellationMessage] = (*RegisterCancellationCommand)(nil)
	_ gocmd.Commander[ConsumeCancellationMessage]  = (*ConsumeCancellationCommand)(nil)
	_ gocmd.Commander[CancelTokenMessage]          = (*CancelTokenCommand)(nil)
	_ gocmd.Commander[CleanupTokenMessage]         = (*CleanupTokenCommand)(nil)
)
