package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	LifecycleErrorBadInput         = "LIFECYCLE_BAD_INPUT"
	LifecycleErrorNotFound         = "LIFECYCLE_NOT_FOUND"
	LifecycleErrorStateConflict    = "LIFECYCLE_STATE_CONFLICT"
	LifecycleErrorVersionConflict  = "LIFECYCLE_VERSION_CONFLICT"
	LifecycleErrorQuotaExceeded    = "LIFECYCLE_QUOTA_EXCEEDED"
	LifecycleErrorLockHeld         = "LIFECYCLE_LOCK_HELD"
	LifecycleErrorLockTimeout      = "LIFECYCLE_LOCK_TIMEOUT"
	LifecycleErrorPermissionDenied = "LIFECYCLE_PERMISSION_DENIED"
	LifecycleErrorCallbackRejected = "LIFECYCLE_CALLBACK_REJECTED"
	LifecycleErrorInternal         = "LIFECYCLE_INTERNAL_ERROR"
)

func lifecycleErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureLifecycleErrorEnvelope(richErr)
	}

	switch {
	case errors.Is(err, ErrOperationNotFound), errors.Is(err, ErrLockNotFound):
		return newLifecycleError(err.Error(), goerrors.CategoryNotFound, LifecycleErrorNotFound)
	case errors.Is(err, ErrInvalidOperationStatusTransition):
		return newLifecycleError(err.Error(), goerrors.CategoryConflict, LifecycleErrorStateConflict)
	case errors.Is(err, ErrOperationVersionConflict):
		return newLifecycleError(err.Error(), goerrors.CategoryConflict, LifecycleErrorVersionConflict)
	case errors.Is(err, ErrOperationExists):
		return newLifecycleError(err.Error(), goerrors.CategoryConflict, LifecycleErrorStateConflict)
	case errors.Is(err, ErrProgressNotMonotonic):
		return newLifecycleError(err.Error(), goerrors.CategoryConflict, LifecycleErrorStateConflict)
	case errors.Is(err, ErrOwnerQuotaExceeded):
		return newLifecycleError(err.Error(), goerrors.CategoryRateLimit, LifecycleErrorQuotaExceeded)
	case errors.Is(err, ErrLockAlreadyHeld), errors.Is(err, ErrLockOwnerMismatch):
		return newLifecycleError(err.Error(), goerrors.CategoryConflict, LifecycleErrorLockHeld)
	case errors.Is(err, ErrLockAcquireTimeout):
		return newLifecycleError(err.Error(), goerrors.CategoryConflict, LifecycleErrorLockTimeout)
	case errors.Is(err, ErrOperationOwnerMismatch), errors.Is(err, ErrForceReleaseDenied):
		return newLifecycleError(err.Error(), goerrors.CategoryAuthz, LifecycleErrorPermissionDenied)
	case errors.Is(err, ErrCallbackURLRejected):
		return newLifecycleError(err.Error(), goerrors.CategoryBadInput, LifecycleErrorCallbackRejected)
	case errors.Is(err, ErrInvalidOperationID), errors.Is(err, ErrInvalidFunctionName),
		errors.Is(err, ErrInvalidLockKey), errors.Is(err, ErrInvalidCancellationToken),
		errors.Is(err, ErrMetadataTooLarge):
		return newLifecycleError(err.Error(), goerrors.CategoryBadInput, LifecycleErrorBadInput)
	case errors.Is(err, ErrOperationIDExhausted):
		return newLifecycleError(err.Error(), goerrors.CategoryInternal, LifecycleErrorInternal)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "not found"):
		return newLifecycleError(err.Error(), goerrors.CategoryNotFound, LifecycleErrorNotFound)
	case strings.Contains(msg, "quota"):
		return newLifecycleError(err.Error(), goerrors.CategoryRateLimit, LifecycleErrorQuotaExceeded)
	case strings.Contains(msg, "lock already held"), strings.Contains(msg, "already locked"):
		return newLifecycleError(err.Error(), goerrors.CategoryConflict, LifecycleErrorLockHeld)
	case strings.Contains(msg, "version conflict"), strings.Contains(msg, "transition"):
		return newLifecycleError(err.Error(), goerrors.CategoryConflict, LifecycleErrorStateConflict)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return newLifecycleError(err.Error(), goerrors.CategoryBadInput, LifecycleErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureLifecycleErrorEnvelope(mapped)
}

func newLifecycleError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureLifecycleErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureLifecycleErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = lifecycleHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultLifecycleTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultLifecycleTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return LifecycleErrorBadInput
	case goerrors.CategoryNotFound:
		return LifecycleErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return LifecycleErrorPermissionDenied
	case goerrors.CategoryConflict:
		return LifecycleErrorStateConflict
	case goerrors.CategoryRateLimit:
		return LifecycleErrorQuotaExceeded
	default:
		return LifecycleErrorInternal
	}
}

func lifecycleHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
