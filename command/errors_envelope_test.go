package command

import (
	"context"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-lifecycle/core"
)

func TestCreateOperationMessage_ValidateReturnsRichError(t *testing.T) {
	err := (CreateOperationMessage{}).Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryBadInput {
		t.Fatalf("expected bad input category, got %q", rich.Category)
	}
	if rich.TextCode != core.LifecycleErrorBadInput {
		t.Fatalf("expected %q text code, got %q", core.LifecycleErrorBadInput, rich.TextCode)
	}
	if rich.Code != 400 {
		t.Fatalf("expected 400 code, got %d", rich.Code)
	}
}

func TestCreateOperationCommand_NilServiceReturnsRichError(t *testing.T) {
	var cmd *CreateOperationCommand
	err := cmd.Execute(context.Background(), CreateOperationMessage{})
	if err == nil {
		t.Fatalf("expected command dependency error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
	if rich.TextCode != core.LifecycleErrorInternal {
		t.Fatalf("expected %q text code, got %q", core.LifecycleErrorInternal, rich.TextCode)
	}
}
