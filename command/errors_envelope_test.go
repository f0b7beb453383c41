package command

import (
	"context"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-unified/core"
)

func TestStartSyncMessage_ValidateReturnsRichError(t *testing.T) {
	err := (StartSyncMessage{}).Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryValidation {
		t.Fatalf("expected validation category, got %q", rich.Category)
	}
	if rich.TextCode != core.UnifiedErrorBadInput {
		t.Fatalf("expected %q text code, got %q", core.UnifiedErrorBadInput, rich.TextCode)
	}
}

func TestStartSyncCommand_NilServiceReturnsRichError(t *testing.T) {
	var cmd *StartSyncCommand
	err := cmd.Execute(context.Background(), StartSyncMessage{})
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
	if rich.TextCode != core.UnifiedErrorInternal {
		t.Fatalf("expected %q text code, got %q", core.UnifiedErrorInternal, rich.TextCode)
	}
}

func TestUpsertRecordMessage_ValidateRejectsMissingKey(t *testing.T) {
	msg := UpsertRecordMessage{
		Pair: core.PairKey{CustomerID: "cust-1", ProviderName: "hubspot"},
		Request: core.UpsertRecordRequest{
			ObjectType: "contact",
			Values:     map[string]any{"name": "Ada"},
		},
	}
	if err := msg.Validate(); err == nil {
		t.Fatalf("expected missing key validation error")
	}
}
