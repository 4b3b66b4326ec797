package errs

import (
	"errors"
	"testing"
)

func TestErrorWrapPreservesCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(KindToolExecutionError, cause, "")

	if err.Message != "boom" {
		t.Fatalf("expected message defaulted to cause text, got %q", err.Message)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to see through to cause")
	}
}

func TestAsExtractsStructuredError(t *testing.T) {
	base := New(KindInvalidPath, "path escapes workspace").WithSuggestions("use a relative path")
	wrapped := Wrap(KindToolExecutionError, base, "tool failed")

	found, ok := As(wrapped)
	if !ok {
		t.Fatalf("expected to find an *Error in the chain")
	}
	if found.Kind != KindToolExecutionError {
		t.Fatalf("expected outermost kind, got %s", found.Kind)
	}
}

func TestKindOfReturnsEmptyForPlainError(t *testing.T) {
	if KindOf(errors.New("plain")) != "" {
		t.Fatalf("expected empty kind for a plain error")
	}
}

func TestIsRetryable(t *testing.T) {
	if !KindProcessingTimeout.IsRetryable() {
		t.Fatalf("expected processing_timeout to be retryable")
	}
	if KindInvalidArguments.IsRetryable() {
		t.Fatalf("expected invalid_arguments to not be auto-retryable")
	}
}
