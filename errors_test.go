package blockpress

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	err := Errorf(CodeNotFound, "store.get", "document %q not found", "abc").
		WithHint("check the document id")

	errMsg := err.Error()
	if errMsg != `store.get: NOT_FOUND: document "abc" not found` {
		t.Errorf("Error() = %q", errMsg)
	}
	if err.Hint != "check the document id" {
		t.Errorf("Hint = %q", err.Hint)
	}

	wrapped := Wrap(CodeInternal, "store.open", errors.New("disk full"))
	if !strings.HasSuffix(wrapped.Error(), ": disk full") {
		t.Errorf("wrapped Error() = %q, should end with the cause", wrapped.Error())
	}
	if errors.Unwrap(wrapped) == nil {
		t.Error("Wrap should keep the cause")
	}
}

func TestErrorIsMatchesCode(t *testing.T) {
	err := fmt.Errorf("loading: %w", Errorf(CodeNoContent, "lifecycle.publish", "nothing to publish"))

	if !errors.Is(err, ErrNoContent) {
		t.Error("expected errors.Is to match by code through wrapping")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("errors.Is should not match a different code")
	}
	if CodeOf(err) != CodeNoContent {
		t.Errorf("CodeOf() = %q", CodeOf(err))
	}
	if CodeOf(errors.New("plain")) != CodeInternal {
		t.Error("plain errors should report INTERNAL")
	}
	if CodeOf(nil) != "" {
		t.Error("nil should have no code")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(Errorf(CodeCreateFailed, "store.publish", "version 2 already exists")) {
		t.Error("publish collisions should be retryable")
	}
	if IsRetryable(Errorf(CodeNotFound, "store.get", "gone")) {
		t.Error("NOT_FOUND should not be retryable")
	}
}

func TestUserFriendlyMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{errors.New("boom"), "Something went wrong. Please try again."},
		{Errorf(CodeNotFound, "op", "x"), "The requested item no longer exists."},
		{Errorf(CodeNoContent, "op", "x"), "There is no draft to publish yet."},
		{Errorf(CodeInvalidCode, "op", "unexpected token"), "Invalid component: unexpected token"},
		{&Error{Code: CodeValidation}, "Invalid component source."},
		{Errorf(CodeDuplicateKey, "op", "x"), "A component with this key already exists."},
	}
	for _, tt := range tests {
		if got := UserFriendlyMessage(tt.err); got != tt.want {
			t.Errorf("UserFriendlyMessage(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
