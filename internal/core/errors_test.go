// internal/core/errors_test.go
package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Error(t *testing.T) {
	err := &Error{Code: "TEST_ERROR", Message: "test message"}
	if err.Error() != "[TEST_ERROR] test message" {
		t.Errorf("unexpected error string: %s", err.Error())
	}

	withCause := &Error{Code: "TEST_ERROR", Message: "test message", Cause: errors.New("boom")}
	if withCause.Error() != "[TEST_ERROR] test message: boom" {
		t.Errorf("unexpected error string: %s", withCause.Error())
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{Code: "WRAP", Message: "wrapped", Cause: cause}
	if !errors.Is(err, cause) {
		t.Error("Unwrap should return cause")
	}
}

func TestError_Is(t *testing.T) {
	if !errors.Is(ErrCompetitorExists, ErrCompetitorExists) {
		t.Error("same error should match")
	}
	if errors.Is(ErrCompetitorExists, ErrNotStarted) {
		t.Error("different codes should not match")
	}
}

func TestWrapError(t *testing.T) {
	cause := errors.New("original")
	wrapped := WrapError(ErrOrderRejected, cause)
	if wrapped.Cause != cause {
		t.Error("cause not set")
	}
	if wrapped.Code != ErrOrderRejected.Code {
		t.Error("code not preserved")
	}

	// survives an extra fmt wrap at a package boundary
	outer := fmt.Errorf("submit: %w", wrapped)
	if !errors.Is(outer, ErrOrderRejected) {
		t.Error("expected wrapped error to match by code")
	}
	if !errors.Is(outer, cause) {
		t.Error("expected cause to be reachable")
	}
}
