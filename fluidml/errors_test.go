package fluidml

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorIsMatchesOwnSentinelOnly(t *testing.T) {
	err := newError(ErrCycleDetected, "cycle_detected", "graph has a cycle")
	if !errors.Is(err, ErrCycleDetected) {
		t.Fatal("want errors.Is to match the sentinel the error was built from")
	}
	if errors.Is(err, ErrInvalidExpansionAxis) {
		t.Fatal("want errors.Is to not match an unrelated sentinel")
	}
}

func TestErrorUnwrapExposesCause(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := newError(ErrStoreUnavailable, "store_unavailable", "save artifact").withCause(cause)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatal("want errors.Is to match ErrStoreUnavailable")
	}
	if !errors.Is(err, cause) {
		t.Fatal("want errors.Is to reach the wrapped cause via Unwrap")
	}
}

func TestErrorMessageIncludesTaskNameAndCause(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := newError(ErrTaskFailed, "task_failed", "run failed").
		withTask("Train", UniqueConfig{"lr": 0.1}).
		withCause(cause)

	got := err.Error()
	if got != "Train: run failed: boom" {
		t.Fatalf("unexpected Error() output: %q", got)
	}
	if err.TaskName != "Train" {
		t.Fatalf("want TaskName set by withTask, got %q", err.TaskName)
	}
}
