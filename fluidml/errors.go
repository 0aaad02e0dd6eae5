package fluidml

import "errors"

// Sentinel errors for the error kinds named in the execution contract.
// Use errors.Is(err, fluidml.ErrCycleDetected) etc. to classify a
// returned *Error without inspecting its Code string directly.
var (
	// ErrCycleDetected means the spec graph or expanded graph contains a
	// cycle. Raised before scheduling starts.
	ErrCycleDetected = errors.New("fluidml: cycle detected")

	// ErrInvalidExpansionAxis means expand="zip" was given axes of
	// unequal length, the expand kind is not a known one, or a reduce
	// spec has no predecessors to reduce over.
	ErrInvalidExpansionAxis = errors.New("fluidml: invalid expansion axis")

	// ErrDuplicatePredecessorKey means two non-reduce predecessors
	// published the same artifact name, which a packed result dict
	// cannot disambiguate.
	ErrDuplicatePredecessorKey = errors.New("fluidml: duplicate predecessor key")

	// ErrMissingPredecessorArtifact means a task asked for a predecessor
	// artifact that was never published by any predecessor.
	ErrMissingPredecessorArtifact = errors.New("fluidml: missing predecessor artifact")

	// ErrStoreUnavailable means a results-store operation failed (I/O,
	// permissions). Skip/run lookups treat this as "no prior run" rather
	// than a fatal error; writes during execution surface it as a task
	// failure.
	ErrStoreUnavailable = errors.New("fluidml: results store unavailable")

	// ErrTaskFailed means a user task's Run returned an error.
	ErrTaskFailed = errors.New("fluidml: task failed")
)

// Error is the structured error type returned for task-graph failures.
// It carries enough context (task identity, configuration, and cause)
// for a caller to log or retry intelligently, and supports errors.Is
// against the package's sentinel values via Unwrap/Is.
type Error struct {
	// Code is one of "cycle_detected", "invalid_expansion_axis",
	// "duplicate_predecessor_key", "missing_predecessor_artifact",
	// "store_unavailable", or "task_failed".
	Code string

	// Message is a human-readable description.
	Message string

	// TaskName identifies the task spec or expanded task involved, if any.
	TaskName string

	// UniqueConfig is the expanded task's memoization key, if applicable.
	UniqueConfig any

	// Cause is the underlying error, if any (e.g. the error a user
	// task's Run returned, or the store I/O error).
	Cause error

	sentinel error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.TaskName != "" {
		msg = e.TaskName + ": " + msg
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap exposes Cause for errors.Is/errors.As chains through the
// underlying failure, e.g. a store I/O error wrapped by ErrStoreUnavailable.
func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is the sentinel this Error was constructed
// for, so callers can write errors.Is(err, fluidml.ErrCycleDetected).
func (e *Error) Is(target error) bool {
	return e.sentinel != nil && target == e.sentinel
}

func newError(sentinel error, code, message string) *Error {
	return &Error{Code: code, Message: message, sentinel: sentinel}
}

func (e *Error) withTask(name string, uc any) *Error {
	e.TaskName = name
	e.UniqueConfig = uc
	return e
}

func (e *Error) withCause(cause error) *Error {
	e.Cause = cause
	return e
}
