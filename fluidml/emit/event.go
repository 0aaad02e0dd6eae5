// Package emit provides pluggable observability for a flow run: events
// describing task lifecycle transitions (ready, started, skipped, done,
// failed, force-cascade decisions) flow to an Emitter, which can discard
// them, log them, buffer them for inspection, or forward them as
// OpenTelemetry spans.
package emit

// Event is one observability event emitted during a flow run.
type Event struct {
	// RunID identifies the flow run that emitted this event.
	RunID string

	// TaskName is the originating TaskSpec's name.
	TaskName string

	// TaskID is the expanded task's id within the run.
	TaskID int

	// Msg names the event kind, e.g. "task_ready", "task_started",
	// "task_skipped", "task_done", "task_failed", "force_cascade".
	Msg string

	// Meta carries event-specific structured data, e.g.
	// "duration_ms", "error", "resource", "queue_depth", "active_workers".
	Meta map[string]any
}
