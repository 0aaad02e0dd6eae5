package emit

import "context"

// Emitter receives task-lifecycle events from a running flow.
// Implementations should be non-blocking and safe for concurrent use:
// the swarm calls Emit from whichever worker goroutine observes the
// transition, and a slow or panicking emitter must never stall or
// crash the run it is observing.
type Emitter interface {
	// Emit sends a single event to the configured backend.
	Emit(event Event)

	// EmitBatch sends multiple events in one operation, preserving
	// order. The swarm itself reports through Emit only.
	EmitBatch(ctx context.Context, events []Event) error

	// Flush blocks until all buffered events have been delivered, or
	// ctx is done. Safe to call more than once.
	Flush(ctx context.Context) error
}
