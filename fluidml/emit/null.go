package emit

import "context"

// NullEmitter discards every event. It is the default when a Flow is
// constructed without WithEmitter, so observability is opt-in rather
// than a mandatory dependency.
type NullEmitter struct{}

// NewNullEmitter returns an Emitter that discards all events.
func NewNullEmitter() *NullEmitter { return &NullEmitter{} }

func (n *NullEmitter) Emit(Event) {}

func (n *NullEmitter) EmitBatch(context.Context, []Event) error { return nil }

func (n *NullEmitter) Flush(context.Context) error { return nil }
