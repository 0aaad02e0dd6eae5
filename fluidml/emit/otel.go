package emit

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter turns each event into a span: span name is event.Msg,
// attributes carry runID/taskName/taskID and every Meta entry whose
// value is a string, bool, int, int64, or float64 (other Meta values,
// including other numeric types, are dropped rather than stringified,
// since OTel attributes are typed).
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter returns an Emitter that records spans via tracer,
// typically obtained from otel.Tracer("fluidml").
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

func (o *OTelEmitter) Emit(event Event) {
	_, span := o.tracer.Start(context.Background(), event.Msg)
	defer span.End()

	span.SetAttributes(
		attribute.String("fluidml.run_id", event.RunID),
		attribute.String("fluidml.task_name", event.TaskName),
		attribute.Int("fluidml.task_id", event.TaskID),
	)
	for k, v := range event.Meta {
		switch val := v.(type) {
		case string:
			span.SetAttributes(attribute.String("fluidml.meta."+k, val))
		case bool:
			span.SetAttributes(attribute.Bool("fluidml.meta."+k, val))
		case int:
			span.SetAttributes(attribute.Int("fluidml.meta."+k, val))
		case int64:
			span.SetAttributes(attribute.Int64("fluidml.meta."+k, val))
		case float64:
			span.SetAttributes(attribute.Float64("fluidml.meta."+k, val))
		}
	}
	if errVal, ok := event.Meta["error"]; ok {
		span.SetStatus(codes.Error, "")
		if msg, ok := errVal.(string); ok {
			span.SetStatus(codes.Error, msg)
		}
	}
}

func (o *OTelEmitter) EmitBatch(_ context.Context, events []Event) error {
	for _, e := range events {
		o.Emit(e)
	}
	return nil
}

func (o *OTelEmitter) Flush(context.Context) error { return nil }
