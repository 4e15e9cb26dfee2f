package emit

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter implements Emitter by creating OpenTelemetry spans.
//
// Each event becomes a span with:
//   - Span name: event.Msg (e.g., "vertex_start", "superstep_merge")
//   - Attributes: run_id, step, vertex_id, and all event.Meta fields
//   - Timestamps: derived from span creation
//   - Status: set to error if event.Meta["error"] exists
//
// Spans are created and ended immediately: every engine event is a point in
// time (a vertex completing, a superstep's merge finishing), not a span of
// work the emitter itself straddles. Emit starts every span from
// context.Background(), so each event an Engine emits through
// graph.WithEmitter becomes the root span of its own trace; only EmitBatch
// parents its spans on the ctx it is given.
//
// Usage:
//
//	tracer := otel.Tracer("bspgraph")
//	emitter := emit.NewOTelEmitter(tracer)
//	engine, _ := graph.NewEngine(g, graph.WithEmitter(emitter))
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter creates a new OTelEmitter from an OpenTelemetry tracer,
// typically obtained via otel.Tracer("bspgraph").
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

// Emit creates and immediately ends an OpenTelemetry span for the event.
func (o *OTelEmitter) Emit(event Event) {
	_, span := o.tracer.Start(context.Background(), event.Msg)
	o.decorate(span, event)
	span.End()
}

// EmitBatch creates one span per event, in order.
func (o *OTelEmitter) EmitBatch(ctx context.Context, events []Event) error {
	for _, event := range events {
		_, span := o.tracer.Start(ctx, event.Msg)
		o.decorate(span, event)
		span.End()
	}
	return nil
}

func (o *OTelEmitter) decorate(span trace.Span, event Event) {
	span.SetAttributes(
		attribute.String("bspgraph.run_id", event.RunID),
		attribute.Int("bspgraph.superstep", event.Step),
		attribute.String("bspgraph.vertex_id", event.VertexID),
	)
	o.addMetadataAttributes(span, event.Meta)
	if errMsg, ok := event.Meta["error"].(string); ok {
		span.SetStatus(codes.Error, errMsg)
		span.RecordError(fmt.Errorf("%s", errMsg))
	}
}

// Flush forces export of all pending spans via the active tracer provider,
// if it supports ForceFlush (the SDK tracer provider does; a no-op provider
// does not and Flush is then itself a no-op).
func (o *OTelEmitter) Flush(ctx context.Context) error {
	tp := otel.GetTracerProvider()
	type flusher interface {
		ForceFlush(context.Context) error
	}
	if f, ok := tp.(flusher); ok {
		return f.ForceFlush(ctx)
	}
	return nil
}

// addMetadataAttributes converts event metadata to span attributes, mapping
// merge-diagnostic keys onto a stable bspgraph.* namespace.
func (o *OTelEmitter) addMetadataAttributes(span trace.Span, meta map[string]interface{}) {
	for key, value := range meta {
		attrKey := key
		switch key {
		case "merge_reason":
			attrKey = "bspgraph.merge.reason"
		case "merge_key":
			attrKey = "bspgraph.merge.key"
		case "termination_reason":
			attrKey = "bspgraph.termination_reason"
		case "duration_ms":
			attrKey = "bspgraph.vertex.duration_ms"
		}

		switch v := value.(type) {
		case string:
			span.SetAttributes(attribute.String(attrKey, v))
		case int:
			span.SetAttributes(attribute.Int(attrKey, v))
		case int64:
			span.SetAttributes(attribute.Int64(attrKey, v))
		case float64:
			span.SetAttributes(attribute.Float64(attrKey, v))
		case bool:
			span.SetAttributes(attribute.Bool(attrKey, v))
		case time.Duration:
			span.SetAttributes(attribute.Int64(attrKey, int64(v/time.Millisecond)))
		default:
			span.SetAttributes(attribute.String(attrKey, fmt.Sprintf("%v", v)))
		}
	}
}
