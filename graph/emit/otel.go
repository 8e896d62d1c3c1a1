package emit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter turns every event into a short OpenTelemetry span.
//
// Standard attributes:
//   - hitlgraph.run_id, hitlgraph.step, hitlgraph.node_id
//   - Meta entries, with well-known keys mapped (duration_ms becomes
//     hitlgraph.node.duration_ms, key becomes hitlgraph.hitl.key)
//
// An event whose Meta carries "error" marks its span as failed.
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter creates an emitter recording spans with tracer.
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

// Emit implements Emitter.
func (o *OTelEmitter) Emit(event Event) {
	o.record(context.Background(), event)
}

// EmitBatch records events as spans under ctx.
func (o *OTelEmitter) EmitBatch(ctx context.Context, events []Event) error {
	for _, event := range events {
		o.record(ctx, event)
	}
	return nil
}

func (o *OTelEmitter) record(ctx context.Context, event Event) {
	_, span := o.tracer.Start(ctx, event.Msg)
	defer span.End()

	span.SetAttributes(
		attribute.String("hitlgraph.run_id", event.RunID),
		attribute.Int("hitlgraph.step", event.Step),
		attribute.String("hitlgraph.node_id", event.NodeID),
	)
	addMetadataAttributes(span, event.Meta)

	if msg, ok := event.Meta["error"].(string); ok {
		span.SetStatus(codes.Error, msg)
		span.RecordError(errors.New(msg))
	}
}

func addMetadataAttributes(span trace.Span, meta map[string]interface{}) {
	for key, value := range meta {
		attrKey := "hitlgraph." + key
		switch key {
		case "duration_ms":
			attrKey = "hitlgraph.node.duration_ms"
		case "key":
			attrKey = "hitlgraph.hitl.key"
		case "tool":
			attrKey = "hitlgraph.tool.name"
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
			span.SetAttributes(attribute.Int64(attrKey, v.Milliseconds()))
		default:
			span.SetAttributes(attribute.String(attrKey, fmt.Sprintf("%v", v)))
		}
	}
}
