package emit

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecordingEmitter(t *testing.T) (*OTelEmitter, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return NewOTelEmitter(tp.Tracer("test")), exporter
}

func attributeMap(attrs []attribute.KeyValue) map[string]interface{} {
	m := make(map[string]interface{}, len(attrs))
	for _, kv := range attrs {
		m[string(kv.Key)] = kv.Value.AsInterface()
	}
	return m
}

func TestOTelEmitter_Emit(t *testing.T) {
	emitter, exporter := newRecordingEmitter(t)

	emitter.Emit(Event{
		RunID:  "run-001",
		Step:   1,
		NodeID: "review",
		Msg:    MsgHumanRequest,
		Meta: map[string]interface{}{
			"key":         "laurie",
			"duration_ms": int64(12),
			"attempt":     2,
		},
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name != MsgHumanRequest {
		t.Errorf("span name = %q", span.Name)
	}

	attrs := attributeMap(span.Attributes)
	checks := map[string]interface{}{
		"hitlgraph.run_id":           "run-001",
		"hitlgraph.step":             int64(1),
		"hitlgraph.node_id":          "review",
		"hitlgraph.hitl.key":         "laurie",
		"hitlgraph.node.duration_ms": int64(12),
		"hitlgraph.attempt":          int64(2),
	}
	for k, want := range checks {
		if got := attrs[k]; got != want {
			t.Errorf("%s = %v (%T), want %v", k, got, got, want)
		}
	}
	if !span.EndTime.After(span.StartTime) {
		t.Error("span was not ended")
	}
}

func TestOTelEmitter_ErrorStatus(t *testing.T) {
	emitter, exporter := newRecordingEmitter(t)

	emitter.Emit(Event{RunID: "r", Msg: MsgRunError, Meta: map[string]interface{}{"error": "node research: boom"}})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("status = %v, want Error", spans[0].Status.Code)
	}
	if spans[0].Status.Description != "node research: boom" {
		t.Errorf("description = %q", spans[0].Status.Description)
	}
}

func TestOTelEmitter_EmitBatch(t *testing.T) {
	emitter, exporter := newRecordingEmitter(t)

	err := emitter.EmitBatch(context.Background(), []Event{
		{RunID: "r", Step: 1, Msg: MsgNodeStart},
		{RunID: "r", Step: 1, Msg: MsgNodeEnd},
	})
	if err != nil {
		t.Fatalf("EmitBatch: %v", err)
	}
	if got := len(exporter.GetSpans()); got != 2 {
		t.Errorf("spans = %d, want 2", got)
	}
}
