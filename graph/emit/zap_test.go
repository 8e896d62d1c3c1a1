package emit

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapEmitter_Levels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	emitter := NewZapEmitter(zap.New(core))

	emitter.Emit(Event{RunID: "r", Step: 1, NodeID: "research", Msg: MsgNodeStart})
	emitter.Emit(Progress("r", 1, "research", "working"))
	emitter.Emit(Event{RunID: "r", Step: 2, NodeID: "review", Msg: MsgRunError,
		Meta: map[string]interface{}{"error": "boom"}})

	entries := logs.AllUntimed()
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}

	wantLevels := []zapcore.Level{zapcore.DebugLevel, zapcore.InfoLevel, zapcore.ErrorLevel}
	for i, want := range wantLevels {
		if entries[i].Level != want {
			t.Errorf("entry %d level = %v, want %v", i, entries[i].Level, want)
		}
	}

	fields := entries[1].ContextMap()
	if fields["run_id"] != "r" || fields["node_id"] != "research" || fields["text"] != "working" {
		t.Errorf("progress fields = %v", fields)
	}
}

func TestZapEmitter_RespectsLevel(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	emitter := NewZapEmitter(zap.New(core))

	emitter.Emit(Event{RunID: "r", Msg: MsgNodeEnd})

	if logs.Len() != 0 {
		t.Errorf("debug event logged at info level: %v", logs.All())
	}
}

func TestZapEmitter_NilLogger(t *testing.T) {
	// Must not panic.
	NewZapEmitter(nil).Emit(Event{RunID: "r", Msg: MsgRunStart})
}
