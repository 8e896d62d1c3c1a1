package emit

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapEmitter writes events to a structured zap logger.
//
// Errors (run_error, or any event whose Meta carries "error") are logged at
// error level, progress and human interaction at info, and engine lifecycle
// chatter at debug.
type ZapEmitter struct {
	logger *zap.Logger
}

// NewZapEmitter creates a ZapEmitter. A nil logger discards events.
func NewZapEmitter(logger *zap.Logger) *ZapEmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapEmitter{logger: logger}
}

// Emit implements Emitter.
func (z *ZapEmitter) Emit(event Event) {
	level := zapcore.DebugLevel
	switch event.Msg {
	case MsgProgress, MsgHumanRequest, MsgHumanResponse, MsgToolCall, MsgRunComplete:
		level = zapcore.InfoLevel
	}
	if _, hasErr := event.Meta["error"]; hasErr || event.Msg == MsgRunError {
		level = zapcore.ErrorLevel
	}

	ce := z.logger.Check(level, event.Msg)
	if ce == nil {
		return
	}

	fields := make([]zap.Field, 0, 3+len(event.Meta))
	fields = append(fields,
		zap.String("run_id", event.RunID),
		zap.Int("step", event.Step),
	)
	if event.NodeID != "" {
		fields = append(fields, zap.String("node_id", event.NodeID))
	}
	for k, v := range event.Meta {
		fields = append(fields, zap.Any(k, v))
	}
	ce.Write(fields...)
}
