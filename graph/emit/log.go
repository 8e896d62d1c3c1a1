package emit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// LogEmitter writes events to an io.Writer, one per line.
//
// Text mode is meant for terminals:
//
//	[node_start] runID=run-001 step=1 nodeID=research
//	[progress] runID=run-001 step=1 nodeID=research meta={"text":"..."}
//
// JSON mode writes one object per line for log shippers.
// ProgressOnly restricts output to MsgProgress events, rendered as their
// bare text, which is what an interactive user wants to see.
type LogEmitter struct {
	mu           sync.Mutex
	writer       io.Writer
	jsonMode     bool
	progressOnly bool
}

// NewLogEmitter creates a LogEmitter writing to writer (os.Stdout when nil).
func NewLogEmitter(writer io.Writer, jsonMode bool) *LogEmitter {
	if writer == nil {
		writer = os.Stdout
	}
	return &LogEmitter{
		writer:   writer,
		jsonMode: jsonMode,
	}
}

// NewProgressEmitter creates a LogEmitter that prints only progress text.
func NewProgressEmitter(writer io.Writer) *LogEmitter {
	l := NewLogEmitter(writer, false)
	l.progressOnly = true
	return l
}

// Emit implements Emitter.
func (l *LogEmitter) Emit(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch {
	case l.progressOnly:
		if event.Msg == MsgProgress {
			fmt.Fprintln(l.writer, event.Text())
		}
	case l.jsonMode:
		l.emitJSON(event)
	default:
		l.emitText(event)
	}
}

func (l *LogEmitter) emitJSON(event Event) {
	data, err := json.Marshal(struct {
		RunID  string                 `json:"runID"`
		Step   int                    `json:"step"`
		NodeID string                 `json:"nodeID"`
		Msg    string                 `json:"msg"`
		Meta   map[string]interface{} `json:"meta,omitempty"`
	}{
		RunID:  event.RunID,
		Step:   event.Step,
		NodeID: event.NodeID,
		Msg:    event.Msg,
		Meta:   event.Meta,
	})
	if err != nil {
		fmt.Fprintf(l.writer, "{\"error\":%q}\n", "failed to marshal event: "+err.Error())
		return
	}

	fmt.Fprintf(l.writer, "%s\n", data)
}

func (l *LogEmitter) emitText(event Event) {
	fmt.Fprintf(l.writer, "[%s] runID=%s step=%d nodeID=%s",
		event.Msg, event.RunID, event.Step, event.NodeID)

	if len(event.Meta) > 0 {
		metaJSON, err := json.Marshal(event.Meta)
		if err == nil {
			fmt.Fprintf(l.writer, " meta=%s", metaJSON)
		} else {
			fmt.Fprintf(l.writer, " meta=%v", event.Meta)
		}
	}

	fmt.Fprint(l.writer, "\n")
}
