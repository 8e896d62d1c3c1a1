package emit

// Event is a single observation from a workflow run.
type Event struct {
	// RunID identifies the workflow run.
	RunID string

	// Step is the sequential step number within the run (0 before the first node).
	Step int

	// NodeID is the node that produced the event, empty for run-level events.
	NodeID string

	// Msg names what happened; see the Msg constants.
	Msg string

	// Meta carries event-specific details (durations, errors, payloads).
	Meta map[string]interface{}
}

// Lifecycle messages emitted by the engine.
const (
	MsgRunStart    = "run_start"
	MsgRunResume   = "run_resume"
	MsgRunComplete = "run_complete"
	MsgRunError    = "run_error"
	MsgNodeStart   = "node_start"
	MsgNodeEnd     = "node_end"
	MsgCheckpoint  = "checkpoint"
)

// Messages emitted by workflow nodes.
const (
	// MsgProgress carries a human-readable status line in Meta["text"].
	MsgProgress = "progress"

	// MsgHumanRequest is emitted when a node starts waiting on a human.
	MsgHumanRequest = "human_request"

	// MsgHumanResponse is emitted when the human's answer arrives.
	MsgHumanResponse = "human_response"

	// MsgToolCall is emitted for every tool invocation requested by a model.
	MsgToolCall = "tool_call"
)

// Progress builds a MsgProgress event.
func Progress(runID string, step int, nodeID, text string) Event {
	return Event{
		RunID:  runID,
		Step:   step,
		NodeID: nodeID,
		Msg:    MsgProgress,
		Meta:   map[string]interface{}{"text": text},
	}
}

// Text returns Meta["text"] when it is a string.
func (e Event) Text() string {
	s, _ := e.Meta["text"].(string)
	return s
}
