package confirm

import (
	"context"

	"github.com/dshills/hitlgraph/graph/tool"
	"github.com/dshills/hitlgraph/hitl"
)

// ConfirmPrompt is the question asked before the dangerous task runs.
const ConfirmPrompt = "Are you sure you want to proceed? "

// Results of the dangerous task.
const (
	TaskCompleted = "Dangerous task completed successfully."
	TaskAborted   = "Dangerous task aborted."
)

// NewDangerousTask returns the dangerous_task tool. It asks userName for
// confirmation through ex and only completes when the answer is approved.
func NewDangerousTask(ex *hitl.Exchange, userName string) *tool.Func {
	return &tool.Func{
		ToolName:    "dangerous_task",
		Description: "A dangerous task that requires human confirmation.",
		Schema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		},
		Fn: func(ctx context.Context, _ map[string]interface{}) (map[string]interface{}, error) {
			outcome, err := ex.Confirm(ctx, userName, ConfirmPrompt)
			if err != nil {
				return nil, err
			}
			if outcome == hitl.Approved {
				return map[string]interface{}{"result": TaskCompleted}, nil
			}
			return map[string]interface{}{"result": TaskAborted}, nil
		},
	}
}
