package graph

import "context"

type contextKey string

// Context keys set by the engine on the context passed to each node.
const (
	// RunIDKey holds the run ID (string).
	RunIDKey contextKey = "hitlgraph.run_id"

	// StepKey holds the step number being executed (int).
	StepKey contextKey = "hitlgraph.step"
)

func withStep(ctx context.Context, runID string, step int) context.Context {
	ctx = context.WithValue(ctx, RunIDKey, runID)
	return context.WithValue(ctx, StepKey, step)
}

// RunInfo returns the run ID and step number of the node executing with ctx.
// Outside a run it returns "" and 0.
func RunInfo(ctx context.Context) (runID string, step int) {
	runID, _ = ctx.Value(RunIDKey).(string)
	step, _ = ctx.Value(StepKey).(int)
	return runID, step
}
