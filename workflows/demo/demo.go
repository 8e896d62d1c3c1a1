// Package demo holds the small demo workflow and the tools an agent can
// call to reach the other workflows.
package demo

import (
	"context"
	"time"

	"github.com/dshills/hitlgraph/graph"
	"github.com/dshills/hitlgraph/graph/emit"
	"github.com/dshills/hitlgraph/graph/store"
)

// DatetimeLayout is the format of CurrentDatetime results.
const DatetimeLayout = "2006-01-02 15:04:05"

// DatetimeState carries the formatted datetime.
type DatetimeState struct {
	Now string `json:"now"`
}

func reduceDatetime(prev, delta DatetimeState) DatetimeState {
	if delta.Now != "" {
		prev.Now = delta.Now
	}
	return prev
}

// DatetimeWorkflow is a single-node workflow returning the current datetime.
type DatetimeWorkflow struct {
	engine *graph.Engine[DatetimeState]
	now    func() time.Time
}

// NewDatetimeWorkflow builds the workflow. now defaults to time.Now.
func NewDatetimeWorkflow(emitter emit.Emitter, now func() time.Time) (*DatetimeWorkflow, error) {
	if now == nil {
		now = time.Now
	}
	w := &DatetimeWorkflow{now: now}
	w.engine = graph.New[DatetimeState](reduceDatetime, store.NewMemStore[DatetimeState](), emitter, graph.WithMaxSteps(1))

	step := graph.NodeFunc[DatetimeState](func(_ context.Context, _ DatetimeState) graph.NodeResult[DatetimeState] {
		return graph.NodeResult[DatetimeState]{
			Delta: DatetimeState{Now: w.now().Format(DatetimeLayout)},
			Route: graph.Stop(),
		}
	})
	if err := w.engine.Add("now", step); err != nil {
		return nil, err
	}
	if err := w.engine.StartAt("now"); err != nil {
		return nil, err
	}
	return w, nil
}

// Run returns the current datetime.
func (w *DatetimeWorkflow) Run(ctx context.Context, runID string) (string, error) {
	final, err := w.engine.Run(ctx, runID, DatetimeState{})
	if err != nil {
		return "", err
	}
	return final.Now, nil
}
