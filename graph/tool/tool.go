// Package tool defines callable tools that chat models can invoke.
package tool

import (
	"context"

	"github.com/dshills/hitlgraph/graph/model"
)

// Tool is an executable capability exposed to a model.
//
// Input and output are JSON-shaped maps so results can be handed back to
// the model as text.
type Tool interface {
	Name() string
	Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error)
}

// Describer is implemented by tools that can describe themselves to a model.
type Describer interface {
	Spec() model.ToolSpec
}

// Func adapts a function to Tool and Describer.
//
// Example:
//
//	now := &tool.Func{
//	    ToolName:    "get_current_datetime",
//	    Description: "Returns the current local date and time.",
//	    Fn: func(ctx context.Context, _ map[string]interface{}) (map[string]interface{}, error) {
//	        return map[string]interface{}{"result": time.Now().Format(time.DateTime)}, nil
//	    },
//	}
type Func struct {
	ToolName    string
	Description string
	Schema      map[string]interface{}
	Fn          func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error)
}

// Name implements Tool.
func (f *Func) Name() string { return f.ToolName }

// Call implements Tool.
func (f *Func) Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.Fn(ctx, input)
}

// Spec implements Describer.
func (f *Func) Spec() model.ToolSpec {
	return model.ToolSpec{Name: f.ToolName, Description: f.Description, Schema: f.Schema}
}
