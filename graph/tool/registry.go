package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dshills/hitlgraph/graph/model"
)

// ErrUnknownTool is returned when a model calls a tool that is not registered.
var ErrUnknownTool = errors.New("unknown tool")

// Registry holds the tools offered to a model and dispatches its calls.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a registry holding tools.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds t, replacing any tool with the same name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get returns the tool called name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Specs describes every registered tool, sorted by name.
func (r *Registry) Specs() []model.ToolSpec {
	r.mu.RLock()
	specs := make([]model.ToolSpec, 0, len(r.tools))
	for name, t := range r.tools {
		if d, ok := t.(Describer); ok {
			specs = append(specs, d.Spec())
			continue
		}
		specs = append(specs, model.ToolSpec{Name: name})
	}
	r.mu.RUnlock()

	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// Execute runs call and renders its output as text for the model.
//
// A single "result" string is returned as-is; other outputs are JSON
// encoded. Tool failures are returned as errors so the caller can decide
// whether to report them to the model or abort.
func (r *Registry) Execute(ctx context.Context, call model.ToolCall) (string, error) {
	t, ok := r.Get(call.Name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, call.Name)
	}

	input := call.Input
	if input == nil {
		input = map[string]interface{}{}
	}
	out, err := t.Call(ctx, input)
	if err != nil {
		return "", fmt.Errorf("tool %s: %w", call.Name, err)
	}

	if s, ok := out["result"].(string); ok && len(out) == 1 {
		return s, nil
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("tool %s: encode output: %w", call.Name, err)
	}
	return string(data), nil
}
