// Package confirm implements a tool-calling agent whose only tool is a
// dangerous task that asks a human for confirmation before it runs.
//
// The agent node sends the conversation to the chat model. When the model
// requests tool calls the tools node executes them and the conversation
// goes back to the agent; a reply without tool calls ends the run.
package confirm

import (
	"context"
	"errors"
	"fmt"

	"github.com/dshills/hitlgraph/graph"
	"github.com/dshills/hitlgraph/graph/emit"
	"github.com/dshills/hitlgraph/graph/model"
	"github.com/dshills/hitlgraph/graph/store"
	"github.com/dshills/hitlgraph/graph/tool"
	"github.com/dshills/hitlgraph/hitl"
	"go.uber.org/zap"
)

// ErrTooManyToolRounds is returned when the model keeps requesting tools
// past the configured limit.
var ErrTooManyToolRounds = errors.New("model exceeded tool call rounds")

// Defaults.
const (
	DefaultSystemPrompt  = "You are a helpful assistant that can perform dangerous tasks."
	DefaultUserMessage   = "I want to proceed with the dangerous task."
	DefaultUserName      = "Laurie"
	DefaultMaxToolRounds = 5
)

// Node IDs.
const (
	NodeAgent = "agent"
	NodeTools = "tools"
)

// State is the conversation so far plus the final answer.
type State struct {
	Messages []model.Message `json:"messages"`
	Rounds   int             `json:"rounds"`
	Answer   string          `json:"answer,omitempty"`
}

// Reduce appends new messages and accumulates tool rounds.
func Reduce(prev, delta State) State {
	prev.Messages = append(prev.Messages, delta.Messages...)
	prev.Rounds += delta.Rounds
	if delta.Answer != "" {
		prev.Answer = delta.Answer
	}
	return prev
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithUserName sets the correlation key of confirmation requests.
func WithUserName(name string) Option {
	return func(w *Workflow) { w.userName = name }
}

// WithSystemPrompt replaces the default system prompt.
func WithSystemPrompt(prompt string) Option {
	return func(w *Workflow) { w.systemPrompt = prompt }
}

// WithMaxToolRounds bounds the number of agent turns that request tools.
func WithMaxToolRounds(n int) Option {
	return func(w *Workflow) {
		if n > 0 {
			w.maxToolRounds = n
		}
	}
}

// WithTools offers extra tools to the model next to dangerous_task.
func WithTools(tools ...tool.Tool) Option {
	return func(w *Workflow) { w.extraTools = append(w.extraTools, tools...) }
}

// WithStore persists steps in st instead of memory.
func WithStore(st store.Store[State]) Option {
	return func(w *Workflow) { w.store = st }
}

// WithEngineOptions passes options through to the underlying engine.
func WithEngineOptions(opts ...graph.Option) Option {
	return func(w *Workflow) { w.engineOpts = append(w.engineOpts, opts...) }
}

// WithLogger sets the workflow logger.
func WithLogger(logger *zap.Logger) Option {
	return func(w *Workflow) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// Workflow is the confirmation agent.
type Workflow struct {
	chat          model.ChatModel
	ex            *hitl.Exchange
	emitter       emit.Emitter
	tools         *tool.Registry
	extraTools    []tool.Tool
	store         store.Store[State]
	engineOpts    []graph.Option
	userName      string
	systemPrompt  string
	maxToolRounds int
	logger        *zap.Logger

	engine *graph.Engine[State]
}

// New builds the agent graph around chat. Confirmations go through ex.
func New(chat model.ChatModel, ex *hitl.Exchange, emitter emit.Emitter, opts ...Option) (*Workflow, error) {
	if chat == nil {
		return nil, errors.New("confirm: chat model is required")
	}
	if ex == nil {
		return nil, errors.New("confirm: exchange is required")
	}
	if emitter == nil {
		emitter = emit.NewNullEmitter()
	}
	w := &Workflow{
		chat:          chat,
		ex:            ex,
		emitter:       emitter,
		userName:      DefaultUserName,
		systemPrompt:  DefaultSystemPrompt,
		maxToolRounds: DefaultMaxToolRounds,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.store == nil {
		w.store = store.NewMemStore[State]()
	}

	w.tools = tool.NewRegistry(NewDangerousTask(ex, w.userName))
	for _, t := range w.extraTools {
		w.tools.Register(t)
	}

	engineOpts := append([]graph.Option{graph.WithMaxSteps(2*w.maxToolRounds + 2)}, w.engineOpts...)
	w.engine = graph.New[State](Reduce, w.store, emitter, engineOpts...)
	if err := w.engine.Add(NodeAgent, graph.NodeFunc[State](w.agent)); err != nil {
		return nil, err
	}
	if err := w.engine.Add(NodeTools, graph.NodeFunc[State](w.runTools)); err != nil {
		return nil, err
	}
	if err := w.engine.StartAt(NodeAgent); err != nil {
		return nil, err
	}
	return w, nil
}

// Run sends userMsg (DefaultUserMessage when empty) and returns the model's
// final answer.
func (w *Workflow) Run(ctx context.Context, runID, userMsg string) (string, error) {
	if userMsg == "" {
		userMsg = DefaultUserMessage
	}
	initial := State{Messages: []model.Message{model.System(w.systemPrompt), model.User(userMsg)}}
	final, err := w.engine.Run(ctx, runID, initial)
	if err != nil {
		return "", err
	}
	return final.Answer, nil
}

func (w *Workflow) agent(ctx context.Context, s State) graph.NodeResult[State] {
	out, err := w.chat.Chat(ctx, s.Messages, w.tools.Specs())
	if err != nil {
		return graph.NodeResult[State]{Err: fmt.Errorf("chat: %w", err)}
	}

	if len(out.ToolCalls) == 0 {
		return graph.NodeResult[State]{
			Delta: State{Messages: []model.Message{model.Assistant(out)}, Answer: out.Text},
			Route: graph.Stop(),
		}
	}

	if s.Rounds >= w.maxToolRounds {
		return graph.NodeResult[State]{Err: fmt.Errorf("%w: %d", ErrTooManyToolRounds, w.maxToolRounds)}
	}
	return graph.NodeResult[State]{
		Delta: State{Messages: []model.Message{model.Assistant(out)}, Rounds: 1},
		Route: graph.Goto(NodeTools),
	}
}

// runTools answers every tool call of the last assistant turn. Tool failures
// are reported to the model; cancellation and a closed exchange abort the run.
func (w *Workflow) runTools(ctx context.Context, s State) graph.NodeResult[State] {
	if len(s.Messages) == 0 {
		return graph.NodeResult[State]{Err: errors.New("no assistant turn to answer")}
	}
	last := s.Messages[len(s.Messages)-1]
	runID, step := graph.RunInfo(ctx)

	results := make([]model.Message, 0, len(last.ToolCalls))
	for _, call := range last.ToolCalls {
		w.emitter.Emit(emit.Event{
			RunID: runID, Step: step, NodeID: NodeTools, Msg: emit.MsgToolCall,
			Meta: map[string]interface{}{"tool": call.Name},
		})

		content, err := w.tools.Execute(ctx, call)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, hitl.ErrClosed) {
				return graph.NodeResult[State]{Err: err}
			}
			w.logger.Warn("tool call failed",
				zap.String("run_id", runID),
				zap.String("tool", call.Name),
				zap.Error(err))
			content = "Error: " + err.Error()
		}
		results = append(results, model.ToolResult(call, content))
	}

	return graph.NodeResult[State]{
		Delta: State{Messages: results},
		Route: graph.Goto(NodeAgent),
	}
}
