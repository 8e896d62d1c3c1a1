// Package adventure co-writes a choose-your-own-adventure story with a human.
//
// The story is built block by block. Each block holds a plot segment written
// by the chat model, the actions the protagonist can take, and the action
// the human chose. After MaxBlocks blocks the model writes a closing segment
// with no actions and the story ends.
package adventure

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dshills/hitlgraph/graph"
	"github.com/dshills/hitlgraph/graph/emit"
	"github.com/dshills/hitlgraph/graph/model"
	"github.com/dshills/hitlgraph/graph/store"
	"github.com/dshills/hitlgraph/hitl"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultMaxBlocks is the number of interactive blocks before the ending.
const DefaultMaxBlocks = 3

// ChoicePrompt is shown after each segment's plot.
const ChoicePrompt = "Choose your adventure: "

// Node IDs.
const (
	NodeCreateSegment = "create_segment"
	NodePromptHuman   = "prompt_human"
)

const segmentPrompt = `You are co-writing a "choose your own adventure" story with a human.

The human plays the protagonist and you help write the story. The story is
built one block at a time. Each block has a PLOT, the ACTIONS the protagonist
can take, and the CHOICE the human made.

Here is the story so far.

Previous blocks:
---
%s

Continue the story by writing the plot and action set of the next block. If
there are no previous blocks, start a brand new, interesting story: give the
protagonist a name and an interesting challenge.`

const finalSegmentPrompt = `You are co-writing a "choose your own adventure" story with a human.

The human plays the protagonist and you help write the story. The story is
built one block at a time. Each block has a PLOT, the ACTIONS the protagonist
can take, and the CHOICE the human made.

Here is the story so far.

Previous blocks:
---
%s

The story is about to end. Based on the previous blocks, close the story with
a final plot. Since this is the ending, do not write a new set of actions.`

const segmentSchema = `{"plot": string (the plot of this segment, at most 3 sentences), ` +
	`"actions": [string] (actions the protagonist can take, shaping the next segment; empty for the ending)}`

// Segment is one model-written part of the story.
type Segment struct {
	Plot    string   `json:"plot"`
	Actions []string `json:"actions"`
}

// Block is a segment plus the human's choice.
type Block struct {
	ID      string  `json:"id"`
	Segment Segment `json:"segment"`
	Choice  string  `json:"choice,omitempty"`
}

// String renders the block the way it is fed back to the model.
func (b Block) String() string {
	return fmt.Sprintf("\nBLOCK\n===\nPLOT: %s\nACTIONS: %s\nCHOICE: %s\n",
		b.Segment.Plot, strings.Join(b.Segment.Actions, ", "), b.Choice)
}

// RunningStory renders blocks as the story so far.
func RunningStory(blocks []Block) string {
	parts := make([]string, len(blocks))
	for i, b := range blocks {
		parts[i] = b.String()
	}
	return strings.Join(parts, "\n")
}

// FinalStory joins the plots of blocks into the finished story.
func FinalStory(blocks []Block) string {
	plots := make([]string, len(blocks))
	for i, b := range blocks {
		plots[i] = b.Segment.Plot
	}
	return strings.Join(plots, "\n\n")
}

// State holds the blocks written so far.
type State struct {
	Blocks []Block `json:"blocks"`
}

// Reduce replaces the block list when the delta carries one. Nodes always
// return the complete list.
func Reduce(prev, delta State) State {
	if delta.Blocks != nil {
		prev.Blocks = delta.Blocks
	}
	return prev
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithMaxBlocks sets the number of interactive blocks.
func WithMaxBlocks(n int) Option {
	return func(w *Workflow) {
		if n >= 0 {
			w.maxBlocks = n
		}
	}
}

// WithKey sets the correlation key used for choice requests.
// By default the run ID is used.
func WithKey(key string) Option {
	return func(w *Workflow) { w.key = key }
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

// Workflow is the adventure story graph.
type Workflow struct {
	chat       model.ChatModel
	ex         *hitl.Exchange
	emitter    emit.Emitter
	store      store.Store[State]
	engineOpts []graph.Option
	maxBlocks  int
	key        string
	logger     *zap.Logger

	engine *graph.Engine[State]
}

// New builds the story graph around chat. Choices go through ex.
func New(chat model.ChatModel, ex *hitl.Exchange, emitter emit.Emitter, opts ...Option) (*Workflow, error) {
	if chat == nil {
		return nil, errors.New("adventure: chat model is required")
	}
	if ex == nil {
		return nil, errors.New("adventure: exchange is required")
	}
	if emitter == nil {
		emitter = emit.NewNullEmitter()
	}
	w := &Workflow{
		chat:      chat,
		ex:        ex,
		emitter:   emitter,
		maxBlocks: DefaultMaxBlocks,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.store == nil {
		w.store = store.NewMemStore[State]()
	}

	engineOpts := append([]graph.Option{graph.WithMaxSteps(2*w.maxBlocks + 1)}, w.engineOpts...)
	w.engine = graph.New[State](Reduce, w.store, emitter, engineOpts...)
	if err := w.engine.Add(NodeCreateSegment, graph.NodeFunc[State](w.createSegment)); err != nil {
		return nil, err
	}
	if err := w.engine.Add(NodePromptHuman, graph.NodeFunc[State](w.promptHuman)); err != nil {
		return nil, err
	}
	if err := w.engine.StartAt(NodeCreateSegment); err != nil {
		return nil, err
	}
	return w, nil
}

// Run writes a story and returns its blocks, the ending last.
func (w *Workflow) Run(ctx context.Context, runID string) ([]Block, error) {
	final, err := w.engine.Run(ctx, runID, State{})
	if err != nil {
		return nil, err
	}
	return final.Blocks, nil
}

// Branch replays the story saved under checkpoint cpID in a new run,
// starting with the choice for the checkpoint's last block.
func (w *Workflow) Branch(ctx context.Context, cpID, newRunID string) ([]Block, error) {
	final, err := w.engine.ResumeFromCheckpoint(ctx, cpID, newRunID, NodePromptHuman)
	if err != nil {
		return nil, err
	}
	return final.Blocks, nil
}

// Checkpoint labels the latest state of runID as cpID.
func (w *Workflow) Checkpoint(ctx context.Context, runID, cpID string) error {
	return w.engine.SaveCheckpoint(ctx, runID, cpID)
}

func (w *Workflow) createSegment(ctx context.Context, s State) graph.NodeResult[State] {
	story := RunningStory(s.Blocks)

	final := len(s.Blocks) >= w.maxBlocks
	prompt := segmentPrompt
	if final {
		prompt = finalSegmentPrompt
	}

	segment, err := model.StructuredPredict[Segment](ctx, w.chat,
		[]model.Message{model.User(fmt.Sprintf(prompt, story))}, segmentSchema)
	if err != nil {
		return graph.NodeResult[State]{Err: fmt.Errorf("generate segment: %w", err)}
	}
	if final {
		segment.Actions = nil
	}

	blocks := append(append([]Block(nil), s.Blocks...), Block{ID: uuid.NewString(), Segment: segment})

	runID, step := graph.RunInfo(ctx)
	w.logger.Debug("segment written",
		zap.String("run_id", runID),
		zap.Int("block", len(blocks)),
		zap.Bool("final", final))

	if final {
		return graph.NodeResult[State]{Delta: State{Blocks: blocks}, Route: graph.Stop()}
	}
	w.emitter.Emit(emit.Progress(runID, step, NodeCreateSegment, segment.Plot))
	return graph.NodeResult[State]{Delta: State{Blocks: blocks}, Route: graph.Goto(NodePromptHuman)}
}

func (w *Workflow) promptHuman(ctx context.Context, s State) graph.NodeResult[State] {
	if len(s.Blocks) == 0 {
		return graph.NodeResult[State]{Err: errors.New("no block to choose for")}
	}
	runID, step := graph.RunInfo(ctx)
	key := w.key
	if key == "" {
		key = runID
	}

	current := s.Blocks[len(s.Blocks)-1]
	w.emitter.Emit(emit.Event{
		RunID: runID, Step: step, NodeID: NodePromptHuman, Msg: emit.MsgHumanRequest,
		Meta: map[string]interface{}{"key": key, "block_id": current.ID},
	})
	resp, err := w.ex.Request(ctx, hitl.Request{
		Key:     key,
		Prompt:  ChoicePrompt,
		Payload: "===\n" + current.Segment.Plot,
		Options: current.Segment.Actions,
	})
	if err != nil {
		return graph.NodeResult[State]{Err: err}
	}
	w.emitter.Emit(emit.Event{
		RunID: runID, Step: step, NodeID: NodePromptHuman, Msg: emit.MsgHumanResponse,
		Meta: map[string]interface{}{"key": key, "block_id": current.ID},
	})

	blocks := append([]Block(nil), s.Blocks...)
	blocks[len(blocks)-1].Choice = strings.TrimSpace(resp.Value)
	return graph.NodeResult[State]{Delta: State{Blocks: blocks}, Route: graph.Goto(NodeCreateSegment)}
}
