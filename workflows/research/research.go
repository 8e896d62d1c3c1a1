// Package research implements a research → human review → report workflow.
//
// The research node gathers findings for a query, the review node shows them
// to a human and waits for a decision, and the report node writes the final
// report once the findings are approved. A rejection sends the run back to
// research, up to a bounded number of attempts.
package research

import (
	"context"
	"errors"
	"fmt"

	"github.com/dshills/hitlgraph/graph"
	"github.com/dshills/hitlgraph/graph/emit"
	"github.com/dshills/hitlgraph/graph/store"
	"github.com/dshills/hitlgraph/hitl"
	"go.uber.org/zap"
)

// ErrTooManyRetries is returned when the human rejects the findings more
// often than the workflow allows.
var ErrTooManyRetries = errors.New("research rejected too many times")

// DefaultMaxAttempts bounds the research → review loop.
const DefaultMaxAttempts = 5

// ReviewPrompt is the question shown to the reviewer.
const ReviewPrompt = "Is the research good enough? (yes/no): "

// Node IDs.
const (
	NodeResearch = "research"
	NodeReview   = "review"
	NodeReport   = "report"
)

// Review decisions recorded in State.Decision.
const (
	DecisionPending  = "pending"
	DecisionApproved = "approved"
	DecisionRejected = "rejected"
)

// State is the workflow state persisted after every step.
type State struct {
	Query    string `json:"query"`
	Findings string `json:"findings,omitempty"`
	Attempts int    `json:"attempts"`

	// Decision is DecisionPending while findings await review, then the
	// review outcome.
	Decision string `json:"decision,omitempty"`
	Report   string `json:"report,omitempty"`
}

// Reduce merges a node's delta into the state.
func Reduce(prev, delta State) State {
	if delta.Query != "" {
		prev.Query = delta.Query
	}
	if delta.Findings != "" {
		prev.Findings = delta.Findings
	}
	prev.Attempts += delta.Attempts
	if delta.Decision != "" {
		prev.Decision = delta.Decision
	}
	if delta.Report != "" {
		prev.Report = delta.Report
	}
	return prev
}

// Researcher produces findings for a query. attempt starts at 1.
type Researcher func(ctx context.Context, query string, attempt int) (string, error)

// PlaceholderResearch returns canned findings.
func PlaceholderResearch(_ context.Context, _ string, _ int) (string, error) {
	return "This is a bunch of placeholder text. It is not relevant to the research being done.", nil
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithMaxAttempts sets how many research rounds may be reviewed.
func WithMaxAttempts(n int) Option {
	return func(w *Workflow) {
		if n > 0 {
			w.maxAttempts = n
		}
	}
}

// WithKey sets the correlation key used for review requests.
// By default the run ID is used so concurrent runs never collide.
func WithKey(key string) Option {
	return func(w *Workflow) { w.key = key }
}

// WithResearcher replaces the placeholder research step.
func WithResearcher(r Researcher) Option {
	return func(w *Workflow) {
		if r != nil {
			w.researcher = r
		}
	}
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

// Workflow runs research sessions against an exchange.
type Workflow struct {
	ex          *hitl.Exchange
	emitter     emit.Emitter
	researcher  Researcher
	store       store.Store[State]
	engineOpts  []graph.Option
	maxAttempts int
	key         string
	logger      *zap.Logger

	engine *graph.Engine[State]
}

// New builds the workflow graph. Review requests go through ex; progress is
// reported to emitter (nil discards it).
func New(ex *hitl.Exchange, emitter emit.Emitter, opts ...Option) (*Workflow, error) {
	if ex == nil {
		return nil, errors.New("research: exchange is required")
	}
	if emitter == nil {
		emitter = emit.NewNullEmitter()
	}
	w := &Workflow{
		ex:          ex,
		emitter:     emitter,
		researcher:  PlaceholderResearch,
		maxAttempts: DefaultMaxAttempts,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.store == nil {
		w.store = store.NewMemStore[State]()
	}

	// Each attempt takes two steps plus the final report.
	engineOpts := append([]graph.Option{graph.WithMaxSteps(2*w.maxAttempts + 1)}, w.engineOpts...)
	w.engine = graph.New[State](Reduce, w.store, emitter, engineOpts...)

	if err := w.engine.Add(NodeResearch, graph.NodeFunc[State](w.research)); err != nil {
		return nil, err
	}
	if err := w.engine.Add(NodeReview, graph.NodeFunc[State](w.review)); err != nil {
		return nil, err
	}
	if err := w.engine.Add(NodeReport, graph.NodeFunc[State](w.report)); err != nil {
		return nil, err
	}
	if err := w.engine.StartAt(NodeResearch); err != nil {
		return nil, err
	}

	if err := w.engine.Connect(NodeResearch, NodeReview, nil); err != nil {
		return nil, err
	}
	if err := w.engine.Connect(NodeReview, NodeReport, decided(DecisionApproved)); err != nil {
		return nil, err
	}
	if err := w.engine.Connect(NodeReview, NodeResearch, decided(DecisionRejected)); err != nil {
		return nil, err
	}
	return w, nil
}

// Run researches query until the reviewer approves and returns the report.
func (w *Workflow) Run(ctx context.Context, runID, query string) (string, error) {
	final, err := w.engine.Run(ctx, runID, State{Query: query})
	if err != nil {
		return "", err
	}
	return final.Report, nil
}

func decided(decision string) graph.Predicate[State] {
	return func(s State) bool { return s.Decision == decision }
}

// Resume continues an interrupted run from where its latest step left off.
// A finished run returns its report without asking the reviewer again.
func (w *Workflow) Resume(ctx context.Context, runID string) (string, error) {
	next := NodeReview
	if latest, _, err := w.store.LoadLatest(ctx, runID); err == nil {
		next = resumeNode(latest)
		if next == "" {
			return latest.Report, nil
		}
	}

	final, err := w.engine.Resume(ctx, runID, next)
	if err != nil {
		return "", err
	}
	return final.Report, nil
}

// resumeNode picks the node that continues a run whose latest state is s.
// It returns "" when the run already has its report.
func resumeNode(s State) string {
	switch {
	case s.Report != "":
		return ""
	case s.Decision == DecisionApproved:
		return NodeReport
	case s.Decision == DecisionRejected, s.Findings == "":
		return NodeResearch
	}
	return NodeReview
}

func (w *Workflow) progress(ctx context.Context, nodeID, text string) {
	runID, step := graph.RunInfo(ctx)
	w.emitter.Emit(emit.Progress(runID, step, nodeID, text))
}

func (w *Workflow) research(ctx context.Context, s State) graph.NodeResult[State] {
	if s.Attempts >= w.maxAttempts {
		return graph.NodeResult[State]{Err: fmt.Errorf("%w: %d attempts", ErrTooManyRetries, s.Attempts)}
	}

	w.progress(ctx, NodeResearch, fmt.Sprintf("I am doing some research on the subject of '%s'", s.Query))

	findings, err := w.researcher(ctx, s.Query, s.Attempts+1)
	if err != nil {
		return graph.NodeResult[State]{Err: err}
	}
	return graph.NodeResult[State]{
		Delta: State{Findings: findings, Attempts: 1, Decision: DecisionPending},
	}
}

func (w *Workflow) review(ctx context.Context, s State) graph.NodeResult[State] {
	runID, step := graph.RunInfo(ctx)
	key := w.key
	if key == "" {
		key = runID
	}

	w.emitter.Emit(emit.Event{
		RunID: runID, Step: step, NodeID: NodeReview, Msg: emit.MsgHumanRequest,
		Meta: map[string]interface{}{"key": key},
	})
	resp, err := w.ex.Request(ctx, hitl.Request{
		Key:     key,
		Prompt:  ReviewPrompt,
		Payload: "Research result: " + s.Findings,
	})
	if err != nil {
		return graph.NodeResult[State]{Err: err}
	}

	outcome := resp.Outcome()
	w.emitter.Emit(emit.Event{
		RunID: runID, Step: step, NodeID: NodeReview, Msg: emit.MsgHumanResponse,
		Meta: map[string]interface{}{"key": key, "outcome": outcome.String()},
	})
	w.progress(ctx, NodeReview, "The human has responded: "+resp.Value)
	w.logger.Debug("research reviewed",
		zap.String("run_id", runID),
		zap.Int("attempt", s.Attempts),
		zap.Stringer("outcome", outcome))

	if outcome == hitl.Approved {
		return graph.NodeResult[State]{Delta: State{Decision: DecisionApproved}}
	}

	w.progress(ctx, NodeReview, "The human has rejected the research, retrying")
	return graph.NodeResult[State]{Delta: State{Decision: DecisionRejected}}
}

func (w *Workflow) report(ctx context.Context, s State) graph.NodeResult[State] {
	w.progress(ctx, NodeReport, "The human has approved the research, generating final report")
	return graph.NodeResult[State]{
		Delta: State{Report: "This is a report on " + s.Query},
		Route: graph.Stop(),
	}
}
