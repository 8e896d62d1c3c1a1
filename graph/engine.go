package graph

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dshills/hitlgraph/graph/emit"
	"github.com/dshills/hitlgraph/graph/store"
)

// Engine orchestrates stateful workflow execution with step persistence.
//
// The Engine:
//   - Manages workflow graph topology (nodes and edges)
//   - Executes one node at a time, following each node's route
//   - Merges state updates via the reducer
//   - Persists state after every step via the store
//   - Emits progress events via the emitter
//   - Enforces MaxSteps and the default node timeout
//   - Resumes a run from its latest persisted step
//
// Nodes may block (for example while waiting for a human answer); the engine
// only observes the context they were given.
//
// Type parameter S is the state type shared across the workflow.
//
// Example:
//
//	engine := graph.New(reducer, store.NewMemStore[MyState](), emit.NewNullEmitter(),
//	    graph.WithMaxSteps(50))
//	_ = engine.Add("research", researchNode)
//	_ = engine.Add("review", reviewNode)
//	_ = engine.StartAt("research")
//
//	final, err := engine.Run(ctx, "run-001", MyState{Query: "AI"})
type Engine[S any] struct {
	mu sync.RWMutex

	reducer   Reducer[S]
	nodes     map[string]Node[S]
	edges     []Edge[S]
	startNode string

	store   store.Store[S]
	emitter emit.Emitter
	opts    Options
}

// New creates a new Engine.
//
// Parameters:
//   - reducer: merges partial state updates (required for Run)
//   - st: persistence backend for steps and checkpoints (required for Run)
//   - emitter: progress event receiver (nil discards events)
//   - opts: functional options (WithMaxSteps, WithDefaultNodeTimeout, WithMetrics)
//
// Validation of reducer, store and start node is deferred to Run.
func New[S any](reducer Reducer[S], st store.Store[S], emitter emit.Emitter, opts ...Option) *Engine[S] {
	cfg := &engineConfig{}
	for _, opt := range opts {
		// Options only reject invalid values; the zero value is used instead.
		_ = opt(cfg)
	}
	if emitter == nil {
		emitter = emit.NewNullEmitter()
	}
	return &Engine[S]{
		reducer: reducer,
		nodes:   make(map[string]Node[S]),
		edges:   make([]Edge[S], 0),
		store:   st,
		emitter: emitter,
		opts:    cfg.opts,
	}
}

// Add registers a node in the workflow graph.
//
// Returns error if nodeID is empty, node is nil, or the ID is already taken.
func (e *Engine[S]) Add(nodeID string, node Node[S]) error {
	if nodeID == "" {
		return &EngineError{Message: "node ID cannot be empty"}
	}
	if node == nil {
		return &EngineError{Message: "node cannot be nil"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.nodes[nodeID]; exists {
		return &EngineError{
			Message: "duplicate node ID: " + nodeID,
			Code:    "DUPLICATE_NODE",
		}
	}

	e.nodes[nodeID] = node
	return nil
}

// StartAt sets the entry point for workflow execution.
// The node must have been registered via Add.
func (e *Engine[S]) StartAt(nodeID string) error {
	if nodeID == "" {
		return &EngineError{Message: "start node ID cannot be empty"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.nodes[nodeID]; !exists {
		return &EngineError{
			Message: "start node does not exist: " + nodeID,
			Code:    "NODE_NOT_FOUND",
		}
	}

	e.startNode = nodeID
	return nil
}

// Connect creates an edge between two nodes.
//
// Edges are consulted only when a node returns no explicit route. The first
// matching edge (in insertion order) wins; a nil predicate always matches.
// Node existence is validated lazily at run time.
func (e *Engine[S]) Connect(from, to string, predicate Predicate[S]) error {
	if from == "" {
		return &EngineError{Message: "from node ID cannot be empty"}
	}
	if to == "" {
		return &EngineError{Message: "to node ID cannot be empty"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.edges = append(e.edges, Edge[S]{From: from, To: to, When: predicate})
	return nil
}

// Run executes the workflow from the start node until a node routes to
// Stop, a node fails, or a limit is exceeded.
func (e *Engine[S]) Run(ctx context.Context, runID string, initial S) (S, error) {
	var zero S

	if err := e.validate(); err != nil {
		return zero, err
	}

	e.mu.RLock()
	start := e.startNode
	e.mu.RUnlock()
	if start == "" {
		return zero, &EngineError{
			Message: "start node not set (call StartAt before Run)",
			Code:    "NO_START_NODE",
		}
	}

	state, err := deepCopy(initial)
	if err != nil {
		return zero, &EngineError{Message: "initial state is not serializable: " + err.Error(), Code: "INVALID_STATE"}
	}

	e.emit(runID, 0, "", emit.MsgRunStart, nil)
	return e.execute(ctx, runID, start, state, 0)
}

// Resume continues runID from its latest persisted step, starting at nodeID.
//
// Step numbering continues after the latest step, so the run's history stays
// contiguous. Typical use: a run that stopped (crash, deliberate pause at an
// approval gate) is picked up again once the missing input is available.
func (e *Engine[S]) Resume(ctx context.Context, runID, nodeID string) (S, error) {
	var zero S

	if err := e.validate(); err != nil {
		return zero, err
	}

	state, step, err := e.store.LoadLatest(ctx, runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return zero, &EngineError{Message: "cannot resume: run not found: " + runID, Code: "RUN_NOT_FOUND"}
		}
		return zero, &EngineError{Message: "cannot resume: " + err.Error(), Code: "STORE_ERROR"}
	}

	e.emit(runID, step, nodeID, emit.MsgRunResume, nil)
	return e.execute(ctx, runID, nodeID, state, step)
}

// SaveCheckpoint stores the latest state of runID under the label cpID.
func (e *Engine[S]) SaveCheckpoint(ctx context.Context, runID, cpID string) error {
	state, step, err := e.store.LoadLatest(ctx, runID)
	if err != nil {
		return &EngineError{
			Message: "cannot create checkpoint: run state not found: " + err.Error(),
			Code:    "RUN_NOT_FOUND",
		}
	}

	if err := e.store.SaveCheckpoint(ctx, cpID, state, step); err != nil {
		return &EngineError{
			Message: "failed to save checkpoint: " + err.Error(),
			Code:    "CHECKPOINT_SAVE_FAILED",
		}
	}

	e.emit(runID, step, "", emit.MsgCheckpoint, map[string]interface{}{"checkpoint_id": cpID})
	return nil
}

// ResumeFromCheckpoint starts newRunID from the state saved under cpID,
// executing startNode first. One checkpoint can seed many runs, which is how
// a story can be branched at a chosen block.
func (e *Engine[S]) ResumeFromCheckpoint(ctx context.Context, cpID, newRunID, startNode string) (S, error) {
	var zero S

	if err := e.validate(); err != nil {
		return zero, err
	}

	state, step, err := e.store.LoadCheckpoint(ctx, cpID)
	if err != nil {
		return zero, &EngineError{
			Message: "cannot resume: checkpoint not found: " + err.Error(),
			Code:    "CHECKPOINT_NOT_FOUND",
		}
	}

	e.emit(newRunID, 0, startNode, emit.MsgRunResume, map[string]interface{}{
		"checkpoint_id":   cpID,
		"checkpoint_step": step,
	})
	return e.execute(ctx, newRunID, startNode, state, 0)
}

func (e *Engine[S]) validate() error {
	if e.reducer == nil {
		return &EngineError{Message: "reducer is required", Code: "MISSING_REDUCER"}
	}
	if e.store == nil {
		return &EngineError{Message: "store is required", Code: "MISSING_STORE"}
	}
	return nil
}

// execute is the shared step loop behind Run and the resume variants.
// lastStep is the number of the last step already persisted for runID.
func (e *Engine[S]) execute(ctx context.Context, runID, currentNode string, state S, lastStep int) (S, error) {
	var zero S
	runStart := time.Now()
	step := lastStep
	executed := 0

	fail := func(nodeID string, err error) (S, error) {
		e.opts.Metrics.recordRun("error", time.Since(runStart))
		e.emit(runID, step, nodeID, emit.MsgRunError, map[string]interface{}{"error": err.Error()})
		return zero, err
	}

	for {
		step++
		executed++

		if e.opts.MaxSteps > 0 && executed > e.opts.MaxSteps {
			return fail(currentNode, &EngineError{
				Message: "workflow exceeded MaxSteps limit",
				Code:    "MAX_STEPS_EXCEEDED",
			})
		}

		if err := ctx.Err(); err != nil {
			return fail(currentNode, err)
		}

		e.mu.RLock()
		nodeImpl, exists := e.nodes[currentNode]
		e.mu.RUnlock()
		if !exists {
			return fail(currentNode, &EngineError{
				Message: "node not found during execution: " + currentNode,
				Code:    "NODE_NOT_FOUND",
			})
		}

		e.emit(runID, step, currentNode, emit.MsgNodeStart, nil)
		nodeStart := time.Now()

		result, timeoutErr := executeNodeWithTimeout(withStep(ctx, runID, step), nodeImpl, currentNode, state, e.opts.nodeTimeout(currentNode))
		elapsed := time.Since(nodeStart)

		nodeErr := timeoutErr
		if nodeErr == nil && result.Err != nil {
			nodeErr = wrapNodeError(currentNode, result.Err)
		}
		if nodeErr != nil {
			e.opts.Metrics.recordStep(currentNode, "error", elapsed)
			return fail(currentNode, nodeErr)
		}
		e.opts.Metrics.recordStep(currentNode, "success", elapsed)

		state = e.reducer(state, result.Delta)

		if err := e.store.SaveStep(ctx, runID, step, currentNode, state); err != nil {
			return fail(currentNode, &EngineError{
				Message: "failed to save step: " + err.Error(),
				Code:    "STORE_ERROR",
			})
		}

		e.emit(runID, step, currentNode, emit.MsgNodeEnd, map[string]interface{}{
			"duration_ms": elapsed.Milliseconds(),
		})

		if result.Route.Terminal {
			e.opts.Metrics.recordRun("success", time.Since(runStart))
			e.emit(runID, step, currentNode, emit.MsgRunComplete, nil)
			return state, nil
		}

		if result.Route.To != "" {
			currentNode = result.Route.To
			continue
		}

		next := e.evaluateEdges(currentNode, state)
		if next == "" {
			return fail(currentNode, &EngineError{
				Message: "no valid route from node: " + currentNode,
				Code:    "NO_ROUTE",
			})
		}
		currentNode = next
	}
}

// evaluateEdges returns the target of the first matching edge out of
// fromNode, or "" when none matches.
func (e *Engine[S]) evaluateEdges(fromNode string, state S) string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, edge := range e.edges {
		if edge.From != fromNode {
			continue
		}
		if edge.When == nil || edge.When(state) {
			return edge.To
		}
	}
	return ""
}

func (e *Engine[S]) emit(runID string, step int, nodeID, msg string, meta map[string]interface{}) {
	e.emitter.Emit(emit.Event{
		RunID:  runID,
		Step:   step,
		NodeID: nodeID,
		Msg:    msg,
		Meta:   meta,
	})
}

// wrapNodeError attaches the node ID to plain errors. NodeErrors and
// context errors are returned unchanged so callers can match them.
func wrapNodeError(nodeID string, err error) error {
	var nodeErr *NodeError
	if errors.As(err, &nodeErr) {
		if nodeErr.NodeID == "" {
			nodeErr.NodeID = nodeID
		}
		return nodeErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &NodeError{Message: err.Error(), NodeID: nodeID, Cause: err}
}
