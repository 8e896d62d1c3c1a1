package graph

import "context"

// Node is a processing unit in the workflow graph.
//
// A node receives the current state, does its work (call a model, run a
// tool, ask a human) and returns a partial state update plus a routing
// decision. Nodes that wait on outside input must honor ctx.
//
// Type parameter S is the state type shared across the workflow.
type Node[S any] interface {
	Run(ctx context.Context, state S) NodeResult[S]
}

// NodeResult is the output of a node execution.
type NodeResult[S any] struct {
	// Delta is merged into the current state with the engine's reducer.
	Delta S

	// Route selects the next node. A zero Route falls back to edges.
	Route Next

	// Err halts the run. The engine wraps plain errors in a NodeError.
	Err error
}

// Next specifies where execution continues after a node completes.
//
// Exactly one of To or Terminal should be set. When neither is set the
// engine evaluates the outgoing edges of the node.
type Next struct {
	To       string
	Terminal bool
}

// Stop returns a Next that terminates workflow execution.
func Stop() Next {
	return Next{Terminal: true}
}

// Goto returns a Next that routes to the specified node.
func Goto(nodeID string) Next {
	return Next{To: nodeID}
}

// NodeFunc adapts a plain function to the Node interface.
//
// Example:
//
//	greet := graph.NodeFunc[State](func(ctx context.Context, s State) graph.NodeResult[State] {
//	    return graph.NodeResult[State]{Delta: State{Greeting: "hi " + s.Name}, Route: graph.Stop()}
//	})
type NodeFunc[S any] func(ctx context.Context, state S) NodeResult[S]

// Run implements Node.
func (f NodeFunc[S]) Run(ctx context.Context, state S) NodeResult[S] {
	return f(ctx, state)
}

// NodeError is an error raised by a node, tagged with the node's ID.
type NodeError struct {
	// Message is the human-readable error description.
	Message string

	// Code is a machine-readable error code for programmatic handling.
	Code string

	// NodeID identifies which node produced this error.
	NodeID string

	// Cause is the underlying error, if any.
	Cause error
}

func (e *NodeError) Error() string {
	if e.NodeID != "" {
		return "node " + e.NodeID + ": " + e.Message
	}
	return e.Message
}

func (e *NodeError) Unwrap() error {
	return e.Cause
}
