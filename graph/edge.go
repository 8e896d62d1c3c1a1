// Package graph provides a small stateful workflow engine.
//
// A workflow is a set of nodes sharing a state value of type S. Each node
// returns a partial update that a Reducer merges into the state, and either
// routes explicitly (Goto, Stop) or lets the engine follow the first
// matching edge. Every step is persisted through a store.Store so a run can
// be resumed, and progress is reported through an emit.Emitter.
package graph

// Edge is a possible transition between two nodes.
//
// Edges are only consulted when a node returns a zero Route. An edge with a
// nil When always matches.
type Edge[S any] struct {
	From string
	To   string
	When Predicate[S]
}

// Predicate decides whether an edge is taken for the given state.
// Predicates should be pure.
//
// Common patterns:
//   - Presence: state.Result != ""
//   - Boolean flag: state.Approved
//   - Budget: state.Attempts < 5
type Predicate[S any] func(state S) bool
