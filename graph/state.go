package graph

import (
	"encoding/json"
	"fmt"
)

// Reducer merges a node's partial update into the accumulated state.
//
// Reducers must be deterministic: the same prev and delta always produce the
// same result. Fields left at their zero value in delta usually mean
// "unchanged", but that convention is up to each workflow.
//
// Example:
//
//	func reduce(prev, delta State) State {
//	    if delta.Answer != "" {
//	        prev.Answer = delta.Answer
//	    }
//	    prev.Attempts += delta.Attempts
//	    return prev
//	}
type Reducer[S any] func(prev, delta S) S

// deepCopy returns an independent copy of state using a JSON round trip.
//
// Only exported, JSON-serializable fields survive the copy. States are
// persisted the same way, so a state that cannot be copied cannot be stored
// either.
func deepCopy[S any](state S) (S, error) {
	var zero S

	data, err := json.Marshal(state)
	if err != nil {
		return zero, fmt.Errorf("failed to marshal state: %w", err)
	}

	var copied S
	if err := json.Unmarshal(data, &copied); err != nil {
		return zero, fmt.Errorf("failed to unmarshal state: %w", err)
	}

	return copied, nil
}
