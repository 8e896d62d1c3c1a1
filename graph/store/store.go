// Package store persists workflow steps and checkpoints.
//
// Every engine step is saved with SaveStep so a run can be inspected or
// resumed from its latest state. Checkpoints are labelled snapshots that
// can seed new runs.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a run or checkpoint does not exist.
var ErrNotFound = errors.New("not found")

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// Store persists workflow state of type S.
//
// States are serialized as JSON by the durable implementations, so only
// exported, JSON-serializable fields survive a round trip.
type Store[S any] interface {
	// SaveStep records the state after step of runID, produced by nodeID.
	// Saving the same (runID, step) twice replaces the earlier record.
	SaveStep(ctx context.Context, runID string, step int, nodeID string, state S) error

	// LoadLatest returns the state with the highest step number of runID,
	// or ErrNotFound.
	LoadLatest(ctx context.Context, runID string) (state S, step int, err error)

	// SaveCheckpoint stores state under cpID, replacing any previous one.
	SaveCheckpoint(ctx context.Context, cpID string, state S, step int) error

	// LoadCheckpoint returns the checkpoint cpID, or ErrNotFound.
	LoadCheckpoint(ctx context.Context, cpID string) (state S, step int, err error)
}

// StepRecord is one persisted step of a run.
type StepRecord[S any] struct {
	Step   int    `json:"step"`
	NodeID string `json:"node_id"`
	State  S      `json:"state"`
}

// Checkpoint is a labelled state snapshot.
type Checkpoint[S any] struct {
	ID    string `json:"id"`
	State S      `json:"state"`
	Step  int    `json:"step"`
}
