package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// MemStore keeps steps and checkpoints in memory.
//
// It is the default store for single-process runs and tests. Contents can be
// snapshotted with MarshalJSON and restored with UnmarshalJSON.
type MemStore[S any] struct {
	mu          sync.RWMutex
	steps       map[string][]StepRecord[S] // runID -> steps
	checkpoints map[string]Checkpoint[S]   // cpID -> checkpoint
}

// NewMemStore creates an empty MemStore.
func NewMemStore[S any]() *MemStore[S] {
	return &MemStore[S]{
		steps:       make(map[string][]StepRecord[S]),
		checkpoints: make(map[string]Checkpoint[S]),
	}
}

// SaveStep implements Store.
func (m *MemStore[S]) SaveStep(_ context.Context, runID string, step int, nodeID string, state S) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record := StepRecord[S]{Step: step, NodeID: nodeID, State: state}
	records := m.steps[runID]
	for i := range records {
		if records[i].Step == step {
			records[i] = record
			return nil
		}
	}
	m.steps[runID] = append(records, record)
	return nil
}

// LoadLatest implements Store.
func (m *MemStore[S]) LoadLatest(_ context.Context, runID string) (state S, step int, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := m.steps[runID]
	if len(records) == 0 {
		var zero S
		return zero, 0, ErrNotFound
	}

	latest := records[0]
	for _, record := range records[1:] {
		if record.Step > latest.Step {
			latest = record
		}
	}

	return latest.State, latest.Step, nil
}

// History returns the steps of runID ordered by step number.
func (m *MemStore[S]) History(runID string) []StepRecord[S] {
	m.mu.RLock()
	out := make([]StepRecord[S], len(m.steps[runID]))
	copy(out, m.steps[runID])
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Step < out[j].Step })
	return out
}

// SaveCheckpoint implements Store.
func (m *MemStore[S]) SaveCheckpoint(_ context.Context, cpID string, state S, step int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.checkpoints[cpID] = Checkpoint[S]{ID: cpID, State: state, Step: step}
	return nil
}

// LoadCheckpoint implements Store.
func (m *MemStore[S]) LoadCheckpoint(_ context.Context, cpID string) (state S, step int, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cp, exists := m.checkpoints[cpID]
	if !exists {
		var zero S
		return zero, 0, ErrNotFound
	}

	return cp.State, cp.Step, nil
}

type memSnapshot[S any] struct {
	Steps       map[string][]StepRecord[S] `json:"steps"`
	Checkpoints map[string]Checkpoint[S]   `json:"checkpoints"`
}

// MarshalJSON serializes the store contents.
func (m *MemStore[S]) MarshalJSON() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return json.Marshal(memSnapshot[S]{Steps: m.steps, Checkpoints: m.checkpoints})
}

// UnmarshalJSON replaces the store contents with a MarshalJSON snapshot.
func (m *MemStore[S]) UnmarshalJSON(data []byte) error {
	var snap memSnapshot[S]
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to unmarshal store snapshot: %w", err)
	}
	if snap.Steps == nil {
		snap.Steps = make(map[string][]StepRecord[S])
	}
	if snap.Checkpoints == nil {
		snap.Checkpoints = make(map[string]Checkpoint[S])
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = snap.Steps
	m.checkpoints = snap.Checkpoints
	return nil
}
