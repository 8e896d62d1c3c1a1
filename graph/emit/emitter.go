// Package emit provides the event stream a workflow run reports progress on.
//
// The engine emits lifecycle events (run start, node start/end, errors) and
// workflow nodes emit their own progress messages. Emitters decide where the
// events go: a terminal, a structured logger, a trace backend, memory.
package emit

// Emitter receives workflow events.
//
// Implementations must be safe for concurrent use and must not block the
// workflow for long; Emit has no error return, so delivery failures are the
// emitter's own business.
type Emitter interface {
	Emit(event Event)
}

// Multi fans every event out to each non-nil emitter, in order.
type Multi []Emitter

// Emit implements Emitter.
func (m Multi) Emit(event Event) {
	for _, e := range m {
		if e != nil {
			e.Emit(event)
		}
	}
}
