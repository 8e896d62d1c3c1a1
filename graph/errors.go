package graph

import "errors"

// ErrMaxStepsExceeded is matched by the EngineError returned when a run
// executes more than MaxSteps nodes.
var ErrMaxStepsExceeded = errors.New("execution exceeded maximum steps limit")

// ErrNodeTimeout is matched by the EngineError returned when a node runs
// past its timeout.
var ErrNodeTimeout = errors.New("node exceeded timeout")

// EngineError reports a failure of the engine itself rather than of a node:
// bad configuration, missing nodes, routing dead ends, store failures and
// exceeded limits.
type EngineError struct {
	Message string
	Code    string
}

func (e *EngineError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// Is lets errors.Is match limit errors by sentinel.
func (e *EngineError) Is(target error) bool {
	switch target {
	case ErrMaxStepsExceeded:
		return e.Code == "MAX_STEPS_EXCEEDED"
	case ErrNodeTimeout:
		return e.Code == "NODE_TIMEOUT"
	}
	return false
}
