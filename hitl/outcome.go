// Package hitl provides the human-in-the-loop exchange used by workflows to
// pause for a correlated answer from an external actor.
package hitl

import "strings"

// Outcome is the decision a human made about a confirmation request.
//
// Free-text answers are mapped to an Outcome once, at the boundary, by
// ParseOutcome. Workflow code branches on the Outcome and never on the raw
// string.
type Outcome int

const (
	// Rejected is any answer other than an explicit approval.
	Rejected Outcome = iota

	// Approved means the human answered "yes".
	Approved
)

// String returns the lowercase name of the outcome.
func (o Outcome) String() string {
	switch o {
	case Approved:
		return "approved"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// ParseOutcome maps a raw answer to an Outcome.
//
// The answer is trimmed and compared case-insensitively against "yes".
// Everything else, including the empty string, is Rejected.
func ParseOutcome(value string) Outcome {
	if strings.EqualFold(strings.TrimSpace(value), "yes") {
		return Approved
	}
	return Rejected
}
