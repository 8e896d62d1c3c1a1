package hitl

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNoPendingRequest is returned by Submit when no outstanding request
// matches the response key and the exchange rejects unmatched responses.
var ErrNoPendingRequest = errors.New("no pending request for key")

// ErrDuplicateKey is returned by Request when a request with the same
// correlation key is already outstanding.
var ErrDuplicateKey = errors.New("request already pending for key")

// ErrInvalidKey is returned when a correlation key is empty.
var ErrInvalidKey = errors.New("correlation key cannot be empty")

// ErrClosed is returned by operations on a closed exchange and by requests
// that were still outstanding when the exchange closed.
var ErrClosed = errors.New("exchange closed")

// ErrTimeout is returned when a request is not answered within the
// exchange timeout. errors.Is(ErrTimeout, context.DeadlineExceeded) holds.
var ErrTimeout error = &timeoutError{}

type timeoutError struct{}

func (*timeoutError) Error() string { return "timed out waiting for response" }

func (*timeoutError) Timeout() bool { return true }

func (*timeoutError) Is(target error) bool { return target == context.DeadlineExceeded }

// Request asks an external actor for input.
type Request struct {
	// ID uniquely identifies this request. Assigned by the exchange when empty.
	ID string `json:"id"`

	// Key correlates the request with its response (a user name, a session id).
	Key string `json:"key"`

	// Prompt is the human-readable question.
	Prompt string `json:"prompt"`

	// Payload is optional material for the human to review before answering.
	Payload string `json:"payload,omitempty"`

	// Options lists suggested answers. Empty means free text.
	Options []string `json:"options,omitempty"`

	// CreatedAt is set by the exchange when the request is registered.
	CreatedAt time.Time `json:"created_at"`
}

// Response is an answer from an external actor.
type Response struct {
	Key        string    `json:"key"`
	Value      string    `json:"value"`
	ReceivedAt time.Time `json:"received_at"`
}

// Outcome interprets the response value as an approval decision.
func (r Response) Outcome() Outcome {
	return ParseOutcome(r.Value)
}

// keyError attaches the correlation key to a sentinel error.
type keyError struct {
	key string
	err error
}

func (e *keyError) Error() string {
	return fmt.Sprintf("%s: %q", e.err.Error(), e.key)
}

func (e *keyError) Unwrap() error {
	return e.err
}
