package hitl

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// UnmatchedPolicy decides what Submit does with a response whose key has no
// outstanding request.
type UnmatchedPolicy int

const (
	// RejectUnmatched drops the response and returns ErrNoPendingRequest.
	RejectUnmatched UnmatchedPolicy = iota

	// BufferUnmatched keeps the response so the next Request with the same
	// key completes immediately.
	BufferUnmatched
)

// String returns the policy name used in config files and metric labels.
func (p UnmatchedPolicy) String() string {
	switch p {
	case BufferUnmatched:
		return "buffer"
	default:
		return "reject"
	}
}

// ParseUnmatchedPolicy converts a config value ("reject", "buffer") into a policy.
func ParseUnmatchedPolicy(s string) (UnmatchedPolicy, error) {
	switch s {
	case "", "reject":
		return RejectUnmatched, nil
	case "buffer":
		return BufferUnmatched, nil
	default:
		return RejectUnmatched, fmt.Errorf("unknown unmatched policy %q (want reject or buffer)", s)
	}
}

// Option configures an Exchange.
type Option func(*Exchange)

// WithTimeout bounds how long Request waits for an answer.
// Zero (the default) waits until the caller's context ends.
func WithTimeout(d time.Duration) Option {
	return func(e *Exchange) {
		e.timeout = d
	}
}

// WithUnmatchedPolicy sets how unmatched responses are handled.
// Default: RejectUnmatched.
func WithUnmatchedPolicy(p UnmatchedPolicy) Option {
	return func(e *Exchange) {
		e.policy = p
	}
}

// WithMaxBuffered caps buffered responses per key under BufferUnmatched.
// Once full, further unmatched responses for that key are rejected.
// Default: 1.
func WithMaxBuffered(n int) Option {
	return func(e *Exchange) {
		if n > 0 {
			e.maxBuffered = n
		}
	}
}

// WithStreamSize sets the capacity of the outbound request stream.
// Default: 16.
func WithStreamSize(n int) Option {
	return func(e *Exchange) {
		if n >= 0 {
			e.streamSize = n
		}
	}
}

// WithLogger sets the logger. Default: zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(e *Exchange) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics enables Prometheus metrics for the exchange.
func WithMetrics(m *Metrics) Option {
	return func(e *Exchange) {
		e.metrics = m
	}
}
