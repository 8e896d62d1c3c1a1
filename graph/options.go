package graph

import (
	"errors"
	"time"
)

// Options holds engine configuration. Build it with functional options.
type Options struct {
	// MaxSteps caps the number of nodes executed by one Run or Resume call.
	// Zero means no limit.
	MaxSteps int

	// DefaultNodeTimeout bounds every node that has no per-node timeout.
	// Zero means no timeout.
	DefaultNodeTimeout time.Duration

	// NodeTimeouts overrides DefaultNodeTimeout per node ID.
	NodeTimeouts map[string]time.Duration

	// Metrics receives step and run measurements. Nil disables metrics.
	Metrics *PrometheusMetrics
}

// Option is a functional option for configuring an Engine.
//
// Example:
//
//	engine := graph.New(reducer, st, emitter,
//	    graph.WithMaxSteps(20),
//	    graph.WithNodeTimeout("approve", 10*time.Minute),
//	)
type Option func(*engineConfig) error

type engineConfig struct {
	opts Options
}

// WithMaxSteps limits workflow execution to prevent infinite loops.
//
// Workflow loops (research -> review -> research) are supported; MaxSteps
// is the backstop when a loop's exit condition never fires. When exceeded,
// Run returns an EngineError with code "MAX_STEPS_EXCEEDED".
func WithMaxSteps(n int) Option {
	return func(cfg *engineConfig) error {
		if n < 0 {
			return errors.New("max steps must be >= 0")
		}
		cfg.opts.MaxSteps = n
		return nil
	}
}

// WithDefaultNodeTimeout bounds the execution time of every node.
//
// Nodes that wait for a human usually need a longer limit; give them one
// with WithNodeTimeout.
func WithDefaultNodeTimeout(d time.Duration) Option {
	return func(cfg *engineConfig) error {
		if d < 0 {
			return errors.New("node timeout must be >= 0")
		}
		cfg.opts.DefaultNodeTimeout = d
		return nil
	}
}

// WithNodeTimeout sets the timeout of a single node, overriding the default.
func WithNodeTimeout(nodeID string, d time.Duration) Option {
	return func(cfg *engineConfig) error {
		if d < 0 {
			return errors.New("node timeout must be >= 0")
		}
		if cfg.opts.NodeTimeouts == nil {
			cfg.opts.NodeTimeouts = make(map[string]time.Duration)
		}
		cfg.opts.NodeTimeouts[nodeID] = d
		return nil
	}
}

// WithMetrics enables Prometheus metrics collection.
//
// Example:
//
//	registry := prometheus.NewRegistry()
//	engine := graph.New(reducer, st, emitter, graph.WithMetrics(graph.NewPrometheusMetrics(registry)))
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
func WithMetrics(metrics *PrometheusMetrics) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.Metrics = metrics
		return nil
	}
}
