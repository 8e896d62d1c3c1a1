package graph

import (
	"testing"
	"time"
)

func TestOptions(t *testing.T) {
	cfg := &engineConfig{}
	for _, opt := range []Option{
		WithMaxSteps(20),
		WithDefaultNodeTimeout(time.Second),
		WithNodeTimeout("review", time.Minute),
	} {
		if err := opt(cfg); err != nil {
			t.Fatalf("option: %v", err)
		}
	}

	if cfg.opts.MaxSteps != 20 {
		t.Errorf("MaxSteps = %d", cfg.opts.MaxSteps)
	}
	if got := cfg.opts.nodeTimeout("review"); got != time.Minute {
		t.Errorf("review timeout = %v", got)
	}
	if got := cfg.opts.nodeTimeout("other"); got != time.Second {
		t.Errorf("default timeout = %v", got)
	}
}

func TestOptions_RejectNegative(t *testing.T) {
	cfg := &engineConfig{}
	if err := WithMaxSteps(-1)(cfg); err == nil {
		t.Error("negative MaxSteps accepted")
	}
	if err := WithDefaultNodeTimeout(-time.Second)(cfg); err == nil {
		t.Error("negative timeout accepted")
	}
	if err := WithNodeTimeout("x", -time.Second)(cfg); err == nil {
		t.Error("negative node timeout accepted")
	}
}

func TestEngineError(t *testing.T) {
	err := &EngineError{Message: "boom", Code: "X"}
	if err.Error() != "X: boom" {
		t.Errorf("Error() = %q", err.Error())
	}
	if (&EngineError{Message: "plain"}).Error() != "plain" {
		t.Error("message without code")
	}
	nodeErr := &NodeError{Message: "failed", NodeID: "agent"}
	if nodeErr.Error() != "node agent: failed" {
		t.Errorf("NodeError = %q", nodeErr.Error())
	}
}
