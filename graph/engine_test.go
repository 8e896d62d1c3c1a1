package graph

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dshills/hitlgraph/graph/emit"
	"github.com/dshills/hitlgraph/graph/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type TestState struct {
	Query    string   `json:"query"`
	Attempts int      `json:"attempts"`
	Approved bool     `json:"approved"`
	Log      []string `json:"log"`
}

func reduce(prev, delta TestState) TestState {
	if delta.Query != "" {
		prev.Query = delta.Query
	}
	prev.Attempts += delta.Attempts
	if delta.Approved {
		prev.Approved = true
	}
	prev.Log = append(prev.Log, delta.Log...)
	return prev
}

func logNode(entry string, route Next) NodeFunc[TestState] {
	return func(ctx context.Context, s TestState) NodeResult[TestState] {
		return NodeResult[TestState]{Delta: TestState{Log: []string{entry}}, Route: route}
	}
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine[TestState], *store.MemStore[TestState], *emit.BufferedEmitter) {
	t.Helper()
	st := store.NewMemStore[TestState]()
	em := emit.NewBufferedEmitter()
	return New[TestState](reduce, st, em, opts...), st, em
}

func TestEngine_RunExplicitRoutes(t *testing.T) {
	engine, st, em := newTestEngine(t)
	_ = engine.Add("research", logNode("research", Goto("report")))
	_ = engine.Add("report", logNode("report", Stop()))
	_ = engine.StartAt("research")

	final, err := engine.Run(context.Background(), "run-1", TestState{Query: "go"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.Join(final.Log, ",") != "research,report" || final.Query != "go" {
		t.Errorf("final = %+v", final)
	}

	_, step, err := st.LoadLatest(context.Background(), "run-1")
	if err != nil || step != 2 {
		t.Errorf("latest step = %d, %v", step, err)
	}

	var msgs []string
	for _, e := range em.GetHistory("run-1") {
		msgs = append(msgs, e.Msg)
	}
	want := "run_start,node_start,node_end,node_start,node_end,run_complete"
	if got := strings.Join(msgs, ","); got != want {
		t.Errorf("events = %s, want %s", got, want)
	}
}

func TestEngine_EdgeRouting(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	review := NodeFunc[TestState](func(ctx context.Context, s TestState) NodeResult[TestState] {
		// Approve on the second attempt.
		return NodeResult[TestState]{Delta: TestState{Attempts: 1, Approved: s.Attempts >= 1}}
	})
	_ = engine.Add("review", review)
	_ = engine.Add("report", logNode("report", Stop()))
	_ = engine.Connect("review", "report", func(s TestState) bool { return s.Approved })
	_ = engine.Connect("review", "review", nil)
	_ = engine.StartAt("review")

	final, err := engine.Run(context.Background(), "run-edges", TestState{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if final.Attempts != 2 || !final.Approved || len(final.Log) != 1 {
		t.Errorf("final = %+v", final)
	}
}

func TestEngine_NoRoute(t *testing.T) {
	engine, _, em := newTestEngine(t)
	_ = engine.Add("dead_end", logNode("x", Next{}))
	_ = engine.StartAt("dead_end")

	_, err := engine.Run(context.Background(), "r", TestState{})
	var engErr *EngineError
	if !errors.As(err, &engErr) || engErr.Code != "NO_ROUTE" {
		t.Fatalf("err = %v, want NO_ROUTE", err)
	}

	errs := em.GetHistoryWithFilter("r", emit.HistoryFilter{Msg: emit.MsgRunError})
	if len(errs) != 1 {
		t.Errorf("run_error events = %d", len(errs))
	}
}

func TestEngine_MaxSteps(t *testing.T) {
	engine, _, _ := newTestEngine(t, WithMaxSteps(5))
	_ = engine.Add("loop", logNode("loop", Goto("loop")))
	_ = engine.StartAt("loop")

	_, err := engine.Run(context.Background(), "r", TestState{})
	if !errors.Is(err, ErrMaxStepsExceeded) {
		t.Fatalf("err = %v, want ErrMaxStepsExceeded", err)
	}
}

func TestEngine_NodeError(t *testing.T) {
	boom := errors.New("model unavailable")
	engine, _, _ := newTestEngine(t)
	_ = engine.Add("agent", NodeFunc[TestState](func(ctx context.Context, s TestState) NodeResult[TestState] {
		return NodeResult[TestState]{Err: boom}
	}))
	_ = engine.StartAt("agent")

	_, err := engine.Run(context.Background(), "r", TestState{})
	var nodeErr *NodeError
	if !errors.As(err, &nodeErr) || nodeErr.NodeID != "agent" {
		t.Fatalf("err = %v, want NodeError from agent", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("cause lost: %v", err)
	}
}

func TestEngine_ContextErrorsPassThrough(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	_ = engine.Add("wait", NodeFunc[TestState](func(ctx context.Context, s TestState) NodeResult[TestState] {
		<-ctx.Done()
		return NodeResult[TestState]{Err: ctx.Err()}
	}))
	_ = engine.StartAt("wait")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := engine.Run(ctx, "r", TestState{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
	var nodeErr *NodeError
	if errors.As(err, &nodeErr) {
		t.Error("context error should not be wrapped in NodeError")
	}
}

func TestEngine_NodeTimeout(t *testing.T) {
	slow := NodeFunc[TestState](func(ctx context.Context, s TestState) NodeResult[TestState] {
		<-ctx.Done()
		return NodeResult[TestState]{Err: ctx.Err()}
	})

	t.Run("default timeout", func(t *testing.T) {
		engine, _, _ := newTestEngine(t, WithDefaultNodeTimeout(10*time.Millisecond))
		_ = engine.Add("slow", slow)
		_ = engine.StartAt("slow")

		_, err := engine.Run(context.Background(), "r", TestState{})
		if !errors.Is(err, ErrNodeTimeout) {
			t.Fatalf("err = %v, want ErrNodeTimeout", err)
		}
	})

	t.Run("per node override", func(t *testing.T) {
		engine, _, _ := newTestEngine(t,
			WithDefaultNodeTimeout(time.Hour),
			WithNodeTimeout("slow", 10*time.Millisecond))
		_ = engine.Add("slow", slow)
		_ = engine.StartAt("slow")

		_, err := engine.Run(context.Background(), "r", TestState{})
		if !errors.Is(err, ErrNodeTimeout) {
			t.Fatalf("err = %v, want ErrNodeTimeout", err)
		}
	})
}

func TestEngine_Validation(t *testing.T) {
	ctx := context.Background()

	if _, err := New[TestState](nil, store.NewMemStore[TestState](), nil).Run(ctx, "r", TestState{}); err == nil {
		t.Error("missing reducer accepted")
	}
	if _, err := New[TestState](reduce, nil, nil).Run(ctx, "r", TestState{}); err == nil {
		t.Error("missing store accepted")
	}

	engine, _, _ := newTestEngine(t)
	if _, err := engine.Run(ctx, "r", TestState{}); err == nil {
		t.Error("missing start node accepted")
	}

	if err := engine.Add("", logNode("x", Stop())); err == nil {
		t.Error("empty node ID accepted")
	}
	if err := engine.Add("a", nil); err == nil {
		t.Error("nil node accepted")
	}
	_ = engine.Add("a", logNode("a", Stop()))
	if err := engine.Add("a", logNode("a", Stop())); err == nil {
		t.Error("duplicate node accepted")
	}
	if err := engine.StartAt("missing"); err == nil {
		t.Error("unknown start node accepted")
	}
	if err := engine.Connect("", "a", nil); err == nil {
		t.Error("empty edge source accepted")
	}

	_ = engine.Add("jump", logNode("jump", Goto("nowhere")))
	_ = engine.StartAt("jump")
	_, err := engine.Run(ctx, "r", TestState{})
	var engErr *EngineError
	if !errors.As(err, &engErr) || engErr.Code != "NODE_NOT_FOUND" {
		t.Errorf("err = %v, want NODE_NOT_FOUND", err)
	}
}

func TestEngine_Resume(t *testing.T) {
	engine, st, em := newTestEngine(t)

	// The review node stops the run until approval arrives out of band.
	_ = engine.Add("research", logNode("research", Goto("review")))
	_ = engine.Add("review", NodeFunc[TestState](func(ctx context.Context, s TestState) NodeResult[TestState] {
		if !s.Approved {
			return NodeResult[TestState]{Delta: TestState{Log: []string{"paused"}}, Route: Stop()}
		}
		return NodeResult[TestState]{Delta: TestState{Log: []string{"approved"}}, Route: Goto("report")}
	}))
	_ = engine.Add("report", logNode("report", Stop()))
	_ = engine.StartAt("research")

	ctx := context.Background()
	if _, err := engine.Run(ctx, "run-r", TestState{}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Approve out of band, then resume at review.
	state, step, _ := st.LoadLatest(ctx, "run-r")
	state.Approved = true
	_ = st.SaveStep(ctx, "run-r", step, "review", state)

	final, err := engine.Resume(ctx, "run-r", "review")
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if got := strings.Join(final.Log, ","); got != "research,paused,approved,report" {
		t.Errorf("log = %s", got)
	}

	history := st.History("run-r")
	if len(history) != 4 || history[3].Step != 4 || history[3].NodeID != "report" {
		t.Errorf("history = %+v", history)
	}

	resumes := em.GetHistoryWithFilter("run-r", emit.HistoryFilter{Msg: emit.MsgRunResume})
	if len(resumes) != 1 || resumes[0].Step != 2 {
		t.Errorf("resume events = %+v", resumes)
	}

	_, err = engine.Resume(ctx, "unknown", "review")
	var engErr *EngineError
	if !errors.As(err, &engErr) || engErr.Code != "RUN_NOT_FOUND" {
		t.Errorf("err = %v, want RUN_NOT_FOUND", err)
	}
}

func TestEngine_Checkpoints(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	_ = engine.Add("start", logNode("start", Stop()))
	_ = engine.Add("branch", logNode("branch", Stop()))
	_ = engine.StartAt("start")

	ctx := context.Background()
	if _, err := engine.Run(ctx, "run-cp", TestState{Query: "q"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := engine.SaveCheckpoint(ctx, "run-cp", "after-start"); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}

	for _, runID := range []string{"branch-a", "branch-b"} {
		final, err := engine.ResumeFromCheckpoint(ctx, "after-start", runID, "branch")
		if err != nil {
			t.Fatalf("ResumeFromCheckpoint: %v", err)
		}
		if strings.Join(final.Log, ",") != "start,branch" || final.Query != "q" {
			t.Errorf("%s final = %+v", runID, final)
		}
	}

	if err := engine.SaveCheckpoint(ctx, "missing", "cp"); err == nil {
		t.Error("checkpoint of unknown run accepted")
	}
	if _, err := engine.ResumeFromCheckpoint(ctx, "missing", "r", "branch"); err == nil {
		t.Error("unknown checkpoint accepted")
	}
}

func TestEngine_InitialStateIsCopied(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	_ = engine.Add("a", logNode("a", Stop()))
	_ = engine.StartAt("a")

	initial := TestState{Log: make([]string, 0, 4)}
	if _, err := engine.Run(context.Background(), "r", initial); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(initial.Log) != 0 {
		t.Errorf("caller state mutated: %+v", initial)
	}
}

func TestEngine_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewPrometheusMetrics(reg)
	engine, _, _ := newTestEngine(t, WithMetrics(metrics))
	_ = engine.Add("a", logNode("a", Goto("b")))
	_ = engine.Add("b", logNode("b", Stop()))
	_ = engine.StartAt("a")

	if _, err := engine.Run(context.Background(), "r", TestState{}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := testutil.ToFloat64(metrics.steps.WithLabelValues("a", "success")); got != 1 {
		t.Errorf("steps{a} = %v", got)
	}
	if got := testutil.ToFloat64(metrics.runs.WithLabelValues("success")); got != 1 {
		t.Errorf("runs{success} = %v", got)
	}

	metrics.Disable()
	_, _ = engine.Run(context.Background(), "r2", TestState{})
	if got := testutil.ToFloat64(metrics.runs.WithLabelValues("success")); got != 1 {
		t.Errorf("disabled metrics still recorded: %v", got)
	}
	metrics.Enable()
}

func TestEngine_RunInfoInContext(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	var seen []string
	record := func(next Next) NodeFunc[TestState] {
		return func(ctx context.Context, s TestState) NodeResult[TestState] {
			runID, step := RunInfo(ctx)
			seen = append(seen, runID+":"+string(rune('0'+step)))
			return NodeResult[TestState]{Route: next}
		}
	}
	_ = engine.Add("a", record(Goto("b")))
	_ = engine.Add("b", record(Stop()))
	_ = engine.StartAt("a")

	if _, err := engine.Run(context.Background(), "run-x", TestState{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := strings.Join(seen, ","); got != "run-x:1,run-x:2" {
		t.Errorf("run info = %s", got)
	}

	if runID, step := RunInfo(context.Background()); runID != "" || step != 0 {
		t.Errorf("RunInfo outside run = %q, %d", runID, step)
	}
}
