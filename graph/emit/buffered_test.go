package emit

import (
	"sync"
	"testing"
)

func TestBufferedEmitter_History(t *testing.T) {
	b := NewBufferedEmitter()

	b.Emit(Event{RunID: "a", Step: 1, NodeID: "research", Msg: MsgNodeStart})
	b.Emit(Progress("a", 1, "research", "working"))
	b.Emit(Event{RunID: "b", Step: 1, NodeID: "other", Msg: MsgNodeStart})
	b.Emit(Event{RunID: "a", Step: 2, NodeID: "review", Msg: MsgNodeStart})

	if got := len(b.GetHistory("a")); got != 3 {
		t.Fatalf("history(a) = %d events, want 3", got)
	}
	if got := b.GetHistory("missing"); got == nil || len(got) != 0 {
		t.Errorf("history(missing) = %#v, want empty slice", got)
	}

	starts := b.GetHistoryWithFilter("a", HistoryFilter{Msg: MsgNodeStart})
	if len(starts) != 2 || starts[0].NodeID != "research" || starts[1].NodeID != "review" {
		t.Errorf("node_start filter = %+v", starts)
	}

	byNode := b.GetHistoryWithFilter("a", HistoryFilter{NodeID: "research"})
	if len(byNode) != 2 {
		t.Errorf("node filter = %d events, want 2", len(byNode))
	}

	if got := b.ProgressText("a"); len(got) != 1 || got[0] != "working" {
		t.Errorf("ProgressText = %q", got)
	}
}

func TestBufferedEmitter_HistoryIsCopy(t *testing.T) {
	b := NewBufferedEmitter()
	b.Emit(Event{RunID: "a", Msg: "one"})

	h := b.GetHistory("a")
	h[0].Msg = "changed"

	if b.GetHistory("a")[0].Msg != "one" {
		t.Error("mutating returned history changed the buffer")
	}
}

func TestBufferedEmitter_Clear(t *testing.T) {
	b := NewBufferedEmitter()
	b.Emit(Event{RunID: "a"})
	b.Emit(Event{RunID: "b"})

	b.Clear("a")
	if len(b.GetHistory("a")) != 0 || len(b.GetHistory("b")) != 1 {
		t.Fatal("Clear(a) removed the wrong run")
	}

	b.Clear("")
	if len(b.GetHistory("b")) != 0 {
		t.Error("Clear(\"\") kept events")
	}
}

func TestBufferedEmitter_Concurrent(t *testing.T) {
	b := NewBufferedEmitter()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b.Emit(Event{RunID: "run", Step: i})
		}(i)
	}
	wg.Wait()

	if got := len(b.GetHistory("run")); got != 50 {
		t.Errorf("history = %d events, want 50", got)
	}
}

func TestMulti(t *testing.T) {
	first, second := NewBufferedEmitter(), NewBufferedEmitter()
	m := Multi{first, nil, second, NewNullEmitter()}

	m.Emit(Event{RunID: "r", Msg: MsgRunStart})

	if len(first.GetHistory("r")) != 1 || len(second.GetHistory("r")) != 1 {
		t.Error("event not delivered to every emitter")
	}
}
