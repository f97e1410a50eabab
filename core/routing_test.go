package core

import (
	"testing"
	"time"
)

func buildTriangle(t *testing.T) (*KnowledgeBase, map[string]LinkHandle) {
	t.Helper()
	kb := NewKnowledgeBase()
	handles := map[string]LinkHandle{}
	for _, l := range []struct {
		id, a, b string
		delay    time.Duration
	}{
		{"ab", "a", "b", 10 * time.Millisecond},
		{"bc", "b", "c", 10 * time.Millisecond},
		{"ac", "a", "c", 50 * time.Millisecond},
		{"cd", "c", "d", 5 * time.Millisecond},
	} {
		h := newTestLink(t, kb, l.id, l.a, l.b)
		if err := h.SetDelay(l.delay); err != nil {
			t.Fatalf("SetDelay(%s): %v", l.id, err)
		}
		if err := bringUp(kb, h); err != nil {
			t.Fatalf("bringUp(%s): %v", l.id, err)
		}
		handles[l.id] = h
	}
	return kb, handles
}

func TestShortestDelayRouterPrefersLowDelay(t *testing.T) {
	kb, _ := buildTriangle(t)
	r := NewShortestDelayRouter(kb)
	if err := r.PopulateRoutingTables(); err != nil {
		t.Fatalf("PopulateRoutingTables: %v", err)
	}

	route, ok := r.Lookup("a", "d")
	if !ok {
		t.Fatalf("no route a->d")
	}
	if route.NextHop != "b" || route.Delay != 25*time.Millisecond || route.Hops != 3 {
		t.Fatalf("route a->d = %+v, want via b, 25ms, 3 hops", route)
	}

	back, ok := r.Lookup("d", "a")
	if !ok || back.NextHop != "c" || back.Delay != 25*time.Millisecond {
		t.Fatalf("route d->a = %+v (ok=%v)", back, ok)
	}

	if _, ok := r.Lookup("a", "a"); ok {
		t.Fatalf("self route should not be listed")
	}

	table := r.Table("a")
	if len(table) != 3 {
		t.Fatalf("table(a) has %d entries, want 3", len(table))
	}
	for i, want := range []string{"b", "c", "d"} {
		if table[i].Destination != want {
			t.Fatalf("table(a)[%d] = %s, want %s", i, table[i].Destination, want)
		}
	}
}

func TestShortestDelayRouterIgnoresDownLinks(t *testing.T) {
	kb, handles := buildTriangle(t)
	r := NewShortestDelayRouter(kb)
	if err := r.PopulateRoutingTables(); err != nil {
		t.Fatalf("PopulateRoutingTables: %v", err)
	}

	if err := takeDown(kb, handles["bc"]); err != nil {
		t.Fatalf("takeDown: %v", err)
	}
	if err := r.RecomputeRoutingTables(); err != nil {
		t.Fatalf("RecomputeRoutingTables: %v", err)
	}

	route, ok := r.Lookup("a", "c")
	if !ok || route.NextHop != "c" || route.Delay != 50*time.Millisecond || route.Hops != 1 {
		t.Fatalf("route a->c after bc down = %+v (ok=%v), want direct 50ms", route, ok)
	}
	if r.Generation() != 2 {
		t.Fatalf("generation = %d, want 2", r.Generation())
	}
}

func TestShortestDelayRouterUnreachable(t *testing.T) {
	kb, handles := buildTriangle(t)
	if err := takeDown(kb, handles["cd"]); err != nil {
		t.Fatalf("takeDown: %v", err)
	}
	r := NewShortestDelayRouter(kb)
	if err := r.PopulateRoutingTables(); err != nil {
		t.Fatalf("PopulateRoutingTables: %v", err)
	}
	if _, ok := r.Lookup("a", "d"); ok {
		t.Fatalf("d should be unreachable once cd is down")
	}
}

func TestRecomputeBeforePopulateFails(t *testing.T) {
	r := NewShortestDelayRouter(NewKnowledgeBase())
	if err := r.RecomputeRoutingTables(); err == nil {
		t.Fatalf("expected error recomputing before populate")
	}
	if r.Generation() != 0 {
		t.Fatalf("generation = %d, want 0", r.Generation())
	}

	if err := NewShortestDelayRouter(nil).PopulateRoutingTables(); err == nil {
		t.Fatalf("expected error for router without link source")
	}
}
