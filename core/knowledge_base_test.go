package core

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func newTestLink(t *testing.T, kb *KnowledgeBase, id, a, b string) LinkHandle {
	t.Helper()
	h, err := kb.NewLink(LinkSpec{ID: id, Kind: LinkKindIntraPlane, NodeA: a, NodeB: b})
	if err != nil {
		t.Fatalf("NewLink(%s): %v", id, err)
	}
	return h
}

func TestNewLinkStartsProvisionedAndDown(t *testing.T) {
	kb := NewKnowledgeBase()
	h := newTestLink(t, kb, "l1", "sat-1", "sat-2")

	eps := h.Endpoints()
	if eps[0] != "l1@sat-1" || eps[1] != "l1@sat-2" {
		t.Fatalf("endpoints = %v", eps)
	}
	for _, ep := range eps {
		intf := kb.GetNetworkInterface(ep)
		if intf == nil {
			t.Fatalf("interface %s missing", ep)
		}
		if intf.IsAttached || intf.IsUp || intf.Operational() {
			t.Fatalf("interface %s should start detached and down: %+v", ep, intf)
		}
		if intf.LinkID != "l1" {
			t.Fatalf("interface %s LinkID = %q", ep, intf.LinkID)
		}
	}

	link := kb.GetNetworkLink("l1")
	if link == nil {
		t.Fatalf("link l1 missing")
	}
	if link.IsUp || link.Status != LinkStatusProvisioned {
		t.Fatalf("new link state = %v up=%v, want provisioned/down", link.Status, link.IsUp)
	}
}

func TestNewLinkValidation(t *testing.T) {
	kb := NewKnowledgeBase()
	newTestLink(t, kb, "dup", "a", "b")

	cases := []struct {
		name string
		spec LinkSpec
		want error
	}{
		{"empty id", LinkSpec{NodeA: "a", NodeB: "b"}, ErrEmptyLinkID},
		{"same node", LinkSpec{ID: "x", NodeA: "a", NodeB: "a"}, ErrLinkBadInput},
		{"missing node", LinkSpec{ID: "x", NodeA: "a"}, ErrLinkBadInput},
		{"duplicate", LinkSpec{ID: "dup", NodeA: "c", NodeB: "d"}, ErrLinkExists},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := kb.NewLink(tc.spec); !errors.Is(err, tc.want) {
				t.Fatalf("NewLink error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestLinkUpRequiresBothEndsAttachedAndUp(t *testing.T) {
	kb := NewKnowledgeBase()
	h := newTestLink(t, kb, "l1", "sat-1", "sat-2")
	a, b := h.Endpoints()[0], h.Endpoints()[1]

	steps := []struct {
		name   string
		apply  func() error
		wantUp bool
	}{
		{"attach a", func() error { return h.Attach(a) }, false},
		{"up a", func() error { return kb.SetInterfaceUp(a) }, false},
		{"attach b", func() error { return h.Attach(b) }, false},
		{"up b", func() error { return kb.SetInterfaceUp(b) }, true},
		{"detach a", func() error { return h.Detach(a) }, false},
		{"reattach a", func() error { return h.Attach(a) }, true},
		{"down b", func() error { return kb.SetInterfaceDown(b) }, false},
	}
	for _, s := range steps {
		if err := s.apply(); err != nil {
			t.Fatalf("%s: %v", s.name, err)
		}
		link := kb.GetNetworkLink("l1")
		if link.IsUp != s.wantUp {
			t.Fatalf("after %s: IsUp = %v, want %v", s.name, link.IsUp, s.wantUp)
		}
		wantStatus := LinkStatusProvisioned
		if s.wantUp {
			wantStatus = LinkStatusActive
		}
		if link.Status != wantStatus {
			t.Fatalf("after %s: Status = %v, want %v", s.name, link.Status, wantStatus)
		}
	}
}

func TestInterfaceErrors(t *testing.T) {
	kb := NewKnowledgeBase()
	h := newTestLink(t, kb, "l1", "sat-1", "sat-2")

	if err := kb.SetInterfaceUp("nope"); !errors.Is(err, ErrInterfaceNotFound) {
		t.Fatalf("SetInterfaceUp(unknown) = %v, want ErrInterfaceNotFound", err)
	}
	if err := kb.SetInterfaceDown(""); !errors.Is(err, ErrInterfaceBadInput) {
		t.Fatalf("SetInterfaceDown(\"\") = %v, want ErrInterfaceBadInput", err)
	}
	if err := h.Attach("other@sat-3"); !errors.Is(err, ErrInterfaceBadInput) {
		t.Fatalf("Attach(foreign endpoint) = %v, want ErrInterfaceBadInput", err)
	}
	if err := h.SetDelay(-time.Millisecond); !errors.Is(err, ErrLinkBadInput) {
		t.Fatalf("SetDelay(negative) = %v, want ErrLinkBadInput", err)
	}
}

func TestSetDelayIsVisible(t *testing.T) {
	kb := NewKnowledgeBase()
	h := newTestLink(t, kb, "l1", "sat-1", "sat-2")
	if err := h.SetDelay(7 * time.Millisecond); err != nil {
		t.Fatalf("SetDelay: %v", err)
	}
	if got := kb.GetNetworkLink("l1").Delay; got != 7*time.Millisecond {
		t.Fatalf("Delay = %v, want 7ms", got)
	}

	kb.Clear()
	if err := h.SetDelay(time.Millisecond); !errors.Is(err, ErrLinkNotFound) {
		t.Fatalf("SetDelay after Clear = %v, want ErrLinkNotFound", err)
	}
}

func TestQueriesReturnSortedCopies(t *testing.T) {
	kb := NewKnowledgeBase()
	for _, spec := range []LinkSpec{
		{ID: "c", Kind: LinkKindInterPlane, GroupID: "g1", NodeA: "sat-1", NodeB: "sat-3"},
		{ID: "a", Kind: LinkKindInterPlane, GroupID: "g1", NodeA: "sat-1", NodeB: "sat-2"},
		{ID: "b", Kind: LinkKindGround, GroupID: "g2", NodeA: "gs-0", NodeB: "sat-1"},
	} {
		h, err := kb.NewLink(spec)
		if err != nil {
			t.Fatalf("NewLink(%s): %v", spec.ID, err)
		}
		if spec.ID != "c" {
			if err := bringUp(kb, h); err != nil {
				t.Fatalf("bringUp(%s): %v", spec.ID, err)
			}
		}
	}

	ids := func(links []*NetworkLink) []string {
		out := make([]string, len(links))
		for i, l := range links {
			out[i] = l.ID
		}
		return out
	}

	if got := ids(kb.GetAllNetworkLinks()); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("GetAllNetworkLinks = %v", got)
	}
	if got := ids(kb.GetUpLinks()); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("GetUpLinks = %v", got)
	}
	if got := ids(kb.GetLinksInGroup("g1")); !reflect.DeepEqual(got, []string{"a", "c"}) {
		t.Fatalf("GetLinksInGroup(g1) = %v", got)
	}
	if got := ids(kb.GetLinksForNode("sat-1")); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("GetLinksForNode(sat-1) = %v", got)
	}
	if got := kb.GetNeighbours("sat-1"); !reflect.DeepEqual(got, []string{"gs-0", "sat-2"}) {
		t.Fatalf("GetNeighbours(sat-1) = %v", got)
	}
	if got := kb.GetNeighbours(""); got != nil {
		t.Fatalf("GetNeighbours(\"\") = %v, want nil", got)
	}

	counts := kb.CountUpLinksByKind()
	if counts[LinkKindInterPlane] != 1 || counts[LinkKindGround] != 1 || counts[LinkKindIntraPlane] != 0 {
		t.Fatalf("CountUpLinksByKind = %v", counts)
	}

	// Mutating a returned copy must not leak back.
	kb.GetNetworkLink("a").IsUp = false
	if !kb.GetNetworkLink("a").IsUp {
		t.Fatalf("GetNetworkLink returned a shared pointer")
	}

	kb.Clear()
	if len(kb.GetAllNetworkLinks()) != 0 || kb.GetNetworkInterface("a@sat-1") != nil {
		t.Fatalf("Clear left state behind")
	}
}

func TestLinkStatusString(t *testing.T) {
	cases := map[LinkStatus]string{
		LinkStatusUnknown:     "unknown",
		LinkStatusProvisioned: "provisioned",
		LinkStatusActive:      "active",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(s), got, want)
		}
	}
}
