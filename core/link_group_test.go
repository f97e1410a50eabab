package core

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

// recordingNetwork wraps a KnowledgeBase and records every endpoint
// transition in order.
type recordingNetwork struct {
	*KnowledgeBase
	events  []string
	newLink func(LinkSpec) error
}

func newRecordingNetwork() *recordingNetwork {
	return &recordingNetwork{KnowledgeBase: NewKnowledgeBase()}
}

func (n *recordingNetwork) NewLink(spec LinkSpec) (LinkHandle, error) {
	if n.newLink != nil {
		if err := n.newLink(spec); err != nil {
			return nil, err
		}
	}
	h, err := n.KnowledgeBase.NewLink(spec)
	if err != nil {
		return nil, err
	}
	return &recordingHandle{LinkHandle: h, net: n}, nil
}

func (n *recordingNetwork) SetInterfaceUp(id string) error {
	n.events = append(n.events, "up "+id)
	return n.KnowledgeBase.SetInterfaceUp(id)
}

func (n *recordingNetwork) SetInterfaceDown(id string) error {
	n.events = append(n.events, "down "+id)
	return n.KnowledgeBase.SetInterfaceDown(id)
}

func (n *recordingNetwork) reset() { n.events = nil }

type recordingHandle struct {
	LinkHandle
	net *recordingNetwork
}

func (h *recordingHandle) Attach(ep string) error {
	h.net.events = append(h.net.events, "attach "+ep)
	return h.LinkHandle.Attach(ep)
}

func (h *recordingHandle) Detach(ep string) error {
	h.net.events = append(h.net.events, "detach "+ep)
	return h.LinkHandle.Detach(ep)
}

func newTestGroup(net Network) *LinkGroup {
	return newLinkGroup(net, "isl-p0-s0", LinkKindInterPlane, "sat-1", 1, []string{"sat-3", "sat-4", "sat-10"})
}

func TestLinkGroupFirstBindActivatesOnlyTarget(t *testing.T) {
	net := newRecordingNetwork()
	g := newTestGroup(net)

	if g.CurrentAdjacentSlot() != -1 || g.Active() != nil {
		t.Fatalf("fresh group should have no binding")
	}

	changed, err := g.bind(1, 4*time.Millisecond)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	if !changed {
		t.Fatalf("first bind should report a change")
	}
	if g.CurrentAdjacentSlot() != 1 || g.Delay() != 4*time.Millisecond {
		t.Fatalf("binding = slot %d delay %v", g.CurrentAdjacentSlot(), g.Delay())
	}

	// Lazy provisioning: only the chosen candidate exists.
	if g.Candidate(0) != nil || g.Candidate(2) != nil {
		t.Fatalf("unused candidates should not be provisioned yet")
	}
	links := net.GetLinksInGroup("isl-p0-s0")
	if len(links) != 1 || links[0].ID != "isl-p0-s0-to-sat-4" || !links[0].IsUp {
		t.Fatalf("group links = %+v", links)
	}
	if links[0].Delay != 4*time.Millisecond {
		t.Fatalf("link delay = %v, want 4ms", links[0].Delay)
	}
}

func TestLinkGroupRehomeReleasesBeforeActivating(t *testing.T) {
	net := newRecordingNetwork()
	g := newTestGroup(net)
	if _, err := g.bind(0, time.Millisecond); err != nil {
		t.Fatalf("bind(0): %v", err)
	}
	net.reset()

	changed, err := g.bind(2, 2*time.Millisecond)
	if err != nil {
		t.Fatalf("bind(2): %v", err)
	}
	if !changed {
		t.Fatalf("re-home should report a change")
	}

	old := "isl-p0-s0-to-sat-3"
	next := "isl-p0-s0-to-sat-10"
	want := []string{
		"detach " + old + "@sat-1",
		"down " + old + "@sat-1",
		"detach " + old + "@sat-3",
		"down " + old + "@sat-3",
		"attach " + next + "@sat-1",
		"up " + next + "@sat-1",
		"attach " + next + "@sat-10",
		"up " + next + "@sat-10",
	}
	if strings.Join(net.events, "\n") != strings.Join(want, "\n") {
		t.Fatalf("events:\n%s\nwant:\n%s", strings.Join(net.events, "\n"), strings.Join(want, "\n"))
	}

	if l := net.GetNetworkLink(old); l == nil || l.IsUp || l.Status != LinkStatusProvisioned {
		t.Fatalf("old candidate should stay provisioned and down: %+v", l)
	}
	if ups := net.GetUpLinks(); len(ups) != 1 || ups[0].ID != next {
		t.Fatalf("up links = %+v, want only %s", ups, next)
	}

	// Returning to a previously used slot reuses its handle.
	oldHandle := g.Candidate(0)
	if _, err := g.bind(0, time.Millisecond); err != nil {
		t.Fatalf("bind(0) again: %v", err)
	}
	if g.Candidate(0) != oldHandle {
		t.Fatalf("candidate for slot 0 was rebuilt")
	}
	if n := len(net.GetLinksInGroup("isl-p0-s0")); n != 2 {
		t.Fatalf("group holds %d links, want 2", n)
	}
}

func TestLinkGroupSameSlotOnlyUpdatesDelay(t *testing.T) {
	net := newRecordingNetwork()
	g := newTestGroup(net)
	if _, err := g.bind(1, time.Millisecond); err != nil {
		t.Fatalf("bind: %v", err)
	}
	net.reset()

	changed, err := g.bind(1, 9*time.Millisecond)
	if err != nil {
		t.Fatalf("bind same slot: %v", err)
	}
	if changed {
		t.Fatalf("same slot should not report a re-home")
	}
	if len(net.events) != 0 {
		t.Fatalf("same slot touched endpoints: %v", net.events)
	}
	if got := net.GetNetworkLink("isl-p0-s0-to-sat-4").Delay; got != 9*time.Millisecond {
		t.Fatalf("delay = %v, want 9ms", got)
	}
}

func TestLinkGroupProvisionAll(t *testing.T) {
	net := newRecordingNetwork()
	g := newTestGroup(net)
	if err := g.provisionAll(); err != nil {
		t.Fatalf("provisionAll: %v", err)
	}
	if len(net.events) != 0 {
		t.Fatalf("provisioning should not attach anything: %v", net.events)
	}
	links := net.GetLinksInGroup("isl-p0-s0")
	if len(links) != 3 {
		t.Fatalf("provisioned %d candidates, want 3", len(links))
	}
	for _, l := range links {
		if l.IsUp {
			t.Fatalf("candidate %s should be down", l.ID)
		}
	}
	if g.Active() != nil {
		t.Fatalf("provisionAll should not activate a candidate")
	}
}

func TestLinkGroupBindErrors(t *testing.T) {
	g := newTestGroup(newRecordingNetwork())
	for _, slot := range []int{-1, 3} {
		if _, err := g.bind(slot, 0); !errors.Is(err, ErrLinkBadInput) {
			t.Fatalf("bind(%d) = %v, want ErrLinkBadInput", slot, err)
		}
	}

	boom := errors.New("no capacity")
	net := newRecordingNetwork()
	net.newLink = func(LinkSpec) error { return boom }
	g = newTestGroup(net)
	_, err := g.bind(0, 0)
	if !errors.Is(err, boom) {
		t.Fatalf("bind with failing network = %v, want wrapped %v", err, boom)
	}
	if g.CurrentAdjacentSlot() != -1 {
		t.Fatalf("failed bind moved the group to slot %d", g.CurrentAdjacentSlot())
	}
	if !strings.Contains(err.Error(), fmt.Sprintf("%s slot 0", g.ID())) {
		t.Fatalf("error %q does not name the group", err)
	}
}
