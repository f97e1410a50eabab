package core

import (
	"fmt"
	"time"
)

// LinkGroup is the pool of candidate links from one local node to every
// slot of a remote plane. At most one candidate is active at a time; the
// rest are either never built or detached and down. Candidates are built
// on first use and kept for the lifetime of the group.
type LinkGroup struct {
	id          string
	kind        LinkKind
	localNode   string
	remotePlane int
	remoteNodes []string

	net        Network
	candidates []LinkHandle
	current    int
	delay      time.Duration
}

func newLinkGroup(net Network, id string, kind LinkKind, localNode string, remotePlane int, remoteNodes []string) *LinkGroup {
	return &LinkGroup{
		id:          id,
		kind:        kind,
		localNode:   localNode,
		remotePlane: remotePlane,
		remoteNodes: remoteNodes,
		net:         net,
		candidates:  make([]LinkHandle, len(remoteNodes)),
		current:     -1,
	}
}

// ID returns the group identifier.
func (g *LinkGroup) ID() string { return g.id }

// Kind returns the kind shared by all candidates.
func (g *LinkGroup) Kind() LinkKind { return g.kind }

// LocalNode returns the node all candidates start from.
func (g *LinkGroup) LocalNode() string { return g.localNode }

// RemotePlane returns the plane the candidates point into.
func (g *LinkGroup) RemotePlane() int { return g.remotePlane }

// CurrentAdjacentSlot returns the remote slot of the active candidate,
// or -1 before the first bind.
func (g *LinkGroup) CurrentAdjacentSlot() int { return g.current }

// Delay returns the delay last set on the active candidate.
func (g *LinkGroup) Delay() time.Duration { return g.delay }

// Active returns the handle of the active candidate, or nil.
func (g *LinkGroup) Active() LinkHandle {
	if g.current < 0 {
		return nil
	}
	return g.candidates[g.current]
}

// Candidate returns the handle for a remote slot if it has been built.
func (g *LinkGroup) Candidate(slot int) LinkHandle {
	if slot < 0 || slot >= len(g.candidates) {
		return nil
	}
	return g.candidates[slot]
}

func (g *LinkGroup) candidateID(slot int) string {
	return fmt.Sprintf("%s-to-%s", g.id, g.remoteNodes[slot])
}

// provision builds the candidate for slot if needed.
func (g *LinkGroup) provision(slot int) (LinkHandle, error) {
	if h := g.candidates[slot]; h != nil {
		return h, nil
	}
	h, err := g.net.NewLink(LinkSpec{
		ID:      g.candidateID(slot),
		Kind:    g.kind,
		GroupID: g.id,
		NodeA:   g.localNode,
		NodeB:   g.remoteNodes[slot],
	})
	if err != nil {
		return nil, fmt.Errorf("provision %s slot %d: %w", g.id, slot, err)
	}
	g.candidates[slot] = h
	return h, nil
}

// provisionAll builds every candidate without activating any.
func (g *LinkGroup) provisionAll() error {
	for slot := range g.candidates {
		if _, err := g.provision(slot); err != nil {
			return err
		}
	}
	return nil
}

// bind makes slot the active candidate with the given delay. When the
// slot changes, the old candidate is detached and brought down before the
// new one is attached and brought up. It reports whether a re-home
// happened.
func (g *LinkGroup) bind(slot int, delay time.Duration) (bool, error) {
	if slot < 0 || slot >= len(g.candidates) {
		return false, fmt.Errorf("%w: %s has no slot %d", ErrLinkBadInput, g.id, slot)
	}

	if slot == g.current {
		if err := g.candidates[slot].SetDelay(delay); err != nil {
			return false, fmt.Errorf("set delay on %s: %w", g.id, err)
		}
		g.delay = delay
		return false, nil
	}

	if old := g.Active(); old != nil {
		if err := takeDown(g.net, old); err != nil {
			return false, fmt.Errorf("release %s: %w", old.ID(), err)
		}
	}

	next, err := g.provision(slot)
	if err != nil {
		return false, err
	}
	if err := next.SetDelay(delay); err != nil {
		return false, fmt.Errorf("set delay on %s: %w", next.ID(), err)
	}
	if err := bringUp(g.net, next); err != nil {
		return false, fmt.Errorf("activate %s: %w", next.ID(), err)
	}

	g.current = slot
	g.delay = delay
	return true, nil
}
