package core

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	ErrLinkExists        = errors.New("link already exists")
	ErrLinkNotFound      = errors.New("link not found")
	ErrLinkBadInput      = errors.New("invalid link")
	ErrEmptyLinkID       = errors.New("empty link ID")
	ErrInterfaceExists   = errors.New("interface already exists")
	ErrInterfaceNotFound = errors.New("interface not found")
	ErrInterfaceBadInput = errors.New("invalid interface")
)

// KnowledgeBase is the in-process network layer backing a constellation:
// it stores interfaces and links, hands out LinkHandles, and tracks
// attach and administrative state so routers can see which links are up.
//
// All access is guarded by an internal RWMutex so readers (metrics,
// diagnostics) can run alongside the simulation loop.
type KnowledgeBase struct {
	mu sync.RWMutex

	interfaces   map[string]*NetworkInterface
	links        map[string]*NetworkLink
	linksByNode  map[string]map[string]*NetworkLink
	linksByGroup map[string]map[string]*NetworkLink
}

// NewKnowledgeBase creates an empty network knowledge base.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		interfaces:   make(map[string]*NetworkInterface),
		links:        make(map[string]*NetworkLink),
		linksByNode:  make(map[string]map[string]*NetworkLink),
		linksByGroup: make(map[string]map[string]*NetworkLink),
	}
}

//
// ---------- Network implementation ----------
//

// NewLink provisions a link and its two interfaces. Both interfaces start
// detached and administratively down.
func (kb *KnowledgeBase) NewLink(spec LinkSpec) (LinkHandle, error) {
	if spec.ID == "" {
		return nil, fmt.Errorf("%w", ErrEmptyLinkID)
	}
	if spec.NodeA == "" || spec.NodeB == "" || spec.NodeA == spec.NodeB {
		return nil, fmt.Errorf("%w: %q needs two distinct nodes", ErrLinkBadInput, spec.ID)
	}

	kb.mu.Lock()
	defer kb.mu.Unlock()

	if _, exists := kb.links[spec.ID]; exists {
		return nil, fmt.Errorf("%w: %q", ErrLinkExists, spec.ID)
	}
	ifA := interfaceID(spec.ID, spec.NodeA)
	ifB := interfaceID(spec.ID, spec.NodeB)
	for _, id := range []string{ifA, ifB} {
		if _, exists := kb.interfaces[id]; exists {
			return nil, fmt.Errorf("%w: %q", ErrInterfaceExists, id)
		}
	}

	kb.interfaces[ifA] = &NetworkInterface{ID: ifA, ParentNodeID: spec.NodeA, LinkID: spec.ID}
	kb.interfaces[ifB] = &NetworkInterface{ID: ifB, ParentNodeID: spec.NodeB, LinkID: spec.ID}

	link := &NetworkLink{
		ID:         spec.ID,
		Kind:       spec.Kind,
		GroupID:    spec.GroupID,
		InterfaceA: ifA,
		InterfaceB: ifB,
		NodeA:      spec.NodeA,
		NodeB:      spec.NodeB,
		Status:     LinkStatusProvisioned,
	}
	kb.links[spec.ID] = link
	kb.index(kb.linksByNode, spec.NodeA, link)
	kb.index(kb.linksByNode, spec.NodeB, link)
	if spec.GroupID != "" {
		kb.index(kb.linksByGroup, spec.GroupID, link)
	}

	return &kbLink{kb: kb, id: spec.ID, endpoints: [2]string{ifA, ifB}}, nil
}

// SetInterfaceUp marks an interface administratively up.
func (kb *KnowledgeBase) SetInterfaceUp(id string) error {
	return kb.mutateInterface(id, func(intf *NetworkInterface) { intf.IsUp = true })
}

// SetInterfaceDown marks an interface administratively down.
func (kb *KnowledgeBase) SetInterfaceDown(id string) error {
	return kb.mutateInterface(id, func(intf *NetworkInterface) { intf.IsUp = false })
}

func (kb *KnowledgeBase) mutateInterface(id string, fn func(*NetworkInterface)) error {
	if id == "" {
		return fmt.Errorf("%w", ErrInterfaceBadInput)
	}

	kb.mu.Lock()
	defer kb.mu.Unlock()

	intf, ok := kb.interfaces[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrInterfaceNotFound, id)
	}
	fn(intf)
	kb.refreshLinkLocked(intf.LinkID)
	return nil
}

// refreshLinkLocked recomputes a link's status from its interfaces.
//
// NOTE: caller must hold kb.mu (write lock).
func (kb *KnowledgeBase) refreshLinkLocked(linkID string) {
	link, ok := kb.links[linkID]
	if !ok {
		return
	}
	up := kb.interfaces[link.InterfaceA].Operational() && kb.interfaces[link.InterfaceB].Operational()
	link.IsUp = up
	if up {
		link.Status = LinkStatusActive
	} else {
		link.Status = LinkStatusProvisioned
	}
}

// kbLink is the LinkHandle handed out by KnowledgeBase.NewLink.
type kbLink struct {
	kb        *KnowledgeBase
	id        string
	endpoints [2]string
}

func (l *kbLink) ID() string { return l.id }

func (l *kbLink) Endpoints() [2]string { return l.endpoints }

func (l *kbLink) Attach(endpointID string) error {
	return l.setAttached(endpointID, true)
}

func (l *kbLink) Detach(endpointID string) error {
	return l.setAttached(endpointID, false)
}

func (l *kbLink) setAttached(endpointID string, attached bool) error {
	if endpointID != l.endpoints[0] && endpointID != l.endpoints[1] {
		return fmt.Errorf("%w: %q is not an endpoint of link %q", ErrInterfaceBadInput, endpointID, l.id)
	}
	return l.kb.mutateInterface(endpointID, func(intf *NetworkInterface) { intf.IsAttached = attached })
}

func (l *kbLink) SetDelay(d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("%w: negative delay %s on %q", ErrLinkBadInput, d, l.id)
	}

	l.kb.mu.Lock()
	defer l.kb.mu.Unlock()

	link, ok := l.kb.links[l.id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrLinkNotFound, l.id)
	}
	link.Delay = d
	return nil
}

//
// ---------- Queries ----------
//

// GetNetworkInterface returns an interface by ID, or nil if not found.
func (kb *KnowledgeBase) GetNetworkInterface(id string) *NetworkInterface {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	if intf, ok := kb.interfaces[id]; ok {
		cp := *intf
		return &cp
	}
	return nil
}

// GetNetworkLink returns a copy of a single link by ID, or nil if missing.
func (kb *KnowledgeBase) GetNetworkLink(id string) *NetworkLink {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	if l, ok := kb.links[id]; ok {
		cp := *l
		return &cp
	}
	return nil
}

// GetAllNetworkLinks returns copies of all links sorted by ID.
func (kb *KnowledgeBase) GetAllNetworkLinks() []*NetworkLink {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return sortedCopies(kb.links, nil)
}

// GetUpLinks returns all links currently carrying traffic.
func (kb *KnowledgeBase) GetUpLinks() []*NetworkLink {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return sortedCopies(kb.links, func(l *NetworkLink) bool { return l.IsUp })
}

// GetLinksInGroup returns every provisioned candidate of a link group.
func (kb *KnowledgeBase) GetLinksInGroup(groupID string) []*NetworkLink {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return sortedCopies(kb.linksByGroup[groupID], nil)
}

// GetLinksForNode returns the links touching nodeID.
func (kb *KnowledgeBase) GetLinksForNode(nodeID string) []*NetworkLink {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return sortedCopies(kb.linksByNode[nodeID], nil)
}

// GetNeighbours returns neighbour node IDs reachable from nodeID via
// currently-up links.
func (kb *KnowledgeBase) GetNeighbours(nodeID string) []string {
	if nodeID == "" {
		return nil
	}

	kb.mu.RLock()
	defer kb.mu.RUnlock()

	neigh := make(map[string]struct{})
	for _, link := range kb.linksByNode[nodeID] {
		if !link.IsUp {
			continue
		}
		if link.NodeA == nodeID {
			neigh[link.NodeB] = struct{}{}
		} else {
			neigh[link.NodeA] = struct{}{}
		}
	}

	out := make([]string, 0, len(neigh))
	for id := range neigh {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// CountUpLinksByKind returns the number of up links per kind.
func (kb *KnowledgeBase) CountUpLinksByKind() map[LinkKind]int {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	out := make(map[LinkKind]int)
	for _, l := range kb.links {
		if l.IsUp {
			out[l.Kind]++
		}
	}
	return out
}

// Clear removes all interfaces and links.
func (kb *KnowledgeBase) Clear() {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	kb.interfaces = make(map[string]*NetworkInterface)
	kb.links = make(map[string]*NetworkLink)
	kb.linksByNode = make(map[string]map[string]*NetworkLink)
	kb.linksByGroup = make(map[string]map[string]*NetworkLink)
}

//
// ---------- Helpers ----------
//

// NOTE: caller must hold kb.mu (write lock).
func (kb *KnowledgeBase) index(idx map[string]map[string]*NetworkLink, key string, link *NetworkLink) {
	m, ok := idx[key]
	if !ok {
		m = make(map[string]*NetworkLink)
		idx[key] = m
	}
	m[link.ID] = link
}

func sortedCopies(src map[string]*NetworkLink, keep func(*NetworkLink) bool) []*NetworkLink {
	out := make([]*NetworkLink, 0, len(src))
	for _, l := range src {
		if keep != nil && !keep(l) {
			continue
		}
		cp := *l
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
