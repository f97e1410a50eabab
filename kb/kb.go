package kb

import (
	"fmt"
	"sort"
	"sync"

	"github.com/signalsfoundry/leo-topology/model"
)

// EventType indicates what kind of change happened in the KB.
type EventType int

const (
	EventPlatformAdded EventType = iota
	EventPlatformUpdated
)

// Event is emitted to subscribers when something interesting happens.
type Event struct {
	Type     EventType
	Platform model.PlatformDefinition
}

// KnowledgeBase is an in-memory, thread-safe store for platforms and nodes.
// The constellation topology registers every satellite and ground station
// here and pushes fresh positions on each link update.
type KnowledgeBase struct {
	mu sync.RWMutex

	platforms map[string]*model.PlatformDefinition
	nodes     map[string]*model.NetworkNode

	subs   map[int]func(Event)
	nextID int
}

// NewKnowledgeBase constructs an empty KB.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		platforms: make(map[string]*model.PlatformDefinition),
		nodes:     make(map[string]*model.NetworkNode),
		subs:      make(map[int]func(Event)),
	}
}

// AddPlatform adds a new platform. It returns an error if the ID already exists.
func (kb *KnowledgeBase) AddPlatform(p *model.PlatformDefinition) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("nil or empty platform")
	}

	kb.mu.Lock()
	if _, exists := kb.platforms[p.ID]; exists {
		kb.mu.Unlock()
		return fmt.Errorf("platform with ID %q already exists", p.ID)
	}
	cp := *p
	kb.platforms[p.ID] = &cp
	subs := kb.subscribersLocked()
	kb.mu.Unlock()

	notify(subs, Event{Type: EventPlatformAdded, Platform: cp})
	return nil
}

// AddNetworkNode adds a new network node. It returns an error if the ID already exists
// or if the referenced platform does not exist.
func (kb *KnowledgeBase) AddNetworkNode(n *model.NetworkNode) error {
	if n == nil || n.ID == "" {
		return fmt.Errorf("nil or empty network node")
	}

	kb.mu.Lock()
	defer kb.mu.Unlock()

	if _, exists := kb.nodes[n.ID]; exists {
		return fmt.Errorf("node with ID %q already exists", n.ID)
	}
	if n.PlatformID != "" {
		if _, ok := kb.platforms[n.PlatformID]; !ok {
			return fmt.Errorf("platform with ID %q not found for node", n.PlatformID)
		}
	}
	cp := *n
	kb.nodes[n.ID] = &cp
	return nil
}

// GetPlatform returns a copy of the platform with the given ID, or nil if not found.
func (kb *KnowledgeBase) GetPlatform(id string) *model.PlatformDefinition {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	if p, ok := kb.platforms[id]; ok {
		cp := *p
		return &cp
	}
	return nil
}

// GetNetworkNode returns the network node with the given ID, or nil if not found.
func (kb *KnowledgeBase) GetNetworkNode(id string) *model.NetworkNode {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	if n, ok := kb.nodes[id]; ok {
		cp := *n
		return &cp
	}
	return nil
}

// ListPlatforms returns a snapshot of all platforms sorted by ID.
func (kb *KnowledgeBase) ListPlatforms() []model.PlatformDefinition {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	res := make([]model.PlatformDefinition, 0, len(kb.platforms))
	for _, p := range kb.platforms {
		res = append(res, *p)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// ListPlatformsByType returns the platforms of one type sorted by ID.
func (kb *KnowledgeBase) ListPlatformsByType(t model.PlatformType) []model.PlatformDefinition {
	all := kb.ListPlatforms()
	out := all[:0]
	for _, p := range all {
		if p.Type == t {
			out = append(out, p)
		}
	}
	return out
}

// ListNetworkNodes returns a snapshot of all network nodes sorted by ID.
func (kb *KnowledgeBase) ListNetworkNodes() []model.NetworkNode {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	res := make([]model.NetworkNode, 0, len(kb.nodes))
	for _, n := range kb.nodes {
		res = append(res, *n)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// UpdatePlatformPosition updates a platform's coordinates and notifies subscribers.
func (kb *KnowledgeBase) UpdatePlatformPosition(id string, pos model.Motion) error {
	kb.mu.Lock()
	p, ok := kb.platforms[id]
	if !ok {
		kb.mu.Unlock()
		return fmt.Errorf("platform with ID %q not found", id)
	}
	p.Coordinates = pos
	event := Event{
		Type:     EventPlatformUpdated,
		Platform: *p,
	}
	subs := kb.subscribersLocked()
	kb.mu.Unlock()

	// Notify subscribers outside the lock to avoid deadlocks.
	notify(subs, event)
	return nil
}

// Subscribe registers a callback for KB events. It returns an unsubscribe function.
func (kb *KnowledgeBase) Subscribe(fn func(Event)) (unsubscribe func()) {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	id := kb.nextID
	kb.nextID++
	kb.subs[id] = fn

	return func() {
		kb.mu.Lock()
		defer kb.mu.Unlock()
		delete(kb.subs, id)
	}
}

// subscribersLocked returns subscribers in registration order.
// Caller must hold kb.mu.
func (kb *KnowledgeBase) subscribersLocked() []func(Event) {
	ids := make([]int, 0, len(kb.subs))
	for id := range kb.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		out = append(out, kb.subs[id])
	}
	return out
}

func notify(subs []func(Event), ev Event) {
	for _, sub := range subs {
		sub(ev)
	}
}
