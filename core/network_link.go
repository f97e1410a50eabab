package core

import (
	"fmt"
	"time"
)

// LinkKind classifies the links of a constellation.
type LinkKind string

const (
	LinkKindIntraPlane LinkKind = "intra-plane"
	LinkKindInterPlane LinkKind = "inter-plane"
	LinkKindGround     LinkKind = "ground"
)

// LinkStatus is the binding state of a provisioned link.
type LinkStatus int

const (
	LinkStatusUnknown     LinkStatus = iota // Default/unset
	LinkStatusProvisioned                   // Created but not carrying traffic
	LinkStatusActive                        // Both endpoints attached and up
)

func (s LinkStatus) String() string {
	switch s {
	case LinkStatusProvisioned:
		return "provisioned"
	case LinkStatusActive:
		return "active"
	default:
		return "unknown"
	}
}

// LinkSpec describes a link the topology asks the network layer to build.
type LinkSpec struct {
	ID      string
	Kind    LinkKind
	GroupID string
	NodeA   string
	NodeB   string
}

// NetworkLink is the knowledge base record of a physical link.
type NetworkLink struct {
	ID         string     `json:"ID"`
	Kind       LinkKind   `json:"Kind"`
	GroupID    string     `json:"GroupID,omitempty"`
	InterfaceA string     `json:"InterfaceA"`
	InterfaceB string     `json:"InterfaceB"`
	NodeA      string     `json:"NodeA"`
	NodeB      string     `json:"NodeB"`
	Status     LinkStatus `json:"Status"`

	// IsUp mirrors Status == LinkStatusActive for quick filtering.
	IsUp bool `json:"IsUp"`

	Delay time.Duration `json:"Delay"`
}

// LinkHandle is a physical link as seen by the topology manager.
type LinkHandle interface {
	ID() string
	// Endpoints returns the interface IDs on node A and node B.
	Endpoints() [2]string
	Attach(endpointID string) error
	Detach(endpointID string) error
	SetDelay(d time.Duration) error
}

// Network is the host networking layer: it builds links and owns the
// administrative state of interfaces.
type Network interface {
	NewLink(spec LinkSpec) (LinkHandle, error)
	SetInterfaceUp(endpointID string) error
	SetInterfaceDown(endpointID string) error
}

// Router recomputes forwarding state whenever the topology changes.
type Router interface {
	PopulateRoutingTables() error
	RecomputeRoutingTables() error
}

// interfaceID names the interface a link places on a node.
func interfaceID(linkID, nodeID string) string {
	return fmt.Sprintf("%s@%s", linkID, nodeID)
}

// bringUp attaches both endpoints of h and marks them administratively up.
func bringUp(net Network, h LinkHandle) error {
	for _, ep := range h.Endpoints() {
		if err := h.Attach(ep); err != nil {
			return fmt.Errorf("attach %s: %w", ep, err)
		}
		if err := net.SetInterfaceUp(ep); err != nil {
			return fmt.Errorf("interface up %s: %w", ep, err)
		}
	}
	return nil
}

// takeDown detaches both endpoints of h and marks them administratively down.
func takeDown(net Network, h LinkHandle) error {
	for _, ep := range h.Endpoints() {
		if err := h.Detach(ep); err != nil {
			return fmt.Errorf("detach %s: %w", ep, err)
		}
		if err := net.SetInterfaceDown(ep); err != nil {
			return fmt.Errorf("interface down %s: %w", ep, err)
		}
	}
	return nil
}
