package core

// NetworkInterface is one end of a physical link on a node. Every
// provisioned link owns two interfaces, one on each node, so a node
// carries as many interfaces as candidate links touch it.
type NetworkInterface struct {
	ID           string `json:"ID"`
	ParentNodeID string `json:"ParentNodeID"`
	LinkID       string `json:"LinkID"`

	// IsAttached reports whether the interface is bound to its channel.
	IsAttached bool `json:"IsAttached"`
	// IsUp is the administrative state managed by the addressing layer.
	IsUp bool `json:"IsUp"`
}

// Operational reports whether traffic can flow through the interface.
func (i *NetworkInterface) Operational() bool {
	return i != nil && i.IsAttached && i.IsUp
}
