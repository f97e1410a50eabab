package model

// NetworkNode represents a logical network endpoint hosted on a platform.
type NetworkNode struct {
	ID   string
	Name string

	// PlatformID links this node to a PlatformDefinition.
	// Consumers can obtain the node's position by looking up the platform.
	PlatformID string
}
