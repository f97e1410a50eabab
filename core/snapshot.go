package core

import "time"

// GroupBinding is the state of one re-homable link group.
type GroupBinding struct {
	GroupID             string
	Kind                LinkKind
	LocalNode           string
	RemotePlane         int
	CurrentAdjacentSlot int
	RemoteNode          string
	Delay               time.Duration

	// LineOfSight is false when the Earth blocks the straight path.
	LineOfSight bool
}

// GroundBinding adds the look geometry of a ground link.
type GroundBinding struct {
	GroupBinding
	Station      string
	ElevationDeg float64
}

// TopologySnapshot is a value copy of every link binding at one instant.
type TopologySnapshot struct {
	SimTime    time.Duration
	InterPlane []GroupBinding
	Ground     []GroundBinding
}

// Snapshot captures the current bindings together with the straight-line
// geometry of each active link at the current simulation time.
func (t *ConstellationTopology) Snapshot() TopologySnapshot {
	now := t.SimTime()
	snap := TopologySnapshot{SimTime: now}

	for plane, groups := range t.interPlane {
		for slot, g := range groups {
			b, _, _ := t.binding(g, t.planes[plane][slot].Mobility, now)
			snap.InterPlane = append(snap.InterPlane, b)
		}
	}

	for i, g := range t.ground {
		gs := t.stations[i]
		b, obs, tgt := t.binding(g, gs.Mobility, now)
		gb := GroundBinding{GroupBinding: b, Station: gs.Name}
		if b.RemoteNode != "" {
			gb.ElevationDeg = ElevationDegrees(obs, tgt)
			// A surface observer always touches the sphere, so visibility
			// is judged by elevation rather than segment clearance.
			gb.LineOfSight = gb.ElevationDeg > 0
		}
		snap.Ground = append(snap.Ground, gb)
	}
	return snap
}

// binding describes g and returns the ECEF endpoints of its active link.
func (t *ConstellationTopology) binding(g *LinkGroup, local PositionProvider, now time.Duration) (GroupBinding, Vec3, Vec3) {
	b := GroupBinding{
		GroupID:             g.ID(),
		Kind:                g.Kind(),
		LocalNode:           g.LocalNode(),
		RemotePlane:         g.RemotePlane(),
		CurrentAdjacentSlot: g.CurrentAdjacentSlot(),
		Delay:               g.Delay(),
	}
	sat := t.Satellite(g.RemotePlane(), g.CurrentAdjacentSlot())
	if sat == nil {
		return b, Vec3{}, Vec3{}
	}
	b.RemoteNode = sat.NodeID
	from := local.AdvanceAndGetPosition(now).ECEF()
	to := sat.Mobility.AdvanceAndGetPosition(now).ECEF()
	b.LineOfSight = hasLineOfSight(from, to)
	return b, from, to
}
