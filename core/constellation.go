package core

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/leo-topology/internal/logging"
	"github.com/signalsfoundry/leo-topology/model"
	"github.com/signalsfoundry/leo-topology/timectrl"
)

const tracerName = "github.com/signalsfoundry/leo-topology/core"

// Constellation limits enforced at construction.
const (
	MinAltitudeKm     = 500.0
	MaxAltitudeKm     = 2000.0
	GroundStationsLen = 2
)

// GroundStationConfig places one ground station.
type GroundStationConfig struct {
	Name         string
	LatitudeDeg  float64
	LongitudeDeg float64
}

// Config describes a constellation.
type Config struct {
	NumPlanes          int
	SatellitesPerPlane int
	AltitudeKm         float64
	GroundStations     []GroundStationConfig

	// ProvisionAllCandidates builds every inter-plane and ground candidate
	// link up front instead of on first use.
	ProvisionAllCandidates bool
}

// DefaultConfig returns a 3x4 constellation at 2000 km with two ground stations.
func DefaultConfig() Config {
	return Config{
		NumPlanes:          3,
		SatellitesPerPlane: 4,
		AltitudeKm:         2000,
		GroundStations: []GroundStationConfig{
			{Name: "ottawa", LatitudeDeg: 45.4215, LongitudeDeg: -75.6972},
			{Name: "london", LatitudeDeg: 51.5072, LongitudeDeg: -0.1276},
		},
	}
}

// Validate checks the construction preconditions.
func (c Config) Validate() error {
	if c.NumPlanes < 2 {
		return configErrorf("NumPlanes", "must be at least 2, got %d", c.NumPlanes)
	}
	if c.SatellitesPerPlane < 2 || c.SatellitesPerPlane%2 != 0 {
		return configErrorf("SatellitesPerPlane", "must be an even number >= 2, got %d", c.SatellitesPerPlane)
	}
	if c.AltitudeKm < MinAltitudeKm || c.AltitudeKm > MaxAltitudeKm {
		return configErrorf("AltitudeKm", "must be within [%.0f, %.0f] km, got %g", MinAltitudeKm, MaxAltitudeKm, c.AltitudeKm)
	}
	if len(c.GroundStations) != GroundStationsLen {
		return configErrorf("GroundStations", "need exactly %d ground stations, got %d", GroundStationsLen, len(c.GroundStations))
	}
	for i, gs := range c.GroundStations {
		if gs.LatitudeDeg < -90 || gs.LatitudeDeg > 90 {
			return configErrorf(fmt.Sprintf("GroundStations[%d].LatitudeDeg", i), "out of range: %g", gs.LatitudeDeg)
		}
		if gs.LongitudeDeg < -180 || gs.LongitudeDeg > 180 {
			return configErrorf(fmt.Sprintf("GroundStations[%d].LongitudeDeg", i), "out of range: %g", gs.LongitudeDeg)
		}
	}
	return nil
}

// Satellite is one member of the constellation.
type Satellite struct {
	Index    int // 1-based, construction order
	Plane    int
	Slot     int
	NodeID   string
	Mobility *OrbitalPositionModel
}

// GroundStation is a fixed terminal attached to one satellite of its home plane.
type GroundStation struct {
	Index     int
	Name      string
	NodeID    string
	HomePlane int
	Position  GeoPosition
	Mobility  *StaticPositionModel
}

// IntraPlaneLink joins slot Slot to slot NextSlot inside a plane. It is
// built once and never re-homed.
type IntraPlaneLink struct {
	Plane    int
	Slot     int
	NextSlot int
	Handle   LinkHandle
	Delay    time.Duration
}

// TopologyMetricsRecorder receives topology measurements.
type TopologyMetricsRecorder interface {
	ObserveUpdate(d time.Duration)
	AddRehomes(kind string, n int)
	SetActiveLinks(kind string, n int)
	SetConstellationSize(satellites, groundStations int)
	IncRoutingRecomputations()
}

// PlatformStore is told about every satellite and ground station and
// receives their positions as the simulation advances.
type PlatformStore interface {
	AddPlatform(p *model.PlatformDefinition) error
	AddNetworkNode(n *model.NetworkNode) error
	UpdatePlatformPosition(id string, pos model.Motion) error
}

// TopologyOption customises a ConstellationTopology.
type TopologyOption func(*ConstellationTopology)

// WithClock sets the simulation clock. Simulation time zero is the clock's
// reading at construction.
func WithClock(c timectrl.SimClock) TopologyOption {
	return func(t *ConstellationTopology) { t.clock = c }
}

// WithLogger attaches a logger.
func WithLogger(l logging.Logger) TopologyOption {
	return func(t *ConstellationTopology) { t.log = l }
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m TopologyMetricsRecorder) TopologyOption {
	return func(t *ConstellationTopology) { t.metrics = m }
}

// WithPlatformStore registers platforms with store and keeps their
// positions current.
func WithPlatformStore(s PlatformStore) TopologyOption {
	return func(t *ConstellationTopology) { t.platforms = s }
}

// ConstellationTopology owns the satellites, planes, ground stations and
// every link between them. UpdateLinks re-homes inter-plane and ground
// links as the planes drift relative to each other.
//
// It is driven from a single goroutine and is not safe for concurrent use.
type ConstellationTopology struct {
	cfg    Config
	net    Network
	router Router

	clock     timectrl.SimClock
	epoch     time.Time
	log       logging.Logger
	metrics   TopologyMetricsRecorder
	platforms PlatformStore
	tracer    trace.Tracer

	satellites []*Satellite
	planes     [][]*Satellite
	stations   []*GroundStation

	intraPlane []*IntraPlaneLink
	interPlane [][]*LinkGroup
	ground     []*LinkGroup
}

// NewConstellationTopology builds the constellation, provisions every
// link, activates the initial bindings and populates routing tables.
func NewConstellationTopology(ctx context.Context, cfg Config, net Network, router Router, opts ...TopologyOption) (*ConstellationTopology, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if net == nil {
		return nil, fmt.Errorf("constellation needs a network layer")
	}
	if router == nil {
		return nil, fmt.Errorf("constellation needs a router")
	}

	t := &ConstellationTopology{
		cfg:    cfg,
		net:    net,
		router: router,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.clock == nil {
		t.clock = timectrl.NewTimeController(time.Time{}, time.Second, timectrl.Accelerated)
	}
	if t.log == nil {
		t.log = logging.Noop()
	}
	t.epoch = t.clock.Now()
	t.tracer = otel.Tracer(tracerName)

	ctx, span := t.tracer.Start(ctx, "ConstellationTopology.Build", trace.WithAttributes(
		attribute.Int("constellation.planes", cfg.NumPlanes),
		attribute.Int("constellation.satellites_per_plane", cfg.SatellitesPerPlane),
		attribute.Float64("constellation.altitude_km", cfg.AltitudeKm),
	))
	defer span.End()

	steps := []func(context.Context) error{
		t.buildSatellites,
		t.buildIntraPlaneLinks,
		t.buildInterPlaneLinks,
		t.buildGroundStations,
		t.registerPlatforms,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}

	if err := t.router.PopulateRoutingTables(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("populate routing tables: %w", err)
	}

	if t.metrics != nil {
		t.metrics.SetConstellationSize(len(t.satellites), len(t.stations))
	}
	t.recordActiveLinks()

	t.log.Info(ctx, "constellation built",
		logging.Int("planes", cfg.NumPlanes),
		logging.Int("satellites_per_plane", cfg.SatellitesPerPlane),
		logging.Float64("altitude_km", cfg.AltitudeKm),
		logging.Int("satellites", len(t.satellites)),
		logging.Int("ground_stations", len(t.stations)),
	)
	return t, nil
}

// buildSatellites creates every satellite and folds them into planes:
// plane i takes half-plane group i in order followed by half-plane group
// i+P in reverse, so neighbouring slots are neighbouring latitudes around
// the whole orbit.
func (t *ConstellationTopology) buildSatellites(context.Context) error {
	p, n := t.cfg.NumPlanes, t.cfg.SatellitesPerPlane
	half := n / 2

	t.satellites = make([]*Satellite, p*n)
	for i := range t.satellites {
		index := i + 1
		t.satellites[i] = &Satellite{
			Index:    index,
			NodeID:   fmt.Sprintf("sat-%d", index),
			Mobility: NewOrbitalPositionModel(index, n, p, t.cfg.AltitudeKm, 0),
		}
	}

	t.planes = make([][]*Satellite, p)
	for plane := 0; plane < p; plane++ {
		slots := make([]*Satellite, 0, n)
		for k := 0; k < half; k++ {
			slots = append(slots, t.satellites[plane*half+k])
		}
		for k := half - 1; k >= 0; k-- {
			slots = append(slots, t.satellites[(plane+p)*half+k])
		}
		for slot, sat := range slots {
			sat.Plane = plane
			sat.Slot = slot
		}
		t.planes[plane] = slots
	}
	return nil
}

func (t *ConstellationTopology) buildIntraPlaneLinks(context.Context) error {
	n := t.cfg.SatellitesPerPlane
	positions := t.positionsAt(0)

	for plane, slots := range t.planes {
		for j := 0; j < n; j++ {
			next := (j + 1) % n
			h, err := t.net.NewLink(LinkSpec{
				ID:    fmt.Sprintf("intra-p%d-s%d-s%d", plane, j, next),
				Kind:  LinkKindIntraPlane,
				NodeA: slots[j].NodeID,
				NodeB: slots[next].NodeID,
			})
			if err != nil {
				return fmt.Errorf("intra-plane link p%d s%d: %w", plane, j, err)
			}
			delay := PropagationDelay(GreatCircleDistance(positions[plane][j], positions[plane][next]))
			if err := h.SetDelay(delay); err != nil {
				return fmt.Errorf("intra-plane link %s: %w", h.ID(), err)
			}
			if err := bringUp(t.net, h); err != nil {
				return fmt.Errorf("intra-plane link %s: %w", h.ID(), err)
			}
			t.intraPlane = append(t.intraPlane, &IntraPlaneLink{
				Plane:    plane,
				Slot:     j,
				NextSlot: next,
				Handle:   h,
				Delay:    delay,
			})
		}
	}
	return nil
}

func (t *ConstellationTopology) buildInterPlaneLinks(context.Context) error {
	p, n := t.cfg.NumPlanes, t.cfg.SatellitesPerPlane
	positions := t.positionsAt(0)

	t.interPlane = make([][]*LinkGroup, p)
	for plane := 0; plane < p; plane++ {
		remote := (plane + 1) % p
		remoteNodes := nodeIDs(t.planes[remote])
		t.interPlane[plane] = make([]*LinkGroup, n)

		for j := 0; j < n; j++ {
			g := newLinkGroup(t.net, fmt.Sprintf("isl-p%d-s%d", plane, j), LinkKindInterPlane,
				t.planes[plane][j].NodeID, remote, remoteNodes)
			if t.cfg.ProvisionAllCandidates {
				if err := g.provisionAll(); err != nil {
					return err
				}
			}

			target := t.mirrorSlot(plane, j)
			delay := PropagationDelay(GreatCircleDistance(positions[plane][j], positions[remote][target]))
			if _, err := g.bind(target, delay); err != nil {
				return fmt.Errorf("inter-plane link p%d s%d: %w", plane, j, err)
			}
			t.interPlane[plane][j] = g
		}
	}
	return nil
}

func (t *ConstellationTopology) buildGroundStations(context.Context) error {
	positions := t.positionsAt(0)

	for i, gsCfg := range t.cfg.GroundStations {
		pos := GeoPosition{LatitudeDeg: gsCfg.LatitudeDeg, LongitudeDeg: gsCfg.LongitudeDeg}
		gs := &GroundStation{
			Index:     i,
			Name:      gsCfg.Name,
			NodeID:    fmt.Sprintf("gs-%d", i),
			HomePlane: t.homePlane(i),
			Position:  pos,
			Mobility:  NewStaticPositionModel(pos),
		}
		t.stations = append(t.stations, gs)

		g := newLinkGroup(t.net, fmt.Sprintf("gsl-gs%d", i), LinkKindGround,
			gs.NodeID, gs.HomePlane, nodeIDs(t.planes[gs.HomePlane]))
		if t.cfg.ProvisionAllCandidates {
			if err := g.provisionAll(); err != nil {
				return err
			}
		}

		slot, dist := nearestToGround(pos, positions[gs.HomePlane])
		if _, err := g.bind(slot, PropagationDelay(dist)); err != nil {
			return fmt.Errorf("ground link gs%d: %w", i, err)
		}
		t.ground = append(t.ground, g)
	}
	return nil
}

// homePlane assigns ground station 0 to plane 0 and ground station 1 to
// plane floor(3P/7).
func (t *ConstellationTopology) homePlane(station int) int {
	if station == 0 {
		return 0
	}
	return 3 * t.cfg.NumPlanes / 7
}

func (t *ConstellationTopology) registerPlatforms(context.Context) error {
	if t.platforms == nil {
		return nil
	}
	for _, sat := range t.satellites {
		pos := sat.Mobility.AdvanceAndGetPosition(0)
		p := &model.PlatformDefinition{
			ID:          sat.NodeID,
			Name:        fmt.Sprintf("LEO-P%d-S%d", sat.Plane, sat.Slot),
			Type:        model.PlatformSatellite,
			Plane:       sat.Plane,
			Slot:        sat.Slot,
			HomePlane:   -1,
			Coordinates: toMotion(pos),
		}
		if err := t.registerPlatform(p); err != nil {
			return err
		}
	}
	for _, gs := range t.stations {
		p := &model.PlatformDefinition{
			ID:          gs.NodeID,
			Name:        gs.Name,
			Type:        model.PlatformGroundStation,
			Plane:       -1,
			Slot:        -1,
			HomePlane:   gs.HomePlane,
			Coordinates: toMotion(gs.Position),
		}
		if err := t.registerPlatform(p); err != nil {
			return err
		}
	}
	return nil
}

func (t *ConstellationTopology) registerPlatform(p *model.PlatformDefinition) error {
	if err := t.platforms.AddPlatform(p); err != nil {
		return fmt.Errorf("register platform %s: %w", p.ID, err)
	}
	if err := t.platforms.AddNetworkNode(&model.NetworkNode{ID: p.ID, Name: p.Name, PlatformID: p.ID}); err != nil {
		return fmt.Errorf("register node %s: %w", p.ID, err)
	}
	return nil
}

// UpdateLinks re-evaluates geometry at the current simulation time and
// re-homes inter-plane and ground links whose best partner has changed.
// Routing tables are recomputed once at the end.
func (t *ConstellationTopology) UpdateLinks(ctx context.Context) error {
	start := time.Now()
	now := t.SimTime()

	ctx, span := t.tracer.Start(ctx, "ConstellationTopology.UpdateLinks",
		trace.WithAttributes(attribute.Float64("sim.time_seconds", now.Seconds())))
	defer span.End()

	fail := func(err error) error {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	p, n := t.cfg.NumPlanes, t.cfg.SatellitesPerPlane
	positions := t.positionsAt(now)

	// The extra plane is plane 0 walked backwards, so the wrap-around
	// pair (P-1, 0) is handled like every other neighbour pair.
	extended := make([][]GeoPosition, p+1)
	copy(extended, positions)
	extended[p] = reversed(positions[0])

	rehomes := map[LinkKind]int{}
	for plane := 0; plane < p; plane++ {
		ref := referenceSlot(positions[plane])
		adj, _ := closestSlot(positions[plane][ref], extended[plane+1], GreatCircleDistance)
		incr := rotationalOffset(ref, adj, n)
		remote := (plane + 1) % p

		for j := 0; j < n; j++ {
			target := (j + incr) % n
			if plane == p-1 {
				target = n - target - 1
			}
			delay := PropagationDelay(GreatCircleDistance(positions[plane][j], positions[remote][target]))

			g := t.interPlane[plane][j]
			prev := g.CurrentAdjacentSlot()
			changed, err := g.bind(target, delay)
			if err != nil {
				return fail(fmt.Errorf("update %s: %w", g.ID(), err))
			}
			if changed {
				rehomes[LinkKindInterPlane]++
				t.log.Debug(ctx, "inter-plane link re-homed",
					logging.String("group", g.ID()),
					logging.Int("from_slot", prev),
					logging.Int("to_slot", target),
					logging.Duration("delay", delay),
				)
			}
		}
	}

	for i, gs := range t.stations {
		slot, dist := nearestToGround(gs.Mobility.AdvanceAndGetPosition(now), positions[gs.HomePlane])
		g := t.ground[i]
		prev := g.CurrentAdjacentSlot()
		changed, err := g.bind(slot, PropagationDelay(dist))
		if err != nil {
			return fail(fmt.Errorf("update %s: %w", g.ID(), err))
		}
		if changed {
			rehomes[LinkKindGround]++
			t.log.Debug(ctx, "ground link re-homed",
				logging.String("group", g.ID()),
				logging.Int("from_slot", prev),
				logging.Int("to_slot", slot),
			)
		}
	}

	if err := t.router.RecomputeRoutingTables(); err != nil {
		return fail(fmt.Errorf("recompute routing tables: %w", err))
	}

	if err := t.publishPositions(positions); err != nil {
		return fail(err)
	}

	elapsed := time.Since(start)
	if t.metrics != nil {
		t.metrics.ObserveUpdate(elapsed)
		t.metrics.IncRoutingRecomputations()
		for _, kind := range []LinkKind{LinkKindInterPlane, LinkKindGround} {
			t.metrics.AddRehomes(string(kind), rehomes[kind])
		}
	}
	t.recordActiveLinks()

	span.SetAttributes(
		attribute.Int("topology.rehomes.inter_plane", rehomes[LinkKindInterPlane]),
		attribute.Int("topology.rehomes.ground", rehomes[LinkKindGround]),
	)
	t.log.Info(ctx, "links updated",
		logging.Duration("sim_time", now),
		logging.Int("inter_plane_rehomes", rehomes[LinkKindInterPlane]),
		logging.Int("ground_rehomes", rehomes[LinkKindGround]),
		logging.Duration("took", elapsed),
	)
	return nil
}

func (t *ConstellationTopology) publishPositions(positions [][]GeoPosition) error {
	if t.platforms == nil {
		return nil
	}
	for plane, slots := range t.planes {
		for slot, sat := range slots {
			if err := t.platforms.UpdatePlatformPosition(sat.NodeID, toMotion(positions[plane][slot])); err != nil {
				return fmt.Errorf("publish position of %s: %w", sat.NodeID, err)
			}
		}
	}
	return nil
}

func (t *ConstellationTopology) recordActiveLinks() {
	if t.metrics == nil {
		return
	}
	counts := map[LinkKind]int{LinkKindIntraPlane: len(t.intraPlane)}
	for _, groups := range t.interPlane {
		for _, g := range groups {
			if g.Active() != nil {
				counts[LinkKindInterPlane]++
			}
		}
	}
	for _, g := range t.ground {
		if g.Active() != nil {
			counts[LinkKindGround]++
		}
	}
	for kind, n := range counts {
		t.metrics.SetActiveLinks(string(kind), n)
	}
}

// positionsAt advances every satellite to simNow and returns positions
// indexed by [plane][slot].
func (t *ConstellationTopology) positionsAt(simNow time.Duration) [][]GeoPosition {
	out := make([][]GeoPosition, len(t.planes))
	for plane, slots := range t.planes {
		out[plane] = make([]GeoPosition, len(slots))
		for slot, sat := range slots {
			out[plane][slot] = sat.Mobility.AdvanceAndGetPosition(simNow)
		}
	}
	return out
}

// mirrorSlot is the initial partner slot of (plane, slot): the same slot
// in the next plane, mirrored when wrapping from the last plane to plane 0.
func (t *ConstellationTopology) mirrorSlot(plane, slot int) int {
	if plane == t.cfg.NumPlanes-1 {
		return t.cfg.SatellitesPerPlane - slot - 1
	}
	return slot
}

// referenceSlot returns the slot closest to the equator; the first one wins ties.
func referenceSlot(plane []GeoPosition) int {
	best := 0
	for j := 1; j < len(plane); j++ {
		if abs(plane[j].LatitudeDeg) < abs(plane[best].LatitudeDeg) {
			best = j
		}
	}
	return best
}

// closestSlot returns the candidate slot nearest to from under dist; the
// first one wins ties.
func closestSlot(from GeoPosition, candidates []GeoPosition, dist func(a, b GeoPosition) float64) (int, float64) {
	best, bestDist := -1, 0.0
	for k, c := range candidates {
		d := dist(from, c)
		if best < 0 || d < bestDist {
			best, bestDist = k, d
		}
	}
	return best, bestDist
}

// nearestToGround picks the home-plane slot with the shortest slant range.
func nearestToGround(ground GeoPosition, plane []GeoPosition) (int, float64) {
	return closestSlot(ground, plane, GreatCircleDistanceGroundToSat)
}

// rotationalOffset is the forward distance from slot ref to slot adj
// around a plane of n slots.
func rotationalOffset(ref, adj, n int) int {
	if adj >= ref {
		return adj - ref
	}
	return n - ref + adj
}

func reversed(in []GeoPosition) []GeoPosition {
	out := make([]GeoPosition, len(in))
	for i, p := range in {
		out[len(in)-1-i] = p
	}
	return out
}

func nodeIDs(sats []*Satellite) []string {
	out := make([]string, len(sats))
	for i, s := range sats {
		out[i] = s.NodeID
	}
	return out
}

func toMotion(p GeoPosition) model.Motion {
	ecef := p.ECEF()
	return model.Motion{
		LatitudeDeg:  p.LatitudeDeg,
		LongitudeDeg: p.LongitudeDeg,
		AltitudeKm:   p.AltitudeKm,
		X:            ecef.X,
		Y:            ecef.Y,
		Z:            ecef.Z,
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

//
// ---------- Accessors ----------
//

// Config returns the configuration the topology was built from.
func (t *ConstellationTopology) Config() Config { return t.cfg }

// SimTime is the simulation time elapsed since construction.
func (t *ConstellationTopology) SimTime() time.Duration {
	return t.clock.Now().Sub(t.epoch)
}

// Satellites returns all satellites in construction order.
func (t *ConstellationTopology) Satellites() []*Satellite { return t.satellites }

// Planes returns satellites indexed by [plane][slot].
func (t *ConstellationTopology) Planes() [][]*Satellite { return t.planes }

// Satellite returns the satellite in (plane, slot), or nil.
func (t *ConstellationTopology) Satellite(plane, slot int) *Satellite {
	if plane < 0 || plane >= len(t.planes) || slot < 0 || slot >= len(t.planes[plane]) {
		return nil
	}
	return t.planes[plane][slot]
}

// GroundStations returns the ground stations in index order.
func (t *ConstellationTopology) GroundStations() []*GroundStation { return t.stations }

// IntraPlaneLinks returns the static in-plane links.
func (t *ConstellationTopology) IntraPlaneLinks() []*IntraPlaneLink { return t.intraPlane }

// InterPlaneGroup returns the link group of (plane, slot), or nil.
func (t *ConstellationTopology) InterPlaneGroup(plane, slot int) *LinkGroup {
	if plane < 0 || plane >= len(t.interPlane) || slot < 0 || slot >= len(t.interPlane[plane]) {
		return nil
	}
	return t.interPlane[plane][slot]
}

// InterPlaneGroups returns all inter-plane link groups, plane by plane.
func (t *ConstellationTopology) InterPlaneGroups() []*LinkGroup {
	out := make([]*LinkGroup, 0, t.cfg.NumPlanes*t.cfg.SatellitesPerPlane)
	for _, groups := range t.interPlane {
		out = append(out, groups...)
	}
	return out
}

// GroundLinks returns the ground link group of each ground station.
func (t *ConstellationTopology) GroundLinks() []*LinkGroup { return t.ground }
