package core

import (
	"math"
	"time"
)

// EarthGM is the standard gravitational parameter of the Earth (m^3/s^2).
const EarthGM = 3.986004418e14

// PositionProvider is implemented by anything whose position can be
// queried at a simulation time. Simulation time is the offset from the
// start of the run.
type PositionProvider interface {
	// AdvanceAndGetPosition moves the provider's cached state forward to
	// simNow and returns the resulting position.
	AdvanceAndGetPosition(simNow time.Duration) GeoPosition
	// Velocity is not modelled; implementations return the zero vector.
	Velocity() Vec3
}

// Direction is the latitudinal travel direction of a satellite.
type Direction int

const (
	NorthToSouth Direction = iota
	SouthToNorth
)

func (d Direction) String() string {
	if d == SouthToNorth {
		return "south-to-north"
	}
	return "north-to-south"
}

func (d Direction) flip() Direction {
	if d == SouthToNorth {
		return NorthToSouth
	}
	return SouthToNorth
}

// StaticPositionModel keeps a fixed position. Ground stations use it.
type StaticPositionModel struct {
	pos GeoPosition
}

// NewStaticPositionModel returns a model pinned at pos.
func NewStaticPositionModel(pos GeoPosition) *StaticPositionModel {
	return &StaticPositionModel{pos: pos}
}

// AdvanceAndGetPosition for a static model ignores time.
func (m *StaticPositionModel) AdvanceAndGetPosition(time.Duration) GeoPosition {
	return m.pos
}

// Velocity is always zero.
func (m *StaticPositionModel) Velocity() Vec3 { return Vec3{} }

// OrbitalPositionModel is a circular polar-orbit kinematic approximation.
// A satellite slides along its meridian at a constant angular rate and
// jumps to the opposite half-plane whenever it passes over a pole.
//
// The model memoises the last queried state; every call to
// AdvanceAndGetPosition advances from that state. It is not safe for
// concurrent use.
type OrbitalPositionModel struct {
	altitudeKm float64
	speedMps   float64

	latitude   float64
	longitude  float64
	direction  Direction
	lastUpdate time.Duration
}

// NewOrbitalPositionModel places satellite number index (1-based, in
// construction order) on the initial grid. satsPerPlane must be even.
func NewOrbitalPositionModel(index, satsPerPlane, numPlanes int, altitudeKm float64, t0 time.Duration) *OrbitalPositionModel {
	halfPlane := satsPerPlane / 2
	group := (index - 1) / halfPlane
	spacing := 180.0 / float64(halfPlane)

	lat := 90 - spacing/2
	if (index-1)%halfPlane != 0 {
		lat -= spacing * float64((index-1)%halfPlane)
	}
	lon := -180 + (360.0/float64(numPlanes*2))*float64(group)

	dir := SouthToNorth
	if (group%2 == 0) == (lon < 0) {
		dir = NorthToSouth
	}

	return &OrbitalPositionModel{
		altitudeKm: altitudeKm,
		speedMps:   OrbitalSpeed(altitudeKm),
		latitude:   lat,
		longitude:  lon,
		direction:  dir,
		lastUpdate: t0,
	}
}

// NewOrbitalPositionModelAt builds a model from an explicit state. It is
// mostly useful for exercising pole crossings.
func NewOrbitalPositionModelAt(pos GeoPosition, dir Direction, t0 time.Duration) *OrbitalPositionModel {
	return &OrbitalPositionModel{
		altitudeKm: pos.AltitudeKm,
		speedMps:   OrbitalSpeed(pos.AltitudeKm),
		latitude:   pos.LatitudeDeg,
		longitude:  pos.LongitudeDeg,
		direction:  dir,
		lastUpdate: t0,
	}
}

// OrbitalSpeed is the circular-orbit speed (m/s) at the given altitude.
func OrbitalSpeed(altitudeKm float64) float64 {
	return math.Sqrt(EarthGM / ((EarthRadiusKm + altitudeKm) * 1000))
}

// OrbitalPeriod returns the time taken for one revolution.
func (m *OrbitalPositionModel) OrbitalPeriod() time.Duration {
	seconds := 2 * math.Pi * (EarthRadiusKm + m.altitudeKm) / (m.speedMps / 1000)
	return time.Duration(seconds * float64(time.Second))
}

// Speed returns the orbital speed in m/s.
func (m *OrbitalPositionModel) Speed() float64 { return m.speedMps }

// Direction returns the direction of travel as of the last advance.
func (m *OrbitalPositionModel) Direction() Direction { return m.direction }

// LastUpdate returns the simulation time of the last advance.
func (m *OrbitalPositionModel) LastUpdate() time.Duration { return m.lastUpdate }

// Velocity is not modelled. Link delays are recomputed from positions.
func (m *OrbitalPositionModel) Velocity() Vec3 { return Vec3{} }

// AdvanceAndGetPosition walks the satellite forward from its last known
// state to simNow, crossing zero, one or two poles, and stores the result.
func (m *OrbitalPositionModel) AdvanceAndGetPosition(simNow time.Duration) GeoPosition {
	period := m.OrbitalPeriod().Seconds()
	elapsed := (simNow - m.lastUpdate).Seconds()
	displacement := 0.0
	if period > 0 {
		displacement = math.Mod(elapsed/period*360, 360)
	}
	if displacement < 0 {
		displacement += 360
	}

	lat, lon, dir := m.latitude, m.longitude, m.direction
	for displacement > 0 {
		toPole := 90 - lat
		if dir == NorthToSouth {
			toPole = lat + 90
		}
		if displacement <= toPole {
			if dir == SouthToNorth {
				lat += displacement
			} else {
				lat -= displacement
			}
			break
		}

		displacement -= toPole
		if dir == SouthToNorth {
			lat = 90
		} else {
			lat = -90
		}
		dir = dir.flip()
		lon = oppositeLongitude(lon)
	}

	m.latitude = clampLatitude(lat)
	m.longitude = lon
	m.direction = dir
	m.lastUpdate = simNow

	return GeoPosition{
		LatitudeDeg:  m.latitude,
		LongitudeDeg: m.longitude,
		AltitudeKm:   m.altitudeKm,
	}
}

// oppositeLongitude maps a longitude onto the far side of the pole using
// the grid convention: the -180 and 0 seams swap, everything else negates.
func oppositeLongitude(lon float64) float64 {
	switch lon {
	case seamWest:
		return seamCentre
	case seamCentre:
		return seamWest
	default:
		return -lon
	}
}

func clampLatitude(lat float64) float64 {
	return math.Max(-90, math.Min(90, lat))
}
