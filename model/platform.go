package model

// PlatformType distinguishes the physical assets of a constellation.
type PlatformType string

const (
	PlatformSatellite     PlatformType = "SATELLITE"
	PlatformGroundStation PlatformType = "GROUND_STATION"
)

// Motion is a platform position: geodetic degrees/kilometres plus the
// matching ECEF vector in kilometres.
type Motion struct {
	LatitudeDeg  float64
	LongitudeDeg float64
	AltitudeKm   float64

	X float64
	Y float64
	Z float64
}

// PlatformDefinition represents a physical asset (satellite or ground
// station). Plane and Slot are only meaningful for satellites; HomePlane
// only for ground stations.
type PlatformDefinition struct {
	ID   string
	Name string
	Type PlatformType

	Plane     int
	Slot      int
	HomePlane int

	Coordinates Motion
}
