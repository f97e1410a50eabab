package core

import (
	"math"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
)

// EarthRadiusKm is the mean Earth radius used for all simple
// geometry calculations in the topology layer (kilometres).
const EarthRadiusKm = 6371.0

// SpeedOfLight is the propagation speed used for link delays (m/s).
const SpeedOfLight = 299792458.0

// Seam longitudes of the constellation grid. The longitude layout puts
// half-plane boundaries exactly on these meridians.
const (
	seamWest   = -180.0
	seamCentre = 0.0
	seamEast   = 180.0
)

// GeoPosition is a geodetic position in degrees and kilometres above the
// mean Earth radius.
type GeoPosition struct {
	LatitudeDeg  float64
	LongitudeDeg float64
	AltitudeKm   float64
}

// ECEF converts the position to an Earth-fixed vector in kilometres.
// go-satellite works in ECI, so we rotate in and straight back out using
// the same sidereal angle.
func (p GeoPosition) ECEF() Vec3 {
	jday := satellite.JDay(2000, 1, 1, 12, 0, 0)
	gmst := satellite.ThetaG_JD(jday)
	eci := satellite.LLAToECI(satellite.LatLong{
		Latitude:  p.LatitudeDeg * deg2rad,
		Longitude: p.LongitudeDeg * deg2rad,
	}, p.AltitudeKm, jday)
	ecef := satellite.ECIToECEF(eci, gmst)
	return Vec3{X: ecef.X, Y: ecef.Y, Z: ecef.Z}
}

const deg2rad = math.Pi / 180.0

// Vec3 is an ECEF-style vector in kilometres.
type Vec3 struct {
	X, Y, Z float64
}

// DistanceTo returns the straight-line distance between two points.
func (v Vec3) DistanceTo(other Vec3) float64 {
	return v.Sub(other).Norm()
}

// Norm returns the Euclidean norm of the vector.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Sub returns v - other.
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Dot returns the dot product of two vectors.
func (v Vec3) Dot(other Vec3) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// longitudeDelta returns the longitude difference (degrees) fed into the
// haversine formula. Points sitting on the -180 and 0 seams take the
// shorter of the two paths around the seam; everything else is a plain
// difference. The branch order matters.
func longitudeDelta(aLon, bLon float64) float64 {
	switch {
	case (aLon == seamWest && bLon == seamWest) || (aLon == seamCentre && bLon == seamCentre):
		return aLon - bLon
	case bLon == seamWest:
		return math.Min(math.Abs(bLon-aLon), math.Abs(seamCentre-aLon))
	case aLon == seamWest:
		return math.Min(math.Abs(bLon-aLon), math.Abs(bLon-seamCentre))
	case bLon == seamCentre:
		return math.Min(math.Abs(bLon-aLon), math.Abs(seamEast-aLon))
	case aLon == seamCentre:
		return math.Min(math.Abs(bLon-aLon), math.Abs(bLon-seamEast))
	default:
		return aLon - bLon
	}
}

// centralAngle is the haversine central angle (radians) between a and b.
func centralAngle(a, b GeoPosition) float64 {
	lat1 := a.LatitudeDeg * deg2rad
	lat2 := b.LatitudeDeg * deg2rad
	dLat := lat2 - lat1
	dLon := longitudeDelta(a.LongitudeDeg, b.LongitudeDeg) * deg2rad

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	if h > 1 {
		h = 1
	} else if h < 0 {
		h = 0
	}
	return 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// GreatCircleDistance returns the arc length in kilometres between two
// positions on the sphere of radius EarthRadiusKm + a.AltitudeKm. Both
// points are assumed to share the same altitude.
func GreatCircleDistance(a, b GeoPosition) float64 {
	return (EarthRadiusKm + a.AltitudeKm) * centralAngle(a, b)
}

// GreatCircleDistanceGroundToSat returns the slant range in kilometres
// between a ground terminal and a satellite. The central angle comes from
// the same haversine rules as GreatCircleDistance; the two radii are then
// closed with the law of cosines.
func GreatCircleDistanceGroundToSat(ground, sat GeoPosition) float64 {
	rg := EarthRadiusKm + ground.AltitudeKm
	rs := EarthRadiusKm + sat.AltitudeKm
	theta := centralAngle(ground, sat)
	d2 := rg*rg + rs*rs - 2*rg*rs*math.Cos(theta)
	if d2 < 0 {
		return 0
	}
	return math.Sqrt(d2)
}

// PropagationDelay converts a distance in kilometres into a light-speed
// propagation delay.
func PropagationDelay(distanceKm float64) time.Duration {
	seconds := distanceKm * 1000 / SpeedOfLight
	return time.Duration(seconds * float64(time.Second))
}

// hasLineOfSight checks whether the straight segment between p1 and p2
// intersects the Earth sphere. If it does, the Earth blocks the line-of-sight
// and the function returns false.
//
// All positions are ECEF in kilometres.
func hasLineOfSight(p1, p2 Vec3) bool {
	v := p2.Sub(p1)
	a := v.Dot(v)
	if a == 0 {
		return p1.Dot(p1) > EarthRadiusKm*EarthRadiusKm
	}

	// Closest point on the segment to the Earth's centre.
	t := -p1.Dot(v) / a
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}

	closest := Vec3{
		X: p1.X + v.X*t,
		Y: p1.Y + v.Y*t,
		Z: p1.Z + v.Z*t,
	}
	return closest.Dot(closest) > EarthRadiusKm*EarthRadiusKm
}

// ElevationDegrees returns the elevation angle of the target as seen from
// the observer, in degrees. 0° = geometric horizon, 90° = overhead.
func ElevationDegrees(observer, target Vec3) float64 {
	v := target.Sub(observer)
	vNorm := v.Norm()
	if vNorm == 0 {
		return 90
	}

	r := observer.Norm()
	if r == 0 {
		return 90
	}
	zenith := Vec3{
		X: observer.X / r,
		Y: observer.Y / r,
		Z: observer.Z / r,
	}

	cosGamma := v.Dot(zenith) / vNorm
	if cosGamma > 1 {
		cosGamma = 1
	} else if cosGamma < -1 {
		cosGamma = -1
	}
	gammaDeg := math.Acos(cosGamma) * 180.0 / math.Pi

	return 90.0 - gammaDeg
}
