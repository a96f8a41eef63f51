package coord

import (
	"math"

	"github.com/golang/geo/s2"
)

const (
	// EarthRadiusKm is the mean earth radius used for great-circle distances.
	EarthRadiusKm = 6371.0088
	// KmPerDegree is the length of one degree of latitude on the mean sphere.
	KmPerDegree = EarthRadiusKm * math.Pi / 180.0
	// DegToRad converts degrees to radians.
	DegToRad = math.Pi / 180.0
)

// Sq returns dx² + dy².
func Sq(dx, dy float64) float64 {
	return dx*dx + dy*dy
}

// WrapLon maps a longitude into [-180, 180).
func WrapLon(lon float64) float64 {
	if lon >= -180 && lon < 180 {
		return lon
	}
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}

// LonDelta returns the shortest signed difference a-b in [-180, 180).
func LonDelta(a, b float64) float64 {
	return WrapLon(a - b)
}

// SquareDistance returns the squared angular distance in degrees between two
// positions, with the longitude difference scaled by the cosine of the
// reference latitude a.Lat. It is the metric used by all pixel searches.
func SquareDistance(a, b GeoPos) float64 {
	f := math.Cos(a.Lat * DegToRad)
	return Sq(a.Lat-b.Lat, f*LonDelta(a.Lon, b.Lon))
}

// DistanceKm returns the great-circle distance between two positions.
func DistanceKm(a, b GeoPos) float64 {
	pa := s2.LatLngFromDegrees(a.Lat, a.Lon)
	pb := s2.LatLngFromDegrees(b.Lat, b.Lon)
	return pa.Distance(pb).Radians() * EarthRadiusKm
}
