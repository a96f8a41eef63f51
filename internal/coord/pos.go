package coord

import (
	"fmt"
	"math"
)

// GeoPos is a geographic position in degrees.
type GeoPos struct {
	Lat float64
	Lon float64
}

// IsValid reports whether both components are finite numbers.
func (g GeoPos) IsValid() bool {
	return isFinite(g.Lat) && isFinite(g.Lon)
}

func (g GeoPos) String() string {
	return fmt.Sprintf("(lat %.6f, lon %.6f)", g.Lat, g.Lon)
}

// InvalidGeoPos returns a position with both components set to NaN.
func InvalidGeoPos() GeoPos {
	return GeoPos{Lat: math.NaN(), Lon: math.NaN()}
}

// PixelPos is a fractional pixel position. Integer pixel (i, j) covers
// [i, i+1) x [j, j+1), so its centre is at (i+0.5, j+0.5).
type PixelPos struct {
	X float64
	Y float64
}

// IsValid reports whether both components are finite numbers.
func (p PixelPos) IsValid() bool {
	return isFinite(p.X) && isFinite(p.Y)
}

func (p PixelPos) String() string {
	return fmt.Sprintf("(x %.4f, y %.4f)", p.X, p.Y)
}

// InvalidPixelPos returns a position with both components set to NaN.
func InvalidPixelPos() PixelPos {
	return PixelPos{X: math.NaN(), Y: math.NaN()}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
