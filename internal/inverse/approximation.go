package inverse

import (
	"math"

	"github.com/pspoerri/pixelgeo/internal/poly"
)

// Approximation maps (lat, lon) to pixel coordinates within one region of
// a tie-point grid. FX and FY are evaluated on rescaled coordinates, see
// rescaleLatitude and rescaleLongitude.
type Approximation struct {
	CenterLon         float64
	CenterLat         float64
	FX                *poly.Polynomial
	FY                *poly.Polynomial
	MaxSquareDistance float64
}

// SquareDistance returns the squared distance in degrees between (lat, lon)
// and the approximation centre.
func (a *Approximation) SquareDistance(lat, lon float64) float64 {
	dx := lon - a.CenterLon
	dy := lat - a.CenterLat
	return dx*dx + dy*dy
}

// pixel evaluates both polynomials at (lat, lon).
func (a *Approximation) pixel(lat, lon float64) (float64, float64) {
	u := rescaleLatitude(lat)
	v := rescaleLongitude(lon, a.CenterLon, a.CenterLat)
	return a.FX.Eval(u, v), a.FY.Eval(u, v)
}

// warpPoint is one correspondence between a (normalized) geolocation and
// its scene pixel position.
type warpPoint struct {
	lon, lat float64
	x, y     float64
}

func rescaleLatitude(lat float64) float64 {
	return lat / 90.0
}

// rescaleLongitude centres the longitude on the region and compresses it by
// the cosine of the centre latitude, bounded away from zero near the poles.
func rescaleLongitude(lon, centerLon, centerLat float64) float64 {
	f := max(math.Cos(centerLat*math.Pi/180.0), 0.05)
	return (lon - centerLon) * f / 90.0
}

// createApproximation fits FX and FY over the warp points. It returns nil
// when there are too few points or no polynomial could be fitted.
func createApproximation(points []warpPoint, maxFitError float64) *Approximation {
	if len(points) < poly.MinPoints(poly.Linear) {
		return nil
	}
	var sumLon, sumLat float64
	for _, p := range points {
		sumLon += p.lon
		sumLat += p.lat
	}
	n := float64(len(points))
	a := &Approximation{CenterLon: sumLon / n, CenterLat: sumLat / n}

	us := make([]float64, len(points))
	vs := make([]float64, len(points))
	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	unique := make(map[[2]float64]struct{}, len(points))
	for i, p := range points {
		a.MaxSquareDistance = max(a.MaxSquareDistance, a.SquareDistance(p.lat, p.lon))
		us[i] = rescaleLatitude(p.lat)
		vs[i] = rescaleLongitude(p.lon, a.CenterLon, a.CenterLat)
		xs[i] = p.x
		ys[i] = p.y
		unique[[2]float64{p.lat, p.lon}] = struct{}{}
	}

	a.FX = getBestPolynomial(us, vs, xs, maxFitError, len(unique))
	a.FY = getBestPolynomial(us, vs, ys, maxFitError, len(unique))
	if a.FX == nil || a.FY == nil {
		return nil
	}
	return a
}

// getBestPolynomial fits polynomials of increasing order and returns the
// first whose maximum residual is below maxFitError, otherwise the one with
// the lowest RMSE. With fewer than four distinct positions only the linear
// form is tried.
func getBestPolynomial(us, vs, zs []float64, maxFitError float64, uniquePositions int) *poly.Polynomial {
	kinds := poly.Kinds
	if uniquePositions < 4 {
		kinds = []poly.Kind{poly.Linear}
	}
	var best *poly.Polynomial
	for _, k := range kinds {
		if uniquePositions < poly.MinPoints(k) {
			continue
		}
		p, err := poly.Fit(k, us, vs, zs)
		if err != nil {
			continue
		}
		if p.MaxError() < maxFitError {
			return p
		}
		if best == nil || p.RMSE() < best.RMSE() {
			best = p
		}
	}
	return best
}
