package inverse

import (
	"fmt"
	"log"
	"math"

	"github.com/pspoerri/pixelgeo/internal/coord"
)

const (
	maxCellsX = 25
	maxCellsY = 39

	// approximationReach widens the acceptance radius of an approximation
	// beyond the farthest point it was fitted on.
	approximationReach = 1.5

	overlapEpsilon = 1e-5
)

// TiePointInverse inverts a sub-sampled tie-point grid by fitting a set of
// local polynomials pixel = f(lat, lon) over a regular partition of the
// grid. Each query evaluates the polynomial pair whose centre is nearest.
type TiePointInverse struct {
	opts Options

	sceneWidth  float64
	sceneHeight float64

	approximations []*Approximation

	latMin, latMax                     float64
	normalizedLonMin, normalizedLonMax float64
	overlapStart, overlapEnd           float64
}

// NewTiePointInverse returns an uninitialized tie-point inverse.
func NewTiePointInverse(opts Options) *TiePointInverse {
	return &TiePointInverse{opts: opts.withDefaults()}
}

// Initialize normalizes the longitude grid and fits the approximations.
// The anti-meridian flag and pole locations are not needed: crossings are
// detected from the grid itself.
func (t *TiePointInverse) Initialize(r *GeoRaster, _ bool, _ []coord.PixelPos) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.RasterWidth < 2 || r.RasterHeight < 2 {
		return fmt.Errorf("%w: tie-point grid %dx%d needs at least 2x2 points",
			ErrInvalidRaster, r.RasterWidth, r.RasterHeight)
	}

	normalized := normalizeLonGrid(r)
	t.initLatLonMinMax(normalized)

	approximations := getApproximations(normalized, t.opts.MaxFitError)
	if len(approximations) == 0 {
		return fmt.Errorf("%w: no polynomial approximation could be fitted", ErrInvalidRaster)
	}
	t.approximations = approximations
	t.sceneWidth = float64(r.SceneWidth)
	t.sceneHeight = float64(r.SceneHeight)

	if t.opts.Verbose {
		log.Printf("Tie-point inverse: %dx%d grid, %d approximations, lon [%.4f, %.4f], lat [%.4f, %.4f]",
			r.RasterWidth, r.RasterHeight, len(approximations),
			t.normalizedLonMin, t.normalizedLonMax, t.latMin, t.latMax)
	}
	return nil
}

// PixelPos returns the scene pixel position of geo, or NaN if geo is not
// covered by any approximation or maps outside the scene.
func (t *TiePointInverse) PixelPos(geo coord.GeoPos) coord.PixelPos {
	if t.approximations == nil || !geo.IsValid() {
		return coord.InvalidPixelPos()
	}
	lat := normalizeLat(geo.Lat)
	if math.IsNaN(lat) || geo.Lon < -180 || geo.Lon > 180 {
		return coord.InvalidPixelPos()
	}

	a, lon := t.findApproximation(lat, geo.Lon)
	if a == nil {
		return coord.InvalidPixelPos()
	}

	x, y := a.pixel(lat, lon)
	if !(x >= 0 && x <= t.sceneWidth && y >= 0 && y <= t.sceneHeight) {
		return coord.InvalidPixelPos()
	}
	return coord.PixelPos{X: x, Y: y}
}

// Dispose releases the approximations. It is safe to call repeatedly.
func (t *TiePointInverse) Dispose() {
	t.approximations = nil
}

func (t *TiePointInverse) initLatLonMinMax(r *GeoRaster) {
	t.latMin, t.latMax = math.Inf(1), math.Inf(-1)
	t.normalizedLonMin, t.normalizedLonMax = math.Inf(1), math.Inf(-1)
	for i := range r.Lon {
		lat, lon := r.Lat[i], r.Lon[i]
		if !math.IsNaN(lat) {
			t.latMin = min(t.latMin, lat)
			t.latMax = max(t.latMax, lat)
		}
		if !math.IsNaN(lon) {
			t.normalizedLonMin = min(t.normalizedLonMin, lon)
			t.normalizedLonMax = max(t.normalizedLonMax, lon)
		}
	}

	t.overlapStart = t.normalizedLonMin
	if t.overlapStart < -180 {
		t.overlapStart += 360 - overlapEpsilon
	}
	t.overlapEnd = t.normalizedLonMax
	if t.overlapEnd > 180 {
		t.overlapEnd += overlapEpsilon - 360
	}
}

// normalizeLon maps a query longitude into the normalized grid domain, or
// NaN if it cannot lie inside it.
func (t *TiePointInverse) normalizeLon(lon float64) float64 {
	if lon < -180 || lon > 180 {
		return math.NaN()
	}
	if lon < t.normalizedLonMin {
		lon += 360
	}
	if lon < t.normalizedLonMin || lon > t.normalizedLonMax {
		return math.NaN()
	}
	return lon
}

// findApproximation returns the approximation for (lat, lon) and the
// longitude in the normalized domain it is evaluated at. Inside the overlap
// range both lon and lon+360 are candidates and the nearer centre wins.
// Longitudes just outside the domain fall back to the ±360 retry.
func (t *TiePointInverse) findApproximation(lat, lon float64) (*Approximation, float64) {
	var best *Approximation
	bestLon := lon
	if n := t.normalizeLon(lon); !math.IsNaN(n) {
		best, bestLon = t.getBestApproximation(lat, n), n
	}
	if lon >= t.overlapStart && lon <= t.overlapEnd {
		shifted := lon + 360
		if b := t.getBestApproximation(lat, shifted); b != nil &&
			(best == nil || b.SquareDistance(lat, shifted) < best.SquareDistance(lat, bestLon)) {
			best, bestLon = b, shifted
		}
	}
	if best == nil {
		return t.findRenormalizedApproximation(lat, lon, t.opts.AntiMeridianThreshold)
	}
	return best, bestLon
}

// getBestApproximation returns the approximation with the nearest centre
// whose reach covers (lat, lon), or nil.
func (t *TiePointInverse) getBestApproximation(lat, lon float64) *Approximation {
	var best *Approximation
	bestDist := math.Inf(1)
	for _, a := range t.approximations {
		d := a.SquareDistance(lat, lon)
		if d < bestDist && d <= approximationReach*a.MaxSquareDistance {
			best, bestDist = a, d
		}
	}
	return best
}

// findRenormalizedApproximation retries the lookup with the raw longitude
// and with it shifted by ±360, for whichever lies within threshold degrees
// of the normalized domain. It returns the approximation and the longitude
// it matched at.
func (t *TiePointInverse) findRenormalizedApproximation(lat, lon, threshold float64) (*Approximation, float64) {
	for _, shift := range [...]float64{0, 360, -360} {
		l := lon + shift
		if l < t.normalizedLonMin-threshold || l > t.normalizedLonMax+threshold {
			continue
		}
		if a := t.getBestApproximation(lat, l); a != nil {
			return a, l
		}
	}
	return nil, lon
}

func normalizeLat(lat float64) float64 {
	if lat < -90 || lat > 90 {
		return math.NaN()
	}
	return lat
}

// normalizeLonGrid returns a copy of r whose longitudes are continuous
// across the anti-meridian. Jumps of more than 180° to the previous sample
// in the row (the first sample of the previous row at the row start) are
// unwrapped. If any sample had to be moved west, every sample is moved
// east by 360° so the domain stays above -180.
func normalizeLonGrid(r *GeoRaster) *GeoRaster {
	w, h := r.RasterWidth, r.RasterHeight
	lon := make([]float64, len(r.Lon))
	copy(lon, r.Lon)

	westNormalized := false
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x == 0 && y == 0 {
				continue
			}
			var base float64
			if x == 0 {
				base = lon[(y-1)*w]
			} else {
				base = lon[y*w+x-1]
			}
			i := y*w + x
			delta := lon[i] - base
			if delta > 180 {
				lon[i] -= 360
				westNormalized = true
			} else if delta < -180 {
				lon[i] += 360
			}
		}
	}
	if westNormalized {
		for i := range lon {
			lon[i] += 360
		}
	}

	out := *r
	out.Lon = lon
	return &out
}

// determineWarpParameters partitions a w x h grid into at most
// maxCellsX x maxCellsY regions of at least two grid steps per axis.
func determineWarpParameters(w, h int) (cellsX, cellsY, stepX, stepY int) {
	stepX = max(2, ceilDiv(w, maxCellsX))
	stepY = max(2, ceilDiv(h, maxCellsY))
	return ceilDiv(w, stepX), ceilDiv(h, stepY), stepX, stepY
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

type gridRect struct {
	x0, y0, x1, y1 int
}

// warpRegions returns the inclusive grid rectangles to fit approximations
// on. Rectangles clipped at the far edge are shifted back to a full step.
func warpRegions(w, h int) []gridRect {
	cellsX, cellsY, stepX, stepY := determineWarpParameters(w, h)
	span := func(i, step, d int) (int, int) {
		a := i * step
		b := min(a+step, d-1)
		if b-a < step {
			a = max(0, b-step)
		}
		return a, b
	}
	seen := make(map[gridRect]bool)
	var rects []gridRect
	for j := 0; j < cellsY; j++ {
		y0, y1 := span(j, stepY, h)
		for i := 0; i < cellsX; i++ {
			x0, x1 := span(i, stepX, w)
			rc := gridRect{x0, y0, x1, y1}
			if !seen[rc] {
				seen[rc] = true
				rects = append(rects, rc)
			}
		}
	}
	return rects
}

// createWarpPoints collects the valid tie points of rc with their scene
// pixel positions.
func createWarpPoints(r *GeoRaster, rc gridRect) []warpPoint {
	points := make([]warpPoint, 0, (rc.x1-rc.x0+1)*(rc.y1-rc.y0+1))
	for y := rc.y0; y <= rc.y1; y++ {
		for x := rc.x0; x <= rc.x1; x++ {
			i := y*r.RasterWidth + x
			lon, lat := r.Lon[i], r.Lat[i]
			if math.IsNaN(lon) || math.IsNaN(lat) {
				continue
			}
			points = append(points, warpPoint{
				lon: lon,
				lat: lat,
				x:   r.OffsetX + float64(x)*r.SubsamplingX,
				y:   r.OffsetY + float64(y)*r.SubsamplingY,
			})
		}
	}
	return points
}

func getApproximations(r *GeoRaster, maxFitError float64) []*Approximation {
	var out []*Approximation
	for _, rc := range warpRegions(r.RasterWidth, r.RasterHeight) {
		if a := createApproximation(createWarpPoints(r, rc), maxFitError); a != nil {
			out = append(out, a)
		}
	}
	return out
}
