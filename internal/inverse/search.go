package inverse

import (
	"fmt"
	"math"

	"github.com/pspoerri/pixelgeo/internal/coord"
)

const (
	// marginFactor scales the mean pixel spacing into the widening applied
	// to node bounding boxes.
	marginFactor = 1.5
	// spanSlack widens node boxes by a fraction of their span to cover
	// curvature between the nine sampled points.
	spanSlack = 0.1
	// spacingSamples is the lattice size per axis used to estimate the
	// mean pixel spacing.
	spacingSamples = 128
	// newtonIterations bounds the bilinear cell inversion.
	newtonIterations = 8
	minCosLat        = 0.01
)

// pixelGrid is the per-pixel geolocation shared by the quad-tree and the
// geo-index strategies, together with the search and refinement on top of
// it.
type pixelGrid struct {
	lon, lat      []float64
	width, height int

	crossesAntiMeridian bool
	fractional          bool
	duplicateTolerance  float64

	// spacing is the mean distance of adjacent pixels in degrees and
	// epsilon its square.
	spacing float64
	epsilon float64
	margin  float64
}

func newPixelGrid(r *GeoRaster, crossesAntiMeridian bool, opts Options) (*pixelGrid, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if r.IsTiePoint() {
		return nil, fmt.Errorf("%w: pixel inverse needs one sample per pixel, have %dx%d samples for a %dx%d scene",
			ErrInvalidRaster, r.RasterWidth, r.RasterHeight, r.SceneWidth, r.SceneHeight)
	}
	g := &pixelGrid{
		lon:                 r.Lon,
		lat:                 r.Lat,
		width:               r.RasterWidth,
		height:              r.RasterHeight,
		crossesAntiMeridian: crossesAntiMeridian,
		fractional:          opts.Fractional,
		duplicateTolerance:  opts.DuplicateTolerance,
	}
	g.spacing = g.meanSpacing()
	if !(g.spacing > 0) {
		g.spacing = r.ResolutionKm / coord.KmPerDegree
	}
	if !(g.spacing > 0) {
		return nil, fmt.Errorf("%w: cannot derive pixel spacing from %dx%d raster", ErrInvalidRaster, g.width, g.height)
	}
	g.epsilon = g.spacing * g.spacing
	g.margin = marginFactor * g.spacing
	return g, nil
}

func (g *pixelGrid) geoPos(x, y int) coord.GeoPos {
	if x < 0 || y < 0 || x >= g.width || y >= g.height {
		return coord.InvalidGeoPos()
	}
	i := y*g.width + x
	return coord.GeoPos{Lat: g.lat[i], Lon: g.lon[i]}
}

// meanSpacing averages the distance between horizontally and vertically
// adjacent pixels on a sparse lattice over the raster.
func (g *pixelGrid) meanSpacing() float64 {
	stepX := max(1, g.width/spacingSamples)
	stepY := max(1, g.height/spacingSamples)
	var sum float64
	var n int
	for y := 0; y < g.height; y += stepY {
		for x := 0; x < g.width; x += stepX {
			p := g.geoPos(x, y)
			if !p.IsValid() {
				continue
			}
			for _, q := range [...]coord.GeoPos{g.geoPos(x+1, y), g.geoPos(x, y+1)} {
				if !q.IsValid() {
					continue
				}
				if d := coord.SquareDistance(p, q); d > 0 {
					sum += math.Sqrt(d)
					n++
				}
			}
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// pixelRect is an inclusive rectangle of pixel indices.
type pixelRect struct {
	x1, y1, x2, y2 int
}

// search narrows rc with an explicit stack of sub-rectangles and records
// the nearest valid pixel to q in res. Rectangles are split at their
// midpoint with the middle row and column shared by both halves, so
// adjacent pixels always meet in one leaf.
func (g *pixelGrid) search(q coord.GeoPos, rc pixelRect, res *Result) {
	done := g.epsilon / 16
	stack := make([]pixelRect, 0, 64)
	stack = append(stack, rc)
	for len(stack) > 0 {
		if res.Delta < done {
			return
		}
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if n.x2-n.x1 <= 1 && n.y2-n.y1 <= 1 {
			for y := n.y1; y <= n.y2; y++ {
				for x := n.x1; x <= n.x2; x++ {
					p := g.geoPos(x, y)
					if p.IsValid() {
						res.Update(x, y, coord.SquareDistance(q, p))
					}
				}
			}
			continue
		}
		if !g.mayContain(n, q) {
			continue
		}

		xs := [2][2]int{{n.x1, n.x2}}
		nx := 1
		if n.x2-n.x1 > 1 {
			xm := (n.x1 + n.x2) / 2
			xs = [2][2]int{{n.x1, xm}, {xm, n.x2}}
			nx = 2
		}
		ys := [2][2]int{{n.y1, n.y2}}
		ny := 1
		if n.y2-n.y1 > 1 {
			ym := (n.y1 + n.y2) / 2
			ys = [2][2]int{{n.y1, ym}, {ym, n.y2}}
			ny = 2
		}
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				stack = append(stack, pixelRect{xs[i][0], ys[j][0], xs[i][1], ys[j][1]})
			}
		}
	}
}

// mayContain reports whether the widened geographic bounds of n, estimated
// from its corners, edge midpoints and centre, contain q. Nodes with
// invalid samples are never pruned.
func (g *pixelGrid) mayContain(n pixelRect, q coord.GeoPos) bool {
	xm := (n.x1 + n.x2) / 2
	ym := (n.y1 + n.y2) / 2
	var lons, lats [9]float64
	k := 0
	for _, y := range [...]int{n.y1, ym, n.y2} {
		for _, x := range [...]int{n.x1, xm, n.x2} {
			p := g.geoPos(x, y)
			if !p.IsValid() {
				return true
			}
			lons[k], lats[k] = p.Lon, p.Lat
			k++
		}
	}

	latMin, latMax := minMax(lats[:])
	mLat := g.margin + spanSlack*(latMax-latMin)
	if q.Lat < latMin-mLat || q.Lat > latMax+mLat {
		return false
	}

	if latMax+mLat >= 90 || latMin-mLat <= -90 {
		return true
	}

	// Longitude degrees shrink towards the poles: scale the margin by the
	// cosine of the box latitude closest to a pole.
	polar := max(math.Abs(latMin), math.Abs(latMax)) + mLat
	cosLat := max(math.Cos(polar*coord.DegToRad), minCosLat)

	lonMin, lonMax := minMax(lons[:])
	if lonMax-lonMin > 180 {
		if !g.crossesAntiMeridian {
			mLon := (g.margin + spanSlack*(lonMax-lonMin)) / cosLat
			return q.Lon >= lonMin-mLon && q.Lon <= lonMax+mLon
		}
		posMin := getPositiveLonMin(lons[:]...)
		negMax := getNegativeLonMax(lons[:]...)
		span := (180 - posMin) + (negMax + 180)
		mLon := (g.margin + spanSlack*span) / cosLat
		return q.Lon >= posMin-mLon || q.Lon <= negMax+mLon
	}
	mLon := (g.margin + spanSlack*(lonMax-lonMin)) / cosLat
	if mLon >= 180 {
		return true
	}
	// Wrapped differences keep boxes next to the anti-meridian reachable
	// from queries on the other side.
	return coord.LonDelta(q.Lon, lonMin) >= -mLon && coord.LonDelta(q.Lon, lonMax) <= mLon
}

// accept reports whether the best candidate is close enough to q to count
// as covering it: within one pixel spacing or the local cell size,
// whichever is larger.
func (g *pixelGrid) accept(res *Result) bool {
	if !res.Found() {
		return false
	}
	return res.Delta <= max(g.epsilon, g.cellSize(res.X, res.Y))
}

// cellSize returns the largest squared distance from pixel (x, y) to one of
// its valid four-neighbours.
func (g *pixelGrid) cellSize(x, y int) float64 {
	p := g.geoPos(x, y)
	var d float64
	for _, q := range [...]coord.GeoPos{g.geoPos(x-1, y), g.geoPos(x+1, y), g.geoPos(x, y-1), g.geoPos(x, y+1)} {
		if q.IsValid() {
			d = max(d, coord.SquareDistance(p, q))
		}
	}
	return d
}

// pixelPos converts the result of a search into a pixel position: the
// pixel centre, or the refined sub-pixel position in fractional mode.
func (g *pixelGrid) pixelPos(q coord.GeoPos, res *Result) coord.PixelPos {
	if !g.accept(res) {
		return coord.InvalidPixelPos()
	}
	if !g.fractional {
		return coord.PixelPos{X: float64(res.X) + 0.5, Y: float64(res.Y) + 0.5}
	}
	return g.refine(q, res.X, res.Y)
}

// refine interpolates a sub-pixel position around the nearest pixel (x, y)
// by inverting the bilinear interpolation of the surrounding cell. It falls
// back to the pixel centre for degenerate cells or when the result leaves
// the neighbourhood of (x, y).
func (g *pixelGrid) refine(q coord.GeoPos, x, y int) coord.PixelPos {
	snap := coord.PixelPos{X: float64(x) + 0.5, Y: float64(y) + 0.5}
	if g.width < 2 || g.height < 2 {
		return snap
	}
	x0 := min(x, g.width-2)
	y0 := min(y, g.height-2)
	for attempt := 0; ; attempt++ {
		u, v, ok := g.invertCell(q, x0, y0)
		if !ok {
			return snap
		}
		nx, ny := x0, y0
		if u < 0 && x0 > 0 && x0 == x {
			nx = x0 - 1
		} else if u > 1 && x0 < g.width-2 && x0 < x {
			nx = x0 + 1
		}
		if v < 0 && y0 > 0 && y0 == y {
			ny = y0 - 1
		} else if v > 1 && y0 < g.height-2 && y0 < y {
			ny = y0 + 1
		}
		if (nx == x0 && ny == y0) || attempt == 2 {
			p := coord.PixelPos{X: float64(x0) + u + 0.5, Y: float64(y0) + v + 0.5}
			if math.Abs(p.X-snap.X) > 1 || math.Abs(p.Y-snap.Y) > 1 {
				return snap
			}
			return p
		}
		x0, y0 = nx, ny
	}
}

// invertCell solves P(u, v) = q for the bilinear cell spanned by pixels
// (x0, y0) and (x0+1, y0+1) in a local plane centred on the first corner.
// The start value comes from the cell's Jacobian, followed by Newton steps.
func (g *pixelGrid) invertCell(q coord.GeoPos, x0, y0 int) (u, v float64, ok bool) {
	p00 := g.geoPos(x0, y0)
	p10 := g.geoPos(x0+1, y0)
	p01 := g.geoPos(x0, y0+1)
	p11 := g.geoPos(x0+1, y0+1)
	if !p00.IsValid() || !p10.IsValid() || !p01.IsValid() || !p11.IsValid() {
		return 0, 0, false
	}
	dup := g.duplicateTolerance * g.epsilon
	if coord.SquareDistance(p00, p10) < dup || coord.SquareDistance(p00, p01) < dup ||
		coord.SquareDistance(p10, p11) < dup || coord.SquareDistance(p01, p11) < dup {
		return 0, 0, false
	}

	f := math.Cos(p00.Lat * coord.DegToRad)
	plane := func(p coord.GeoPos) (float64, float64) {
		return f * coord.LonDelta(p.Lon, p00.Lon), p.Lat - p00.Lat
	}
	bx, by := plane(p10)
	cx, cy := plane(p01)
	ex, ey := plane(p11)
	dx, dy := ex-bx-cx, ey-by-cy
	qx, qy := plane(q)

	det := bx*cy - cx*by
	if math.Abs(det) < 1e-12*g.epsilon {
		return 0, 0, false
	}
	u = (qx*cy - cx*qy) / det
	v = (bx*qy - qx*by) / det

	for i := 0; i < newtonIterations; i++ {
		rx := bx*u + cx*v + dx*u*v - qx
		ry := by*u + cy*v + dy*u*v - qy
		j11, j12 := bx+dx*v, cx+dx*u
		j21, j22 := by+dy*v, cy+dy*u
		det = j11*j22 - j12*j21
		if math.Abs(det) < 1e-12*g.epsilon {
			return 0, 0, false
		}
		du := (rx*j22 - j12*ry) / det
		dv := (j11*ry - rx*j21) / det
		u -= du
		v -= dv
		if math.Abs(du)+math.Abs(dv) < 1e-12 {
			break
		}
	}
	if math.IsNaN(u) || math.IsNaN(v) {
		return 0, 0, false
	}
	return u, v, true
}

func minMax(vs []float64) (float64, float64) {
	lo, hi := vs[0], vs[0]
	for _, v := range vs[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	return lo, hi
}

// getPositiveLonMin returns the smallest non-negative longitude, or 180 if
// there is none.
func getPositiveLonMin(lons ...float64) float64 {
	m := 180.0
	for _, l := range lons {
		if l >= 0 {
			m = min(m, l)
		}
	}
	return m
}

// getNegativeLonMax returns the largest negative longitude, or -180 if
// there is none.
func getNegativeLonMax(lons ...float64) float64 {
	m := -180.0
	for _, l := range lons {
		if l < 0 {
			m = max(m, l)
		}
	}
	return m
}

// queryPos validates and normalizes a query position. Longitudes outside
// [-180, 180] are wrapped; 180 itself is kept so it matches rasters that
// store it.
func queryPos(geo coord.GeoPos) (coord.GeoPos, bool) {
	if !geo.IsValid() || geo.Lat < -90 || geo.Lat > 90 {
		return geo, false
	}
	if geo.Lon < -180 || geo.Lon > 180 {
		geo.Lon = coord.WrapLon(geo.Lon)
	}
	return geo, true
}
