package inverse

import (
	"log"
	"math"

	"github.com/pspoerri/pixelgeo/internal/coord"
)

const (
	// latFactor separates the longitude and latitude bucket indices in a
	// geo-index key.
	latFactor = 100000
	// polarLat is the latitude above which pole regions are searched too.
	polarLat = 89.0
	// maxPoleWindow bounds the half size in pixels of a pole region.
	maxPoleWindow = 64
)

// PixelGeoIndexInverse hashes every pixel into a bucket of a regular
// lon/lat grid and remembers, per bucket, the pixel bounding box of its
// members. Queries search only the boxes of the buckets around the query.
type PixelGeoIndexInverse struct {
	opts Options
	grid *pixelGrid

	multiplicator float64
	index         map[int64]*RasterRegion
	poles         []coord.PixelPos
}

// NewPixelGeoIndexInverse returns an uninitialized geo-index inverse.
func NewPixelGeoIndexInverse(opts Options) *PixelGeoIndexInverse {
	return &PixelGeoIndexInverse{opts: opts.withDefaults()}
}

// Initialize builds the bucket index. Pole locations, if any, are pixel
// positions at which a geographic pole is imaged.
func (p *PixelGeoIndexInverse) Initialize(r *GeoRaster, crossesAntiMeridian bool, poleLocations []coord.PixelPos) error {
	g, err := newPixelGrid(r, crossesAntiMeridian, p.opts)
	if err != nil {
		return err
	}
	resKm := r.EstimateResolutionKm()
	if !(resKm > 0) {
		resKm = g.spacing * coord.KmPerDegree
	}
	m := getMultiplicator(resKm)

	index := make(map[int64]*RasterRegion)
	for y := 0; y < g.height; y++ {
		for x := 0; x < g.width; x++ {
			pos := g.geoPos(x, y)
			if !pos.IsValid() {
				continue
			}
			key := toIndex(pos.Lon, pos.Lat, m)
			if region, ok := index[key]; ok {
				region.Extend(x, y)
			} else {
				index[key] = NewRasterRegion(x, y)
			}
		}
	}

	var poles []coord.PixelPos
	for _, pl := range poleLocations {
		if pl.IsValid() && pl.X >= 0 && pl.Y >= 0 && pl.X < float64(g.width) && pl.Y < float64(g.height) {
			poles = append(poles, pl)
		}
	}

	p.grid = g
	p.multiplicator = m
	p.index = index
	p.poles = poles
	if p.opts.Verbose {
		log.Printf("Geo-index inverse: %dx%d pixels, %.1f km, multiplicator %g, %d buckets, %d pole locations",
			g.width, g.height, resKm, m, len(index), len(poles))
	}
	return nil
}

// PixelPos returns the position of the pixel nearest to geo, or NaN when
// no pixel lies within the acceptance distance.
func (p *PixelGeoIndexInverse) PixelPos(geo coord.GeoPos) coord.PixelPos {
	g := p.grid
	if g == nil || p.index == nil {
		return coord.InvalidPixelPos()
	}
	q, ok := queryPos(geo)
	if !ok {
		return coord.InvalidPixelPos()
	}
	res := NewResult()
	for _, key := range p.candidateKeys(q) {
		if region, ok := p.index[key]; ok {
			g.search(q, pixelRect{region.MinX, region.MinY, region.MaxX, region.MaxY}, &res)
		}
	}
	if math.Abs(q.Lat) >= polarLat {
		for _, rc := range p.poleRegions(q) {
			g.search(q, rc, &res)
		}
	}
	return g.pixelPos(q, &res)
}

// candidateKeys returns the bucket of q and every neighbouring bucket that
// lies within the search margin.
func (p *PixelGeoIndexInverse) candidateKeys(q coord.GeoPos) []int64 {
	m := p.multiplicator
	lonCount := int64(math.Round(360 * m))
	latCount := int64(math.Round(180 * m))

	latF := (q.Lat + 90) * m
	mLat := p.grid.margin * m
	cosLat := max(math.Cos(min(90, math.Abs(q.Lat)+p.grid.margin)*coord.DegToRad), minCosLat)
	lonF := (coord.WrapLon(q.Lon) + 180) * m
	mLon := p.grid.margin / cosLat * m

	var latIdx []int64
	for i := int64(math.Floor(latF - mLat)); i <= int64(math.Floor(latF+mLat)); i++ {
		if i >= 0 && i <= latCount {
			latIdx = append(latIdx, i)
		}
	}
	lo := int64(math.Floor(lonF - mLon))
	hi := int64(math.Floor(lonF + mLon))
	if hi-lo+1 > lonCount {
		lo, hi = 0, lonCount-1
	}

	keys := make([]int64, 0, len(latIdx)*int(hi-lo+1))
	for i := lo; i <= hi; i++ {
		li := i % lonCount
		if li < 0 {
			li += lonCount
		}
		for _, ai := range latIdx {
			keys = append(keys, li*latFactor+ai)
		}
	}
	return keys
}

// poleRegions returns a window around every pole location large enough to
// reach q from the pole.
func (p *PixelGeoIndexInverse) poleRegions(q coord.GeoPos) []pixelRect {
	g := p.grid
	var out []pixelRect
	for _, pl := range p.poles {
		pole := g.geoPos(int(pl.X), int(pl.Y))
		if !pole.IsValid() || math.Signbit(pole.Lat) != math.Signbit(q.Lat) {
			continue
		}
		reach := math.Abs(pole.Lat-q.Lat)/g.spacing + 2
		w := int(math.Min(math.Ceil(reach), maxPoleWindow))
		x, y := int(pl.X), int(pl.Y)
		out = append(out, pixelRect{
			x1: max(0, x-w), y1: max(0, y-w),
			x2: min(g.width-1, x+w), y2: min(g.height-1, y+w),
		})
	}
	return out
}

// GeoPos returns the geolocation of pixel (x, y), or NaN outside the raster.
func (p *PixelGeoIndexInverse) GeoPos(x, y int) coord.GeoPos {
	if p.grid == nil {
		return coord.InvalidGeoPos()
	}
	return p.grid.geoPos(x, y)
}

// Epsilon returns the squared mean pixel spacing in degrees.
func (p *PixelGeoIndexInverse) Epsilon() float64 {
	if p.grid == nil {
		return 0
	}
	return p.grid.epsilon
}

// Dispose clears the index. It is safe to call before Initialize and
// repeatedly.
func (p *PixelGeoIndexInverse) Dispose() {
	p.index = nil
	p.poles = nil
	p.grid = nil
}

// getMultiplicator returns the number of index buckets per degree for a
// pixel resolution in km.
func getMultiplicator(resKm float64) float64 {
	switch {
	case resKm >= 30:
		return 1
	case resKm >= 10:
		return 5
	case resKm >= 5:
		return 10
	case resKm >= 2:
		return 25
	case resKm >= 1:
		return 50
	default:
		return 100
	}
}

// toIndex returns the bucket key of (lon, lat) for m buckets per degree.
func toIndex(lon, lat, m float64) int64 {
	lonCount := int64(math.Round(360 * m))
	lonIdx := int64(math.Floor((lon + 180) * m))
	lonIdx %= lonCount
	if lonIdx < 0 {
		lonIdx += lonCount
	}
	latIdx := int64(math.Floor((lat + 90) * m))
	return lonIdx*latFactor + latIdx
}
