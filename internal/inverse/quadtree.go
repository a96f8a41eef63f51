package inverse

import (
	"log"

	"github.com/pspoerri/pixelgeo/internal/coord"
)

// PixelQuadTreeInverse finds the nearest pixel by recursively narrowing the
// full raster rectangle, pruning sub-rectangles whose geographic bounds
// cannot contain the query.
type PixelQuadTreeInverse struct {
	opts Options
	grid *pixelGrid
}

// NewPixelQuadTreeInverse returns an uninitialized quad-tree inverse.
func NewPixelQuadTreeInverse(opts Options) *PixelQuadTreeInverse {
	return &PixelQuadTreeInverse{opts: opts.withDefaults()}
}

// Initialize binds the raster. Pole locations are not used; the search
// handles converging meridians through its bounding box margins.
func (p *PixelQuadTreeInverse) Initialize(r *GeoRaster, crossesAntiMeridian bool, _ []coord.PixelPos) error {
	g, err := newPixelGrid(r, crossesAntiMeridian, p.opts)
	if err != nil {
		return err
	}
	p.grid = g
	if p.opts.Verbose {
		log.Printf("Quad-tree inverse: %dx%d pixels, spacing %.6f°, anti-meridian %v",
			g.width, g.height, g.spacing, crossesAntiMeridian)
	}
	return nil
}

// PixelPos returns the position of the pixel nearest to geo, or NaN when
// no pixel lies within the acceptance distance.
func (p *PixelQuadTreeInverse) PixelPos(geo coord.GeoPos) coord.PixelPos {
	g := p.grid
	if g == nil {
		return coord.InvalidPixelPos()
	}
	q, ok := queryPos(geo)
	if !ok {
		return coord.InvalidPixelPos()
	}
	res := NewResult()
	g.search(q, pixelRect{0, 0, g.width - 1, g.height - 1}, &res)
	return g.pixelPos(q, &res)
}

// GeoPos returns the geolocation of pixel (x, y), or NaN outside the raster.
func (p *PixelQuadTreeInverse) GeoPos(x, y int) coord.GeoPos {
	if p.grid == nil {
		return coord.InvalidGeoPos()
	}
	return p.grid.geoPos(x, y)
}

// Epsilon returns the squared mean pixel spacing in degrees.
func (p *PixelQuadTreeInverse) Epsilon() float64 {
	if p.grid == nil {
		return 0
	}
	return p.grid.epsilon
}

// Dispose drops the raster reference. It is safe to call repeatedly.
func (p *PixelQuadTreeInverse) Dispose() {
	p.grid = nil
}
