package inverse

import "fmt"

// RasterRegion is the inclusive pixel bounding box of all pixels whose
// geolocation falls into one geo-index bucket.
type RasterRegion struct {
	MinX, MaxX int
	MinY, MaxY int
}

// NewRasterRegion returns the region covering the single pixel (x, y).
func NewRasterRegion(x, y int) *RasterRegion {
	return &RasterRegion{MinX: x, MaxX: x, MinY: y, MaxY: y}
}

// Extend grows the region to include pixel (x, y). It never shrinks.
func (r *RasterRegion) Extend(x, y int) {
	r.MinX = min(r.MinX, x)
	r.MaxX = max(r.MaxX, x)
	r.MinY = min(r.MinY, y)
	r.MaxY = max(r.MaxY, y)
}

// IsPoint reports whether the region covers exactly one pixel.
func (r *RasterRegion) IsPoint() bool {
	return r.MinX == r.MaxX && r.MinY == r.MaxY
}

func (r *RasterRegion) String() string {
	return fmt.Sprintf("[%d..%d]x[%d..%d]", r.MinX, r.MaxX, r.MinY, r.MaxY)
}
