package inverse

import (
	"errors"
	"fmt"
	"math"

	"github.com/pspoerri/pixelgeo/internal/coord"
)

// ErrInvalidRaster is returned for geolocation rasters whose arrays and
// extents are inconsistent.
var ErrInvalidRaster = errors.New("invalid geo raster")

// GeoRaster describes the geolocation of a raster product: parallel,
// row-major longitude and latitude arrays of RasterWidth x RasterHeight
// samples. For full-resolution rasters the arrays hold one sample per scene
// pixel; for tie-point rasters sample (i, j) sits at scene pixel
// (OffsetX + i*SubsamplingX, OffsetY + j*SubsamplingY).
//
// A GeoRaster must not be modified once handed to an InverseCoding.
type GeoRaster struct {
	Lon []float64
	Lat []float64

	SceneWidth  int
	SceneHeight int

	RasterWidth  int
	RasterHeight int

	// ResolutionKm is the nominal ground resolution of one scene pixel.
	// Zero means unknown; see EstimateResolutionKm.
	ResolutionKm float64

	OffsetX      float64
	OffsetY      float64
	SubsamplingX float64
	SubsamplingY float64
}

// NewGeoRaster creates a full-resolution raster with one geolocation sample
// per pixel, located at the pixel centres.
func NewGeoRaster(lon, lat []float64, width, height int, resolutionKm float64) (*GeoRaster, error) {
	r := &GeoRaster{
		Lon:          lon,
		Lat:          lat,
		SceneWidth:   width,
		SceneHeight:  height,
		RasterWidth:  width,
		RasterHeight: height,
		ResolutionKm: resolutionKm,
		OffsetX:      0.5,
		OffsetY:      0.5,
		SubsamplingX: 1,
		SubsamplingY: 1,
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// NewTiePointRaster creates a raster from a gridWidth x gridHeight tie-point
// grid covering a sceneWidth x sceneHeight scene.
func NewTiePointRaster(lon, lat []float64, gridWidth, gridHeight, sceneWidth, sceneHeight int,
	offsetX, offsetY, subsamplingX, subsamplingY, resolutionKm float64) (*GeoRaster, error) {
	r := &GeoRaster{
		Lon:          lon,
		Lat:          lat,
		SceneWidth:   sceneWidth,
		SceneHeight:  sceneHeight,
		RasterWidth:  gridWidth,
		RasterHeight: gridHeight,
		ResolutionKm: resolutionKm,
		OffsetX:      offsetX,
		OffsetY:      offsetY,
		SubsamplingX: subsamplingX,
		SubsamplingY: subsamplingY,
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks the structural invariants of the raster.
func (r *GeoRaster) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil raster", ErrInvalidRaster)
	}
	if r.RasterWidth <= 0 || r.RasterHeight <= 0 {
		return fmt.Errorf("%w: raster extent %dx%d", ErrInvalidRaster, r.RasterWidth, r.RasterHeight)
	}
	if r.SceneWidth <= 0 || r.SceneHeight <= 0 {
		return fmt.Errorf("%w: scene extent %dx%d", ErrInvalidRaster, r.SceneWidth, r.SceneHeight)
	}
	n := r.RasterWidth * r.RasterHeight
	if len(r.Lon) != n || len(r.Lat) != n {
		return fmt.Errorf("%w: have %d lon and %d lat samples, want %d", ErrInvalidRaster, len(r.Lon), len(r.Lat), n)
	}
	if !(r.SubsamplingX > 0) || !(r.SubsamplingY > 0) {
		return fmt.Errorf("%w: sub-sampling %gx%g", ErrInvalidRaster, r.SubsamplingX, r.SubsamplingY)
	}
	if r.ResolutionKm < 0 || math.IsNaN(r.ResolutionKm) {
		return fmt.Errorf("%w: resolution %g km", ErrInvalidRaster, r.ResolutionKm)
	}
	return nil
}

// IsTiePoint reports whether the arrays are a sub-sampled grid rather than
// one sample per scene pixel.
func (r *GeoRaster) IsTiePoint() bool {
	return r.SubsamplingX != 1 || r.SubsamplingY != 1 ||
		r.RasterWidth != r.SceneWidth || r.RasterHeight != r.SceneHeight
}

// At returns the geolocation sample at grid index (x, y), or an invalid
// position outside the grid.
func (r *GeoRaster) At(x, y int) coord.GeoPos {
	if x < 0 || y < 0 || x >= r.RasterWidth || y >= r.RasterHeight {
		return coord.InvalidGeoPos()
	}
	i := y*r.RasterWidth + x
	return coord.GeoPos{Lat: r.Lat[i], Lon: r.Lon[i]}
}

// EstimateResolutionKm returns ResolutionKm if set, otherwise the mean
// great-circle spacing of scene pixels around the raster centre. It returns
// zero when no pair of valid neighbouring samples exists there.
func (r *GeoRaster) EstimateResolutionKm() float64 {
	if r.ResolutionKm > 0 {
		return r.ResolutionKm
	}
	cx, cy := r.RasterWidth/2, r.RasterHeight/2
	var sum float64
	var n int
	for y := max(0, cy-2); y <= min(r.RasterHeight-1, cy+2); y++ {
		for x := max(0, cx-2); x <= min(r.RasterWidth-1, cx+2); x++ {
			p := r.At(x, y)
			if !p.IsValid() {
				continue
			}
			if q := r.At(x+1, y); q.IsValid() {
				sum += coord.DistanceKm(p, q) / r.SubsamplingX
				n++
			}
			if q := r.At(x, y+1); q.IsValid() {
				sum += coord.DistanceKm(p, q) / r.SubsamplingY
				n++
			}
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// GeoPos interpolates the geolocation at a fractional scene pixel position
// from the surrounding samples. Positions outside the scene yield NaN.
func (r *GeoRaster) GeoPos(p coord.PixelPos) coord.GeoPos {
	if !p.IsValid() || p.X < 0 || p.Y < 0 || p.X > float64(r.SceneWidth) || p.Y > float64(r.SceneHeight) {
		return coord.InvalidGeoPos()
	}
	gx := (p.X - r.OffsetX) / r.SubsamplingX
	gy := (p.Y - r.OffsetY) / r.SubsamplingY
	i0, tx := gridCell(gx, r.RasterWidth)
	j0, ty := gridCell(gy, r.RasterHeight)
	i1 := min(i0+1, r.RasterWidth-1)
	j1 := min(j0+1, r.RasterHeight-1)

	p00, p10, p01, p11 := r.At(i0, j0), r.At(i1, j0), r.At(i0, j1), r.At(i1, j1)
	if !p00.IsValid() || !p10.IsValid() || !p01.IsValid() || !p11.IsValid() {
		return coord.InvalidGeoPos()
	}
	lerp := func(a, b, c, d float64) float64 {
		return (a*(1-tx)+b*tx)*(1-ty) + (c*(1-tx)+d*tx)*ty
	}
	// Longitudes are interpolated as offsets from the first corner so
	// cells spanning the anti-meridian stay continuous.
	dLon := lerp(0, coord.LonDelta(p10.Lon, p00.Lon), coord.LonDelta(p01.Lon, p00.Lon), coord.LonDelta(p11.Lon, p00.Lon))
	return coord.GeoPos{
		Lat: lerp(p00.Lat, p10.Lat, p01.Lat, p11.Lat),
		Lon: coord.WrapLon(p00.Lon + dLon),
	}
}

// gridCell returns the lower sample index of the cell containing grid
// coordinate g and the offset into it; edge cells extrapolate.
func gridCell(g float64, n int) (int, float64) {
	if n < 2 {
		return 0, 0
	}
	i := min(max(int(math.Floor(g)), 0), n-2)
	return i, g - float64(i)
}
