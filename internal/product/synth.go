package product

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/pspoerri/pixelgeo/internal/band"
	"github.com/pspoerri/pixelgeo/internal/coord"
)

// SwathSpec parameterizes a synthetic push-broom swath. Rows advance along
// the track, columns across it.
type SwathSpec struct {
	Name   string
	Width  int
	Height int

	// LonStart, LatStart locate pixel (0, 0).
	LonStart float64
	LatStart float64
	// PixelDeg is the ground pixel size in degrees of arc.
	PixelDeg float64
	// Heading is the track direction in degrees clockwise from south.
	Heading float64
	// Subsampling > 1 stores a tie-point grid of every Subsampling-th pixel.
	Subsampling int
	Strategy    string
	Fractional  bool
}

func (s SwathSpec) validate() error {
	if s.Name == "" {
		return fmt.Errorf("swath name is required")
	}
	if s.Width < 2 || s.Height < 2 {
		return fmt.Errorf("swath extent %dx%d, want at least 2x2", s.Width, s.Height)
	}
	if !(s.PixelDeg > 0) {
		return fmt.Errorf("swath pixel size %g", s.PixelDeg)
	}
	if s.Subsampling > 1 && ((s.Width-1)%s.Subsampling != 0 || (s.Height-1)%s.Subsampling != 0) {
		return fmt.Errorf("swath extent %dx%d is not a multiple of sub-sampling %d plus one",
			s.Width, s.Height, s.Subsampling)
	}
	return nil
}

// geoAt returns the geolocation of scene pixel (x, y) with the longitude
// kept continuous (it may exceed ±180).
func (s SwathSpec) geoAt(x, y float64) (lon, lat float64) {
	h := s.Heading * coord.DegToRad
	// Across-track steps east, along-track steps south, both rotated.
	east := s.PixelDeg * (x*math.Cos(h) + y*math.Sin(h))
	north := s.PixelDeg * (x*math.Sin(h) - y*math.Cos(h))
	lat = s.LatStart + north
	lon = s.LonStart + east/math.Max(math.Cos(lat*coord.DegToRad), 0.01)
	return lon, lat
}

// Synthesize writes the bands and descriptor of a synthetic swath into dir
// and returns the descriptor.
func Synthesize(dir string, s SwathSpec) (*Descriptor, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dir, err)
	}

	sub := max(s.Subsampling, 1)
	gw := (s.Width-1)/sub + 1
	gh := (s.Height-1)/sub + 1
	lon := make([]float64, gw*gh)
	lat := make([]float64, gw*gh)
	crosses := false
	for j := 0; j < gh; j++ {
		for i := 0; i < gw; i++ {
			l, a := s.geoAt(float64(i*sub), float64(j*sub))
			wrapped := coord.WrapLon(l)
			if wrapped != l {
				crosses = true
			}
			lon[j*gw+i] = wrapped
			lat[j*gw+i] = a
		}
	}
	// A swath starting west of the meridian and wrapping counts as well.
	lonMin, lonMax := math.Inf(1), math.Inf(-1)
	for _, l := range lon {
		lonMin, lonMax = math.Min(lonMin, l), math.Max(lonMax, l)
	}
	crosses = crosses && lonMax-lonMin > 180

	lonName := s.Name + "_lon.tif"
	latName := s.Name + "_lat.tif"
	if err := band.WriteFloat32(filepath.Join(dir, lonName), gw, gh, lon); err != nil {
		return nil, err
	}
	if err := band.WriteFloat32(filepath.Join(dir, latName), gw, gh, lat); err != nil {
		return nil, err
	}

	d := &Descriptor{
		Name:                s.Name,
		Lon:                 lonName,
		Lat:                 latName,
		ResolutionKm:        s.PixelDeg * coord.KmPerDegree,
		CrossesAntiMeridian: crosses,
		Strategy:            s.Strategy,
		Fractional:          s.Fractional,
	}
	if sub > 1 {
		d.SceneWidth = s.Width
		d.SceneHeight = s.Height
		d.SubsamplingX = float64(sub)
		d.SubsamplingY = float64(sub)
		d.OffsetX = 0.5
		d.OffsetY = 0.5
	}
	if err := d.Save(filepath.Join(dir, s.Name+DescriptorExt)); err != nil {
		return nil, err
	}
	return d, nil
}
