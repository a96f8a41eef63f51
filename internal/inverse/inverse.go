// Package inverse implements inverse geocoding for satellite raster
// products: given a geographic position it finds the fractional pixel
// position that images it. Three strategies are provided: a piecewise
// polynomial fitted on tie-point grids, a quad-tree search over per-pixel
// geolocation and a coarse lon/lat spatial hash narrowing the same search.
package inverse

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pspoerri/pixelgeo/internal/coord"
)

// ErrNotInitialized is returned when statistics are requested from a coding
// that has not been initialized or has been disposed.
var ErrNotInitialized = errors.New("inverse coding not initialized")

// InverseCoding maps geographic positions to pixel positions of one raster.
// After Initialize returns, PixelPos is safe for concurrent use.
// Positions that are not covered by the raster yield NaN coordinates.
type InverseCoding interface {
	Initialize(raster *GeoRaster, crossesAntiMeridian bool, poleLocations []coord.PixelPos) error
	PixelPos(geo coord.GeoPos) coord.PixelPos
	Dispose()
}

// PixelInverse is implemented by the strategies that work on per-pixel
// geolocation.
type PixelInverse interface {
	InverseCoding
	GeoPos(x, y int) coord.GeoPos
	Epsilon() float64
}

// Strategy selects an inverse coding implementation.
type Strategy int

const (
	TiePoint Strategy = iota
	QuadTree
	GeoIndex
)

func (s Strategy) String() string {
	switch s {
	case TiePoint:
		return "tiepoint"
	case QuadTree:
		return "quadtree"
	case GeoIndex:
		return "geoindex"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// ParseStrategy parses a strategy name as printed by String.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "tiepoint", "tie-point", "tie_point":
		return TiePoint, nil
	case "quadtree", "quad-tree", "pixel":
		return QuadTree, nil
	case "geoindex", "geo-index":
		return GeoIndex, nil
	default:
		return 0, fmt.Errorf("unknown inverse strategy %q (supported: tiepoint, quadtree, geoindex)", name)
	}
}

// Options holds the tunables shared by all strategies. Zero values select
// the defaults.
type Options struct {
	// Fractional enables sub-pixel results for the pixel strategies. When
	// false they return the centre of the nearest pixel.
	Fractional bool
	// MaxFitError is the polynomial fit error in pixels under which the
	// tie-point strategy accepts a polynomial without trying higher orders.
	MaxFitError float64
	// DuplicateTolerance is the fraction of epsilon below which two
	// neighbouring pixels count as duplicate locations.
	DuplicateTolerance float64
	// AntiMeridianThreshold is the distance in degrees from the normalized
	// longitude domain within which a ±360° retry is attempted.
	AntiMeridianThreshold float64
	// Verbose logs build statistics.
	Verbose bool
}

const (
	DefaultMaxFitError           = 0.5
	DefaultDuplicateTolerance    = 1e-6
	DefaultAntiMeridianThreshold = 1.0
)

func (o Options) withDefaults() Options {
	if !(o.MaxFitError > 0) {
		o.MaxFitError = DefaultMaxFitError
	}
	if !(o.DuplicateTolerance > 0) {
		o.DuplicateTolerance = DefaultDuplicateTolerance
	}
	if !(o.AntiMeridianThreshold > 0) {
		o.AntiMeridianThreshold = DefaultAntiMeridianThreshold
	}
	return o
}

// New returns an uninitialized coding for the given strategy.
func New(s Strategy, opts Options) (InverseCoding, error) {
	switch s {
	case TiePoint:
		return NewTiePointInverse(opts), nil
	case QuadTree:
		return NewPixelQuadTreeInverse(opts), nil
	case GeoIndex:
		return NewPixelGeoIndexInverse(opts), nil
	default:
		return nil, fmt.Errorf("unknown inverse strategy %v", s)
	}
}

// StrategyFor picks a strategy for a raster: the polynomial inverse for
// sub-sampled tie-point grids, otherwise the geo-index when query speed
// matters more than build time and the quad-tree when it does not.
func StrategyFor(r *GeoRaster, preferSpeed bool) Strategy {
	if r.IsTiePoint() {
		return TiePoint
	}
	if preferSpeed {
		return GeoIndex
	}
	return QuadTree
}

// Stats summarises an initialized coding.
type Stats struct {
	Strategy       Strategy
	Width          int
	Height         int
	Approximations int
	Buckets        int
	Multiplicator  float64
	Epsilon        float64
}

// Describe returns statistics about an initialized coding.
func Describe(c InverseCoding) (Stats, error) {
	switch v := c.(type) {
	case *TiePointInverse:
		if v.approximations == nil {
			return Stats{}, ErrNotInitialized
		}
		return Stats{
			Strategy:       TiePoint,
			Width:          int(v.sceneWidth),
			Height:         int(v.sceneHeight),
			Approximations: len(v.approximations),
		}, nil
	case *PixelQuadTreeInverse:
		if v.grid == nil {
			return Stats{}, ErrNotInitialized
		}
		return Stats{Strategy: QuadTree, Width: v.grid.width, Height: v.grid.height, Epsilon: v.grid.epsilon}, nil
	case *PixelGeoIndexInverse:
		if v.grid == nil {
			return Stats{}, ErrNotInitialized
		}
		return Stats{
			Strategy:      GeoIndex,
			Width:         v.grid.width,
			Height:        v.grid.height,
			Buckets:       len(v.index),
			Multiplicator: v.multiplicator,
			Epsilon:       v.grid.epsilon,
		}, nil
	default:
		return Stats{}, fmt.Errorf("unsupported inverse coding %T", c)
	}
}
