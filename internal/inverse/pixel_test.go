package inverse

import (
	"errors"
	"math"
	"testing"

	"github.com/pspoerri/pixelgeo/internal/coord"
)

// --- Helpers ---

// swath builds a w×h full-resolution raster with slightly skewed affine
// geolocation of about 0.01° spacing.
func swath(t testing.TB, w, h int, lon0, lat0 float64) *GeoRaster {
	t.Helper()
	lon := make([]float64, w*h)
	lat := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			lon[y*w+x] = coord.WrapLon(lon0 + 0.01*float64(x) + 0.002*float64(y))
			lat[y*w+x] = lat0 - 0.01*float64(y) + 0.001*float64(x)
		}
	}
	r, err := NewGeoRaster(lon, lat, w, h, 1.1)
	if err != nil {
		t.Fatalf("NewGeoRaster: %v", err)
	}
	return r
}

// polarGrid builds a (2n+1)² raster centred on the north pole with 0.01°
// radial spacing.
func polarGrid(t testing.TB, n int) *GeoRaster {
	t.Helper()
	w := 2*n + 1
	lon := make([]float64, w*w)
	lat := make([]float64, w*w)
	for y := 0; y < w; y++ {
		for x := 0; x < w; x++ {
			dx, dy := float64(x-n), float64(y-n)
			lat[y*w+x] = 90 - 0.01*math.Hypot(dx, dy)
			lon[y*w+x] = math.Atan2(dy, dx) / coord.DegToRad
		}
	}
	r, err := NewGeoRaster(lon, lat, w, w, 1.1)
	if err != nil {
		t.Fatalf("NewGeoRaster: %v", err)
	}
	return r
}

type pixelStrategy struct {
	name string
	build func(Options) PixelInverse
}

var pixelStrategies = []pixelStrategy{
	{"quadtree", func(o Options) PixelInverse { return NewPixelQuadTreeInverse(o) }},
	{"geoindex", func(o Options) PixelInverse { return NewPixelGeoIndexInverse(o) }},
}

func initPixel(t *testing.T, s pixelStrategy, opts Options, r *GeoRaster, crosses bool, poles []coord.PixelPos) PixelInverse {
	t.Helper()
	inv := s.build(opts)
	if err := inv.Initialize(r, crosses, poles); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return inv
}

// --- Round trips ---

func TestPixelRoundTripSnap(t *testing.T) {
	r := swath(t, 60, 40, 8, 47)
	pixels := [][2]int{{0, 0}, {59, 0}, {0, 39}, {59, 39}, {30, 20}, {1, 38}, {17, 3}}
	for _, s := range pixelStrategies {
		t.Run(s.name, func(t *testing.T) {
			inv := initPixel(t, s, Options{}, r, false, nil)
			for _, p := range pixels {
				geo := inv.GeoPos(p[0], p[1])
				got := inv.PixelPos(geo)
				if got.X != float64(p[0])+0.5 || got.Y != float64(p[1])+0.5 {
					t.Errorf("PixelPos(GeoPos(%d, %d)) = %v", p[0], p[1], got)
				}
			}
		})
	}
}

func TestPixelRoundTripFractional(t *testing.T) {
	r := swath(t, 60, 40, 8, 47)
	for _, s := range pixelStrategies {
		t.Run(s.name, func(t *testing.T) {
			inv := initPixel(t, s, Options{Fractional: true}, r, false, nil)
			for _, p := range [][2]int{{0, 0}, {59, 39}, {30, 20}, {59, 0}} {
				got := inv.PixelPos(inv.GeoPos(p[0], p[1]))
				assertPixel(t, got, float64(p[0])+0.5, float64(p[1])+0.5, 1e-6)
			}
		})
	}
}

func TestPixelSubPixel(t *testing.T) {
	r := swath(t, 60, 40, 8, 47)
	tests := []struct {
		x, y float64 // fractional offsets from pixel (20, 10)
	}{
		{0.25, 0},
		{0, 0.25},
		{0.3, 0.4},
		{-0.2, 0.1},
	}
	for _, s := range pixelStrategies {
		t.Run(s.name, func(t *testing.T) {
			inv := initPixel(t, s, Options{Fractional: true}, r, false, nil)
			for _, tt := range tests {
				fx, fy := 20+tt.x, 10+tt.y
				geo := coord.GeoPos{
					Lon: 8 + 0.01*fx + 0.002*fy,
					Lat: 47 - 0.01*fy + 0.001*fx,
				}
				assertPixel(t, inv.PixelPos(geo), fx+0.5, fy+0.5, 1e-3)
			}
		})
	}
}

// --- Coverage ---

func TestPixelOutside(t *testing.T) {
	r := swath(t, 60, 40, 8, 47)
	tests := []struct {
		name string
		geo  coord.GeoPos
	}{
		{"north of first row", coord.GeoPos{Lat: 47.05, Lon: 8.1}},
		{"west of first column", coord.GeoPos{Lat: 46.8, Lon: 7.9}},
		{"far away", coord.GeoPos{Lat: -20, Lon: 100}},
		{"lat out of range", coord.GeoPos{Lat: 95, Lon: 8.1}},
		{"NaN", coord.InvalidGeoPos()},
	}
	for _, s := range pixelStrategies {
		for _, fractional := range []bool{false, true} {
			inv := initPixel(t, s, Options{Fractional: fractional}, r, false, nil)
			for _, tt := range tests {
				t.Run(s.name+"/"+tt.name, func(t *testing.T) {
					assertInvalid(t, inv.PixelPos(tt.geo))
				})
			}
		}
	}
}

func TestPixelInvalidSamples(t *testing.T) {
	r := swath(t, 20, 20, 8, 47)
	// Blank out one row; the remaining pixels stay reachable.
	for x := 0; x < 20; x++ {
		r.Lon[10*20+x] = math.NaN()
		r.Lat[10*20+x] = math.NaN()
	}
	for _, s := range pixelStrategies {
		t.Run(s.name, func(t *testing.T) {
			inv := initPixel(t, s, Options{}, r, false, nil)
			for _, p := range [][2]int{{5, 9}, {5, 11}, {19, 19}} {
				assertPixel(t, inv.PixelPos(inv.GeoPos(p[0], p[1])), float64(p[0])+0.5, float64(p[1])+0.5, 0)
			}
			if g := inv.GeoPos(5, 10); g.IsValid() {
				t.Errorf("GeoPos(5, 10) = %v, want NaN", g)
			}
		})
	}
}

func TestPixelAntiMeridian(t *testing.T) {
	// Columns 0..49 lie east of 179.5°, the rest wrap to negative longitudes.
	r := swath(t, 100, 20, 179.5, -10)
	for _, s := range pixelStrategies {
		t.Run(s.name, func(t *testing.T) {
			inv := initPixel(t, s, Options{}, r, true, nil)
			for _, p := range [][2]int{{0, 0}, {48, 5}, {49, 5}, {50, 5}, {51, 5}, {99, 19}, {47, 0}} {
				geo := inv.GeoPos(p[0], p[1])
				assertPixel(t, inv.PixelPos(geo), float64(p[0])+0.5, float64(p[1])+0.5, 0)
			}
			// 180° and -180° name the same meridian.
			geo := inv.GeoPos(50, 5)
			geo.Lon += 360
			assertPixel(t, inv.PixelPos(geo), 50.5, 5.5, 0)
		})
	}
}

func TestPixelPole(t *testing.T) {
	const n = 20
	r := polarGrid(t, n)
	poles := []coord.PixelPos{{X: n + 0.5, Y: n + 0.5}}
	for _, s := range pixelStrategies {
		t.Run(s.name, func(t *testing.T) {
			inv := initPixel(t, s, Options{}, r, true, poles)
			for _, p := range [][2]int{{n, n}, {n + 1, n}, {n, n - 1}, {n - 3, n + 2}, {0, 0}, {2 * n, n}} {
				geo := inv.GeoPos(p[0], p[1])
				assertPixel(t, inv.PixelPos(geo), float64(p[0])+0.5, float64(p[1])+0.5, 0)
			}
		})
	}
}

// --- Lifecycle ---

func TestPixelGeoPos(t *testing.T) {
	r := swath(t, 10, 10, 8, 47)
	for _, s := range pixelStrategies {
		t.Run(s.name, func(t *testing.T) {
			inv := initPixel(t, s, Options{}, r, false, nil)
			if g := inv.GeoPos(0, 0); g.Lon != 8 || g.Lat != 47 {
				t.Errorf("GeoPos(0, 0) = %v", g)
			}
			for _, p := range [][2]int{{-1, 0}, {0, -1}, {10, 0}, {0, 10}} {
				if g := inv.GeoPos(p[0], p[1]); g.IsValid() {
					t.Errorf("GeoPos(%d, %d) = %v, want NaN", p[0], p[1], g)
				}
			}
			eps := inv.Epsilon()
			if eps < 0.005*0.005 || eps > 0.012*0.012 {
				t.Errorf("Epsilon() = %g, want squared spacing near 0.01°", eps)
			}
		})
	}
}

func TestPixelDispose(t *testing.T) {
	r := swath(t, 10, 10, 8, 47)
	for _, s := range pixelStrategies {
		t.Run(s.name, func(t *testing.T) {
			inv := s.build(Options{})
			inv.Dispose()
			if _, err := Describe(inv); !errors.Is(err, ErrNotInitialized) {
				t.Errorf("Describe before Initialize: got %v, want ErrNotInitialized", err)
			}
			if err := inv.Initialize(r, false, nil); err != nil {
				t.Fatalf("Initialize: %v", err)
			}
			geo := inv.GeoPos(3, 3)
			inv.Dispose()
			inv.Dispose()
			assertInvalid(t, inv.PixelPos(geo))
			if g := inv.GeoPos(3, 3); g.IsValid() {
				t.Errorf("GeoPos after Dispose = %v, want NaN", g)
			}
		})
	}
}

func TestPixelRejectsTiePointRaster(t *testing.T) {
	r := tiePointGrid(t, 5, 5, merisLon, merisLat)
	for _, s := range pixelStrategies {
		t.Run(s.name, func(t *testing.T) {
			if err := s.build(Options{}).Initialize(r, false, nil); !errors.Is(err, ErrInvalidRaster) {
				t.Errorf("got %v, want ErrInvalidRaster", err)
			}
		})
	}
}

// --- Search helpers ---

func TestDatelineLonBounds(t *testing.T) {
	lons := []float64{-170, 175, 178, -176}
	if got := getPositiveLonMin(lons...); got != 175 {
		t.Errorf("getPositiveLonMin = %v, want 175", got)
	}
	if got := getNegativeLonMax(lons...); got != -170 {
		t.Errorf("getNegativeLonMax = %v, want -170", got)
	}
	if got := getPositiveLonMin(-10, -20); got != 180 {
		t.Errorf("getPositiveLonMin without positives = %v, want 180", got)
	}
	if got := getNegativeLonMax(10, 20); got != -180 {
		t.Errorf("getNegativeLonMax without negatives = %v, want -180", got)
	}
}

func TestInvertCellDuplicates(t *testing.T) {
	lon := []float64{10, 10, 10, 10.01}
	lat := []float64{5, 5, 4.99, 4.99}
	g := &pixelGrid{lon: lon, lat: lat, width: 2, height: 2, epsilon: 1e-4, spacing: 0.01,
		duplicateTolerance: DefaultDuplicateTolerance, fractional: true}
	if _, _, ok := g.invertCell(coord.GeoPos{Lat: 4.995, Lon: 10.004}, 0, 0); ok {
		t.Error("invertCell accepted a cell with duplicate corners")
	}
	got := g.refine(coord.GeoPos{Lat: 4.995, Lon: 10.004}, 0, 1)
	assertPixel(t, got, 0.5, 1.5, 0)
}
