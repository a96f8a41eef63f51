// Package render draws coverage maps of inverse codings: every output pixel
// is located in the scene and coloured by the scene position it maps to.
package render

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"log"
	"math"
	"os"
	"runtime"
	"sync/atomic"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"

	"github.com/pspoerri/pixelgeo/internal/coord"
)

// Locator maps geographic positions to scene pixel positions.
type Locator interface {
	PixelPos(geo coord.GeoPos) coord.PixelPos
}

// Config holds coverage map configuration.
type Config struct {
	Width       int // output width in pixels
	Height      int // output height; 0 derives it from the bounds aspect ratio
	EPSG        int // output grid CRS, 4326 or 3857
	Bounds      orb.Bound
	Concurrency int
	Verbose     bool
	Progress    bool
}

// Stats holds rendering statistics.
type Stats struct {
	Pixels int64
	Valid  int64
}

// Coverage returns the fraction of output pixels located in the scene.
func (s Stats) Coverage() float64 {
	if s.Pixels == 0 {
		return 0
	}
	return float64(s.Valid) / float64(s.Pixels)
}

// grid maps output pixels to geographic positions.
type grid struct {
	proj           coord.Projection
	x0, y0, dx, dy float64
}

func newGrid(cfg *Config) (*grid, error) {
	proj := coord.ForEPSG(cfg.EPSG)
	if proj == nil {
		return nil, fmt.Errorf("unsupported EPSG code: %d", cfg.EPSG)
	}
	if cfg.Width <= 0 {
		return nil, fmt.Errorf("invalid output width %d", cfg.Width)
	}
	b := cfg.Bounds
	if !(b.Max.X() > b.Min.X()) || !(b.Max.Y() > b.Min.Y()) {
		return nil, fmt.Errorf("invalid output bounds %v", b)
	}

	x0, y0 := proj.FromWGS84(b.Min.X(), b.Min.Y())
	x1, y1 := proj.FromWGS84(b.Max.X(), b.Max.Y())
	if cfg.Height <= 0 {
		cfg.Height = max(1, int(math.Round(float64(cfg.Width)*(y1-y0)/(x1-x0))))
	}
	return &grid{
		proj: proj,
		x0:   x0,
		y0:   y1,
		dx:   (x1 - x0) / float64(cfg.Width),
		dy:   (y1 - y0) / float64(cfg.Height),
	}, nil
}

// geoPos returns the position of the centre of output pixel (col, row).
// Rows run from north to south.
func (g *grid) geoPos(col, row int) coord.GeoPos {
	lon, lat := g.proj.ToWGS84(g.x0+(float64(col)+0.5)*g.dx, g.y0-(float64(row)+0.5)*g.dy)
	return coord.GeoPos{Lat: lat, Lon: coord.WrapLon(lon)}
}

// Coverage renders the coverage map of loc over cfg.Bounds. Output pixels
// outside the scene are transparent; pixels inside are coloured with hue
// following the scene column and lightness following the scene row.
func Coverage(ctx context.Context, loc Locator, sceneWidth, sceneHeight int, cfg Config) (*image.RGBA, Stats, error) {
	g, err := newGrid(&cfg)
	if err != nil {
		return nil, Stats{}, err
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = runtime.NumCPU()
	}
	if cfg.Verbose {
		log.Printf("Rendering %dx%d coverage map (EPSG:%d) with %d workers", cfg.Width, cfg.Height, cfg.EPSG, cfg.Concurrency)
	}

	img := image.NewRGBA(image.Rect(0, 0, cfg.Width, cfg.Height))
	pal := newPalette(sceneWidth, sceneHeight)

	var pb *progressBar
	if cfg.Progress {
		pb = newProgressBar(os.Stderr, "Coverage", "rows", int64(cfg.Height))
	}

	var valid atomic.Int64
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(cfg.Concurrency)
	for row := 0; row < cfg.Height; row++ {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var n int64
			for col := 0; col < cfg.Width; col++ {
				p := loc.PixelPos(g.geoPos(col, row))
				if !p.IsValid() {
					continue
				}
				img.SetRGBA(col, row, pal.at(p))
				n++
			}
			valid.Add(n)
			if pb != nil {
				pb.Increment()
			}
			return nil
		})
	}
	err = eg.Wait()
	if pb != nil {
		pb.Finish()
	}
	if err != nil {
		return nil, Stats{}, err
	}

	stats := Stats{Pixels: int64(cfg.Width) * int64(cfg.Height), Valid: valid.Load()}
	if cfg.Verbose {
		log.Printf("Coverage map: %d of %d pixels located (%.1f%%)", stats.Valid, stats.Pixels, 100*stats.Coverage())
	}
	return img, stats, nil
}

// palette colours scene positions.
type palette struct {
	w, h float64
}

func newPalette(sceneWidth, sceneHeight int) palette {
	return palette{w: float64(max(sceneWidth, 1)), h: float64(max(sceneHeight, 1))}
}

func (p palette) at(pos coord.PixelPos) color.RGBA {
	fx := math.Min(math.Max(pos.X/p.w, 0), 1)
	fy := math.Min(math.Max(pos.Y/p.h, 0), 1)
	c := colorful.Hcl(300*fx, 0.6, 0.35+0.5*fy).Clamped()
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}
