package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"github.com/pspoerri/pixelgeo/internal/encode"
	"github.com/pspoerri/pixelgeo/internal/inverse"
	"github.com/pspoerri/pixelgeo/internal/product"
	"github.com/pspoerri/pixelgeo/internal/render"
)

func runRender(args []string) error {
	var (
		pf          productFlags
		output      string
		width       int
		height      int
		epsg        int
		quality     int
		concurrency int
		bbox        string
		noProgress  bool
	)
	fs := newFlagSet("render", "<product>",
		"Render a coverage map: every output pixel is located in the scene and\ncoloured by scene column (hue) and row (lightness).")
	pf.register(fs)
	fs.StringVar(&output, "o", "coverage.png", "Output image (.png, .jpg or .webp)")
	fs.IntVar(&width, "width", 1024, "Output width in pixels")
	fs.IntVar(&height, "height", 0, "Output height in pixels (default: from bounds)")
	fs.IntVar(&epsg, "epsg", 4326, "Output grid CRS: 4326 or 3857")
	fs.IntVar(&quality, "quality", 85, "JPEG/WebP quality 1-100")
	fs.IntVar(&concurrency, "concurrency", runtime.NumCPU(), "Number of parallel workers")
	fs.StringVar(&bbox, "bbox", "", "Output bounds minLon,minLat,maxLon,maxLat (default: product bounds)")
	fs.BoolVar(&noProgress, "no-progress", false, "Disable the progress bar")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}

	enc, err := encode.ForPath(output, quality)
	if err != nil {
		return err
	}
	stop, err := pf.startProfile()
	if err != nil {
		return err
	}
	defer stop()

	d, err := pf.open(fs.Arg(0))
	if err != nil {
		return err
	}
	c, err := d.Build(inverse.Options{Fractional: pf.fractional, Verbose: pf.verbose}, pf.preferSpeed)
	if err != nil {
		return err
	}
	defer c.Dispose()

	bounds := product.Bounds(c.Raster, d.CrossesAntiMeridian)
	if bbox != "" {
		if bounds, err = parseBBox(bbox); err != nil {
			return err
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	start := time.Now()
	img, stats, err := render.Coverage(ctx, c, c.Raster.SceneWidth, c.Raster.SceneHeight, render.Config{
		Width:       width,
		Height:      height,
		EPSG:        epsg,
		Bounds:      bounds,
		Concurrency: concurrency,
		Verbose:     pf.verbose,
		Progress:    !noProgress,
	})
	if err != nil {
		return err
	}
	data, err := enc.Encode(img)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", output, err)
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return err
	}

	b := img.Bounds()
	fmt.Printf("Wrote %s (%dx%d %s, %.1f%% covered) in %v\n",
		output, b.Dx(), b.Dy(), enc.Format(), 100*stats.Coverage(), time.Since(start).Round(time.Millisecond))
	return nil
}

// parseBBox parses "minLon,minLat,maxLon,maxLat".
func parseBBox(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("invalid bbox %q: want minLon,minLat,maxLon,maxLat", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("invalid bbox %q: %w", s, err)
		}
		v[i] = f
	}
	if v[2] <= v[0] || v[3] <= v[1] {
		return orb.Bound{}, fmt.Errorf("invalid bbox %q: empty extent", s)
	}
	return orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, nil
}
