package main

import (
	"fmt"
	"os"

	"github.com/pspoerri/pixelgeo/internal/product"
)

func runSynth(args []string) error {
	var s product.SwathSpec
	var dir string
	fs := newFlagSet("synth", "<name>",
		"Write the geolocation bands and descriptor of a synthetic swath product.")
	fs.StringVar(&dir, "dir", ".", "Output catalog directory")
	fs.IntVar(&s.Width, "width", 512, "Scene width in pixels")
	fs.IntVar(&s.Height, "height", 512, "Scene height in pixels")
	fs.Float64Var(&s.LonStart, "lon", 0, "Longitude of the first pixel")
	fs.Float64Var(&s.LatStart, "lat", 0, "Latitude of the first pixel")
	fs.Float64Var(&s.PixelDeg, "pixel-deg", 0.01, "Pixel size in degrees")
	fs.Float64Var(&s.Heading, "heading", 0, "Swath rotation in degrees")
	fs.IntVar(&s.Subsampling, "subsampling", 0, "Tie-point sub-sampling (0 = per-pixel bands)")
	fs.StringVar(&s.Strategy, "strategy", "", "Inverse strategy stored in the descriptor")
	fs.BoolVar(&s.Fractional, "fractional", false, "Request sub-pixel results in the descriptor")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}
	s.Name = fs.Arg(0)

	d, err := product.Synthesize(dir, s)
	if err != nil {
		return err
	}
	fmt.Printf("Wrote %s (%dx%d, lon %s, lat %s", d.Name, s.Width, s.Height, d.Lon, d.Lat)
	if d.CrossesAntiMeridian {
		fmt.Printf(", crosses the anti-meridian")
	}
	fmt.Println(")")
	return nil
}
