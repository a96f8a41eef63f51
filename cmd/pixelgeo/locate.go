package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pspoerri/pixelgeo/internal/coord"
	"github.com/pspoerri/pixelgeo/internal/inverse"
	"github.com/pspoerri/pixelgeo/internal/product"
)

func runLocate(args []string) error {
	var pf productFlags
	fs := newFlagSet("locate", "<product> [lat lon ...]",
		"Print the pixel position of each lat/lon pair. Pairs are read from stdin\nwhen none are given; uncovered positions print NaN.")
	pf.register(fs)
	fs.Parse(args)
	if fs.NArg() < 1 {
		fs.Usage()
		os.Exit(1)
	}
	return withCoding(&pf, fs.Arg(0), fs.Args()[1:], func(c *product.Coding, a, b float64) string {
		p := c.PixelPos(coord.GeoPos{Lat: a, Lon: b})
		return fmt.Sprintf("%.6f %.6f %.4f %.4f", a, b, p.X, p.Y)
	})
}

func runGeo(args []string) error {
	var pf productFlags
	fs := newFlagSet("geo", "<product> [x y ...]",
		"Print the geolocation of each pixel position. Positions are read from stdin\nwhen none are given; pixels without geolocation print NaN.")
	pf.register(fs)
	fs.Parse(args)
	if fs.NArg() < 1 {
		fs.Usage()
		os.Exit(1)
	}
	return withCoding(&pf, fs.Arg(0), fs.Args()[1:], func(c *product.Coding, a, b float64) string {
		g := c.GeoPos(coord.PixelPos{X: a, Y: b})
		return fmt.Sprintf("%.4f %.4f %.6f %.6f", a, b, g.Lat, g.Lon)
	})
}

// withCoding builds the coding of a product and prints line(c, a, b) for
// every pair of numbers in args, or in stdin when args is empty.
func withCoding(pf *productFlags, ref string, args []string, line func(c *product.Coding, a, b float64) string) error {
	stop, err := pf.startProfile()
	if err != nil {
		return err
	}
	defer stop()

	var pairs [][2]float64
	if len(args) > 0 {
		pairs, err = parsePairs(strings.NewReader(strings.Join(args, " ")))
	} else {
		pairs, err = parsePairs(os.Stdin)
	}
	if err != nil {
		return err
	}

	d, err := pf.open(ref)
	if err != nil {
		return err
	}
	c, err := d.Build(inverse.Options{Fractional: pf.fractional, Verbose: pf.verbose}, pf.preferSpeed)
	if err != nil {
		return err
	}
	defer c.Dispose()

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()
	for _, p := range pairs {
		fmt.Fprintln(w, line(c, p[0], p[1]))
	}
	return nil
}

// parsePairs reads whitespace or comma separated numbers and groups them in
// pairs.
func parsePairs(r io.Reader) ([][2]float64, error) {
	var values []float64
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.FieldsFunc(line, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t' || r == ';'
		})
		for _, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid number %q", n, f)
			}
			values = append(values, v)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(values)%2 != 0 {
		return nil, fmt.Errorf("odd number of values (%d): expected pairs", len(values))
	}
	pairs := make([][2]float64, len(values)/2)
	for i := range pairs {
		pairs[i] = [2]float64{values[2*i], values[2*i+1]}
	}
	return pairs, nil
}

func runInfo(args []string) error {
	var pf productFlags
	fs := newFlagSet("info", "<product>", "Build the inverse coding of a product and print its statistics.")
	pf.register(fs)
	fs.Parse(args)
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}

	d, err := pf.open(fs.Arg(0))
	if err != nil {
		return err
	}
	c, err := d.Build(inverse.Options{Fractional: pf.fractional, Verbose: pf.verbose}, pf.preferSpeed)
	if err != nil {
		return err
	}
	defer c.Dispose()
	st, err := inverse.Describe(c.InverseCoding)
	if err != nil {
		return err
	}

	r := c.Raster
	b := product.Bounds(r, d.CrossesAntiMeridian)
	fmt.Printf("%s\n", d.Name)
	fmt.Printf("  %-16s %s\n", "Strategy:", st.Strategy)
	fmt.Printf("  %-16s %d x %d\n", "Scene:", r.SceneWidth, r.SceneHeight)
	fmt.Printf("  %-16s %d x %d", "Raster:", r.RasterWidth, r.RasterHeight)
	if r.IsTiePoint() {
		fmt.Printf(" (tie points every %g x %g, offset %g, %g)", r.SubsamplingX, r.SubsamplingY, r.OffsetX, r.OffsetY)
	}
	fmt.Println()
	fmt.Printf("  %-16s %.3f km\n", "Resolution:", r.ResolutionKm)
	fmt.Printf("  %-16s lon [%.6f, %.6f], lat [%.6f, %.6f]\n", "Bounds:", b.Min.X(), b.Max.X(), b.Min.Y(), b.Max.Y())
	fmt.Printf("  %-16s %v\n", "Anti-meridian:", d.CrossesAntiMeridian)
	if n := len(d.Poles); n > 0 {
		fmt.Printf("  %-16s %d\n", "Poles:", n)
	}
	switch st.Strategy {
	case inverse.TiePoint:
		fmt.Printf("  %-16s %d\n", "Approximations:", st.Approximations)
	case inverse.GeoIndex:
		fmt.Printf("  %-16s %d (%g per degree)\n", "Buckets:", st.Buckets, st.Multiplicator)
		fmt.Printf("  %-16s %.3g deg²\n", "Epsilon:", st.Epsilon)
	default:
		fmt.Printf("  %-16s %.3g deg²\n", "Epsilon:", st.Epsilon)
	}
	fmt.Printf("  %-16s %v\n", "Built in:", c.Built.Round(time.Millisecond))
	return nil
}
