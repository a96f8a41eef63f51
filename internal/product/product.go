// Package product describes geolocated raster products on disk: a JSON
// descriptor next to longitude and latitude GeoTIFF bands.
package product

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"github.com/pspoerri/pixelgeo/internal/band"
	"github.com/pspoerri/pixelgeo/internal/coord"
	"github.com/pspoerri/pixelgeo/internal/inverse"
)

// ErrUnknownProduct is returned when a catalog has no product of the
// requested name.
var ErrUnknownProduct = errors.New("unknown product")

// DescriptorExt is the file extension of product descriptors.
const DescriptorExt = ".json"

// Descriptor is the on-disk description of a product. Band paths are
// relative to the descriptor's directory unless absolute.
type Descriptor struct {
	Name string `json:"name"`
	Lon  string `json:"lon"`
	Lat  string `json:"lat"`

	// Scene extent; zero means the extent of the bands.
	SceneWidth  int `json:"sceneWidth,omitempty"`
	SceneHeight int `json:"sceneHeight,omitempty"`

	SubsamplingX float64 `json:"subsamplingX,omitempty"`
	SubsamplingY float64 `json:"subsamplingY,omitempty"`
	OffsetX      float64 `json:"offsetX,omitempty"`
	OffsetY      float64 `json:"offsetY,omitempty"`
	ResolutionKm float64 `json:"resolutionKm,omitempty"`

	CrossesAntiMeridian bool         `json:"crossesAntiMeridian,omitempty"`
	Poles               [][2]float64 `json:"poles,omitempty"`

	// Strategy names the inverse strategy; empty selects one automatically.
	Strategy   string `json:"strategy,omitempty"`
	Fractional bool   `json:"fractional,omitempty"`

	dir string
}

// Load reads a descriptor file.
func Load(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading descriptor: %w", err)
	}
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parsing descriptor %s: %w", path, err)
	}
	if d.Name == "" {
		d.Name = strings.TrimSuffix(filepath.Base(path), DescriptorExt)
	}
	if d.Lon == "" || d.Lat == "" {
		return nil, fmt.Errorf("descriptor %s: lon and lat bands are required", path)
	}
	if d.Strategy != "" {
		if _, err := inverse.ParseStrategy(d.Strategy); err != nil {
			return nil, fmt.Errorf("descriptor %s: %w", path, err)
		}
	}
	d.dir = filepath.Dir(path)
	return &d, nil
}

// Save writes the descriptor as indented JSON.
func (d *Descriptor) Save(path string) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing descriptor: %w", err)
	}
	d.dir = filepath.Dir(path)
	return nil
}

func (d *Descriptor) resolve(p string) string {
	if filepath.IsAbs(p) || d.dir == "" {
		return p
	}
	return filepath.Join(d.dir, p)
}

// PoleLocations returns the configured pole pixel positions.
func (d *Descriptor) PoleLocations() []coord.PixelPos {
	out := make([]coord.PixelPos, len(d.Poles))
	for i, p := range d.Poles {
		out[i] = coord.PixelPos{X: p[0], Y: p[1]}
	}
	return out
}

// Raster reads the geolocation bands.
func (d *Descriptor) Raster() (*inverse.GeoRaster, error) {
	lon, w, h, err := band.ReadFile(d.resolve(d.Lon))
	if err != nil {
		return nil, fmt.Errorf("product %s: lon band: %w", d.Name, err)
	}
	lat, lw, lh, err := band.ReadFile(d.resolve(d.Lat))
	if err != nil {
		return nil, fmt.Errorf("product %s: lat band: %w", d.Name, err)
	}
	if lw != w || lh != h {
		return nil, fmt.Errorf("product %s: %w: lon band is %dx%d, lat band %dx%d",
			d.Name, inverse.ErrInvalidRaster, w, h, lw, lh)
	}

	subX, subY := max(d.SubsamplingX, 1), max(d.SubsamplingY, 1)
	sceneW, sceneH := d.SceneWidth, d.SceneHeight
	if sceneW == 0 {
		sceneW = int(math.Round(float64(w-1)*subX)) + 1
	}
	if sceneH == 0 {
		sceneH = int(math.Round(float64(h-1)*subY)) + 1
	}

	var r *inverse.GeoRaster
	if subX == 1 && subY == 1 && sceneW == w && sceneH == h {
		r, err = inverse.NewGeoRaster(lon, lat, w, h, d.ResolutionKm)
	} else {
		r, err = inverse.NewTiePointRaster(lon, lat, w, h, sceneW, sceneH,
			d.OffsetX, d.OffsetY, subX, subY, d.ResolutionKm)
	}
	if err != nil {
		return nil, fmt.Errorf("product %s: %w", d.Name, err)
	}
	return r, nil
}

// Coding is an initialized inverse coding bound to its product.
type Coding struct {
	inverse.InverseCoding
	Name     string
	Strategy inverse.Strategy
	Raster   *inverse.GeoRaster
	Built    time.Duration
}

// GeoPos returns the geolocation of a scene pixel position.
func (c *Coding) GeoPos(p coord.PixelPos) coord.GeoPos {
	return c.Raster.GeoPos(p)
}

// Build reads the raster and initializes its inverse coding.
func (d *Descriptor) Build(opts inverse.Options, preferSpeed bool) (*Coding, error) {
	start := time.Now()
	r, err := d.Raster()
	if err != nil {
		return nil, err
	}

	s := inverse.StrategyFor(r, preferSpeed)
	if d.Strategy != "" {
		if s, err = inverse.ParseStrategy(d.Strategy); err != nil {
			return nil, fmt.Errorf("product %s: %w", d.Name, err)
		}
	}
	opts.Fractional = opts.Fractional || d.Fractional

	c, err := inverse.New(s, opts)
	if err != nil {
		return nil, err
	}
	if err := c.Initialize(r, d.CrossesAntiMeridian, d.PoleLocations()); err != nil {
		return nil, fmt.Errorf("product %s: initializing %v inverse: %w", d.Name, s, err)
	}

	built := time.Since(start)
	if opts.Verbose {
		log.Printf("Product %s: %v inverse over %dx%d scene built in %v", d.Name, s, r.SceneWidth, r.SceneHeight, built)
	}
	return &Coding{InverseCoding: c, Name: d.Name, Strategy: s, Raster: r, Built: built}, nil
}

// Bounds returns the geographic bounding box of the valid samples. For
// rasters crossing the anti-meridian longitudes west of it are shifted by
// 360°, so the box may extend beyond 180.
func Bounds(r *inverse.GeoRaster, crossesAntiMeridian bool) orb.Bound {
	b := orb.Bound{Min: orb.Point{math.Inf(1), math.Inf(1)}, Max: orb.Point{math.Inf(-1), math.Inf(-1)}}
	for i := range r.Lon {
		lon, lat := r.Lon[i], r.Lat[i]
		if math.IsNaN(lon) || math.IsNaN(lat) {
			continue
		}
		if crossesAntiMeridian && lon < 0 {
			lon += 360
		}
		b = b.Extend(orb.Point{lon, lat})
	}
	return b
}

// Catalog is a directory of product descriptors.
type Catalog struct {
	Dir string
}

// Lookup loads the descriptor of the named product.
func (c Catalog) Lookup(name string) (*Descriptor, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProduct, name)
	}
	path := filepath.Join(c.Dir, name+DescriptorExt)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProduct, name)
	}
	return Load(path)
}

// Names lists the products of the catalog in lexical order.
func (c Catalog) Names() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(c.Dir, "*"+DescriptorExt))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, strings.TrimSuffix(filepath.Base(m), DescriptorExt))
	}
	sort.Strings(names)
	return names, nil
}
