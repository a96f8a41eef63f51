package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"
	"runtime/pprof"
	"strings"

	"github.com/pspoerri/pixelgeo/internal/product"
)

// Set via -ldflags at build time.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

type command struct {
	name    string
	summary string
	run     func(args []string) error
}

var commands = []command{
	{"locate", "find the pixel positions of lat/lon pairs", runLocate},
	{"geo", "geolocate pixel positions", runGeo},
	{"info", "describe a product and its inverse coding", runInfo},
	{"synth", "write a synthetic swath product", runSynth},
	{"render", "render a coverage map of a product", runRender},
	{"serve", "serve lookups over HTTP", runServe},
	{"version", "print version and exit", runVersion},
}

func main() {
	log.SetFlags(log.LstdFlags)
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	name := os.Args[1]
	if name == "-h" || name == "-help" || name == "--help" || name == "help" {
		usage()
		return
	}
	for _, c := range commands {
		if c.name == name {
			if err := c.run(os.Args[2:]); err != nil {
				log.Fatalf("%s: %v", name, err)
			}
			return
		}
	}
	fmt.Fprintf(os.Stderr, "pixelgeo: unknown command %q\n\n", name)
	usage()
	os.Exit(1)
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: pixelgeo <command> [flags] [args]\n\n")
	fmt.Fprintf(os.Stderr, "Inverse geocoding of satellite raster products.\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-10s %s\n", c.name, c.summary)
	}
	fmt.Fprintf(os.Stderr, "\nRun 'pixelgeo <command> -h' for the flags of a command.\n")
}

func runVersion(args []string) error {
	fmt.Printf("pixelgeo %s (commit %s, built %s)\n", version, commit, buildDate)
	return nil
}

// newFlagSet creates the flag set of a subcommand with a usage line.
func newFlagSet(name, synopsis, description string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: pixelgeo %s [flags] %s\n\n", name, synopsis)
		fmt.Fprintf(os.Stderr, "%s\n\n", description)
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
	}
	return fs
}

// productFlags are the flags shared by commands that build a coding.
type productFlags struct {
	dir         string
	fractional  bool
	preferSpeed bool
	verbose     bool
	cpuProfile  string
}

func (p *productFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&p.dir, "dir", ".", "Product catalog directory")
	fs.BoolVar(&p.fractional, "fractional", false, "Return sub-pixel positions for per-pixel products")
	fs.BoolVar(&p.preferSpeed, "fast", false, "Use the geo-index strategy for per-pixel products")
	fs.BoolVar(&p.verbose, "verbose", false, "Verbose progress output")
	fs.StringVar(&p.cpuProfile, "cpuprofile", "", "Write CPU profile to file")
}

// open loads a product by descriptor path or by catalog name.
func (p *productFlags) open(ref string) (*product.Descriptor, error) {
	if strings.HasSuffix(ref, product.DescriptorExt) {
		return product.Load(ref)
	}
	return product.Catalog{Dir: p.dir}.Lookup(ref)
}

// startProfile starts CPU profiling when requested and returns the
// function stopping it.
func (p *productFlags) startProfile() (func(), error) {
	if p.cpuProfile == "" {
		return func() {}, nil
	}
	f, err := os.Create(p.cpuProfile)
	if err != nil {
		return nil, fmt.Errorf("creating CPU profile: %w", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("starting CPU profile: %w", err)
	}
	if p.verbose {
		log.Printf("CPU profiling enabled → %s (%d CPUs)", p.cpuProfile, runtime.NumCPU())
	}
	return func() {
		pprof.StopCPUProfile()
		f.Close()
	}, nil
}
