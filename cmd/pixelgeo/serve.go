package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/pspoerri/pixelgeo/internal/server"
)

const appName = "pixelgeo"

// serveConfig holds the serve settings, loaded from PIXELGEO_* environment
// variables and overridden by flags.
type serveConfig struct {
	LogLevel          string        `env:"LOG_LEVEL" envDefault:"INFO"`
	HTTPPort          int           `env:"HTTP_PORT" envDefault:"8080"`
	MetricsPort       int           `env:"METRICS_PORT" envDefault:"8888"`
	ProductDir        string        `env:"PRODUCT_DIR" envDefault:"."`
	CacheMaxSize      int64         `env:"CACHE_MAX_SIZE" envDefault:"16"`
	CacheItemsToPrune uint          `env:"CACHE_ITEMS_TO_PRUNE" envDefault:"1"`
	CacheTTL          time.Duration `env:"CACHE_TTL" envDefault:"1h"`
	Fractional        bool          `env:"FRACTIONAL" envDefault:"false"`
	PreferSpeed       bool          `env:"PREFER_SPEED" envDefault:"true"`
}

func loadServeConfig(args []string) (serveConfig, error) {
	environ, err := environment()
	if err != nil {
		return serveConfig{}, err
	}
	var cfg serveConfig
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "PIXELGEO_", Environment: environ}); err != nil {
		return cfg, fmt.Errorf("parsing environment: %w", err)
	}

	fs := newFlagSet("serve", "", "Serve pixel and geolocation lookups over HTTP. Settings default to the\nPIXELGEO_* environment variables.")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: DEBUG, INFO, WARN, ERROR")
	fs.IntVar(&cfg.HTTPPort, "http-port", cfg.HTTPPort, "API port")
	fs.IntVar(&cfg.MetricsPort, "metrics-port", cfg.MetricsPort, "Prometheus metrics port")
	fs.StringVar(&cfg.ProductDir, "dir", cfg.ProductDir, "Product catalog directory")
	fs.Int64Var(&cfg.CacheMaxSize, "cache-size", cfg.CacheMaxSize, "Maximum number of cached codings")
	fs.UintVar(&cfg.CacheItemsToPrune, "cache-prune", cfg.CacheItemsToPrune, "Codings evicted at once when the cache is full")
	fs.DurationVar(&cfg.CacheTTL, "cache-ttl", cfg.CacheTTL, "Lifetime of a cached coding")
	fs.BoolVar(&cfg.Fractional, "fractional", cfg.Fractional, "Return sub-pixel positions for per-pixel products")
	fs.BoolVar(&cfg.PreferSpeed, "fast", cfg.PreferSpeed, "Use the geo-index strategy for per-pixel products")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if fs.NArg() != 0 {
		fs.Usage()
		os.Exit(1)
	}
	return cfg, nil
}

// environment returns the process environment completed with the variables
// of the dotenv file named by PIXELGEO_ENV_FILE (default .env). Variables
// already set in the process win.
func environment() (map[string]string, error) {
	environ := env.ToMap(os.Environ())
	path := environ["PIXELGEO_ENV_FILE"]
	if path == "" {
		path = ".env"
	}
	vars, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return environ, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	for k, v := range vars {
		if _, ok := environ[k]; !ok {
			environ[k] = v
		}
	}
	return environ, nil
}

func runServe(args []string) error {
	cfg, err := loadServeConfig(args)
	if err != nil {
		return err
	}
	logger := createLogger(cfg, appName)
	slog.SetDefault(logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	srv := server.New(server.Config{
		ProductDir:   cfg.ProductDir,
		CacheSize:    cfg.CacheMaxSize,
		ItemsToPrune: uint32(cfg.CacheItemsToPrune),
		CacheTTL:     cfg.CacheTTL,
		Fractional:   cfg.Fractional,
		PreferSpeed:  cfg.PreferSpeed,
	}, logger, reg)
	defer srv.Close()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	apiServer := &http.Server{Addr: fmt.Sprintf(":%d", cfg.HTTPPort), Handler: srv.Handler(), ReadHeaderTimeout: 10 * time.Second}
	metricsServer := &http.Server{Addr: fmt.Sprintf(":%d", cfg.MetricsPort), Handler: metricsMux, ReadHeaderTimeout: 10 * time.Second}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	for _, s := range []struct {
		name string
		srv  *http.Server
	}{{"API", apiServer}, {"metrics", metricsServer}} {
		g.Go(func() error {
			logger.Info("HTTP "+s.name+" server listening", "address", s.srv.Addr)
			if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP %s server failed: %w", s.name, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		logger.Warn("starting graceful shutdown")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		var errs []error
		for _, s := range []*http.Server{apiServer, metricsServer} {
			if err := s.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server group returned an error", "error", err)
		return err
	}
	return nil
}

func createLogger(cfg serveConfig, appName string) *slog.Logger {
	var programLevel slog.Level
	switch strings.ToUpper(cfg.LogLevel) {
	case "DEBUG":
		programLevel = slog.LevelDebug
	case "WARN":
		programLevel = slog.LevelWarn
	case "ERROR":
		programLevel = slog.LevelError
	default:
		programLevel = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     programLevel,
		AddSource: programLevel <= slog.LevelDebug,
	}).WithAttrs([]slog.Attr{slog.String("app", appName)})
	return slog.New(handler)
}
