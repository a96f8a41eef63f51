// Package server exposes inverse codings of a product catalog over HTTP.
// Codings are built on first use and kept in a bounded cache.
package server

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/karlseguin/ccache/v3"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"github.com/pspoerri/pixelgeo/internal/inverse"
	"github.com/pspoerri/pixelgeo/internal/product"
)

// errDisposed is returned by entry.use when the coding was evicted while
// the caller held a reference to it.
var errDisposed = errors.New("coding disposed")

// Config holds the server settings.
type Config struct {
	ProductDir   string
	CacheSize    int64         // maximum number of cached codings
	ItemsToPrune uint32        // codings evicted at once when the cache is full
	CacheTTL     time.Duration // lifetime of a cached coding
	Fractional   bool
	PreferSpeed  bool // build geo-index codings for per-pixel products
}

// entry guards a cached coding so that eviction never disposes it while a
// query is running.
type entry struct {
	mu       sync.RWMutex
	coding   *product.Coding
	disposed bool
}

func (e *entry) use(fn func(c *product.Coding)) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.disposed {
		return errDisposed
	}
	fn(e.coding)
	return nil
}

func (e *entry) dispose() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.disposed {
		e.disposed = true
		e.coding.Dispose()
	}
}

// Server answers pixel and geolocation lookups for the products of a
// catalog.
type Server struct {
	cfg      Config
	catalog  product.Catalog
	logger   *slog.Logger
	metrics  *metrics
	cache    *ccache.Cache[*entry]
	inflight singleflight.Group
}

// New creates a server. Metrics are registered with reg.
func New(cfg Config, logger *slog.Logger, reg prometheus.Registerer) *Server {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 16
	}
	if cfg.ItemsToPrune == 0 {
		cfg.ItemsToPrune = 1
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	s := &Server{
		cfg:     cfg,
		catalog: product.Catalog{Dir: cfg.ProductDir},
		logger:  logger,
		metrics: newMetrics(reg),
	}
	s.cache = ccache.New(ccache.Configure[*entry]().
		MaxSize(cfg.CacheSize).
		ItemsToPrune(cfg.ItemsToPrune).
		OnDelete(func(item *ccache.Item[*entry]) {
			s.metrics.cacheEvents.WithLabelValues("evict").Inc()
			s.logger.Debug("disposing coding", "product", item.Key())
			item.Value().dispose()
		}))
	return s
}

// Close disposes all cached codings and stops the cache.
func (s *Server) Close() {
	s.cache.ForEachFunc(func(key string, item *ccache.Item[*entry]) bool {
		item.Value().dispose()
		return true
	})
	s.cache.Stop()
}

// coding returns the cached coding of the named product, building it on a
// miss. Concurrent misses for the same product share one build.
func (s *Server) coding(name string) (*entry, error) {
	if item := s.cache.Get(name); item != nil && !item.Expired() {
		s.metrics.cacheEvents.WithLabelValues("hit").Inc()
		return item.Value(), nil
	}
	v, err, _ := s.inflight.Do(name, func() (any, error) {
		item, err := s.cache.Fetch(name, s.cfg.CacheTTL, func() (*entry, error) {
			return s.build(name)
		})
		if err != nil {
			return nil, err
		}
		return item.Value(), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*entry), nil
}

func (s *Server) build(name string) (*entry, error) {
	d, err := s.catalog.Lookup(name)
	if err != nil {
		return nil, err
	}
	c, err := d.Build(inverse.Options{Fractional: s.cfg.Fractional}, s.cfg.PreferSpeed)
	if err != nil {
		return nil, fmt.Errorf("building %s: %w", name, err)
	}
	s.metrics.cacheEvents.WithLabelValues("build").Inc()
	s.metrics.buildDuration.WithLabelValues(c.Strategy.String()).Observe(c.Built.Seconds())
	s.logger.Info("built inverse coding", "product", name, "strategy", c.Strategy.String(),
		"width", c.Raster.SceneWidth, "height", c.Raster.SceneHeight, "duration", c.Built)
	return &entry{coding: c}, nil
}

// with runs fn on the coding of the named product. A coding evicted
// between lookup and use is rebuilt once.
func (s *Server) with(name string, fn func(c *product.Coding)) error {
	for attempt := 0; ; attempt++ {
		e, err := s.coding(name)
		if err != nil {
			return err
		}
		err = e.use(fn)
		if !errors.Is(err, errDisposed) || attempt > 0 {
			return err
		}
		if item := s.cache.Get(name); item != nil && item.Value() == e {
			s.cache.Delete(name)
		}
	}
}
