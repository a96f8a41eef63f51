package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/pspoerri/pixelgeo/internal/coord"
	"github.com/pspoerri/pixelgeo/internal/inverse"
	"github.com/pspoerri/pixelgeo/internal/product"
)

// PixelResponse is the answer of a pixel lookup. X and Y are omitted when
// the position is not covered by the product.
type PixelResponse struct {
	Product  string   `json:"product"`
	Strategy string   `json:"strategy"`
	Lat      float64  `json:"lat"`
	Lon      float64  `json:"lon"`
	Found    bool     `json:"found"`
	X        *float64 `json:"x,omitempty"`
	Y        *float64 `json:"y,omitempty"`
}

// GeoResponse is the answer of a geolocation lookup. Lat and Lon are
// omitted when the pixel has no geolocation.
type GeoResponse struct {
	Product  string   `json:"product"`
	Strategy string   `json:"strategy"`
	X        float64  `json:"x"`
	Y        float64  `json:"y"`
	Found    bool     `json:"found"`
	Lat      *float64 `json:"lat,omitempty"`
	Lon      *float64 `json:"lon,omitempty"`
}

// InfoResponse describes a built coding.
type InfoResponse struct {
	Product        string  `json:"product"`
	Strategy       string  `json:"strategy"`
	SceneWidth     int     `json:"sceneWidth"`
	SceneHeight    int     `json:"sceneHeight"`
	RasterWidth    int     `json:"rasterWidth"`
	RasterHeight   int     `json:"rasterHeight"`
	Approximations int     `json:"approximations,omitempty"`
	Buckets        int     `json:"buckets,omitempty"`
	Multiplicator  float64 `json:"multiplicator,omitempty"`
	Epsilon        float64 `json:"epsilon,omitempty"`
	BuildSeconds   float64 `json:"buildSeconds"`
}

// Handler returns the HTTP API of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("GET /v1/products", s.productsHandler)
	mux.HandleFunc("GET /v1/{product}", s.infoHandler)
	mux.HandleFunc("GET /v1/{product}/pixel", s.pixelHandler)
	mux.HandleFunc("GET /v1/{product}/geo", s.geoHandler)
	return mux
}

func (s *Server) productsHandler(w http.ResponseWriter, r *http.Request) {
	names, err := s.catalog.Names()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, map[string][]string{"products": names})
}

func (s *Server) infoHandler(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("product")
	var resp InfoResponse
	var statsErr error
	err := s.with(name, func(c *product.Coding) {
		st, err := inverse.Describe(c.InverseCoding)
		if err != nil {
			statsErr = err
			return
		}
		resp = InfoResponse{
			Product:        name,
			Strategy:       c.Strategy.String(),
			SceneWidth:     c.Raster.SceneWidth,
			SceneHeight:    c.Raster.SceneHeight,
			RasterWidth:    c.Raster.RasterWidth,
			RasterHeight:   c.Raster.RasterHeight,
			Approximations: st.Approximations,
			Buckets:        st.Buckets,
			Multiplicator:  st.Multiplicator,
			Epsilon:        st.Epsilon,
			BuildSeconds:   c.Built.Seconds(),
		}
	})
	if err == nil {
		err = statsErr
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, resp)
}

func (s *Server) pixelHandler(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("product")
	lat, err := queryFloat(r, "lat")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	lon, err := queryFloat(r, "lon")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp := PixelResponse{Product: name, Lat: lat, Lon: lon}
	err = s.with(name, func(c *product.Coding) {
		start := time.Now()
		p := c.PixelPos(coord.GeoPos{Lat: lat, Lon: lon})
		s.metrics.queryDuration.WithLabelValues("pixel").Observe(time.Since(start).Seconds())

		resp.Strategy = c.Strategy.String()
		if p.IsValid() {
			resp.Found = true
			resp.X, resp.Y = &p.X, &p.Y
		}
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.metrics.queries.WithLabelValues(name, resp.Strategy, "pixel", outcome(resp.Found)).Inc()
	writeJSON(w, resp)
}

func (s *Server) geoHandler(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("product")
	x, err := queryFloat(r, "x")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	y, err := queryFloat(r, "y")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp := GeoResponse{Product: name, X: x, Y: y}
	err = s.with(name, func(c *product.Coding) {
		start := time.Now()
		g := c.GeoPos(coord.PixelPos{X: x, Y: y})
		s.metrics.queryDuration.WithLabelValues("geo").Observe(time.Since(start).Seconds())

		resp.Strategy = c.Strategy.String()
		if g.IsValid() {
			resp.Found = true
			resp.Lat, resp.Lon = &g.Lat, &g.Lon
		}
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.metrics.queries.WithLabelValues(name, resp.Strategy, "geo", outcome(resp.Found)).Inc()
	writeJSON(w, resp)
}

// fail maps lookup errors to HTTP status codes.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, product.ErrUnknownProduct) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func queryFloat(r *http.Request, key string) (float64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, fmt.Errorf("missing query parameter %q", key)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid query parameter %q: %w", key, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid query parameter %q: not a finite number", key)
	}
	return v, nil
}

func outcome(found bool) string {
	if found {
		return "found"
	}
	return "missed"
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
