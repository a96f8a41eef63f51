package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/pspoerri/pixelgeo/internal/inverse"
	"github.com/pspoerri/pixelgeo/internal/product"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	dir := t.TempDir()
	if _, err := product.Synthesize(dir, product.SwathSpec{
		Name: "olci", Width: 50, Height: 40, LonStart: 8, LatStart: 47, PixelDeg: 0.01, Heading: 10,
	}); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	broken := `{"name": "broken", "lon": "missing_lon.tif", "lat": "missing_lat.tif", "resolutionKm": 1}`
	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte(broken), 0o644); err != nil {
		t.Fatal(err)
	}

	srv := New(Config{ProductDir: dir}, slog.New(slog.NewTextHandler(io.Discard, nil)), prometheus.NewRegistry())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return srv, ts
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK && v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decoding %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// --- Endpoints ---

func TestHealthz(t *testing.T) {
	_, ts := newTestServer(t)
	if code := getJSON(t, ts.URL+"/healthz", nil); code != http.StatusOK {
		t.Errorf("status = %d, want 200", code)
	}
}

func TestProducts(t *testing.T) {
	_, ts := newTestServer(t)
	var got struct{ Products []string }
	if code := getJSON(t, ts.URL+"/v1/products", &got); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(got.Products) != 2 || got.Products[0] != "broken" || got.Products[1] != "olci" {
		t.Errorf("products = %v, want [broken olci]", got.Products)
	}
}

func TestGeoPixelRoundTrip(t *testing.T) {
	_, ts := newTestServer(t)

	var geo GeoResponse
	if code := getJSON(t, ts.URL+"/v1/olci/geo?x=25.5&y=20.5", &geo); code != http.StatusOK {
		t.Fatalf("geo status = %d", code)
	}
	if !geo.Found || geo.Lat == nil || geo.Lon == nil {
		t.Fatalf("geo = %+v, want a located pixel", geo)
	}
	if geo.Strategy != "quadtree" {
		t.Errorf("strategy = %q, want quadtree", geo.Strategy)
	}

	var px PixelResponse
	url := ts.URL + "/v1/olci/pixel?lat=" + ftoa(*geo.Lat) + "&lon=" + ftoa(*geo.Lon)
	if code := getJSON(t, url, &px); code != http.StatusOK {
		t.Fatalf("pixel status = %d", code)
	}
	if !px.Found || px.X == nil || px.Y == nil {
		t.Fatalf("pixel = %+v, want found", px)
	}
	if *px.X != 25.5 || *px.Y != 20.5 {
		t.Errorf("pixel = (%v, %v), want (25.5, 20.5)", *px.X, *px.Y)
	}
}

func TestNotCovered(t *testing.T) {
	_, ts := newTestServer(t)

	var px PixelResponse
	if code := getJSON(t, ts.URL+"/v1/olci/pixel?lat=0&lon=0", &px); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if px.Found || px.X != nil || px.Y != nil {
		t.Errorf("pixel = %+v, want not found", px)
	}

	var geo GeoResponse
	if code := getJSON(t, ts.URL+"/v1/olci/geo?x=500&y=-3", &geo); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if geo.Found || geo.Lat != nil {
		t.Errorf("geo = %+v, want not found", geo)
	}
}

func TestRequestErrors(t *testing.T) {
	_, ts := newTestServer(t)
	tests := []struct {
		path string
		want int
	}{
		{"/v1/olci/pixel?lon=8", http.StatusBadRequest},
		{"/v1/olci/pixel?lat=abc&lon=8", http.StatusBadRequest},
		{"/v1/olci/pixel?lat=NaN&lon=8", http.StatusBadRequest},
		{"/v1/olci/geo?x=1", http.StatusBadRequest},
		{"/v1/olci/geo?x=1&y=Inf", http.StatusBadRequest},
		{"/v1/nope/pixel?lat=1&lon=1", http.StatusNotFound},
		{"/v1/nope", http.StatusNotFound},
		{"/v1/broken/pixel?lat=1&lon=1", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if code := getJSON(t, ts.URL+tt.path, nil); code != tt.want {
				t.Errorf("status = %d, want %d", code, tt.want)
			}
		})
	}
}

func TestInfo(t *testing.T) {
	_, ts := newTestServer(t)
	var info InfoResponse
	if code := getJSON(t, ts.URL+"/v1/olci", &info); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if info.Strategy != "quadtree" || info.SceneWidth != 50 || info.SceneHeight != 40 {
		t.Errorf("info = %+v", info)
	}
	if info.Epsilon <= 0 {
		t.Errorf("epsilon = %v, want > 0", info.Epsilon)
	}
}

// --- Cache ---

func TestConcurrentMissesShareOneBuild(t *testing.T) {
	srv, ts := newTestServer(t)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := http.Get(ts.URL + "/v1/olci/geo?x=1.5&y=1.5")
			if err != nil {
				t.Error(err)
				return
			}
			resp.Body.Close()
		}()
	}
	wg.Wait()

	if got := testutil.ToFloat64(srv.metrics.cacheEvents.WithLabelValues("build")); got != 1 {
		t.Errorf("builds = %v, want 1", got)
	}
	if got := testutil.ToFloat64(srv.metrics.queries.WithLabelValues("olci", "quadtree", "geo", "found")); got != 16 {
		t.Errorf("found geo queries = %v, want 16", got)
	}
}

func TestRebuildAfterEviction(t *testing.T) {
	srv, ts := newTestServer(t)
	url := ts.URL + "/v1/olci/geo?x=1.5&y=1.5"

	getJSON(t, url, nil)
	e, err := srv.coding("olci")
	if err != nil {
		t.Fatalf("coding: %v", err)
	}
	srv.cache.Delete("olci")
	e.dispose()

	var geo GeoResponse
	if code := getJSON(t, url, &geo); code != http.StatusOK || !geo.Found {
		t.Fatalf("status = %d, geo = %+v", code, geo)
	}
	if got := testutil.ToFloat64(srv.metrics.cacheEvents.WithLabelValues("build")); got != 2 {
		t.Errorf("builds = %v, want 2", got)
	}
}

func TestEntryDispose(t *testing.T) {
	d, err := product.Synthesize(t.TempDir(), product.SwathSpec{Name: "e", Width: 8, Height: 8, LonStart: 0, LatStart: 0, PixelDeg: 0.1})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	c, err := d.Build(inverse.Options{}, false)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	e := &entry{coding: c}

	called := false
	if err := e.use(func(*product.Coding) { called = true }); err != nil || !called {
		t.Fatalf("use before dispose: err = %v, called = %v", err, called)
	}
	e.dispose()
	e.dispose()
	if err := e.use(func(*product.Coding) { t.Error("use called after dispose") }); !errors.Is(err, errDisposed) {
		t.Errorf("err = %v, want errDisposed", err)
	}
}
