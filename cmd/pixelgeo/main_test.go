package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParsePairs(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    [][2]float64
		wantErr bool
	}{
		{"spaces", "47.5 8.25 46 9", [][2]float64{{47.5, 8.25}, {46, 9}}, false},
		{"lines and commas", "47.5,8.25\n46, 9\n", [][2]float64{{47.5, 8.25}, {46, 9}}, false},
		{"comments", "# lat lon\n-5 179.9 # dateline\n", [][2]float64{{-5, 179.9}}, false},
		{"empty", "", [][2]float64{}, false},
		{"odd", "1 2 3", nil, true},
		{"not a number", "1 north", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePairs(strings.NewReader(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d pairs, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("pair %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestParseBBox(t *testing.T) {
	b, err := parseBBox("7.5, 46,10.25,48")
	if err != nil {
		t.Fatalf("parseBBox: %v", err)
	}
	if b.Min.X() != 7.5 || b.Min.Y() != 46 || b.Max.X() != 10.25 || b.Max.Y() != 48 {
		t.Errorf("bound = %v", b)
	}
	for _, s := range []string{"", "1,2,3", "1,2,x,4", "5,0,1,1", "0,5,1,5"} {
		if _, err := parseBBox(s); err == nil {
			t.Errorf("parseBBox(%q) succeeded", s)
		}
	}
}

func TestLoadServeConfig(t *testing.T) {
	t.Setenv("PIXELGEO_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("PIXELGEO_HTTP_PORT", "9000")
	t.Setenv("PIXELGEO_CACHE_TTL", "10m")
	t.Setenv("PIXELGEO_PRODUCT_DIR", "/data/env")

	cfg, err := loadServeConfig([]string{"-dir", "/data/flag", "-cache-size", "4"})
	if err != nil {
		t.Fatalf("loadServeConfig: %v", err)
	}
	if cfg.HTTPPort != 9000 {
		t.Errorf("HTTPPort = %d, want 9000 from the environment", cfg.HTTPPort)
	}
	if cfg.CacheTTL != 10*time.Minute {
		t.Errorf("CacheTTL = %v, want 10m", cfg.CacheTTL)
	}
	if cfg.ProductDir != "/data/flag" {
		t.Errorf("ProductDir = %q, want the flag value", cfg.ProductDir)
	}
	if cfg.CacheMaxSize != 4 {
		t.Errorf("CacheMaxSize = %d, want 4", cfg.CacheMaxSize)
	}
	if cfg.MetricsPort != 8888 || cfg.LogLevel != "INFO" || !cfg.PreferSpeed {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestLoadServeConfigEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pixelgeo.env")
	content := "PIXELGEO_METRICS_PORT=7777\nPIXELGEO_LOG_LEVEL=DEBUG\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PIXELGEO_ENV_FILE", path)
	t.Setenv("PIXELGEO_LOG_LEVEL", "WARN")

	cfg, err := loadServeConfig(nil)
	if err != nil {
		t.Fatalf("loadServeConfig: %v", err)
	}
	if cfg.MetricsPort != 7777 {
		t.Errorf("MetricsPort = %d, want 7777 from the env file", cfg.MetricsPort)
	}
	if cfg.LogLevel != "WARN" {
		t.Errorf("LogLevel = %q, want the process environment to win", cfg.LogLevel)
	}
}

func TestCreateLogger(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		l := createLogger(serveConfig{LogLevel: tt.level}, appName)
		if !l.Enabled(context.Background(), tt.want) {
			t.Errorf("%s: level %v disabled", tt.level, tt.want)
		}
		if tt.want > slog.LevelDebug && l.Enabled(context.Background(), tt.want-4) {
			t.Errorf("%s: level below %v enabled", tt.level, tt.want)
		}
	}
}
