package coord

import (
	"math"
	"testing"
)

func TestWrapLon(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{179.5, 179.5},
		{180, -180},
		{-180, -180},
		{190, -170},
		{-190, 170},
		{540, -180},
		{-725, -5},
	}
	for _, tt := range tests {
		if got := WrapLon(tt.in); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("WrapLon(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLonDelta(t *testing.T) {
	tests := []struct {
		a, b, want float64
	}{
		{10, 5, 5},
		{-179, 179, 2},
		{179, -179, -2},
		{0, 0, 0},
	}
	for _, tt := range tests {
		if got := LonDelta(tt.a, tt.b); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("LonDelta(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestSq(t *testing.T) {
	if got := Sq(3, 4); got != 25 {
		t.Errorf("Sq(3, 4) = %v, want 25", got)
	}
	if got := Sq(-2, 0); got != 4 {
		t.Errorf("Sq(-2, 0) = %v, want 4", got)
	}
}

func TestSquareDistance_AcrossDateline(t *testing.T) {
	a := GeoPos{Lat: 0, Lon: 179.9}
	b := GeoPos{Lat: 0, Lon: -179.9}
	got := SquareDistance(a, b)
	if math.Abs(got-0.04) > 1e-9 {
		t.Errorf("SquareDistance across dateline = %v, want 0.04", got)
	}
}

func TestDistanceKm(t *testing.T) {
	a := GeoPos{Lat: 0, Lon: 0}
	b := GeoPos{Lat: 1, Lon: 0}
	got := DistanceKm(a, b)
	if math.Abs(got-KmPerDegree) > 1e-6 {
		t.Errorf("DistanceKm over one degree of latitude = %v, want %v", got, KmPerDegree)
	}

	// Zurich to Bern, roughly 95 km.
	zrh := GeoPos{Lat: 47.3769, Lon: 8.5417}
	brn := GeoPos{Lat: 46.9480, Lon: 7.4474}
	if d := DistanceKm(zrh, brn); d < 90 || d > 100 {
		t.Errorf("DistanceKm(Zurich, Bern) = %.1f, want ~95", d)
	}
}

func TestPositionValidity(t *testing.T) {
	if !(GeoPos{Lat: 1, Lon: 2}).IsValid() {
		t.Error("finite GeoPos reported invalid")
	}
	if InvalidGeoPos().IsValid() {
		t.Error("InvalidGeoPos reported valid")
	}
	if (GeoPos{Lat: math.Inf(1), Lon: 0}).IsValid() {
		t.Error("infinite latitude reported valid")
	}
	if InvalidPixelPos().IsValid() {
		t.Error("InvalidPixelPos reported valid")
	}
	if !(PixelPos{X: 0.5, Y: 0.5}).IsValid() {
		t.Error("finite PixelPos reported invalid")
	}
}
