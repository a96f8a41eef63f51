package coord

import (
	"math"
	"testing"
)

func TestWebMercatorProj_KnownValues(t *testing.T) {
	wm := &WebMercatorProj{}

	lon, lat := wm.ToWGS84(0, 0)
	if math.Abs(lon) > 1e-10 || math.Abs(lat) > 1e-10 {
		t.Errorf("ToWGS84(0, 0) = (%v, %v), want (0, 0)", lon, lat)
	}

	x, _ := wm.FromWGS84(180, 0)
	if math.Abs(x-OriginShift) > 1 {
		t.Errorf("FromWGS84(180, 0).x = %v, want ~%v", x, OriginShift)
	}
	x, _ = wm.FromWGS84(-180, 0)
	if math.Abs(x+OriginShift) > 1 {
		t.Errorf("FromWGS84(-180, 0).x = %v, want ~%v", x, -OriginShift)
	}
}

func TestWebMercatorProj_ClampsPoles(t *testing.T) {
	wm := &WebMercatorProj{}

	_, yPole := wm.FromWGS84(0, 90)
	_, yLimit := wm.FromWGS84(0, MaxMercatorLat)
	if math.IsInf(yPole, 0) || math.IsNaN(yPole) {
		t.Fatalf("FromWGS84(0, 90).y = %v, want finite", yPole)
	}
	if yPole != yLimit {
		t.Errorf("FromWGS84(0, 90).y = %v, want clamped %v", yPole, yLimit)
	}
	if math.Abs(yLimit-OriginShift) > 1 {
		t.Errorf("y at MaxMercatorLat = %v, want ~%v", yLimit, OriginShift)
	}
}
