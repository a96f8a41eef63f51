package inverse

import (
	"math"
	"testing"
)

func TestResultUpdate(t *testing.T) {
	r := NewResult()
	if !math.IsInf(r.Delta, 1) || r.Found() {
		t.Fatalf("NewResult() = %+v, want empty", r)
	}
	steps := []struct {
		x, y    int
		delta   float64
		updated bool
	}{
		{3, 4, 2.0, true},
		{5, 6, 2.0, false},
		{7, 8, 3.0, false},
		{1, 2, 0.5, true},
	}
	for i, s := range steps {
		if got := r.Update(s.x, s.y, s.delta); got != s.updated {
			t.Errorf("step %d: Update = %v, want %v", i, got, s.updated)
		}
	}
	if r.X != 1 || r.Y != 2 || r.Delta != 0.5 {
		t.Errorf("final result = %+v, want (1, 2, 0.5)", r)
	}
}

func TestRasterRegion(t *testing.T) {
	r := NewRasterRegion(5, 7)
	if !r.IsPoint() {
		t.Errorf("new region %v is not a point", r)
	}
	r.Extend(3, 9)
	r.Extend(4, 8)
	want := RasterRegion{MinX: 3, MaxX: 5, MinY: 7, MaxY: 9}
	if *r != want {
		t.Errorf("region = %v, want %v", r, &want)
	}
	if r.IsPoint() {
		t.Error("extended region reports IsPoint")
	}
}
