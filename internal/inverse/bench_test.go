package inverse

import (
	"testing"

	"github.com/pspoerri/pixelgeo/internal/coord"
)

// --- Build benchmarks ---

func BenchmarkTiePointInitialize(b *testing.B) {
	r := tiePointGrid(b, 71, 200, merisLon, merisLat)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		inv := NewTiePointInverse(Options{})
		if err := inv.Initialize(r, false, nil); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkGeoIndexInitialize(b *testing.B) {
	r := swath(b, 500, 500, 8, 47)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		inv := NewPixelGeoIndexInverse(Options{})
		if err := inv.Initialize(r, false, nil); err != nil {
			b.Fatal(err)
		}
	}
}

// --- Query benchmarks ---

func benchmarkPixelPos(b *testing.B, inv InverseCoding, queries []coord.GeoPos) {
	b.Helper()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		inv.PixelPos(queries[i%len(queries)])
	}
}

func pixelQueries(r *GeoRaster) []coord.GeoPos {
	var q []coord.GeoPos
	for y := 0; y < r.RasterHeight; y += 7 {
		for x := 0; x < r.RasterWidth; x += 11 {
			q = append(q, r.At(x, y))
		}
	}
	return q
}

func BenchmarkTiePointPixelPos(b *testing.B) {
	r := tiePointGrid(b, 71, 200, merisLon, merisLat)
	inv := NewTiePointInverse(Options{})
	if err := inv.Initialize(r, false, nil); err != nil {
		b.Fatal(err)
	}
	benchmarkPixelPos(b, inv, pixelQueries(r))
}

func BenchmarkQuadTreePixelPos(b *testing.B) {
	r := swath(b, 500, 500, 8, 47)
	inv := NewPixelQuadTreeInverse(Options{})
	if err := inv.Initialize(r, false, nil); err != nil {
		b.Fatal(err)
	}
	benchmarkPixelPos(b, inv, pixelQueries(r))
}

func BenchmarkQuadTreePixelPosFractional(b *testing.B) {
	r := swath(b, 500, 500, 8, 47)
	inv := NewPixelQuadTreeInverse(Options{Fractional: true})
	if err := inv.Initialize(r, false, nil); err != nil {
		b.Fatal(err)
	}
	benchmarkPixelPos(b, inv, pixelQueries(r))
}

func BenchmarkGeoIndexPixelPos(b *testing.B) {
	r := swath(b, 500, 500, 8, 47)
	inv := NewPixelGeoIndexInverse(Options{})
	if err := inv.Initialize(r, false, nil); err != nil {
		b.Fatal(err)
	}
	benchmarkPixelPos(b, inv, pixelQueries(r))
}
