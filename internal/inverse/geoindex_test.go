package inverse

import "testing"

func TestGetMultiplicator(t *testing.T) {
	tests := []struct {
		resKm float64
		want  float64
	}{
		{300, 1},
		{30, 1},
		{29.9, 5},
		{10, 5},
		{5, 10},
		{4.99, 25},
		{2, 25},
		{1.2, 50},
		{1, 50},
		{0.3, 100},
	}
	for _, tt := range tests {
		if got := getMultiplicator(tt.resKm); got != tt.want {
			t.Errorf("getMultiplicator(%v) = %v, want %v", tt.resKm, got, tt.want)
		}
	}
}

func TestToIndex(t *testing.T) {
	tests := []struct {
		name     string
		lon, lat float64
		m        float64
		want     int64
	}{
		{"origin 50km", 0, 0, 1, 18000090},
		{"south-west corner 50km", -180, -90, 1, 0},
		{"origin 5km", 0, 0, 10, 180000900},
		{"south-west corner 5km", -180, -90, 10, 0},
		{"mid latitude 5km", 10.5, -45.25, 10, 190500447},
		{"origin 300m", 0, 0, 100, 1800009000},
		{"north-east corner 300m", 179.999, 89.999, 100, 3599917999},
		{"anti-meridian wraps", 180, 0, 1, 90},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := toIndex(tt.lon, tt.lat, tt.m); got != tt.want {
				t.Errorf("toIndex(%v, %v, %v) = %d, want %d", tt.lon, tt.lat, tt.m, got, tt.want)
			}
		})
	}
}

func TestGeoIndexBuckets(t *testing.T) {
	r := swath(t, 60, 40, 8, 47)
	inv := NewPixelGeoIndexInverse(Options{})
	if err := inv.Initialize(r, false, nil); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	st, err := Describe(inv)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if st.Multiplicator != 50 {
		t.Errorf("multiplicator = %v, want 50 for 1.1 km pixels", st.Multiplicator)
	}
	if st.Buckets == 0 || st.Buckets > 60*40 {
		t.Errorf("buckets = %d", st.Buckets)
	}

	// Every pixel lies inside the region of its own bucket.
	for y := 0; y < 40; y++ {
		for x := 0; x < 60; x++ {
			g := inv.GeoPos(x, y)
			region := inv.index[toIndex(g.Lon, g.Lat, inv.multiplicator)]
			if region == nil {
				t.Fatalf("pixel (%d, %d) has no bucket", x, y)
			}
			if x < region.MinX || x > region.MaxX || y < region.MinY || y > region.MaxY {
				t.Fatalf("pixel (%d, %d) outside its region %v", x, y, region)
			}
		}
	}

	inv.Dispose()
	if inv.index != nil {
		t.Error("Dispose kept the index")
	}
}

func TestCandidateKeysIncludeOwnBucket(t *testing.T) {
	r := swath(t, 60, 40, 8, 47)
	inv := NewPixelGeoIndexInverse(Options{})
	if err := inv.Initialize(r, false, nil); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	for _, p := range [][2]int{{0, 0}, {30, 20}, {59, 39}} {
		g := inv.GeoPos(p[0], p[1])
		own := toIndex(g.Lon, g.Lat, inv.multiplicator)
		found := false
		for _, k := range inv.candidateKeys(g) {
			if k == own {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("candidate keys of %v miss own bucket %d", g, own)
		}
	}
}
