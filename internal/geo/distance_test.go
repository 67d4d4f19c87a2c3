package geo

import (
	"math"
	"testing"
)

func TestHaversineKm_ZeroDistance(t *testing.T) {
	d := HaversineKm(52.52, 13.405, 52.52, 13.405)
	if d < 0 || d > 1e-9 {
		t.Fatalf("zero distance expected ~0, got %v", d)
	}
}

func TestHaversineKm_Symmetric(t *testing.T) {
	points := [][2]float64{
		{52.52, 13.405},    // Berlin
		{52.2297, 21.0122}, // Warsaw
		{51.5074, -0.1278}, // London
		{41.0082, 28.9784}, // Istanbul
		{-33.8688, 151.2093},
	}
	for i, a := range points {
		for j, b := range points {
			ab := HaversineKm(a[0], a[1], b[0], b[1])
			ba := HaversineKm(b[0], b[1], a[0], a[1])
			if math.Abs(ab-ba) > 1e-9 {
				t.Fatalf("distance(%d,%d)=%v != distance(%d,%d)=%v", i, j, ab, j, i, ba)
			}
		}
	}
}

func TestHaversineKm_KnownDistance(t *testing.T) {
	// Berlin to Warsaw is roughly 517 km.
	d := HaversineKm(52.52, 13.405, 52.2297, 21.0122)
	if d < 510 || d > 525 {
		t.Fatalf("Berlin-Warsaw = %v km, want ~517", d)
	}
	// One degree of latitude along a meridian.
	one := HaversineKm(0, 0, 1, 0)
	want := EarthRadiusKm * math.Pi / 180
	if math.Abs(one-want) > 1e-6 {
		t.Fatalf("one degree = %v, want %v", one, want)
	}
}

