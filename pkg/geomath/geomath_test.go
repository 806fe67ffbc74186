package geomath

import (
	"math"
	"testing"
	"testing/quick"
)

func TestDistanceMeters(t *testing.T) {
	// one thousandth of a degree of longitude at the equator is ~111.2 m
	d := DistanceMeters(0, 0, 0, 0.001)
	if math.Abs(d-111.2) > 0.2 {
		t.Fatalf("0.001 deg at equator: got=%.2f m want≈111.2 m", d)
	}
}

func TestDistanceMetersZero(t *testing.T) {
	if d := DistanceMeters(48.1371, 11.5754, 48.1371, 11.5754); d != 0 {
		t.Fatalf("identical points should be 0 m apart, got %g", d)
	}
}

func TestDistanceMetersSymmetric(t *testing.T) {
	ab := DistanceMeters(52.5200, 13.4050, 48.1371, 11.5754)
	ba := DistanceMeters(48.1371, 11.5754, 52.5200, 13.4050)
	if math.Abs(ab-ba) > 1e-6 {
		t.Fatalf("distance should be symmetric: ab=%.6f ba=%.6f", ab, ba)
	}
	// Berlin to Munich is roughly 504 km
	if ab < 500000 || ab > 510000 {
		t.Fatalf("Berlin-Munich distance implausible: %.0f m", ab)
	}
}

func TestDistanceMetersNonNegative(t *testing.T) {
	f := func(lat1, lon1, lat2, lon2 float64) bool {
		clamp := func(v, lo, hi float64) float64 {
			return math.Mod(math.Abs(v), hi-lo) + lo
		}
		d := DistanceMeters(clamp(lat1, -90, 90), clamp(lon1, -180, 180),
			clamp(lat2, -90, 90), clamp(lon2, -180, 180))
		return d >= 0 && !math.IsNaN(d)
	}
	if err := quick.Check(f, nil); err != nil {
		t.Fatal(err)
	}
}

func TestDestinationPointRoundTrip(t *testing.T) {
	lat, lon := 48.1371, 11.5754
	for _, bearing := range []float64{0, 45, 90, 180, 270} {
		for _, dist := range []float64{10, 100, 1000} {
			lat2, lon2 := DestinationPoint(lat, lon, bearing, dist)
			back := DistanceMeters(lat, lon, lat2, lon2)
			if math.Abs(back-dist) > dist*0.001+0.01 {
				t.Fatalf("bearing=%g dist=%g: travelled %.3f m", bearing, dist, back)
			}
		}
	}
}

func TestSpeedFactors(t *testing.T) {
	// 8 m/s is the worked example: 28.8 km/h and 17.9 mph before rounding
	if got := 8 * MetersPerSecondToKmh; math.Abs(got-28.8) > 1e-9 {
		t.Fatalf("8 m/s in km/h: got %g", got)
	}
	if got := 8 * MetersPerSecondToMph; math.Abs(got-17.89552) > 1e-9 {
		t.Fatalf("8 m/s in mph: got %g", got)
	}
	if got := 10 * KnotsToMetersPerSecond; math.Abs(got-5.14444) > 1e-9 {
		t.Fatalf("10 knots in m/s: got %g", got)
	}
}
