package odometer

import (
	"math"
	"testing"
	"time"

	"github.com/speedhud/gohud/internal/domain"
	"github.com/speedhud/gohud/pkg/geomath"
	"github.com/speedhud/gohud/pkg/persistence"
)

func fixChain(start domain.Fix, stepM float64, n int) []domain.Fix {
	fixes := []domain.Fix{start}
	lat, lon := start.Lat, start.Lon
	for i := 1; i <= n; i++ {
		lat, lon = geomath.DestinationPoint(lat, lon, 90, stepM)
		fixes = append(fixes, domain.Fix{
			Lat:  lat,
			Lon:  lon,
			Time: start.Time.Add(time.Duration(i) * time.Second),
		})
	}
	return fixes
}

func TestAdvanceAccumulates(t *testing.T) {
	o, err := New(nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	start := domain.Fix{Lat: 48.1371, Lon: 11.5754, Time: time.Now()}
	for _, fix := range fixChain(start, 100, 3) {
		o.Advance(fix)
	}

	if got := o.TotalMeters(); math.Abs(got-300) > 1 {
		t.Errorf("TotalMeters() = %.2f, want ~300", got)
	}
}

func TestFirstFixOnlySetsReference(t *testing.T) {
	o, _ := New(nil)
	got := o.Advance(domain.Fix{Lat: 48.1371, Lon: 11.5754, Time: time.Now()})
	if got != 0 {
		t.Errorf("first Advance = %.2f, want 0", got)
	}
}

func TestTeleportIgnored(t *testing.T) {
	o, _ := New(nil)
	now := time.Now()

	o.Advance(domain.Fix{Lat: 48.1371, Lon: 11.5754, Time: now})
	// Munich to Berlin in one fix
	o.Advance(domain.Fix{Lat: 52.5200, Lon: 13.4050, Time: now.Add(time.Second)})

	if got := o.TotalMeters(); got != 0 {
		t.Errorf("teleport should not count, TotalMeters() = %.2f", got)
	}

	// travel resumes from the new position
	lat, lon := geomath.DestinationPoint(52.5200, 13.4050, 0, 80)
	o.Advance(domain.Fix{Lat: lat, Lon: lon, Time: now.Add(2 * time.Second)})
	if got := o.TotalMeters(); math.Abs(got-80) > 1 {
		t.Errorf("TotalMeters() after resume = %.2f, want ~80", got)
	}
}

func TestPersistsAcrossRestart(t *testing.T) {
	svc := persistence.NewJSONFileService(t.TempDir())
	store := svc.NewStore("state", "odometer", "total")

	o, err := New(store)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	start := domain.Fix{Lat: 48.1371, Lon: 11.5754, Time: time.Now()}
	for _, fix := range fixChain(start, 100, 5) {
		o.Advance(fix)
	}
	if err := o.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	total := o.TotalMeters()

	reloaded, err := New(store)
	if err != nil {
		t.Fatalf("New after restart: %v", err)
	}
	if got := reloaded.TotalMeters(); math.Abs(got-total) > 0.01 {
		t.Errorf("reloaded total = %.2f, want %.2f", got, total)
	}
}
