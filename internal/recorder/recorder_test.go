package recorder

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/speedhud/gohud/internal/domain"
	"github.com/speedhud/gohud/pkg/geomath"
)

var t0 = time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)

func openTestRecorder(t *testing.T, idleGap time.Duration) (*Recorder, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trips.db")
	r, err := Open(path, idleGap, Callbacks{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return r, path
}

func driveFixes(start time.Time, stepM float64, gap time.Duration, n int) []domain.Fix {
	fixes := make([]domain.Fix, 0, n)
	lat, lon := 48.1371, 11.5754
	for i := 0; i < n; i++ {
		fixes = append(fixes, domain.Fix{
			Lat:   lat,
			Lon:   lon,
			Speed: 10,
			Time:  start.Add(time.Duration(i) * gap),
		})
		lat, lon = geomath.DestinationPoint(lat, lon, 90, stepM)
	}
	return fixes
}

func TestTripOpensAndAccumulates(t *testing.T) {
	r, _ := openTestRecorder(t, 3*time.Minute)
	defer r.Close()

	ctx := context.Background()
	for _, fix := range driveFixes(t0, 100, 10*time.Second, 3) {
		if err := r.OnFix(ctx, fix); err != nil {
			t.Fatalf("OnFix: %v", err)
		}
	}

	trip := r.CurrentTrip()
	if trip == nil {
		t.Fatal("a trip should be open")
	}
	if !trip.IsOpen() {
		t.Error("current trip should report open")
	}
	if math.Abs(trip.DistanceM-200) > 1 {
		t.Errorf("DistanceM = %.2f, want ~200", trip.DistanceM)
	}
	if trip.Points != 3 {
		t.Errorf("Points = %d, want 3", trip.Points)
	}
	if trip.MaxSpeedMs != 10 {
		t.Errorf("MaxSpeedMs = %v, want 10", trip.MaxSpeedMs)
	}
	// 200 m over 20 s
	if math.Abs(trip.AvgSpeedMs-10) > 0.1 {
		t.Errorf("AvgSpeedMs = %.2f, want ~10", trip.AvgSpeedMs)
	}
}

func TestIdleGapSplitsTrips(t *testing.T) {
	var started, ended []domain.Trip
	path := filepath.Join(t.TempDir(), "trips.db")
	r, err := Open(path, 3*time.Minute, Callbacks{
		OnStart: func(trip domain.Trip) { started = append(started, trip) },
		OnEnd:   func(trip domain.Trip) { ended = append(ended, trip) },
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	ctx := context.Background()
	r.OnFix(ctx, domain.Fix{Lat: 48.1371, Lon: 11.5754, Speed: 10, Time: t0})
	r.OnFix(ctx, domain.Fix{Lat: 48.1372, Lon: 11.5754, Speed: 10, Time: t0.Add(10 * time.Second)})

	// parked for 10 minutes, next fix opens a new trip
	r.OnFix(ctx, domain.Fix{Lat: 48.1373, Lon: 11.5754, Speed: 5, Time: t0.Add(10 * time.Minute)})

	if len(started) != 2 {
		t.Fatalf("started %d trips, want 2", len(started))
	}
	if len(ended) != 1 {
		t.Fatalf("ended %d trips, want 1", len(ended))
	}
	if ended[0].EndedAt == nil || !ended[0].EndedAt.Equal(t0.Add(10*time.Second)) {
		t.Errorf("first trip should end at its last fix, got %v", ended[0].EndedAt)
	}

	trips, err := r.ListTrips(ctx, 10)
	if err != nil {
		t.Fatalf("ListTrips: %v", err)
	}
	if len(trips) != 2 {
		t.Fatalf("ListTrips returned %d trips, want 2", len(trips))
	}
	// newest first
	if trips[0].ID != started[1].ID {
		t.Error("newest trip should be listed first")
	}
}

func TestCloseEndsOpenTrip(t *testing.T) {
	r, path := openTestRecorder(t, 3*time.Minute)

	ctx := context.Background()
	r.OnFix(ctx, domain.Fix{Lat: 48.1371, Lon: 11.5754, Speed: 10, Time: t0})
	r.OnFix(ctx, domain.Fix{Lat: 48.1381, Lon: 11.5754, Speed: 12, Time: t0.Add(30 * time.Second)})
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(path, 3*time.Minute, Callbacks{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	trips, err := reopened.ListTrips(ctx, 10)
	if err != nil {
		t.Fatalf("ListTrips: %v", err)
	}
	if len(trips) != 1 {
		t.Fatalf("want 1 trip, got %d", len(trips))
	}
	if trips[0].IsOpen() {
		t.Error("trip should be closed after Close")
	}
	if trips[0].MaxSpeedMs != 12 {
		t.Errorf("MaxSpeedMs = %v, want 12", trips[0].MaxSpeedMs)
	}
}

func TestRecoverOrphanedTrip(t *testing.T) {
	r, path := openTestRecorder(t, 3*time.Minute)

	ctx := context.Background()
	r.OnFix(ctx, domain.Fix{Lat: 48.1371, Lon: 11.5754, Speed: 10, Time: t0})
	r.OnFix(ctx, domain.Fix{Lat: 48.1372, Lon: 11.5754, Speed: 10, Time: t0.Add(15 * time.Second)})

	// crash: the db handle goes away without EndTrip
	if err := r.db.Close(); err != nil {
		t.Fatalf("db close: %v", err)
	}

	reopened, err := Open(path, 3*time.Minute, Callbacks{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	trips, err := reopened.ListTrips(ctx, 10)
	if err != nil {
		t.Fatalf("ListTrips: %v", err)
	}
	if len(trips) != 1 {
		t.Fatalf("want 1 trip, got %d", len(trips))
	}
	trip := trips[0]
	if trip.IsOpen() {
		t.Fatal("orphaned trip should have been closed on reopen")
	}
	if !trip.EndedAt.Equal(t0.Add(15 * time.Second)) {
		t.Errorf("orphan should close at its last point, got %v", trip.EndedAt)
	}
	if trip.Points != 2 {
		t.Errorf("Points = %d, want 2", trip.Points)
	}
}

func TestTripPointsRoundTrip(t *testing.T) {
	r, _ := openTestRecorder(t, 3*time.Minute)
	defer r.Close()

	ctx := context.Background()
	fixes := driveFixes(t0, 50, 5*time.Second, 4)
	for _, fix := range fixes {
		r.OnFix(ctx, fix)
	}
	trip := r.CurrentTrip()

	points, err := r.TripPoints(ctx, trip.ID, 0)
	if err != nil {
		t.Fatalf("TripPoints: %v", err)
	}
	if len(points) != 4 {
		t.Fatalf("want 4 points, got %d", len(points))
	}
	for i, p := range points {
		if !p.Time.Equal(fixes[i].Time) {
			t.Errorf("point %d time = %v, want %v", i, p.Time, fixes[i].Time)
		}
		if p.SpeedMs != 10 {
			t.Errorf("point %d speed = %v, want 10", i, p.SpeedMs)
		}
	}
}

func TestAvgSpeed(t *testing.T) {
	if got := avgSpeed(300, t0, t0.Add(30*time.Second)); math.Abs(got-10) > 1e-9 {
		t.Errorf("avgSpeed = %v, want 10", got)
	}
	if got := avgSpeed(100, t0, t0); got != 0 {
		t.Errorf("zero-duration avgSpeed = %v, want 0", got)
	}
	if got := avgSpeed(100, t0, t0.Add(-time.Second)); got != 0 {
		t.Errorf("negative-duration avgSpeed = %v, want 0", got)
	}
}
