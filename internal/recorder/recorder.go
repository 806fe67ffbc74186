package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/speedhud/gohud/internal/domain"
	"github.com/speedhud/gohud/internal/metrics"
	"github.com/speedhud/gohud/pkg/geomath"
)

var log = logrus.WithField("component", "recorder")

// hops above this are GPS glitches and do not add trip distance
const maxJumpM = 500.0

// Callbacks fire on trip boundaries. Both are optional and run on the fix
// pipeline goroutine, so keep them quick.
type Callbacks struct {
	OnStart func(trip domain.Trip)
	OnEnd   func(trip domain.Trip)
}

// Recorder persists trips and their points to SQLite. A trip opens on the
// first fix and closes when fixes stop for longer than the idle gap, when
// EndTrip is called, or on Close.
type Recorder struct {
	db        *sql.DB
	idleGap   time.Duration
	callbacks Callbacks

	mu        sync.Mutex
	cur       *domain.Trip
	lastFix   *domain.Fix
	distanceM float64
	maxSpeed  float64
	points    int
}

// Open opens (creating if needed) the trip database and finalizes any trip
// left open by a crash.
func Open(dbPath string, idleGap time.Duration, callbacks Callbacks) (*Recorder, error) {
	if idleGap <= 0 {
		idleGap = 3 * time.Minute
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	r := &Recorder{db: db, idleGap: idleGap, callbacks: callbacks}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	if err := r.recoverOrphans(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

// Close ends any open trip and closes the database.
func (r *Recorder) Close() error {
	if err := r.EndTrip(context.Background()); err != nil {
		log.Warnf("ending trip on close: %v", err)
	}
	return r.db.Close()
}

// OnFix feeds one fix into the recorder.
func (r *Recorder) OnFix(ctx context.Context, fix domain.Fix) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cur != nil && r.lastFix != nil && fix.Time.Sub(r.lastFix.Time) > r.idleGap {
		if err := r.closeTripLocked(ctx, r.lastFix.Time); err != nil {
			return err
		}
	}

	if r.cur == nil {
		if err := r.startTripLocked(ctx, fix); err != nil {
			return err
		}
	}

	if r.lastFix != nil {
		d := geomath.DistanceMeters(r.lastFix.Lat, r.lastFix.Lon, fix.Lat, fix.Lon)
		if d <= maxJumpM {
			r.distanceM += d
		}
	}
	speed := fix.ClampedSpeed()
	if speed > r.maxSpeed {
		r.maxSpeed = speed
	}
	r.points++
	f := fix
	r.lastFix = &f

	return r.writePointLocked(ctx, fix)
}

// EndTrip closes the open trip, if any.
func (r *Recorder) EndTrip(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cur == nil {
		return nil
	}
	endAt := r.cur.StartedAt
	if r.lastFix != nil {
		endAt = r.lastFix.Time
	}
	return r.closeTripLocked(ctx, endAt)
}

// CurrentTrip returns a snapshot of the open trip with live aggregates, or
// nil when idle.
func (r *Recorder) CurrentTrip() *domain.Trip {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cur == nil {
		return nil
	}
	trip := *r.cur
	trip.DistanceM = r.distanceM
	trip.MaxSpeedMs = r.maxSpeed
	trip.Points = r.points
	if r.lastFix != nil {
		trip.AvgSpeedMs = avgSpeed(r.distanceM, r.cur.StartedAt, r.lastFix.Time)
	}
	return &trip
}

func (r *Recorder) startTripLocked(ctx context.Context, fix domain.Fix) error {
	trip := domain.Trip{
		ID:        uuid.NewString(),
		StartedAt: fix.Time,
	}
	if err := r.insertTrip(ctx, trip); err != nil {
		return err
	}

	r.cur = &trip
	r.lastFix = nil
	r.distanceM = 0
	r.maxSpeed = 0
	r.points = 0

	metrics.TripsStarted.Add(1)
	log.Infof("trip %s started", trip.ID)
	if r.callbacks.OnStart != nil {
		r.callbacks.OnStart(trip)
	}
	return nil
}

func (r *Recorder) closeTripLocked(ctx context.Context, endAt time.Time) error {
	trip := *r.cur
	trip.EndedAt = &endAt
	trip.DistanceM = r.distanceM
	trip.MaxSpeedMs = r.maxSpeed
	trip.AvgSpeedMs = avgSpeed(r.distanceM, trip.StartedAt, endAt)
	trip.Points = r.points

	if err := r.finishTrip(ctx, trip); err != nil {
		return err
	}

	r.cur = nil
	r.lastFix = nil

	log.Infof("trip %s ended: %.1f km, max %.0f km/h",
		trip.ID, trip.DistanceM/1000, trip.MaxSpeedMs*geomath.MetersPerSecondToKmh)
	if r.callbacks.OnEnd != nil {
		r.callbacks.OnEnd(trip)
	}
	return nil
}

// avgSpeed is trip distance over trip duration, zero for degenerate trips.
func avgSpeed(distanceM float64, start, end time.Time) float64 {
	dur := end.Sub(start).Seconds()
	if dur <= 0 {
		return 0
	}
	return distanceM / dur
}
