package recorder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/speedhud/gohud/internal/domain"
)

func (r *Recorder) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA foreign_keys=ON;`,
		`
CREATE TABLE IF NOT EXISTS trips (
  id TEXT PRIMARY KEY,
  started_at TEXT NOT NULL,
  ended_at TEXT,
  distance_m REAL NOT NULL DEFAULT 0,
  max_speed_ms REAL NOT NULL DEFAULT 0,
  avg_speed_ms REAL NOT NULL DEFAULT 0,
  points INTEGER NOT NULL DEFAULT 0
);`,
		`CREATE INDEX IF NOT EXISTS idx_trips_started_at ON trips(started_at DESC);`,
		`
CREATE TABLE IF NOT EXISTS trip_points (
  trip_id TEXT NOT NULL REFERENCES trips(id) ON DELETE CASCADE,
  ts TEXT NOT NULL,
  lat REAL NOT NULL,
  lon REAL NOT NULL,
  speed_ms REAL NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_trip_points_trip_ts ON trip_points(trip_id, ts);`,
	}

	for _, q := range stmts {
		if _, err := r.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrate exec failed: %w", err)
		}
	}
	return nil
}

// recoverOrphans finalizes trips left open by a crash, using the last stored
// point as the end time. Aggregate columns are kept current on every point
// write, so only ended_at and the average need fixing up.
func (r *Recorder) recoverOrphans(ctx context.Context) error {
	rows, err := r.db.QueryContext(ctx, `SELECT id, started_at, distance_m FROM trips WHERE ended_at IS NULL`)
	if err != nil {
		return err
	}
	type orphan struct {
		id        string
		startedAt string
		distanceM float64
	}
	var orphans []orphan
	for rows.Next() {
		var o orphan
		if err := rows.Scan(&o.id, &o.startedAt, &o.distanceM); err != nil {
			rows.Close()
			return err
		}
		orphans = append(orphans, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, o := range orphans {
		var lastTs sql.NullString
		if err := r.db.QueryRowContext(ctx,
			`SELECT MAX(ts) FROM trip_points WHERE trip_id=?`, o.id).Scan(&lastTs); err != nil {
			return err
		}
		endRaw := o.startedAt
		if lastTs.Valid {
			endRaw = lastTs.String
		}

		started, _ := time.Parse(time.RFC3339Nano, o.startedAt)
		ended, _ := time.Parse(time.RFC3339Nano, endRaw)
		avg := avgSpeed(o.distanceM, started, ended)

		if _, err := r.db.ExecContext(ctx,
			`UPDATE trips SET ended_at=?, avg_speed_ms=? WHERE id=?`,
			endRaw, avg, o.id); err != nil {
			return err
		}
		log.Warnf("recovered unfinished trip %s, closed at %s", o.id, endRaw)
	}
	return nil
}

func (r *Recorder) insertTrip(ctx context.Context, trip domain.Trip) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO trips (id, started_at) VALUES (?, ?)
`, trip.ID, trip.StartedAt.Format(time.RFC3339Nano))
	return err
}

// writePointLocked stores the point and refreshes the trip's aggregate
// columns in one transaction, so a crash never loses more than the fix in
// flight.
func (r *Recorder) writePointLocked(ctx context.Context, fix domain.Fix) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO trip_points (trip_id, ts, lat, lon, speed_ms) VALUES (?, ?, ?, ?, ?)
`, r.cur.ID, fix.Time.Format(time.RFC3339Nano), fix.Lat, fix.Lon, fix.ClampedSpeed()); err != nil {
		return err
	}

	avg := avgSpeed(r.distanceM, r.cur.StartedAt, fix.Time)
	if _, err := tx.ExecContext(ctx, `
UPDATE trips SET distance_m=?, max_speed_ms=?, avg_speed_ms=?, points=? WHERE id=?
`, r.distanceM, r.maxSpeed, avg, r.points, r.cur.ID); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *Recorder) finishTrip(ctx context.Context, trip domain.Trip) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE trips SET ended_at=?, distance_m=?, max_speed_ms=?, avg_speed_ms=?, points=? WHERE id=?
`, trip.EndedAt.Format(time.RFC3339Nano), trip.DistanceM, trip.MaxSpeedMs, trip.AvgSpeedMs, trip.Points, trip.ID)
	return err
}

// ListTrips returns the most recent trips, newest first.
func (r *Recorder) ListTrips(ctx context.Context, limit int) ([]domain.Trip, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, started_at, ended_at, distance_m, max_speed_ms, avg_speed_ms, points
FROM trips ORDER BY started_at DESC LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Trip
	for rows.Next() {
		trip, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, trip)
	}
	return out, rows.Err()
}

// GetTrip returns one trip, or nil when the id is unknown.
func (r *Recorder) GetTrip(ctx context.Context, id string) (*domain.Trip, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, started_at, ended_at, distance_m, max_speed_ms, avg_speed_ms, points
FROM trips WHERE id=?
`, id)
	trip, err := scanTrip(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &trip, nil
}

// TripPoints returns a trip's points in time order.
func (r *Recorder) TripPoints(ctx context.Context, tripID string, limit int) ([]domain.TripPoint, error) {
	if limit <= 0 || limit > 100000 {
		limit = 10000
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT trip_id, ts, lat, lon, speed_ms
FROM trip_points WHERE trip_id=? ORDER BY ts LIMIT ?
`, tripID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TripPoint
	for rows.Next() {
		var p domain.TripPoint
		var ts string
		if err := rows.Scan(&p.TripID, &ts, &p.Lat, &p.Lon, &p.SpeedMs); err != nil {
			return nil, err
		}
		p.Time, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrip(row rowScanner) (domain.Trip, error) {
	var trip domain.Trip
	var started string
	var ended sql.NullString
	if err := row.Scan(&trip.ID, &started, &ended, &trip.DistanceM, &trip.MaxSpeedMs, &trip.AvgSpeedMs, &trip.Points); err != nil {
		return domain.Trip{}, err
	}
	trip.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	if ended.Valid {
		t, _ := time.Parse(time.RFC3339Nano, ended.String)
		trip.EndedAt = &t
	}
	return trip, nil
}
