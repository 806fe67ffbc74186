package domain

import "time"

// Trip is one recorded drive, keyed by a uuid.
type Trip struct {
	ID         string     `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"` // nil while the trip is open
	DistanceM  float64    `json:"distance_m"`
	MaxSpeedMs float64    `json:"max_speed_ms"`
	AvgSpeedMs float64    `json:"avg_speed_ms"`
	Points     int        `json:"points"`
}

// IsOpen reports whether the trip is still being recorded.
func (t *Trip) IsOpen() bool {
	return t.EndedAt == nil
}

// Duration is the trip length; open trips are measured up to now.
func (t *Trip) Duration(now time.Time) time.Duration {
	end := now
	if t.EndedAt != nil {
		end = *t.EndedAt
	}
	return end.Sub(t.StartedAt)
}

// TripPoint is one recorded sample inside a trip.
type TripPoint struct {
	TripID  string    `json:"trip_id"`
	Time    time.Time `json:"time"`
	Lat     float64   `json:"lat"`
	Lon     float64   `json:"lon"`
	SpeedMs float64   `json:"speed_ms"`
}
