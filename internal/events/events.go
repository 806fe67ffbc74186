package events

import (
	"time"

	"github.com/speedhud/gohud/internal/domain"
)

// DisplayUpdatedEvent fires whenever a new HUD snapshot is published.
type DisplayUpdatedEvent struct {
	State     *domain.DisplayState
	Timestamp time.Time
}

// LookupTriggeredEvent fires when the throttler decides a fix warrants
// external lookups. Seq identifies the lookup round.
type LookupTriggeredEvent struct {
	Seq       uint64
	Fix       domain.Fix
	First     bool // first fix fires unconditionally
	DistanceM float64
	Elapsed   time.Duration
	Timestamp time.Time
}

// LookupCompletedEvent fires when one lookup round finished (all three
// calls returned or failed). Stale reports whether the round lost the race
// to a newer anchor and was discarded.
type LookupCompletedEvent struct {
	Seq       uint64
	Stale     bool
	Timestamp time.Time
}

// TripStartedEvent fires when the recorder opens a new trip.
type TripStartedEvent struct {
	Trip      *domain.Trip
	Timestamp time.Time
}

// TripEndedEvent fires when the recorder closes a trip.
type TripEndedEvent struct {
	Trip      *domain.Trip
	Timestamp time.Time
}

// PowerChangedEvent fires when the charging state flips.
type PowerChangedEvent struct {
	Status    domain.PowerStatus
	Timestamp time.Time
}
