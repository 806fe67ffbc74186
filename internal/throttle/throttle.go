package throttle

import (
	"sync"
	"time"

	"github.com/speedhud/gohud/internal/domain"
	"github.com/speedhud/gohud/pkg/geomath"
)

// Anchor is the location/time snapshot of the last lookup trigger. Seq
// rises monotonically with each advance; lookup responses tagged with an
// older Seq lose the race and are discarded.
type Anchor struct {
	Lat float64
	Lon float64
	At  time.Time
	Seq uint64
}

// Decision reports whether a fix fired the gate and why.
type Decision struct {
	Fire      bool
	First     bool          // no anchor existed yet; fires unconditionally
	DistanceM float64       // haversine distance from the anchor
	Elapsed   time.Duration // time since the anchor
	Anchor    Anchor        // the anchor after the decision
}

// Throttler gates external lookups on the fix stream: the first fix always
// fires; later fixes fire when the haversine distance from the anchor OR
// the elapsed time crosses its threshold. Either arm alone is enough.
//
// Advancing is tied to the trigger, not to lookup completion, so failed
// lookups still move the anchor and are never retried for the same spot.
type Throttler struct {
	mu        sync.Mutex
	distanceM float64
	interval  time.Duration
	anchor    Anchor
	primed    bool
}

// New creates a throttler with the given thresholds.
func New(distanceM float64, interval time.Duration) *Throttler {
	return &Throttler{distanceM: distanceM, interval: interval}
}

// SetThresholds replaces both thresholds.
func (t *Throttler) SetThresholds(distanceM float64, interval time.Duration) {
	t.mu.Lock()
	t.distanceM = distanceM
	t.interval = interval
	t.mu.Unlock()
}

// Thresholds reports the active thresholds.
func (t *Throttler) Thresholds() (float64, time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.distanceM, t.interval
}

// Update evaluates a fix and, when it fires, advances the anchor in the
// same critical section. This is the call the fix pipeline uses.
func (t *Throttler) Update(fix domain.Fix) Decision {
	t.mu.Lock()
	defer t.mu.Unlock()

	d := t.evaluateLocked(fix)
	if d.Fire {
		t.anchor = Anchor{
			Lat: fix.Lat,
			Lon: fix.Lon,
			At:  fix.Time,
			Seq: t.anchor.Seq + 1,
		}
		t.primed = true
		d.Anchor = t.anchor
	}
	return d
}

// Check evaluates a fix without mutating state.
func (t *Throttler) Check(fix domain.Fix) Decision {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.evaluateLocked(fix)
}

func (t *Throttler) evaluateLocked(fix domain.Fix) Decision {
	if !t.primed {
		return Decision{Fire: true, First: true, Anchor: t.anchor}
	}

	dist := geomath.DistanceMeters(t.anchor.Lat, t.anchor.Lon, fix.Lat, fix.Lon)
	elapsed := fix.Time.Sub(t.anchor.At)
	return Decision{
		Fire:      dist >= t.distanceM || elapsed >= t.interval,
		DistanceM: dist,
		Elapsed:   elapsed,
		Anchor:    t.anchor,
	}
}

// Anchor reports the current anchor. Seq 0 means nothing has fired yet.
func (t *Throttler) Anchor() Anchor {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.anchor
}

// Seq reports the current anchor sequence.
func (t *Throttler) Seq() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.anchor.Seq
}

// Reset drops the anchor; the next fix fires unconditionally again.
// The sequence keeps rising so in-flight lookups from before the reset
// still lose to anything fired after it.
func (t *Throttler) Reset() {
	t.mu.Lock()
	t.primed = false
	t.anchor.Lat = 0
	t.anchor.Lon = 0
	t.anchor.At = time.Time{}
	t.mu.Unlock()
}
