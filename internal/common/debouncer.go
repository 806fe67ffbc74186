package common

import (
	"sync"
	"time"
)

// Debouncer gates a repeating action on a minimum interval since the last
// Mark. The power monitor uses one to keep a loose charger cable from
// flapping the tracking gate.
type Debouncer struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{interval: interval}
}

// Interval returns the configured minimum gap.
func (d *Debouncer) Interval() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.interval
}

// Ready reports whether the action may run at now, and how long it has been
// since the last Mark. It never mutates state; pair it with Mark.
func (d *Debouncer) Ready(now time.Time) (ready bool, since time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.interval <= 0 {
		return true, 0
	}
	if d.last.IsZero() {
		return true, d.interval
	}
	since = now.Sub(d.last)
	return since >= d.interval, since
}

// Mark records that the action ran at now.
func (d *Debouncer) Mark(now time.Time) {
	d.mu.Lock()
	d.last = now
	d.mu.Unlock()
}

// MarkNow records the current time.
func (d *Debouncer) MarkNow() { d.Mark(time.Now()) }

// Reset forgets the last action; the next Ready returns true.
func (d *Debouncer) Reset() {
	d.mu.Lock()
	d.last = time.Time{}
	d.mu.Unlock()
}
