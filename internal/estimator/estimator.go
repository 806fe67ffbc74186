package estimator

import (
	"sync"

	"github.com/speedhud/gohud/internal/domain"
)

// Estimator keeps a bounded FIFO window of the most recent clamped speed
// samples and derives the smoothed display speed from it. All reported
// speeds are meters/second; display values are rounded integers in the
// active unit.
//
// The fix pipeline owns Update, but the unit can be toggled from the
// control plane at any time, so the window sits behind a mutex.
type Estimator struct {
	mu      sync.Mutex
	window  int
	samples []float64
	unit    domain.Unit
	display int
}

// New creates an estimator with the given window size (samples) and unit.
func New(window int, unit domain.Unit) *Estimator {
	if window <= 0 {
		window = 5
	}
	return &Estimator{
		window:  window,
		samples: make([]float64, 0, window+1),
		unit:    unit,
	}
}

// Update consumes one fix: clamp negative speed to 0, push, evict the
// oldest sample past the window, recompute. Returns the new display speed.
// The first sample averages over itself, so there is no empty-mean case.
func (e *Estimator) Update(fix domain.Fix) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.samples = append(e.samples, fix.ClampedSpeed())
	if len(e.samples) > e.window {
		e.samples = e.samples[1:]
	}
	e.display = e.unit.DisplaySpeed(e.meanLocked())
	return e.display
}

// SetUnit switches the display unit and recomputes immediately from the
// buffered samples; no new fix is needed.
func (e *Estimator) SetUnit(unit domain.Unit) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.unit = unit
	e.display = e.unit.DisplaySpeed(e.meanLocked())
	return e.display
}

// Unit reports the active display unit.
func (e *Estimator) Unit() domain.Unit {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.unit
}

// DisplaySpeed reports the last computed display speed.
func (e *Estimator) DisplaySpeed() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.display
}

// MeanMetersPerSecond reports the raw smoothed speed.
func (e *Estimator) MeanMetersPerSecond() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.meanLocked()
}

// SampleCount reports how many samples the window currently holds.
func (e *Estimator) SampleCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.samples)
}

// Reset drops all samples, e.g. when the source feed restarts.
func (e *Estimator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.samples = e.samples[:0]
	e.display = 0
}

func (e *Estimator) meanLocked() float64 {
	if len(e.samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range e.samples {
		sum += s
	}
	return sum / float64(len(e.samples))
}
