package hudstate

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/speedhud/gohud/internal/domain"
)

// Holder keeps the latest HUD snapshot behind an atomic pointer. Writers
// (fix pipeline, lookup workers, power monitor) publish whole copies;
// readers (API handlers, websocket push, TUI) load without locks and can
// never observe a torn snapshot.
//
// Snapshots are immutable once published. Apply copies, mutates the copy,
// swaps it in.
type Holder struct {
	cur atomic.Pointer[domain.DisplayState]

	mu       sync.Mutex // serializes read-modify-write cycles
	onChange []func(*domain.DisplayState)
	changeMu sync.RWMutex
}

// New creates a holder with an initial empty snapshot in the given unit.
func New(unit domain.Unit) *Holder {
	h := &Holder{}
	h.cur.Store(&domain.DisplayState{
		Unit:      unit,
		Tracking:  true,
		InCar:     true,
		UpdatedAt: time.Now(),
	})
	return h
}

// Load returns the current snapshot. Callers must treat it as read-only.
func (h *Holder) Load() *domain.DisplayState {
	return h.cur.Load()
}

// OnChange registers a callback invoked after every published snapshot.
// Callbacks run on the publishing goroutine and must not block.
func (h *Holder) OnChange(fn func(*domain.DisplayState)) {
	h.changeMu.Lock()
	h.onChange = append(h.onChange, fn)
	h.changeMu.Unlock()
}

// Apply copies the current snapshot, lets mutate edit the copy, stamps
// UpdatedAt and publishes it. Returns the published snapshot.
func (h *Holder) Apply(mutate func(s *domain.DisplayState)) *domain.DisplayState {
	h.mu.Lock()
	next := *h.cur.Load()
	mutate(&next)
	next.UpdatedAt = time.Now()
	h.cur.Store(&next)
	h.mu.Unlock()

	h.changeMu.RLock()
	subs := h.onChange
	h.changeMu.RUnlock()
	for _, fn := range subs {
		fn(&next)
	}
	return &next
}
