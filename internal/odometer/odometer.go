package odometer

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/speedhud/gohud/internal/domain"
	"github.com/speedhud/gohud/pkg/geomath"
	"github.com/speedhud/gohud/pkg/persistence"
)

var log = logrus.WithField("component", "odometer")

const (
	// hops above this are GPS teleports, not driving
	maxJumpM = 500.0

	// persist after this much new travel instead of on every fix
	flushEveryM = 250.0
)

type state struct {
	TotalM    float64   `json:"total_m"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Odometer accumulates lifetime driven distance across restarts.
type Odometer struct {
	mu         sync.Mutex
	store      persistence.Store
	st         state
	hasFix     bool
	lastLat    float64
	lastLon    float64
	sinceFlush float64
}

// New loads the persisted total. A missing file starts the odometer at zero.
func New(store persistence.Store) (*Odometer, error) {
	o := &Odometer{store: store}
	if store != nil {
		if err := store.Load(&o.st); err != nil && err != persistence.ErrNotExists {
			return nil, err
		}
	}
	if o.st.TotalM > 0 {
		log.Infof("odometer loaded: %.1f km", o.st.TotalM/1000)
	}
	return o, nil
}

// Advance adds the distance from the previous fix and returns the new total
// in meters. The first fix after start only sets the reference position.
func (o *Odometer) Advance(fix domain.Fix) float64 {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.hasFix {
		o.hasFix = true
		o.lastLat, o.lastLon = fix.Lat, fix.Lon
		return o.st.TotalM
	}

	d := geomath.DistanceMeters(o.lastLat, o.lastLon, fix.Lat, fix.Lon)
	o.lastLat, o.lastLon = fix.Lat, fix.Lon

	if d > maxJumpM {
		log.Debugf("ignoring %.0f m jump between fixes", d)
		return o.st.TotalM
	}

	o.st.TotalM += d
	o.st.UpdatedAt = fix.Time
	o.sinceFlush += d
	if o.sinceFlush >= flushEveryM {
		o.sinceFlush = 0
		if err := o.saveLocked(); err != nil {
			log.Warnf("odometer save failed: %v", err)
		}
	}
	return o.st.TotalM
}

// TotalMeters returns the lifetime total.
func (o *Odometer) TotalMeters() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.st.TotalM
}

// Flush persists the current total immediately.
func (o *Odometer) Flush() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.saveLocked()
}

func (o *Odometer) saveLocked() error {
	if o.store == nil {
		return nil
	}
	return o.store.Save(o.st)
}
