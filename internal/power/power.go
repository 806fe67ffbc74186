package power

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/speedhud/gohud/internal/common"
	"github.com/speedhud/gohud/internal/domain"
)

var log = logrus.WithField("component", "power")

const minNotifyGap = 5 * time.Second

// Monitor polls a sysfs power supply directory (battery or AC adapter) and
// reports charging state. The HUD treats "charging" as "mounted in the car",
// so transitions here gate the whole fix pipeline.
type Monitor struct {
	supplyPath string
	interval   time.Duration
	onChange   func(status domain.PowerStatus)

	// notifyGap suppresses flapping around loose chargers
	notifyGap *common.Debouncer

	mu           sync.Mutex
	last         domain.PowerStatus
	lastNotified *domain.PowerStatus

	loopOnce sync.Once
	cancel   context.CancelFunc
}

// New creates a monitor for a supply directory such as
// /sys/class/power_supply/BAT0. onChange fires on state transitions.
func New(supplyPath string, interval time.Duration, onChange func(status domain.PowerStatus)) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{
		supplyPath: supplyPath,
		interval:   interval,
		onChange:   onChange,
		notifyGap:  common.NewDebouncer(minNotifyGap),
	}
}

// Start begins polling. Subsequent calls are no-ops.
func (m *Monitor) Start(ctx context.Context) {
	common.StartLoopOnce(ctx, &m.loopOnce, func(c context.CancelFunc) { m.cancel = c },
		m.interval, func(loopCtx context.Context, tickC <-chan time.Time) {
			m.poll(time.Now())
			for {
				select {
				case <-loopCtx.Done():
					return
				case now := <-tickC:
					m.poll(now)
				}
			}
		})
}

func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
}

// Status returns the most recent reading.
func (m *Monitor) Status() domain.PowerStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

func (m *Monitor) poll(now time.Time) {
	status := m.read()

	m.mu.Lock()
	m.last = status
	changed := m.lastNotified == nil || *m.lastNotified != status
	m.mu.Unlock()

	if !changed {
		return
	}
	if ready, _ := m.notifyGap.Ready(now); !ready {
		return
	}
	m.notifyGap.Mark(now)

	m.mu.Lock()
	m.lastNotified = &status
	m.mu.Unlock()

	log.Infof("power: present=%v charging=%v percent=%d",
		status.Present, status.Charging, status.Percent)
	if m.onChange != nil {
		m.onChange(status)
	}
}

// read collects the supply files. Batteries expose status/capacity/present,
// AC adapters expose online.
func (m *Monitor) read() domain.PowerStatus {
	status := domain.PowerStatus{}

	if raw, ok := m.readFile("present"); ok {
		status.Present = strings.TrimSpace(raw) == "1"
	}
	if raw, ok := m.readFile("capacity"); ok {
		if pct, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
			status.Percent = pct
		}
	}
	if raw, ok := m.readFile("status"); ok {
		status.Present = true
		status.Charging = chargingFromStatus(raw)
		return status
	}
	if raw, ok := m.readFile("online"); ok {
		online := strings.TrimSpace(raw) == "1"
		status.Present = true
		status.Charging = online
		return status
	}
	return status
}

func (m *Monitor) readFile(name string) (string, bool) {
	b, err := os.ReadFile(filepath.Join(m.supplyPath, name))
	if err != nil {
		return "", false
	}
	return string(b), true
}

// chargingFromStatus maps the kernel's status strings. "Full" counts as
// charging because the device is still on external power.
func chargingFromStatus(raw string) bool {
	switch strings.TrimSpace(raw) {
	case "Charging", "Full":
		return true
	}
	return false
}
