package simulate

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/speedhud/gohud/internal/domain"
	"github.com/speedhud/gohud/internal/sources"
	"github.com/speedhud/gohud/internal/stream"
	"github.com/speedhud/gohud/pkg/config"
	"github.com/speedhud/gohud/pkg/geomath"
)

var log = logrus.WithField("component", "simulate")

func init() {
	sources.Register("simulate", func(cfg *config.Config) (stream.FixStream, error) {
		return New(cfg.Source.IntervalMs), nil
	})
}

const (
	accelMs2 = 2.5
	brakeMs2 = 3.5
)

// Stream fakes a city drive: it accelerates and brakes around a wandering
// heading and stops at the occasional red light. Useful on a desk, where
// there is no GPS and no car.
type Stream struct {
	handlers *stream.HandlerList
	interval time.Duration

	cancel    context.CancelFunc
	closeOnce sync.Once

	rng       *rand.Rand
	lat, lon  float64
	heading   float64
	speed     float64
	tick      int
	stopTicks int
}

func New(intervalMs int) *Stream {
	if intervalMs <= 0 {
		intervalMs = 1000
	}
	return &Stream{
		handlers: stream.NewHandlerList(),
		interval: time.Duration(intervalMs) * time.Millisecond,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		lat:      48.1371,
		lon:      11.5754,
		heading:  90,
	}
}

func (s *Stream) OnFix(handler stream.FixHandler) {
	s.handlers.Add(handler)
}

func (s *Stream) Connect(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	log.Infof("simulated drive started, fix every %s", s.interval)
	go s.loop(runCtx)
	return nil
}

func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
	return nil
}

func (s *Stream) loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			fix := s.step(now, s.interval.Seconds())
			s.handlers.Emit(ctx, fix)
		}
	}
}

// step advances the simulated car by dt seconds and returns its fix.
func (s *Stream) step(now time.Time, dt float64) domain.Fix {
	if s.stopTicks > 0 {
		s.stopTicks--
		s.speed = math.Max(0, s.speed-brakeMs2*dt)
	} else if s.rng.Float64() < 0.02 {
		// red light
		s.stopTicks = 5 + s.rng.Intn(10)
	} else {
		// city pace, drifting between ~2 and ~14 m/s
		target := 8 + 6*math.Sin(float64(s.tick)/25)
		if s.speed < target {
			s.speed = math.Min(target, s.speed+accelMs2*dt)
		} else {
			s.speed = math.Max(target, s.speed-brakeMs2*dt)
		}
		s.heading += (s.rng.Float64() - 0.5) * 4
	}

	s.lat, s.lon = geomath.DestinationPoint(s.lat, s.lon, s.heading, s.speed*dt)
	s.tick++

	// chipset-style jitter; at a standstill this can dip below zero
	reported := s.speed + s.rng.NormFloat64()*0.2
	return domain.Fix{
		Lat:      s.lat,
		Lon:      s.lon,
		Speed:    reported,
		Accuracy: 3 + s.rng.Float64()*5,
		Time:     now,
	}
}
