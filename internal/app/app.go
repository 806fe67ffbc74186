package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/speedhud/gohud/internal/domain"
	"github.com/speedhud/gohud/internal/estimator"
	"github.com/speedhud/gohud/internal/events"
	"github.com/speedhud/gohud/internal/hudstate"
	"github.com/speedhud/gohud/internal/lookup"
	"github.com/speedhud/gohud/internal/metrics"
	"github.com/speedhud/gohud/internal/odometer"
	"github.com/speedhud/gohud/internal/power"
	"github.com/speedhud/gohud/internal/recorder"
	"github.com/speedhud/gohud/internal/sources"
	"github.com/speedhud/gohud/internal/stream"
	"github.com/speedhud/gohud/internal/throttle"
	"github.com/speedhud/gohud/pkg/cellstore"
	"github.com/speedhud/gohud/pkg/config"
	"github.com/speedhud/gohud/pkg/geomath"
	"github.com/speedhud/gohud/pkg/geosdk/meteo"
	"github.com/speedhud/gohud/pkg/geosdk/nominatim"
	"github.com/speedhud/gohud/pkg/geosdk/overpass"
	"github.com/speedhud/gohud/pkg/logger"
	"github.com/speedhud/gohud/pkg/persistence"
	"github.com/speedhud/gohud/pkg/shutdown"

	geohttp "github.com/speedhud/gohud/pkg/geosdk/http"
)

var log = logrus.WithField("component", "app")

// EventSink receives application events (lookup rounds, trips, power flips,
// display snapshots). Sinks run on the emitting goroutine and must not block.
type EventSink func(ev any)

// App wires the whole pipeline together: source, estimator, throttler,
// lookup coordinator, recorder, odometer, power gate and display state.
//
// Fixes flow through onFix serially (the stream emits to handlers one at a
// time), so the pipeline stages need no locking between each other.
type App struct {
	cfg *config.Config

	source    stream.FixStream
	est       *estimator.Estimator
	throttler *throttle.Throttler
	state     *hudstate.Holder
	coord     *lookup.Coordinator // nil when lookups are disabled
	rec       *recorder.Recorder
	odo       *odometer.Odometer
	pm        *power.Monitor
	cells     *cellstore.Store
	sd        *shutdown.Manager

	runCtx    context.Context
	runCancel context.CancelFunc

	// pipeline-goroutine state for the min-distance filter
	hasLast bool
	lastLat float64
	lastLon float64

	sinkMu sync.RWMutex
	sinks  []EventSink
}

// New builds the application from a validated config. Nothing is started
// yet; call Start.
func New(cfg *config.Config) (*App, error) {
	unit, err := domain.ParseUnit(cfg.Estimator.Unit)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:       cfg,
		est:       estimator.New(cfg.Estimator.WindowSize, unit),
		throttler: throttle.New(cfg.Throttle.DistanceM, time.Duration(cfg.Throttle.IntervalS)*time.Second),
		state:     hudstate.New(unit),
		sd:        shutdown.NewManager(),
	}

	persistSvc := persistence.NewJSONFileService(cfg.StateDir)
	a.odo, err = odometer.New(persistSvc.NewStore("state", "odometer", "total"))
	if err != nil {
		return nil, fmt.Errorf("open odometer: %w", err)
	}

	a.rec, err = recorder.Open(cfg.Recorder.DBPath, time.Duration(cfg.Recorder.IdleGapS)*time.Second, recorder.Callbacks{
		OnStart: a.onTripStart,
		OnEnd:   a.onTripEnd,
	})
	if err != nil {
		return nil, fmt.Errorf("open trip recorder: %w", err)
	}

	if cfg.Lookup.Enabled {
		a.buildLookup()
	} else {
		log.Info("external lookups disabled")
	}

	a.pm = power.New(cfg.Power.SupplyPath, time.Duration(cfg.Power.PollS)*time.Second, a.applyPower)

	a.source, err = sources.New(cfg.Source.ID, cfg)
	if err != nil {
		return nil, fmt.Errorf("build source %s: %w", cfg.Source.ID, err)
	}
	a.source.OnFix(stream.FixHandlerFunc(a.onFix))

	// sources that carry their own battery telemetry (a phone over MQTT)
	// replace the sysfs monitor as the power signal
	if pr, ok := a.source.(sources.PowerReporter); ok {
		pr.OnPower(a.applyPower)
	}

	a.state.OnChange(func(st *domain.DisplayState) {
		a.publish(events.DisplayUpdatedEvent{State: st, Timestamp: time.Now()})
	})

	a.sd.OnShutdown(func(ctx context.Context, wg *sync.WaitGroup) {
		if err := a.rec.Close(); err != nil {
			log.Errorf("close recorder: %v", err)
		}
	})
	a.sd.OnShutdown(func(ctx context.Context, wg *sync.WaitGroup) {
		if err := a.odo.Flush(); err != nil {
			log.Errorf("flush odometer: %v", err)
		}
	})
	a.sd.OnShutdown(func(ctx context.Context, wg *sync.WaitGroup) {
		if a.cells != nil {
			if err := a.cells.Close(); err != nil {
				log.Errorf("close limit cache: %v", err)
			}
		}
	})

	return a, nil
}

// buildLookup assembles the geo clients and the coordinator.
func (a *App) buildLookup() {
	cfg := a.cfg
	opt := geohttp.Options{
		Timeout:    time.Duration(cfg.Lookup.TimeoutS) * time.Second,
		RetryCount: 0, // a missed lookup is stale by the time a retry lands
		UserAgent:  cfg.Lookup.UserAgent,
	}

	if cfg.Lookup.CacheDir != "" {
		cells, err := cellstore.Open(cellstore.OpenOptions{Path: cfg.Lookup.CacheDir})
		if err != nil {
			log.Warnf("limit cache unavailable, lookups go uncached: %v", err)
		} else {
			a.cells = cells
		}
	}

	a.coord = lookup.New(lookup.Options{
		Limits:     overpass.NewClient(cfg.Lookup.SpeedLimitURL, cfg.Lookup.SpeedLimitRadiusM, opt),
		Geocode:    nominatim.NewClient(cfg.Lookup.GeocodeURL, opt),
		Weather:    meteo.NewClient(cfg.Lookup.WeatherURL, opt),
		State:      a.state,
		Cells:      a.cells,
		CacheTTL:   time.Duration(cfg.Lookup.CacheTTLMin) * time.Minute,
		Timeout:    opt.Timeout,
		CurrentSeq: a.throttler.Seq,
		OnDone: func(ev events.LookupCompletedEvent) {
			a.publish(ev)
		},
	})
}

// Start connects the source and begins processing. The given context bounds
// the whole run; cancel it or call Stop to wind down.
func (a *App) Start(ctx context.Context) error {
	a.runCtx, a.runCancel = context.WithCancel(ctx)

	if addr := a.cfg.Server.MetricsListen; addr != "" {
		if _, err := metrics.StartAsync(a.runCtx, addr); err != nil {
			log.Errorf("metrics listener failed: %v", err)
		} else {
			log.Infof("metrics on %s (expvar /debug/vars, pprof /debug/pprof)", addr)
		}
	}

	// MQTT sources push their own telemetry, everything else polls sysfs
	if _, selfReporting := a.source.(sources.PowerReporter); !selfReporting {
		a.pm.Start(a.runCtx)
	}

	if err := a.source.Connect(a.runCtx); err != nil {
		return fmt.Errorf("connect source %s: %w", a.cfg.Source.ID, err)
	}

	log.Infof("pipeline up: source=%s unit=%s window=%d throttle=%.0fm/%ds",
		a.cfg.Source.ID, a.est.Unit(), a.cfg.Estimator.WindowSize,
		a.cfg.Throttle.DistanceM, a.cfg.Throttle.IntervalS)
	return nil
}

// Stop winds the application down: intake first, then the stores.
func (a *App) Stop(ctx context.Context) {
	if a.runCancel != nil {
		a.runCancel()
	}
	if err := a.source.Close(); err != nil {
		log.Errorf("close source: %v", err)
	}
	a.pm.Stop()
	a.sd.Shutdown(ctx)
	log.Info("pipeline stopped")
}

// onFix is the single pipeline entry point. Stages run in a fixed order:
// gate, jitter filter, estimator, throttler/lookups, recorder, odometer,
// display snapshot.
func (a *App) onFix(ctx context.Context, fix domain.Fix) error {
	if !fix.IsValid() {
		metrics.FixesDropped.Add(1)
		return nil
	}

	if a.cfg.Power.Enabled && !a.state.Load().Tracking {
		metrics.FixesDropped.Add(1)
		return nil
	}

	if minDist := a.cfg.Source.MinDistanceM; minDist > 0 && a.hasLast {
		if geomath.DistanceMeters(a.lastLat, a.lastLon, fix.Lat, fix.Lon) < minDist {
			metrics.FixesDropped.Add(1)
			return nil
		}
	}
	a.hasLast = true
	a.lastLat, a.lastLon = fix.Lat, fix.Lon

	speed := a.est.Update(fix)
	metrics.FixesProcessed.Add(1)

	if d := a.throttler.Update(fix); d.Fire {
		ev := events.LookupTriggeredEvent{
			Seq:       d.Anchor.Seq,
			Fix:       fix,
			First:     d.First,
			DistanceM: d.DistanceM,
			Elapsed:   d.Elapsed,
			Timestamp: time.Now(),
		}
		a.publish(ev)
		if a.coord != nil {
			a.coord.Trigger(ctx, d.Anchor.Seq, fix)
		}
	}

	if err := a.rec.OnFix(ctx, fix); err != nil {
		log.Errorf("trip recorder: %v", err)
	}
	a.odo.Advance(fix)

	a.state.Apply(func(st *domain.DisplayState) {
		st.Speed = speed
		st.Lat = fix.Lat
		st.Lon = fix.Lon
		st.FixTime = fix.Time
	})
	return nil
}

// SetUnit switches the display unit. The speed readout converts from the
// buffered samples immediately and the lookup values re-render from their
// cached metric originals, so no network round trip is involved.
func (a *App) SetUnit(unit domain.Unit) *domain.DisplayState {
	speed := a.est.SetUnit(unit)
	a.state.Apply(func(st *domain.DisplayState) {
		st.Unit = unit
		st.Speed = speed
	})
	if a.coord != nil {
		a.coord.Rerender(unit)
	}
	log.Infof("unit switched to %s", unit)
	return a.state.Load()
}

// applyPower folds a battery/charging update into the display state and,
// when the power gate is on, opens or closes the tracking gate.
func (a *App) applyPower(status domain.PowerStatus) {
	inCar := !status.Present || status.Charging
	tracking := !a.cfg.Power.Enabled || inCar

	prev := a.state.Load().Tracking
	a.state.Apply(func(st *domain.DisplayState) {
		st.Power = status
		st.InCar = inCar
		st.Tracking = tracking
	})
	a.publish(events.PowerChangedEvent{Status: status, Timestamp: time.Now()})

	if prev == tracking {
		return
	}
	if tracking {
		log.Info("power gate open, tracking resumed")
		// stale window contents and a stale anchor would misrepresent the
		// new drive; start both fresh
		a.est.Reset()
		a.throttler.Reset()
		return
	}
	log.Info("power gate closed, tracking paused")
	if err := a.rec.EndTrip(context.Background()); err != nil {
		log.Errorf("end trip on gate close: %v", err)
	}
}

func (a *App) onTripStart(trip domain.Trip) {
	if a.cfg.LogPerTrip {
		if err := logger.RotateForTrip(trip.StartedAt); err != nil {
			log.Warnf("trip log rotation failed: %v", err)
		}
	}
	log.Infof("trip %s started", trip.ID)
	a.publish(events.TripStartedEvent{Trip: &trip, Timestamp: time.Now()})
}

func (a *App) onTripEnd(trip domain.Trip) {
	log.Infof("trip %s ended: %.1f km in %s", trip.ID, trip.DistanceM/1000, trip.Duration(time.Now()).Round(time.Second))
	a.publish(events.TripEndedEvent{Trip: &trip, Timestamp: time.Now()})
}

// OnEvent registers an event sink.
func (a *App) OnEvent(sink EventSink) {
	a.sinkMu.Lock()
	a.sinks = append(a.sinks, sink)
	a.sinkMu.Unlock()
}

func (a *App) publish(ev any) {
	a.sinkMu.RLock()
	sinks := a.sinks
	a.sinkMu.RUnlock()
	for _, sink := range sinks {
		sink(ev)
	}
}

// State exposes the display state holder for read access and subscriptions.
func (a *App) State() *hudstate.Holder {
	return a.state
}

// Recorder exposes the trip store for the API layer.
func (a *App) Recorder() *recorder.Recorder {
	return a.rec
}

// Odometer exposes the lifetime distance counter.
func (a *App) Odometer() *odometer.Odometer {
	return a.odo
}

// Power reports the last observed power status.
func (a *App) Power() domain.PowerStatus {
	return a.pm.Status()
}

// Config returns the config the app was built with.
func (a *App) Config() *config.Config {
	return a.cfg
}
