package lookup

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/speedhud/gohud/internal/domain"
	"github.com/speedhud/gohud/internal/events"
	"github.com/speedhud/gohud/internal/hudstate"
	"github.com/speedhud/gohud/internal/metrics"
	"github.com/speedhud/gohud/pkg/cache"
	"github.com/speedhud/gohud/pkg/cellstore"
	"github.com/speedhud/gohud/pkg/geosdk/meteo"
	"github.com/speedhud/gohud/pkg/geosdk/nominatim"
	"github.com/speedhud/gohud/pkg/geosdk/overpass"
	"github.com/speedhud/gohud/pkg/ratelimit"
)

var log = logrus.WithField("component", "lookup")

// LimitClient resolves the posted speed limit at a coordinate.
type LimitClient interface {
	SpeedLimit(ctx context.Context, lat, lon float64) (*overpass.SpeedLimit, error)
}

// GeocodeClient resolves the road or locality at a coordinate.
type GeocodeClient interface {
	Reverse(ctx context.Context, lat, lon float64) (*nominatim.RoadInfo, error)
}

// WeatherClient resolves current conditions at a coordinate.
type WeatherClient interface {
	Current(ctx context.Context, lat, lon float64) (*meteo.Report, error)
}

const (
	// limit cells are ~110 m, weather cells ~11 km
	limitCellDecimals   = 3
	weatherCellDecimals = 1

	roadCacheTTL    = 30 * time.Minute
	weatherCacheTTL = 15 * time.Minute

	defaultTimeout = 10 * time.Second
)

// cellLimit is the persisted per-cell speed limit entry.
type cellLimit struct {
	Kmh  float64 `json:"kmh"`
	Road string  `json:"road,omitempty"`
}

type Options struct {
	Limits  LimitClient
	Geocode GeocodeClient
	Weather WeatherClient

	State *hudstate.Holder

	// Cells persists speed limits across restarts. Optional.
	Cells    *cellstore.Store
	CacheTTL time.Duration

	Limiter *ratelimit.Manager
	Timeout time.Duration

	// CurrentSeq returns the newest anchor sequence. A lookup whose
	// sequence no longer matches at completion is discarded.
	CurrentSeq func() uint64

	// OnDone is called after each lookup settles (applied or discarded).
	OnDone func(ev events.LookupCompletedEvent)
}

// Coordinator runs the speed limit, reverse geocode and weather lookups for
// a triggered fix and folds the results into the display state.
//
// Lookups are fire and forget: Trigger returns immediately, results land
// whenever they land, and a result that was overtaken by a newer trigger is
// dropped instead of overwriting fresher data.
type Coordinator struct {
	limits  LimitClient
	geocode GeocodeClient
	weather WeatherClient

	state      *hudstate.Holder
	cells      *cellstore.Store
	cacheTTL   time.Duration
	limiter    *ratelimit.Manager
	timeout    time.Duration
	currentSeq func() uint64
	onDone     func(ev events.LookupCompletedEvent)

	roads   *cache.GeoCache[string]
	reports *cache.GeoCache[meteo.Report]

	mu         sync.Mutex
	appliedSeq uint64
	lastKmh    *float64
	lastRoad   *string
	lastWx     *meteo.Report
}

func New(opt Options) *Coordinator {
	timeout := opt.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	limiter := opt.Limiter
	if limiter == nil {
		limiter = ratelimit.NewManager()
	}
	currentSeq := opt.CurrentSeq
	if currentSeq == nil {
		currentSeq = func() uint64 { return 0 }
	}
	return &Coordinator{
		limits:     opt.Limits,
		geocode:    opt.Geocode,
		weather:    opt.Weather,
		state:      opt.State,
		cells:      opt.Cells,
		cacheTTL:   opt.CacheTTL,
		limiter:    limiter,
		timeout:    timeout,
		currentSeq: currentSeq,
		onDone:     opt.OnDone,
		roads:      cache.NewGeoCache[string](roadCacheTTL, limitCellDecimals),
		reports:    cache.NewGeoCache[meteo.Report](weatherCacheTTL, weatherCellDecimals),
	}
}

// result carries whatever the three branches produced. A nil field means
// that datum is unknown for this trigger and clears the display.
type result struct {
	limitKmh *float64
	road     *string
	weather  *meteo.Report
}

// Trigger starts the lookups for fix under the given anchor sequence and
// returns immediately.
func (c *Coordinator) Trigger(ctx context.Context, seq uint64, fix domain.Fix) {
	metrics.LookupsFired.Add(1)
	go c.run(ctx, seq, fix)
}

func (c *Coordinator) run(ctx context.Context, seq uint64, fix domain.Fix) {
	start := time.Now()
	gctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var res result
	g, gctx := errgroup.WithContext(gctx)
	// branches never return an error, one failing must not cancel the rest
	g.Go(func() error {
		res.limitKmh = c.fetchLimit(gctx, fix.Lat, fix.Lon)
		return nil
	})
	g.Go(func() error {
		res.road = c.fetchRoad(gctx, fix.Lat, fix.Lon)
		return nil
	})
	g.Go(func() error {
		res.weather = c.fetchWeather(gctx, fix.Lat, fix.Lon)
		return nil
	})
	_ = g.Wait()

	if cur := c.currentSeq(); cur != seq {
		metrics.LookupsStale.Add(1)
		log.Debugf("lookup seq=%d superseded by seq=%d, dropping result", seq, cur)
		c.done(events.LookupCompletedEvent{Seq: seq, Stale: true, Timestamp: time.Now()})
		return
	}

	if !c.apply(seq, res) {
		metrics.LookupsStale.Add(1)
		log.Debugf("lookup seq=%d lost the apply race to a newer result, dropping", seq)
		c.done(events.LookupCompletedEvent{Seq: seq, Stale: true, Timestamp: time.Now()})
		return
	}
	log.Debugf("lookup seq=%d applied in %s", seq, time.Since(start).Round(time.Millisecond))
	c.done(events.LookupCompletedEvent{Seq: seq, Timestamp: time.Now()})
}

func (c *Coordinator) done(ev events.LookupCompletedEvent) {
	if c.onDone != nil {
		c.onDone(ev)
	}
}

func (c *Coordinator) fetchLimit(ctx context.Context, lat, lon float64) *float64 {
	if c.limits == nil {
		return nil
	}
	cell := cache.CellKey(lat, lon, limitCellDecimals)

	if c.cells != nil {
		var entry cellLimit
		found, err := c.cells.Get(cell, &entry)
		if err != nil {
			log.Warnf("limit cache read failed for cell %s: %v", cell, err)
		} else if found {
			metrics.LookupCacheHits.Add(1)
			return &entry.Kmh
		}
	}

	if err := c.limiter.Wait(ctx, "overpass:interpreter"); err != nil {
		metrics.LookupsFailed.Add(1)
		return nil
	}
	limit, err := c.limits.SpeedLimit(ctx, lat, lon)
	if err != nil {
		metrics.LookupsFailed.Add(1)
		log.Debugf("speed limit lookup failed: %v", err)
		return nil
	}
	if limit == nil {
		// no posted limit mapped here
		return nil
	}

	log.Debugf("speed limit %.0f km/h (%s)", limit.Kmh, limit.Road)
	if c.cells != nil {
		entry := cellLimit{Kmh: limit.Kmh, Road: limit.Road}
		if err := c.cells.Put(cell, entry, c.cacheTTL); err != nil {
			log.Warnf("limit cache write failed for cell %s: %v", cell, err)
		}
	}
	return &limit.Kmh
}

func (c *Coordinator) fetchRoad(ctx context.Context, lat, lon float64) *string {
	if c.geocode == nil {
		return nil
	}
	if name, ok := c.roads.Get(lat, lon); ok {
		metrics.LookupCacheHits.Add(1)
		return &name
	}

	if err := c.limiter.Wait(ctx, "nominatim:reverse"); err != nil {
		metrics.LookupsFailed.Add(1)
		return nil
	}
	info, err := c.geocode.Reverse(ctx, lat, lon)
	if err != nil {
		metrics.LookupsFailed.Add(1)
		log.Debugf("reverse geocode failed: %v", err)
		return nil
	}
	if info == nil {
		return nil
	}

	name := info.Name()
	c.roads.Set(lat, lon, name)
	return &name
}

func (c *Coordinator) fetchWeather(ctx context.Context, lat, lon float64) *meteo.Report {
	if c.weather == nil {
		return nil
	}
	if report, ok := c.reports.Get(lat, lon); ok {
		metrics.LookupCacheHits.Add(1)
		return &report
	}

	if err := c.limiter.Wait(ctx, "meteo:forecast"); err != nil {
		metrics.LookupsFailed.Add(1)
		return nil
	}
	report, err := c.weather.Current(ctx, lat, lon)
	if err != nil {
		metrics.LookupsFailed.Add(1)
		log.Debugf("weather lookup failed: %v", err)
		return nil
	}
	if report == nil {
		return nil
	}

	c.reports.Set(lat, lon, *report)
	return report
}

// apply records the raw results and folds unit-converted values into the
// display state. Nil results clear their fields, so a failed lookup never
// leaves stale data on screen.
//
// The sequence compare and the write happen under one lock. The pre-check
// in run is advisory: a slow lookup can pass it just as a newer trigger
// fires, so the authoritative ordering lives here, where an older sequence
// can never overwrite what a newer one already put on screen.
func (c *Coordinator) apply(seq uint64, res result) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if seq < c.appliedSeq {
		return false
	}
	c.appliedSeq = seq
	c.lastKmh = res.limitKmh
	c.lastRoad = res.road
	c.lastWx = res.weather

	if c.state != nil {
		c.state.Apply(func(st *domain.DisplayState) {
			st.SpeedLimit = displayLimit(st.Unit, res.limitKmh)
			st.Road = res.road
			st.Weather = weatherInfo(st.Unit, res.weather)
		})
	}
	return true
}

// Rerender recomputes the displayed lookup values for a new unit without
// touching the network. Raw values are kept in metric and converted at the
// edge, so a unit toggle is instant.
func (c *Coordinator) Rerender(unit domain.Unit) {
	c.mu.Lock()
	kmh := c.lastKmh
	road := c.lastRoad
	wx := c.lastWx
	c.mu.Unlock()

	if c.state == nil {
		return
	}
	c.state.Apply(func(st *domain.DisplayState) {
		st.SpeedLimit = displayLimit(unit, kmh)
		st.Road = road
		st.Weather = weatherInfo(unit, wx)
	})
}

func displayLimit(unit domain.Unit, kmh *float64) *int {
	if kmh == nil {
		return nil
	}
	v := unit.ConvertFromKmh(*kmh)
	return &v
}

func weatherInfo(unit domain.Unit, report *meteo.Report) *domain.WeatherInfo {
	if report == nil {
		return nil
	}
	return &domain.WeatherInfo{
		Temperature: unit.Temperature(report.TempC),
		High:        unit.Temperature(report.HighC),
		Low:         unit.Temperature(report.LowC),
		Code:        report.Code,
		Label:       meteo.CodeLabel(report.Code),
	}
}
