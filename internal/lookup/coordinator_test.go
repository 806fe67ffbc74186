package lookup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/speedhud/gohud/internal/domain"
	"github.com/speedhud/gohud/internal/events"
	"github.com/speedhud/gohud/internal/hudstate"
	"github.com/speedhud/gohud/pkg/geosdk/meteo"
	"github.com/speedhud/gohud/pkg/geosdk/nominatim"
	"github.com/speedhud/gohud/pkg/geosdk/overpass"
)

type fakeLimits struct {
	mu    sync.Mutex
	calls int
	limit *overpass.SpeedLimit
	err   error
}

func (f *fakeLimits) SpeedLimit(ctx context.Context, lat, lon float64) (*overpass.SpeedLimit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.limit, f.err
}

func (f *fakeLimits) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeGeocode struct {
	mu    sync.Mutex
	calls int
	info  *nominatim.RoadInfo
	err   error
}

func (f *fakeGeocode) Reverse(ctx context.Context, lat, lon float64) (*nominatim.RoadInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.info, f.err
}

func (f *fakeGeocode) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeWeather struct {
	mu     sync.Mutex
	calls  int
	report *meteo.Report
	err    error
}

func (f *fakeWeather) Current(ctx context.Context, lat, lon float64) (*meteo.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.report, f.err
}

type fixture struct {
	coord   *Coordinator
	state   *hudstate.Holder
	limits  *fakeLimits
	geocode *fakeGeocode
	weather *fakeWeather
	done    chan events.LookupCompletedEvent
	seq     uint64
}

func newFixture(unit domain.Unit) *fixture {
	f := &fixture{
		state: hudstate.New(unit),
		limits: &fakeLimits{
			limit: &overpass.SpeedLimit{Kmh: 50, Road: "Leopoldstraße"},
		},
		geocode: &fakeGeocode{
			info: &nominatim.RoadInfo{Address: nominatim.Address{Road: "Leopoldstraße"}},
		},
		weather: &fakeWeather{
			report: &meteo.Report{TempC: 21.5, HighC: 24, LowC: 12, Code: 2},
		},
		done: make(chan events.LookupCompletedEvent, 4),
		seq:  1,
	}
	f.coord = New(Options{
		Limits:     f.limits,
		Geocode:    f.geocode,
		Weather:    f.weather,
		State:      f.state,
		CurrentSeq: func() uint64 { return f.seq },
		OnDone:     func(ev events.LookupCompletedEvent) { f.done <- ev },
		Timeout:    3 * time.Second,
	})
	return f
}

func (f *fixture) waitDone(t *testing.T) events.LookupCompletedEvent {
	t.Helper()
	select {
	case ev := <-f.done:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("lookup did not settle in time")
		return events.LookupCompletedEvent{}
	}
}

func TestTriggerAppliesAllValues(t *testing.T) {
	f := newFixture(domain.UnitKmh)

	f.coord.Trigger(context.Background(), 1, domain.Fix{Lat: 48.1371, Lon: 11.5754, Time: time.Now()})
	if ev := f.waitDone(t); ev.Stale {
		t.Fatal("result should not be stale")
	}

	st := f.state.Load()
	if st.SpeedLimit == nil || *st.SpeedLimit != 50 {
		t.Errorf("SpeedLimit = %v, want 50", st.SpeedLimit)
	}
	if st.Road == nil || *st.Road != "Leopoldstraße" {
		t.Errorf("Road = %v, want Leopoldstraße", st.Road)
	}
	if st.Weather == nil {
		t.Fatal("Weather should be set")
	}
	if st.Weather.Temperature != 21.5 {
		t.Errorf("Temperature = %v, want 21.5", st.Weather.Temperature)
	}
	if st.Weather.Label != "partly cloudy" {
		t.Errorf("Label = %q, want partly cloudy", st.Weather.Label)
	}
}

func TestTriggerConvertsForImperial(t *testing.T) {
	f := newFixture(domain.UnitMph)

	f.coord.Trigger(context.Background(), 1, domain.Fix{Lat: 48.1371, Lon: 11.5754, Time: time.Now()})
	f.waitDone(t)

	st := f.state.Load()
	if st.SpeedLimit == nil || *st.SpeedLimit != 31 {
		t.Errorf("SpeedLimit = %v, want 31 (50 km/h in mph)", st.SpeedLimit)
	}
	if st.Weather == nil || st.Weather.Temperature != 70.7 {
		t.Errorf("Temperature = %v, want 70.7 °F", st.Weather)
	}
}

func TestStaleResultDiscarded(t *testing.T) {
	f := newFixture(domain.UnitKmh)
	f.seq = 7 // a newer trigger already advanced the anchor

	f.coord.Trigger(context.Background(), 1, domain.Fix{Lat: 48.1371, Lon: 11.5754, Time: time.Now()})
	ev := f.waitDone(t)

	if !ev.Stale {
		t.Fatal("result should be reported stale")
	}
	st := f.state.Load()
	if st.SpeedLimit != nil || st.Road != nil || st.Weather != nil {
		t.Errorf("stale result must not touch the display state, got %+v", st)
	}
}

func TestLateApplyCannotRegressNewerResult(t *testing.T) {
	f := newFixture(domain.UnitKmh)

	// the newer trigger settles first
	f.seq = 2
	f.coord.Trigger(context.Background(), 2, domain.Fix{Lat: 48.1371, Lon: 11.5754, Time: time.Now()})
	f.waitDone(t)
	st := f.state.Load()
	if st.SpeedLimit == nil || *st.SpeedLimit != 50 {
		t.Fatalf("SpeedLimit = %v, want 50 from seq 2", st.SpeedLimit)
	}

	// a slow seq 1 result that slipped past run's pre-check lands afterwards
	staleKmh := 120.0
	staleRoad := "A9"
	if f.coord.apply(1, result{limitKmh: &staleKmh, road: &staleRoad}) {
		t.Fatal("older sequence applied over a newer result")
	}

	st = f.state.Load()
	if st.SpeedLimit == nil || *st.SpeedLimit != 50 {
		t.Errorf("SpeedLimit = %v, want seq 2's 50 kept", st.SpeedLimit)
	}
	if st.Road == nil || *st.Road != "Leopoldstraße" {
		t.Errorf("Road = %v, want seq 2's road kept", st.Road)
	}

	// equal or newer sequences still go through
	if !f.coord.apply(2, result{limitKmh: &staleKmh}) {
		t.Error("re-apply at the current sequence should not be dropped")
	}
}

func TestFailedLookupClearsValues(t *testing.T) {
	f := newFixture(domain.UnitKmh)

	f.coord.Trigger(context.Background(), 1, domain.Fix{Lat: 48.1371, Lon: 11.5754, Time: time.Now()})
	f.waitDone(t)
	if st := f.state.Load(); st.SpeedLimit == nil {
		t.Fatal("first lookup should have set a limit")
	}

	f.limits.err = errors.New("overpass 504")
	f.geocode.err = errors.New("nominatim timeout")
	f.weather.err = errors.New("connection refused")
	f.limits.limit = nil
	f.geocode.info = nil
	f.weather.report = nil

	// far enough away that every per-cell cache misses
	f.seq = 2
	f.coord.Trigger(context.Background(), 2, domain.Fix{Lat: 52.5200, Lon: 13.4050, Time: time.Now()})
	f.waitDone(t)

	st := f.state.Load()
	if st.SpeedLimit != nil {
		t.Errorf("SpeedLimit should be cleared after a failed lookup, got %v", *st.SpeedLimit)
	}
	if st.Road != nil {
		t.Errorf("Road should be cleared, got %v", *st.Road)
	}
	if st.Weather != nil {
		t.Errorf("Weather should be cleared, got %+v", st.Weather)
	}
}

func TestNearbyTriggerServedFromCache(t *testing.T) {
	f := newFixture(domain.UnitKmh)

	f.coord.Trigger(context.Background(), 1, domain.Fix{Lat: 48.13710, Lon: 11.57540, Time: time.Now()})
	f.waitDone(t)

	// ~20 m away, same road cell and same weather cell
	f.seq = 2
	f.coord.Trigger(context.Background(), 2, domain.Fix{Lat: 48.13719, Lon: 11.57536, Time: time.Now()})
	f.waitDone(t)

	if got := f.geocode.callCount(); got != 1 {
		t.Errorf("geocode calls = %d, want 1 (second trigger cached)", got)
	}

	st := f.state.Load()
	if st.Road == nil || *st.Road != "Leopoldstraße" {
		t.Errorf("cached road should still be applied, got %v", st.Road)
	}
}

func TestRerenderConvertsWithoutNewCalls(t *testing.T) {
	f := newFixture(domain.UnitKmh)

	f.coord.Trigger(context.Background(), 1, domain.Fix{Lat: 48.1371, Lon: 11.5754, Time: time.Now()})
	f.waitDone(t)

	limitCalls := f.limits.callCount()
	geocodeCalls := f.geocode.callCount()

	f.coord.Rerender(domain.UnitMph)

	st := f.state.Load()
	if st.SpeedLimit == nil || *st.SpeedLimit != 31 {
		t.Errorf("SpeedLimit after rerender = %v, want 31", st.SpeedLimit)
	}
	if st.Weather == nil || st.Weather.Temperature != 70.7 {
		t.Errorf("Temperature after rerender = %v, want 70.7", st.Weather)
	}
	if f.limits.callCount() != limitCalls || f.geocode.callCount() != geocodeCalls {
		t.Error("rerender must not call any client")
	}
}
