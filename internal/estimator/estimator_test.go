package estimator

import (
	"math"
	"testing"
	"testing/quick"

	"github.com/speedhud/gohud/internal/domain"
)

func push(e *Estimator, speeds ...float64) int {
	display := 0
	for _, s := range speeds {
		display = e.Update(domain.Fix{Speed: s})
	}
	return display
}

func TestWorkedExample(t *testing.T) {
	// [10, 12, 0, 8, 10] m/s, window 5 -> mean 8 m/s
	e := New(5, domain.UnitKmh)
	if got := push(e, 10, 12, 0, 8, 10); got != 29 {
		t.Fatalf("km/h display got=%d want=29", got)
	}
	if got := e.SetUnit(domain.UnitMph); got != 18 {
		t.Fatalf("mph display got=%d want=18", got)
	}
}

func TestFirstSampleAveragesOverItself(t *testing.T) {
	e := New(5, domain.UnitKmh)
	if got := push(e, 10); got != 36 {
		t.Fatalf("single 10 m/s sample got=%d want=36", got)
	}
	if e.SampleCount() != 1 {
		t.Fatalf("sample count got=%d want=1", e.SampleCount())
	}
}

func TestNegativeSpeedClampedToZero(t *testing.T) {
	e := New(5, domain.UnitKmh)
	if got := push(e, -3.5); got != 0 {
		t.Fatalf("negative speed should clamp to 0, got %d", got)
	}
	if got := push(e, 7.2); got != e.Unit().DisplaySpeed(3.6) {
		// window now holds [0, 7.2], mean 3.6 m/s
		t.Fatalf("mean after clamp got=%d want=%d", got, e.Unit().DisplaySpeed(3.6))
	}
}

func TestFIFOEviction(t *testing.T) {
	e := New(3, domain.UnitKmh)
	push(e, 1, 2, 3)
	if e.SampleCount() != 3 {
		t.Fatalf("window should hold 3 samples, got %d", e.SampleCount())
	}

	// the 4th push evicts the oldest: window becomes [2 3 4], mean 3 m/s
	got := push(e, 4)
	if e.SampleCount() != 3 {
		t.Fatalf("window should stay at 3 samples, got %d", e.SampleCount())
	}
	if got != 11 { // 3 * 3.6 = 10.8
		t.Fatalf("display after eviction got=%d want=11", got)
	}
	if mean := e.MeanMetersPerSecond(); math.Abs(mean-3) > 1e-9 {
		t.Fatalf("mean after eviction got=%g want=3", mean)
	}
}

func TestUnitToggleRecomputesWithoutNewFix(t *testing.T) {
	e := New(5, domain.UnitKmh)
	push(e, 8)
	if e.DisplaySpeed() != 29 {
		t.Fatalf("km/h got=%d want=29", e.DisplaySpeed())
	}

	if got := e.SetUnit(domain.UnitMph); got != 18 {
		t.Fatalf("toggle to mph got=%d want=18", got)
	}
	if e.SampleCount() != 1 {
		t.Fatalf("toggle must not consume a fix, count=%d", e.SampleCount())
	}

	if got := e.SetUnit(domain.UnitKmh); got != 29 {
		t.Fatalf("toggle back to km/h got=%d want=29", got)
	}
}

func TestReset(t *testing.T) {
	e := New(5, domain.UnitKmh)
	push(e, 10, 20)
	e.Reset()
	if e.SampleCount() != 0 || e.DisplaySpeed() != 0 {
		t.Fatalf("reset should clear window and display, count=%d display=%d",
			e.SampleCount(), e.DisplaySpeed())
	}
}

// Display speed always equals round(mean(last min(N,count) samples) * factor).
func TestDisplayMatchesWindowMean(t *testing.T) {
	const window = 5
	f := func(raw []float64) bool {
		e := New(window, domain.UnitMph)
		clamped := make([]float64, 0, len(raw))
		var got int
		for _, v := range raw {
			v = math.Mod(math.Abs(v), 90) // realistic speed range, no NaN/Inf
			got = e.Update(domain.Fix{Speed: v})
			clamped = append(clamped, v)
		}
		if len(clamped) == 0 {
			return e.DisplaySpeed() == 0
		}
		start := 0
		if len(clamped) > window {
			start = len(clamped) - window
		}
		var sum float64
		for _, v := range clamped[start:] {
			sum += v
		}
		mean := sum / float64(len(clamped)-start)
		want := int(math.Round(mean * 2.23694))
		return got == want
	}
	if err := quick.Check(f, nil); err != nil {
		t.Fatal(err)
	}
}
