package simulate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/speedhud/gohud/internal/domain"
	"github.com/speedhud/gohud/internal/stream"
	"github.com/speedhud/gohud/pkg/geomath"
)

func TestStepMovesTheCar(t *testing.T) {
	s := New(1000)
	startLat, startLon := s.lat, s.lon

	now := time.Now()
	for i := 0; i < 30; i++ {
		fix := s.step(now.Add(time.Duration(i)*time.Second), 1.0)
		if fix.Accuracy < 3 || fix.Accuracy > 8 {
			t.Fatalf("Accuracy = %v, want within [3, 8]", fix.Accuracy)
		}
	}

	moved := geomath.DistanceMeters(startLat, startLon, s.lat, s.lon)
	if moved < 10 {
		t.Errorf("car barely moved after 30 s: %.1f m", moved)
	}
	if s.speed < 0 {
		t.Errorf("internal speed went negative: %v", s.speed)
	}
}

func TestStepSpeedStaysInCityRange(t *testing.T) {
	s := New(1000)
	now := time.Now()
	for i := 0; i < 300; i++ {
		s.step(now.Add(time.Duration(i)*time.Second), 1.0)
		if s.speed < 0 || s.speed > 15 {
			t.Fatalf("speed %v out of city range at tick %d", s.speed, i)
		}
	}
}

func TestConnectEmitsAndCloseStops(t *testing.T) {
	s := New(20)

	var mu sync.Mutex
	var got []domain.Fix
	s.OnFix(stream.FixHandlerFunc(func(ctx context.Context, fix domain.Fix) error {
		mu.Lock()
		got = append(got, fix)
		mu.Unlock()
		return nil
	}))

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	time.Sleep(120 * time.Millisecond)
	s.Close()

	mu.Lock()
	n := len(got)
	mu.Unlock()
	if n < 2 {
		t.Fatalf("want at least 2 fixes after 120 ms at 20 ms interval, got %d", n)
	}

	time.Sleep(60 * time.Millisecond)
	mu.Lock()
	after := len(got)
	mu.Unlock()
	if after-n > 1 {
		t.Errorf("stream kept emitting after Close: %d extra fixes", after-n)
	}
}
