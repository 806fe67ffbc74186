package hudstate

import (
	"sync"
	"testing"

	"github.com/speedhud/gohud/internal/domain"
)

func TestApplyPublishesWholeSnapshots(t *testing.T) {
	h := New(domain.UnitKmh)

	old := h.Load()
	limit := 50
	h.Apply(func(s *domain.DisplayState) {
		s.Speed = 42
		s.SpeedLimit = &limit
	})

	got := h.Load()
	if got.Speed != 42 || got.SpeedLimit == nil || *got.SpeedLimit != 50 {
		t.Fatalf("snapshot not published: %+v", got)
	}
	// the previously loaded snapshot is untouched
	if old.Speed != 0 || old.SpeedLimit != nil {
		t.Fatalf("published snapshot mutated an old one: %+v", old)
	}
}

func TestOnChangeFiresPerApply(t *testing.T) {
	h := New(domain.UnitKmh)

	var mu sync.Mutex
	var speeds []int
	h.OnChange(func(s *domain.DisplayState) {
		mu.Lock()
		speeds = append(speeds, s.Speed)
		mu.Unlock()
	})

	for i := 1; i <= 3; i++ {
		n := i
		h.Apply(func(s *domain.DisplayState) { s.Speed = n * 10 })
	}

	mu.Lock()
	defer mu.Unlock()
	if len(speeds) != 3 || speeds[0] != 10 || speeds[2] != 30 {
		t.Fatalf("onChange sequence wrong: %v", speeds)
	}
}

func TestConcurrentApplyKeepsAllWrites(t *testing.T) {
	h := New(domain.UnitKmh)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Apply(func(s *domain.DisplayState) { s.Speed++ })
		}()
	}
	wg.Wait()

	if got := h.Load().Speed; got != 50 {
		t.Fatalf("read-modify-write lost updates: got=%d want=50", got)
	}
}
