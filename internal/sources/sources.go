package sources

import (
	"fmt"
	"sort"
	"sync"

	"github.com/speedhud/gohud/internal/domain"
	"github.com/speedhud/gohud/internal/stream"
	"github.com/speedhud/gohud/pkg/config"
)

// Factory builds a fix stream from the resolved config.
type Factory func(cfg *config.Config) (stream.FixStream, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// Register makes a source available under id. Sources call this from their
// init() so importing internal/sources/all is enough to get the full set.
func Register(id string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()

	if _, exists := factories[id]; exists {
		panic(fmt.Errorf("source %s already registered", id))
	}
	factories[id] = factory
}

// New builds the source registered under id.
func New(id string, cfg *config.Config) (stream.FixStream, error) {
	factoriesMu.RLock()
	factory, exists := factories[id]
	factoriesMu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown source %q, registered: %v", id, IDs())
	}
	return factory(cfg)
}

// IDs lists the registered source ids, sorted.
func IDs() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	ids := make([]string, 0, len(factories))
	for id := range factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// PowerReporter is implemented by sources that also carry device power
// telemetry, such as a phone publishing over MQTT alongside its fixes.
type PowerReporter interface {
	OnPower(handler func(status domain.PowerStatus))
}
