package all

// Imports every built-in source so their init() registrations run. Binaries
// import this one package instead of tracking each source individually.

import (
	_ "github.com/speedhud/gohud/internal/sources/mqttfeed"
	_ "github.com/speedhud/gohud/internal/sources/replay"
	_ "github.com/speedhud/gohud/internal/sources/serialgps"
	_ "github.com/speedhud/gohud/internal/sources/simulate"
)
