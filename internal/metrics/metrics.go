package metrics

import "expvar"

var (
	FixesProcessed  = expvar.NewInt("fixes_processed")
	FixesDropped    = expvar.NewInt("fixes_dropped")
	LookupsFired    = expvar.NewInt("lookups_fired")
	LookupsFailed   = expvar.NewInt("lookups_failed")
	LookupsStale    = expvar.NewInt("lookups_stale")
	LookupCacheHits = expvar.NewInt("lookup_cache_hits")
	TripsStarted    = expvar.NewInt("trips_started")
	PushClients     = expvar.NewInt("push_clients")
)
