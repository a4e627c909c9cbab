package statecache

import "expvar"

var (
	metricHits              = expvar.NewInt("cache_hits_total")
	metricMisses            = expvar.NewInt("cache_misses_total")
	metricLoads             = expvar.NewInt("cache_loads_total")
	metricFlushes           = expvar.NewInt("cache_flushes_total")
	metricFlushFailures     = expvar.NewInt("cache_flush_failures_total")
	metricEvictions         = expvar.NewInt("cache_evictions_total")
	metricPressureEvictions = expvar.NewInt("cache_pressure_evictions_total")
	metricCalls             = expvar.NewInt("cache_numbers_called_total")
)
