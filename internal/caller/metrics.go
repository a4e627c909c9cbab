package caller

import "expvar"

var (
	metricStopsSent    = expvar.NewInt("scheduler_stop_signals_total")
	metricStopFailures = expvar.NewInt("scheduler_stop_failures_total")
)
