package tournament

import "expvar"

var (
	metricEventsRecorded = expvar.NewInt("tournament_events_recorded_total")
	metricEventFailures  = expvar.NewInt("tournament_event_failures_total")
	metricFinalized      = expvar.NewInt("tournament_finalized_total")
	metricPrizesPaid     = expvar.NewInt("tournament_prizes_paid_total")
	metricPrizeFailures  = expvar.NewInt("tournament_prize_failures_total")

	metricDuplicateDeposits = expvar.NewInt("tournament_duplicate_deposits_total")
)
