package claim

import "expvar"

var (
	metricClaimsTotal     = expvar.NewInt("claims_total")
	metricClaimsAccepted  = expvar.NewInt("claims_accepted_total")
	metricClaimsRejected  = expvar.NewInt("claims_rejected_total")
	metricClaimsRaceLost  = expvar.NewInt("claims_race_lost_total")
	metricClaimsTampered  = expvar.NewInt("claims_tamper_suspected_total")
	metricClaimsFallback  = expvar.NewInt("claims_fallback_total")
	metricClaimsUnresolve = expvar.NewInt("claims_unresolved_total")
	metricSettleFailures  = expvar.NewInt("claims_settle_failures_total")
)
