package httptransport

import "expvar"

var (
	metricJoinErrors       = expvar.NewInt("http_join_errors_total")
	metricClaimRequests    = expvar.NewInt("http_claim_requests_total")
	metricClaimRateLimited = expvar.NewInt("http_claim_rate_limited_total")
)
