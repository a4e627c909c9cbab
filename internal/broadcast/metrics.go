package broadcast

import "expvar"

var (
	metricPublished        = expvar.NewInt("broadcast_events_published_total")
	metricDropped          = expvar.NewInt("broadcast_events_dropped_total")
	metricMirrorFailures   = expvar.NewInt("broadcast_mirror_failures_total")
	metricRelayed          = expvar.NewInt("broadcast_events_relayed_total")
	metricWSConnections    = expvar.NewInt("broadcast_ws_connections_total")
	metricWSConnectionsNow = expvar.NewInt("broadcast_ws_connections_active")
	metricSwept            = expvar.NewInt("broadcast_buffers_swept_total")
)
