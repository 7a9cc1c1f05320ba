package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teamchat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "teamchat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teamchat_messages_sent_total",
			Help: "Total messages appended",
		},
		[]string{"kind"}, // "public" or "dm"
	)

	DMsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teamchat_dms_resolved_total",
			Help: "Total DM channel resolutions",
		},
		[]string{"outcome"}, // "existing", "created", "recovered"
	)

	BootstrapRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teamchat_bootstrap_runs_total",
			Help: "Total bootstrap initializer runs",
		},
		[]string{"outcome"}, // "seeded", "joined", "noop", "error"
	)

	AssistantStreams = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teamchat_assistant_streams_total",
			Help: "Total assistant streaming turns",
		},
		[]string{"result"}, // "completed", "errored", "cancelled", "rejected"
	)

	AssistantFragments = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "teamchat_assistant_fragments_total",
			Help: "Total streamed fragments forwarded to subscribers",
		},
	)

	NotifyFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "teamchat_notify_failures_total",
			Help: "Broadcast notifications dropped after an error",
		},
	)
)
