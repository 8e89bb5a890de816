// metrics.go
// -----------
// Prometheus instrumentation for the dispatch layer, registered on the
// default registry. Label cardinality is kept small: provider name and
// outcome (success or error kind).
package relaykit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	dispatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relaykit_dispatches_total",
		Help: "Dispatches completed, by provider and outcome.",
	}, []string{"provider", "outcome"})

	retriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relaykit_retries_total",
		Help: "Retry attempts performed after transport failures.",
	})

	rateLimitWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "relaykit_rate_limit_wait_seconds",
		Help:    "Time dispatches spent blocked on the local rate limiter.",
		Buckets: prometheus.DefBuckets,
	})

	dispatchDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "relaykit_dispatch_duration_seconds",
		Help:    "End-to-end dispatch duration, by provider.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})
)
