package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration tracks HTTP request latency.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "launchpad",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

var JobsEnqueuedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "launchpad",
		Subsystem: "jobs",
		Name:      "enqueued_total",
		Help:      "Total number of reconcile jobs enqueued by reason.",
	},
	[]string{"reason"},
)

var JobsClaimedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "launchpad",
		Subsystem: "jobs",
		Name:      "claimed_total",
		Help:      "Total number of reconcile jobs claimed by workers.",
	},
)

var JobsRequeuedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "launchpad",
		Subsystem: "jobs",
		Name:      "requeued_total",
		Help:      "Total number of reconcile jobs requeued after retryable failures.",
	},
)

var JobsFailedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "launchpad",
		Subsystem: "jobs",
		Name:      "failed_total",
		Help:      "Total number of reconcile jobs terminally failed.",
	},
)

var StaleJobsRequeuedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "launchpad",
		Subsystem: "jobs",
		Name:      "stale_requeued_total",
		Help:      "Total number of running jobs requeued after a lease expiry.",
	},
)

var ReconcilesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "launchpad",
		Subsystem: "reconcile",
		Name:      "total",
		Help:      "Total number of reconciles by outcome.",
	},
	[]string{"outcome"},
)

var ReconcileDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "launchpad",
		Subsystem: "reconcile",
		Name:      "duration_seconds",
		Help:      "Reconcile duration in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 120, 300, 600},
	},
)

// All returns all launchpad-specific metrics for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		JobsEnqueuedTotal,
		JobsClaimedTotal,
		JobsRequeuedTotal,
		JobsFailedTotal,
		StaleJobsRequeuedTotal,
		ReconcilesTotal,
		ReconcileDuration,
	}
}

// NewMetricsRegistry creates a Prometheus registry with Go/process
// collectors, the shared HTTP metric, and any additional collectors.
func NewMetricsRegistry(extra ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequestDuration,
	)
	for _, c := range extra {
		reg.MustRegister(c)
	}
	return reg
}
