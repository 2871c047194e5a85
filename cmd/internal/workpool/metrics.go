package workpool

import "github.com/prometheus/client_golang/prometheus"

var submittedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "petlink",
	Subsystem: "workpool",
	Name:      "submitted_total",
	Help:      "Units of work accepted by the pool.",
}, []string{"pool"})

var callerRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "petlink",
	Subsystem: "workpool",
	Name:      "caller_runs_total",
	Help:      "Units executed on the submitting goroutine because the pool was saturated.",
}, []string{"pool"})

var panicsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "petlink",
	Subsystem: "workpool",
	Name:      "panics_total",
	Help:      "Units that panicked.",
}, []string{"pool"})

var workersGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "petlink",
	Subsystem: "workpool",
	Name:      "workers",
}, []string{"pool"})

var queueDepthGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "petlink",
	Subsystem: "workpool",
	Name:      "queue_depth",
}, []string{"pool"})

// Collectors returns the package metrics for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{submittedTotal, callerRunsTotal, panicsTotal, workersGauge, queueDepthGauge}
}
