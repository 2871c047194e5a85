package operations

import "github.com/prometheus/client_golang/prometheus"

var startedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "petlink",
	Subsystem: "operations",
	Name:      "started_total",
}, []string{"kind"})

var finishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "petlink",
	Subsystem: "operations",
	Name:      "consumed_total",
	Help:      "Terminal results handed out by poll.",
}, []string{"kind", "status"})

var evictedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "petlink",
	Subsystem: "operations",
	Name:      "evicted_total",
	Help:      "Finished handles dropped by the retention sweep before anyone polled them.",
}, []string{"kind"})

var inflightGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "petlink",
	Subsystem: "operations",
	Name:      "tracked",
}, []string{"kind"})

// Collectors returns the package metrics for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{startedTotal, finishedTotal, evictedTotal, inflightGauge}
}
