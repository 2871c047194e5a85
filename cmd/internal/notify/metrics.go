package notify

import "github.com/prometheus/client_golang/prometheus"

var deliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "petlink",
	Subsystem: "notify",
	Name:      "deliveries_total",
}, []string{"event", "result"})

var skippedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "petlink",
	Subsystem: "notify",
	Name:      "skipped_total",
	Help:      "Events dropped because the target user had no session.",
}, []string{"event"})

// Collectors returns the package metrics for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{deliveriesTotal, skippedTotal}
}
