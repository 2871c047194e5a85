package presence

import "github.com/prometheus/client_golang/prometheus"

var onlineUsersGauge = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: "petlink",
	Subsystem: "presence",
	Name:      "online_users",
})

var transitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "petlink",
	Subsystem: "presence",
	Name:      "transitions_total",
}, []string{"direction"})

// Collectors returns the package metrics for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{onlineUsersGauge, transitionsTotal}
}
