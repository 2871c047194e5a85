package app

import (
	"net/http"

	"petlink/cmd/internal/notify"
	"petlink/cmd/internal/operations"
	"petlink/cmd/internal/presence"
	"petlink/cmd/internal/realtime"
	"petlink/cmd/internal/workpool"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// runtimeCollector reports point-in-time state read on every scrape.
type runtimeCollector struct {
	hub  *realtime.Hub
	pool *pgxpool.Pool

	wsConnections *prometheus.Desc
	dbAcquired    *prometheus.Desc
	dbIdle        *prometheus.Desc
	dbTotal       *prometheus.Desc
}

func newRuntimeCollector(hub *realtime.Hub, pool *pgxpool.Pool) *runtimeCollector {
	return &runtimeCollector{
		hub:  hub,
		pool: pool,
		wsConnections: prometheus.NewDesc(
			"petlink_realtime_connections",
			"Websocket sessions attached to this node",
			nil, nil,
		),
		dbAcquired: prometheus.NewDesc(
			"petlink_db_acquired_conns",
			"Postgres connections currently checked out",
			nil, nil,
		),
		dbIdle: prometheus.NewDesc(
			"petlink_db_idle_conns",
			"Idle Postgres connections",
			nil, nil,
		),
		dbTotal: prometheus.NewDesc(
			"petlink_db_total_conns",
			"Open Postgres connections",
			nil, nil,
		),
	}
}

func (c *runtimeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.wsConnections
	ch <- c.dbAcquired
	ch <- c.dbIdle
	ch <- c.dbTotal
}

func (c *runtimeCollector) Collect(ch chan<- prometheus.Metric) {
	if c.hub != nil {
		ch <- prometheus.MustNewConstMetric(c.wsConnections, prometheus.GaugeValue, float64(c.hub.Len()))
	}
	if c.pool == nil {
		return
	}
	st := c.pool.Stat()
	ch <- prometheus.MustNewConstMetric(c.dbAcquired, prometheus.GaugeValue, float64(st.AcquiredConns()))
	ch <- prometheus.MustNewConstMetric(c.dbIdle, prometheus.GaugeValue, float64(st.IdleConns()))
	ch <- prometheus.MustNewConstMetric(c.dbTotal, prometheus.GaugeValue, float64(st.TotalConns()))
}

// newMetricsRegistry registers every package's collectors on a fresh registry.
func newMetricsRegistry(hub *realtime.Hub, pool *pgxpool.Pool) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()

	cs := []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		newRuntimeCollector(hub, pool),
	}
	cs = append(cs, workpool.Collectors()...)
	cs = append(cs, operations.Collectors()...)
	cs = append(cs, presence.Collectors()...)
	cs = append(cs, notify.Collectors()...)

	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func metricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
