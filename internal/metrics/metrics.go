// Package metrics collects and exposes Prometheus metrics for the relay.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/P-eter-shi/compow/internal/presence"
)

// Collector records relay activity. The presence gauges read the registry
// directly at scrape time instead of being updated on every transition.
type Collector struct {
	connectionsOpened prometheus.Counter
	connectionsClosed prometheus.Counter
	joins             prometheus.Counter
	dispatched        *prometheus.CounterVec
	deliveries        *prometheus.CounterVec
	presenceChanges   *prometheus.CounterVec
	dispatchErrors    prometheus.Counter
}

// NewCollector registers the relay metrics with reg. The registry parameter
// backs the connected-users and total-connections gauges.
func NewCollector(reg prometheus.Registerer, registry *presence.Registry) *Collector {
	c := &Collector{
		connectionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "compow_connections_opened_total",
			Help: "WebSocket connections accepted",
		}),
		connectionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "compow_connections_closed_total",
			Help: "WebSocket connections closed",
		}),
		joins: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "compow_joins_total",
			Help: "join_room events handled",
		}),
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "compow_events_dispatched_total",
			Help: "Dispatch requests by event kind",
		}, []string{"kind"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "compow_deliveries_total",
			Help: "Per-recipient delivery outcomes",
		}, []string{"status"}),
		presenceChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "compow_presence_broadcasts_total",
			Help: "user_status_changed broadcasts by status",
		}, []string{"status"}),
		dispatchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "compow_dispatch_errors_total",
			Help: "Requests rejected as malformed",
		}),
	}

	connectedUsers := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "compow_connected_users",
		Help: "Users with at least one device online",
	}, func() float64 { return float64(registry.UserCount()) })
	totalConnections := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "compow_total_connections",
		Help: "Devices currently bound to a user",
	}, func() float64 { return float64(registry.ConnectionCount()) })

	reg.MustRegister(
		c.connectionsOpened,
		c.connectionsClosed,
		c.joins,
		c.dispatched,
		c.deliveries,
		c.presenceChanges,
		c.dispatchErrors,
		connectedUsers,
		totalConnections,
	)

	return c
}

func (c *Collector) RecordConnectionOpened() {
	c.connectionsOpened.Inc()
}

func (c *Collector) RecordConnectionClosed() {
	c.connectionsClosed.Inc()
}

func (c *Collector) RecordJoin() {
	c.joins.Inc()
}

func (c *Collector) RecordDispatch(kind string) {
	c.dispatched.WithLabelValues(kind).Inc()
}

func (c *Collector) RecordDelivery(status string) {
	c.deliveries.WithLabelValues(status).Inc()
}

func (c *Collector) RecordPresenceBroadcast(status string) {
	c.presenceChanges.WithLabelValues(status).Inc()
}

func (c *Collector) RecordDispatchError() {
	c.dispatchErrors.Inc()
}

// Handler exposes the gatherer for the /metrics endpoint.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
