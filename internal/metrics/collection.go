package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type prometheusMetrics struct {
	rosterOperations  *prometheus.CounterVec
	txElapsed         *prometheus.HistogramVec
	statWriteFailures prometheus.Counter
	requestElapsed    *prometheus.HistogramVec
	websocketClients  prometheus.Gauge
}

func setupPrometheusMetrics(registry *prometheus.Registry) prometheusMetrics {
	factory := promauto.With(registry)

	return prometheusMetrics{
		rosterOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pallavolo_roster_operations_total",
				Help: "Roster and lifecycle operations by outcome",
			}, []string{"operation", "outcome"}),
		txElapsed: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pallavolo_store_tx_duration_ms",
				Help:    "Store transaction latency in milliseconds",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			}, []string{"operation"}),
		statWriteFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "pallavolo_stat_write_failures_total",
				Help: "Best-effort user stat writes that failed after a match closed",
			}),
		requestElapsed: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pallavolo_http_request_duration_ms",
				Help:    "HTTP request latency in milliseconds",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			}, []string{"method", "route", "status"}),
		websocketClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pallavolo_websocket_clients",
				Help: "Open match change-feed connections",
			}),
	}
}

func (m prometheusMetrics) RosterOperation(op, outcome string) {
	m.rosterOperations.With(prometheus.Labels{"operation": op, "outcome": outcome}).Inc()
}

func (m prometheusMetrics) ObserveTx(op string, elapsed time.Duration) {
	m.txElapsed.With(prometheus.Labels{"operation": op}).Observe(float64(elapsed.Milliseconds()))
}

func (m prometheusMetrics) StatWriteFailures(n int) {
	m.statWriteFailures.Add(float64(n))
}

func (m prometheusMetrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	m.requestElapsed.With(prometheus.Labels{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	}).Observe(float64(elapsed.Milliseconds()))
}

func (m prometheusMetrics) WebsocketConnected()    { m.websocketClients.Inc() }
func (m prometheusMetrics) WebsocketDisconnected() { m.websocketClients.Dec() }
