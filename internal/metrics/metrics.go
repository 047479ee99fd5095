// Package metrics exposes the service's Prometheus instruments behind a small
// interface so components can be tested without a registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics interface {
	// RosterOperation counts one roster/lifecycle operation by outcome code.
	RosterOperation(op, outcome string)
	ObserveTx(op string, elapsed time.Duration)
	// StatWriteFailures counts best-effort stat updates that were dropped.
	StatWriteFailures(n int)
	ObserveRequest(method, route string, status int, elapsed time.Duration)
	WebsocketConnected()
	WebsocketDisconnected()
}

func NewMetrics(registry *prometheus.Registry) Metrics {
	return setupPrometheusMetrics(registry)
}

type noop struct{}

func (noop) RosterOperation(op, outcome string) {}
func (noop) ObserveTx(op string, elapsed time.Duration) {}
func (noop) StatWriteFailures(n int) {}
func (noop) ObserveRequest(method, route string, status int, elapsed time.Duration) {}
func (noop) WebsocketConnected() {}
func (noop) WebsocketDisconnected() {}

// Noop returns a Metrics that records nothing.
func Noop() Metrics {
	return noop{}
}
