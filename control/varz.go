// control/varz.go
// Author: momentics <momentics@gmail.com>
//
// Process-wide varz registry backed by prometheus/client_golang. Replaces
// the bespoke sliding-window QPS counter of the original runtime with a
// real metrics client, registered once per process.

package control

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes the small set of gauges/counters the reactor, accept
// server, and pipeline executor update during a run.
type Metrics struct {
	Registry *prometheus.Registry

	ReadyQueueDepth   *prometheus.GaugeVec
	ActiveConnections prometheus.Gauge
	RequestsTotal     prometheus.Counter
	ParseErrorsTotal  prometheus.Counter
	RecordsProcessed  prometheus.Counter
	RecordsDropped    prometheus.Counter
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics builds an independent registry and its metric set, suitable
// for one Server/Pipeline instance. Tests that need isolation from the
// process-wide default should use this instead of DefaultMetrics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		ReadyQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "fiberflow",
			Name:      "ready_queue_depth",
			Help:      "Number of fibers currently runnable per reactor.",
		}, []string{"reactor"}),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fiberflow",
			Name:      "active_connections",
			Help:      "Connections currently owned by the accept server.",
		}),
		RequestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fiberflow",
			Name:      "requests_total",
			Help:      "Lifetime count of wire-protocol requests handled.",
		}),
		ParseErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fiberflow",
			Name:      "parse_errors_total",
			Help:      "Lifetime count of pipeline input parse errors.",
		}),
		RecordsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fiberflow",
			Name:      "records_processed_total",
			Help:      "Lifetime count of records handed to a do-function.",
		}),
		RecordsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fiberflow",
			Name:      "records_dropped_total",
			Help:      "Lifetime count of records discarded past map_limit.",
		}),
	}
	reg.MustRegister(m.ReadyQueueDepth, m.ActiveConnections, m.RequestsTotal,
		m.ParseErrorsTotal, m.RecordsProcessed, m.RecordsDropped)
	return m
}

// DefaultMetrics returns a process-wide Metrics instance, created once.
func DefaultMetrics() *Metrics {
	defaultOnce.Do(func() { defaultMetrics = NewMetrics() })
	return defaultMetrics
}
