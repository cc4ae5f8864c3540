// Package metrics provides Prometheus metrics for the dashboard engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	TransitionsTotal  *prometheus.CounterVec
	ConflictsTotal    *prometheus.CounterVec
	StoreOpsTotal     *prometheus.CounterVec
	StoreOpDuration   *prometheus.HistogramVec
	ForkRepairsTotal  *prometheus.CounterVec
	AuditEntriesTotal *prometheus.CounterVec
	AuditLagSeconds   prometheus.Histogram

	gatherer prometheus.Gatherer
}

// New registers all metrics with reg.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{gatherer: reg}

	m.TransitionsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboards_transitions_total",
			Help: "Lifecycle operations by event and outcome",
		},
		[]string{"event", "status"},
	)

	m.ConflictsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboards_conflicts_total",
			Help: "Rejected writes by operation and reason (stale token or wrong state)",
		},
		[]string{"operation", "reason"},
	)

	m.StoreOpsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboards_store_operations_total",
			Help: "Item store operations",
		},
		[]string{"operation", "status"},
	)

	m.StoreOpDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dashboards_store_operation_duration_seconds",
			Help:    "Duration of item store operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	m.ForkRepairsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboards_fork_repairs_total",
			Help: "Fork widget copies that needed a repair pass, by outcome",
		},
		[]string{"status"},
	)

	m.AuditEntriesTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboards_audit_entries_total",
			Help: "Audit log entries written by event",
		},
		[]string{"event"},
	)

	m.AuditLagSeconds = f.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dashboards_audit_lag_seconds",
			Help:    "Delay between a change being observed and its audit entry being written",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 30, 120},
		},
	)

	return m
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordTransition records a lifecycle operation outcome
func (m *Metrics) RecordTransition(event string, err error) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(event, status(err)).Inc()
}

// RecordConflict records a rejected write
func (m *Metrics) RecordConflict(operation, reason string) {
	if m == nil {
		return
	}
	m.ConflictsTotal.WithLabelValues(operation, reason).Inc()
}

// RecordStoreOp records an item store operation
func (m *Metrics) RecordStoreOp(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.StoreOpsTotal.WithLabelValues(operation, status(err)).Inc()
	m.StoreOpDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordForkRepair records a fork repair attempt
func (m *Metrics) RecordForkRepair(err error) {
	if m == nil {
		return
	}
	m.ForkRepairsTotal.WithLabelValues(status(err)).Inc()
}

// RecordAuditEntry records a written audit entry and its lag
func (m *Metrics) RecordAuditEntry(event string, lag time.Duration) {
	if m == nil {
		return
	}
	m.AuditEntriesTotal.WithLabelValues(event).Inc()
	m.AuditLagSeconds.Observe(lag.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
