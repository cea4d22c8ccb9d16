package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// RestoreMetrics counts restore activity for the operations dashboard.
type RestoreMetrics struct {
	RestoresTotal   *prometheus.CounterVec
	ItemsTotal      *prometheus.CounterVec
	RestoreDuration *prometheus.HistogramVec
	EventsRecorded  prometheus.Counter
}

// NewRestoreMetrics registers the restore metric set on the given registerer.
func NewRestoreMetrics(reg prometheus.Registerer) *RestoreMetrics {
	m := &RestoreMetrics{
		RestoresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "complyvault",
			Subsystem: "restore",
			Name:      "operations_total",
			Help:      "Restore operations by type and outcome.",
		}, []string{"type", "outcome"}),
		ItemsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "complyvault",
			Subsystem: "restore",
			Name:      "items_total",
			Help:      "Individual session-restore inversions by result.",
		}, []string{"result"}),
		RestoreDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "complyvault",
			Subsystem: "restore",
			Name:      "duration_seconds",
			Help:      "Restore operation duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
		EventsRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "complyvault",
			Subsystem: "audit",
			Name:      "events_recorded_total",
			Help:      "Audit events appended to the change log.",
		}),
	}

	reg.MustRegister(m.RestoresTotal, m.ItemsTotal, m.RestoreDuration, m.EventsRecorded)
	return m
}

// NewNopRestoreMetrics returns an unregistered metric set for tests.
func NewNopRestoreMetrics() *RestoreMetrics {
	return NewRestoreMetrics(prometheus.NewRegistry())
}
