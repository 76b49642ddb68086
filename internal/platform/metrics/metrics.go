package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the audit subsystem.
type Metrics struct {
	EventsRecorded         *prometheus.CounterVec
	AlertsTriggered        prometheus.Counter
	AlertsSuppressed       prometheus.Counter
	EventsArchived         prometheus.Counter
	ExportsGenerated       prometheus.Counter
	IntegrityViolations    prometheus.Counter
	NotificationsPublished prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		EventsRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bitacora_events_recorded_total",
			Help: "Total number of audit events recorded, by severity",
		}, []string{"severity"}),
		AlertsTriggered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bitacora_alerts_triggered_total",
			Help: "Total number of alert rule activations",
		}),
		AlertsSuppressed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bitacora_alerts_suppressed_total",
			Help: "Total number of alert triggers discarded by the suppression window",
		}),
		EventsArchived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bitacora_events_archived_total",
			Help: "Total number of events transitioned to archived state",
		}),
		ExportsGenerated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bitacora_exports_generated_total",
			Help: "Total number of export artifacts produced",
		}),
		IntegrityViolations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bitacora_integrity_violations_total",
			Help: "Total number of digest mismatches detected on read or sweep",
		}),
		NotificationsPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bitacora_notifications_published_total",
			Help: "Total number of notifications handed to the dispatch transport",
		}),
	}
}

// IncEventsRecorded increments the recorded counter for one severity.
func (m *Metrics) IncEventsRecorded(severity string) {
	m.EventsRecorded.WithLabelValues(severity).Inc()
}

// AddEventsArchived adds the archived count from one archival pass.
func (m *Metrics) AddEventsArchived(count int) {
	m.EventsArchived.Add(float64(count))
}
