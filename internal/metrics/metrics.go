package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the dispatch collectors. A nil *Metrics is valid and
// records nothing, which keeps tests free of registry setup.
type Metrics struct {
	AlertOutcomes       *prometheus.CounterVec
	Escalations         prometheus.Counter
	Reschedules         *prometheus.CounterVec
	NotificationsFailed *prometheus.CounterVec
	StoreErrors         *prometheus.CounterVec
	SweepDuration       prometheus.Histogram
}

func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		AlertOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_alert_outcomes_total",
			Help: "Alerts processed by the assignment engine, by outcome",
		}, []string{"outcome"}),
		Escalations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_escalations_total",
			Help: "Incidents flagged as SLA breached",
		}),
		Reschedules: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_reschedules_total",
			Help: "Schedules moved off unavailable technicians, by result",
		}, []string{"result"}),
		NotificationsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_notifications_failed_total",
			Help: "Notifications the sink failed to deliver, by type",
		}, []string{"type"}),
		StoreErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_store_errors_total",
			Help: "Store failures surfaced to callers, by operation",
		}, []string{"op"}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dispatch_sweep_duration_seconds",
			Help:    "Wall time of one escalation sweep",
			Buckets: prometheus.DefBuckets,
		}),
	}

	for _, c := range []prometheus.Collector{
		m.AlertOutcomes, m.Escalations, m.Reschedules, m.NotificationsFailed, m.StoreErrors, m.SweepDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) AlertOutcome(outcome string) {
	if m == nil {
		return
	}
	m.AlertOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Escalated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Escalations.Add(float64(n))
}

func (m *Metrics) Rescheduled(result string) {
	if m == nil {
		return
	}
	m.Reschedules.WithLabelValues(result).Inc()
}

func (m *Metrics) NotificationFailed(kind string) {
	if m == nil {
		return
	}
	m.NotificationsFailed.WithLabelValues(kind).Inc()
}

func (m *Metrics) StoreError(op string) {
	if m == nil {
		return
	}
	m.StoreErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) ObserveSweep(d time.Duration) {
	if m == nil {
		return
	}
	m.SweepDuration.Observe(d.Seconds())
}
