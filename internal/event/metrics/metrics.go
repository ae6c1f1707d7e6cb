package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks audit-trail activity.
type Metrics struct {
	EventsRecorded *prometheus.CounterVec
	Resends        prometheus.Counter
}

// New creates and registers the event metrics.
func New() *Metrics {
	return &Metrics{
		EventsRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "namereg_events_recorded_total",
			Help: "Audit events recorded, by action",
		}, []string{"action"}),
		Resends: promauto.NewCounter(prometheus.CounterOpts{
			Name: "namereg_event_resends_total",
			Help: "Notification events resent by staff",
		}),
	}
}

// IncRecorded counts one recorded event.
func (m *Metrics) IncRecorded(action string) {
	if m == nil {
		return
	}
	m.EventsRecorded.WithLabelValues(action).Inc()
}

// IncResend counts one notification resend.
func (m *Metrics) IncResend() {
	if m == nil {
		return
	}
	m.Resends.Inc()
}
