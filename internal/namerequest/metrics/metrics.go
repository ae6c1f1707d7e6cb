package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks examiner workflow activity.
type Metrics struct {
	QueueClaims   prometheus.Counter
	QueueEmpty    prometheus.Counter
	Decisions     *prometheus.CounterVec
	Transitions   *prometheus.CounterVec
	Notifications *prometheus.CounterVec
	Expired       prometheus.Counter
}

// New creates and registers the name-request metrics.
func New() *Metrics {
	return &Metrics{
		QueueClaims: promauto.NewCounter(prometheus.CounterOpts{
			Name: "namereg_queue_claims_total",
			Help: "Requests claimed from the examiner queue",
		}),
		QueueEmpty: promauto.NewCounter(prometheus.CounterOpts{
			Name: "namereg_queue_empty_total",
			Help: "Queue pulls that found no draft request",
		}),
		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "namereg_decisions_total",
			Help: "Examiner decisions by outcome",
		}, []string{"outcome"}),
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "namereg_state_transitions_total",
			Help: "Request state transitions",
		}, []string{"to"}),
		Notifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "namereg_notifications_published_total",
			Help: "Email notifications published, by option",
		}, []string{"option"}),
		Expired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "namereg_requests_expired_total",
			Help: "Requests expired by the background job",
		}),
	}
}

func (m *Metrics) IncQueueClaim() {
	if m == nil {
		return
	}
	m.QueueClaims.Inc()
}

func (m *Metrics) IncQueueEmpty() {
	if m == nil {
		return
	}
	m.QueueEmpty.Inc()
}

func (m *Metrics) IncDecision(outcome string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncTransition(to string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(to).Inc()
}

func (m *Metrics) IncNotification(option string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(option).Inc()
}

func (m *Metrics) IncExpired() {
	if m == nil {
		return
	}
	m.Expired.Inc()
}
