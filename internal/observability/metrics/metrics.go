package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the booking engine.
type BookingMetrics struct {
	commitsTotal   *prometheus.CounterVec
	conflictChecks *prometheus.CounterVec
	lockHold       prometheus.Histogram
	transitions    *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		commitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salon",
			Subsystem: "booking",
			Name:      "commits_total",
			Help:      "Booking commit attempts by outcome",
		}, []string{"outcome"}),
		conflictChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salon",
			Subsystem: "booking",
			Name:      "conflict_checks_total",
			Help:      "Conflict detector evaluations by result",
		}, []string{"result"}),
		lockHold: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "salon",
			Subsystem: "booking",
			Name:      "staff_lock_hold_seconds",
			Help:      "Time spent inside the per-staff critical section",
			Buckets:   prometheus.DefBuckets,
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salon",
			Subsystem: "booking",
			Name:      "transitions_total",
			Help:      "Appointment state transitions by target status",
		}, []string{"to", "outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.commitsTotal, m.conflictChecks, m.lockHold, m.transitions)
	return m
}

func (m *BookingMetrics) ObserveCommit(outcome string) {
	if m == nil {
		return
	}
	m.commitsTotal.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveConflictCheck(result string) {
	if m == nil {
		return
	}
	m.conflictChecks.WithLabelValues(result).Inc()
}

func (m *BookingMetrics) ObserveLockHold(seconds float64) {
	if m == nil {
		return
	}
	m.lockHold.Observe(seconds)
}

func (m *BookingMetrics) ObserveTransition(to, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(to, outcome).Inc()
}
