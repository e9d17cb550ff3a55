package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics records checkout attempt outcomes and step latency.
type CheckoutMetrics struct {
	stepDuration *prometheus.HistogramVec
	outcomes     *prometheus.CounterVec
	divergence   prometheus.Counter
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	stepDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkout_step_duration_seconds",
		Help:    "Duration of checkout state transitions in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"step"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_outcomes_total",
		Help: "Checkout runs by terminal outcome.",
	}, []string{"outcome", "kind"})
	divergence := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "checkout_price_divergence_total",
		Help: "Checkouts where the client breakdown disagreed with the server total.",
	})
	reg.MustRegister(stepDuration, outcomes, divergence)
	return &CheckoutMetrics{
		stepDuration: stepDuration,
		outcomes:     outcomes,
		divergence:   divergence,
	}
}

// ObserveStep records how long the named step took.
func (m *CheckoutMetrics) ObserveStep(step string, d time.Duration) {
	if m == nil || m.stepDuration == nil {
		return
	}
	m.stepDuration.WithLabelValues(normalizeLabel(step)).Observe(d.Seconds())
}

// IncOutcome counts a checkout run ending in outcome; kind is the failure kind, if any.
func (m *CheckoutMetrics) IncOutcome(outcome, kind string) {
	if m == nil || m.outcomes == nil {
		return
	}
	if kind == "" {
		kind = "none"
	}
	m.outcomes.WithLabelValues(normalizeLabel(outcome), kind).Inc()
}

// IncPriceDivergence counts a mismatch between client and server totals.
func (m *CheckoutMetrics) IncPriceDivergence() {
	if m == nil || m.divergence == nil {
		return
	}
	m.divergence.Inc()
}
