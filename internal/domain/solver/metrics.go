package solver

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsObserver exports solver events as Prometheus metrics.
type MetricsObserver struct {
	attempts        *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	resolutions     *prometheus.CounterVec
	confidence      prometheus.Histogram
}

// NewMetricsObserver registers the solver metrics on reg.
func NewMetricsObserver(reg prometheus.Registerer) *MetricsObserver {
	factory := promauto.With(reg)
	return &MetricsObserver{
		attempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tutora_solver_attempts_total",
				Help: "Strategy invocations by strategy and result",
			},
			[]string{"strategy", "result"},
		),
		attemptDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tutora_solver_attempt_duration_seconds",
				Help:    "Strategy invocation latency in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"strategy"},
		),
		resolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tutora_solver_resolutions_total",
				Help: "Resolved questions by solution source",
			},
			[]string{"source", "fallback"},
		),
		confidence: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tutora_solver_confidence",
				Help:    "Confidence of returned solutions",
				Buckets: []float64{0, 25, 50, 70, 85, 95, 100},
			},
		),
	}
}

func (m *MetricsObserver) ObserveAttempt(a Attempt) {
	m.attempts.WithLabelValues(a.Strategy, attemptResult(a)).Inc()
	m.attemptDuration.WithLabelValues(a.Strategy).Observe(a.Elapsed.Seconds())
}

func (m *MetricsObserver) ObserveOutcome(o Outcome) {
	m.resolutions.WithLabelValues(string(o.Source), strconv.FormatBool(o.Fallback)).Inc()
	m.confidence.Observe(float64(o.Confidence))
}

// attemptResult is the metric label for an attempt: accepted, canceled or the error kind.
func attemptResult(a Attempt) string {
	switch {
	case a.Accepted:
		return "accepted"
	case a.Canceled:
		return "canceled"
	default:
		return string(a.Kind())
	}
}
