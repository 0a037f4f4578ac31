package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels completed analyses.
	OutcomeSuccess = "success"
	// OutcomeError labels failed analyses.
	OutcomeError = "error"
	// OutcomeCached labels analyses served from the memoization cache.
	OutcomeCached = "cached"
)

var (
	analysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tierlens",
			Name:      "analyses_total",
			Help:      "Total number of analysis runs handled, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	analysisDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "tierlens",
			Name:      "analysis_seconds",
			Help:      "Analysis run latency in seconds.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)

	correlationsFound = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tierlens",
			Name:      "correlations_found_total",
			Help:      "Total significant correlations reported across runs.",
		},
	)

	bottlenecksDetected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tierlens",
			Name:      "bottlenecks_detected_total",
			Help:      "Total bottleneck records emitted across runs.",
		},
	)
)

// Register attaches tierlens collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		analysesTotal,
		analysisDurationSeconds,
		correlationsFound,
		bottlenecksDetected,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveAnalysis records an analysis duration and outcome label.
func ObserveAnalysis(duration time.Duration, outcome string) {
	switch outcome {
	case OutcomeError, OutcomeCached:
	default:
		outcome = OutcomeSuccess
	}
	analysesTotal.WithLabelValues(outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	analysisDurationSeconds.Observe(duration.Seconds())
}

// ObserveFindings records the correlation and bottleneck counts of a run.
func ObserveFindings(correlations, bottlenecks int) {
	if correlations > 0 {
		correlationsFound.Add(float64(correlations))
	}
	if bottlenecks > 0 {
		bottlenecksDetected.Add(float64(bottlenecks))
	}
}
