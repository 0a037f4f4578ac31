package scoring

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/tierlens/tierlens/internal/models"
)

// ErrMissingThreshold marks a metric referenced by a snapshot that has no
// configured threshold. This is a configuration defect and is surfaced rather
// than silently defaulted.
var ErrMissingThreshold = errors.New("no threshold configured")

// ErrBadSample marks a non-finite value reaching a scoring or statistical
// pass. The affected series fails loudly; other services keep analyzing.
var ErrBadSample = errors.New("non-finite sample value")

// Config tunes the scorer and anomaly detector. Zero values are replaced by
// the documented defaults.
type Config struct {
	// DegradedCutoff is the score below which a service counts as degraded.
	DegradedCutoff float64
	// CriticalCutoff is the score below which a service counts as critical.
	CriticalCutoff float64
	// OutlierSigma is the z-score beyond which a sample is a statistical outlier.
	OutlierSigma float64
	// SustainedMin is the minimum duration a threshold must be breached
	// continuously before the sustained-window pass fires.
	SustainedMin time.Duration
	// RateMetrics lists the metric names treated as ratio metrics by the
	// rate-based anomaly pass.
	RateMetrics []string
}

func (c Config) withDefaults() Config {
	if c.DegradedCutoff == 0 {
		c.DegradedCutoff = 70
	}
	if c.CriticalCutoff == 0 {
		c.CriticalCutoff = 40
	}
	if c.OutlierSigma == 0 {
		c.OutlierSigma = 3
	}
	if c.SustainedMin == 0 {
		c.SustainedMin = 10 * time.Minute
	}
	return c
}

// Scorer maps metric series against thresholds into 0-100 health scores.
type Scorer struct {
	cfg    Config
	logger *slog.Logger
}

// NewScorer constructs a Scorer.
func NewScorer(cfg Config, logger *slog.Logger) *Scorer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{cfg: cfg.withDefaults(), logger: logger}
}

// ScoreValue applies the piecewise threshold rule to a single value.
func ScoreValue(value, threshold float64) float64 {
	switch {
	case value <= threshold:
		return 100
	case value <= 1.5*threshold:
		return 70
	case value <= 2*threshold:
		return 40
	default:
		return 20
	}
}

// Score evaluates one series against its threshold using the latest
// observation. An empty series yields no score; that case belongs to the
// service-level no-data state, not to a defaulted number.
func (s *Scorer) Score(series models.MetricSeries, threshold float64) (float64, error) {
	latest, ok := series.Latest()
	if !ok {
		return 0, fmt.Errorf("series %s/%s is empty", series.Service, series.Metric)
	}
	if threshold <= 0 {
		return 0, fmt.Errorf("metric %s: %w", series.Metric, ErrMissingThreshold)
	}
	if !isFinite(latest.Value) {
		return 0, fmt.Errorf("series %s/%s: %w", series.Service, series.Metric, ErrBadSample)
	}
	return ScoreValue(latest.Value, threshold), nil
}

// ErrNoScorableSeries marks a snapshot whose thresholded metrics carry no
// observations at all.
var ErrNoScorableSeries = errors.New("no scorable series")

// ScoreService computes per-metric scores for every thresholded metric with
// data and combines them into the service score. The threshold map is the
// scored-metric catalogue: series without a threshold entry take part only in
// correlation, not scoring. The service score is the mean of the per-metric
// scores; the same cutoffs drive the qualitative state here and in the
// bottleneck inferencer.
func (s *Scorer) ScoreService(snap models.ServiceSnapshot) (map[string]float64, float64, error) {
	scores := make(map[string]float64)
	for _, metric := range sortedMetricNames(snap.Thresholds) {
		series, ok := snap.SeriesFor(metric)
		if !ok || series.Empty() {
			continue
		}
		threshold := snap.Thresholds[metric]
		if threshold <= 0 {
			return nil, 0, fmt.Errorf("service %s metric %s: %w", snap.Name, metric, ErrMissingThreshold)
		}
		score, err := s.Score(series, threshold)
		if err != nil {
			return nil, 0, err
		}
		scores[metric] = score
	}
	if len(scores) == 0 {
		return nil, 0, fmt.Errorf("service %s: %w", snap.Name, ErrNoScorableSeries)
	}

	total := 0.0
	for _, score := range scores {
		total += score
	}
	return scores, total / float64(len(scores)), nil
}

// StateFor maps a computed score to its qualitative health state.
func (s *Scorer) StateFor(score float64) models.HealthState {
	switch {
	case score < s.cfg.CriticalCutoff:
		return models.StateCritical
	case score < s.cfg.DegradedCutoff:
		return models.StateDegraded
	default:
		return models.StateHealthy
	}
}

// severityForValue grades a breaching value with the same multipliers the
// score table uses.
func severityForValue(value, threshold float64) models.Severity {
	switch {
	case value > 2*threshold:
		return models.SeverityCritical
	case value > 1.5*threshold:
		return models.SeverityHigh
	default:
		return models.SeverityMedium
	}
}

func escalate(sev models.Severity) models.Severity {
	switch sev {
	case models.SeverityMedium:
		return models.SeverityHigh
	default:
		return models.SeverityCritical
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func sortedMetricNames(thresholds map[string]float64) []string {
	names := make([]string, 0, len(thresholds))
	for name := range thresholds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
