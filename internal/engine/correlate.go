package engine

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/tierlens/tierlens/internal/models"
)

// CorrelatorConfig tunes the time alignment and severity gating of the
// correlation engine. Zero values fall back to the documented defaults.
type CorrelatorConfig struct {
	// Tolerance is the as-of join acceptance window.
	Tolerance time.Duration
	// SampleFloor is the minimum matched-pair count below which no
	// correlation is reported.
	SampleFloor int
	// ModerateCutoff and HighCutoff gate |coefficient| into severities.
	ModerateCutoff float64
	HighCutoff     float64
}

func (c CorrelatorConfig) withDefaults() CorrelatorConfig {
	if c.Tolerance == 0 {
		c.Tolerance = 5 * time.Minute
	}
	if c.SampleFloor == 0 {
		c.SampleFloor = 3
	}
	if c.ModerateCutoff == 0 {
		c.ModerateCutoff = 0.5
	}
	if c.HighCutoff == 0 {
		c.HighCutoff = 0.7
	}
	return c
}

// Correlator aligns service-metric series pairs in time and classifies their
// Pearson correlation strength.
type Correlator struct {
	cfg    CorrelatorConfig
	logger *slog.Logger
}

// NewCorrelator constructs a Correlator.
func NewCorrelator(cfg CorrelatorConfig, logger *slog.Logger) *Correlator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Correlator{cfg: cfg.withDefaults(), logger: logger}
}

// Correlate evaluates one candidate pair. It returns nil when the matched
// sample count falls below the floor, when the matched values are degenerate,
// or when |coefficient| stays under the moderate cutoff. The coefficient sign
// is preserved in the record; only severity gating takes the absolute value.
func (c *Correlator) Correlate(a, b models.MetricSeries) *models.Correlation {
	pairs := AsOfJoin(a, b, c.cfg.Tolerance)
	if len(pairs) < c.cfg.SampleFloor {
		return nil
	}

	xs := make([]float64, len(pairs))
	ys := make([]float64, len(pairs))
	for i, p := range pairs {
		xs[i] = p.A
		ys[i] = p.B
	}

	coeff, ok := Pearson(xs, ys)
	if !ok {
		return nil
	}
	strength := math.Abs(coeff)
	if strength < c.cfg.ModerateCutoff {
		return nil
	}

	severity := models.SeverityMedium
	if strength > c.cfg.HighCutoff {
		severity = models.SeverityHigh
	}

	relation := "correlated with"
	if coeff < 0 {
		relation = "inversely correlated with"
	}
	return &models.Correlation{
		ServiceA:    a.Service,
		MetricA:     a.Metric,
		ServiceB:    b.Service,
		MetricB:     b.Metric,
		Coefficient: coeff,
		SampleSize:  len(pairs),
		Severity:    severity,
		Description: fmt.Sprintf("%s %s %s %s %s (r=%.2f, n=%d)",
			a.Service, a.Metric, relation, b.Service, b.Metric, coeff, len(pairs)),
	}
}

// Pearson computes the Pearson correlation coefficient of two equal-length
// samples. ok is false when either sample has zero variance or the inputs are
// too short to correlate.
func Pearson(xs, ys []float64) (float64, bool) {
	n := len(xs)
	if n < 2 || len(ys) != n {
		return 0, false
	}

	var sumX, sumY float64
	for i := 0; i < n; i++ {
		sumX += xs[i]
		sumY += ys[i]
	}
	meanX := sumX / float64(n)
	meanY := sumY / float64(n)

	var cov, varX, varY float64
	for i := 0; i < n; i++ {
		dx := xs[i] - meanX
		dy := ys[i] - meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0, false
	}

	coeff := cov / math.Sqrt(varX*varY)
	if math.IsNaN(coeff) {
		return 0, false
	}
	// Floating error can nudge perfectly linear inputs past +/-1.
	return clamp(coeff, -1, 1), true
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
