package scoring

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/tierlens/tierlens/internal/models"
)

// Detector runs the four independent anomaly passes over a service snapshot.
// Passes never deduplicate against each other: a value can appear in a
// threshold breach, an outlier record, and a sustained-window record at once,
// and downstream counting relies on that distinctness.
type Detector struct {
	cfg    Config
	logger *slog.Logger
}

// NewDetector constructs a Detector.
func NewDetector(cfg Config, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{cfg: cfg.withDefaults(), logger: logger}
}

// Detect runs every pass over every non-empty series in the snapshot,
// returning the anomaly records in deterministic metric order.
func (d *Detector) Detect(snap models.ServiceSnapshot) ([]models.Anomaly, error) {
	var anomalies []models.Anomaly
	for _, metric := range sortedMetricNames(snap.Thresholds) {
		series, ok := snap.SeriesFor(metric)
		if !ok || series.Empty() {
			continue
		}
		if err := checkFinite(series); err != nil {
			return nil, err
		}
		threshold := snap.Thresholds[metric]
		if threshold <= 0 {
			// Malformed threshold; the scorer surfaces this as a config error.
			continue
		}

		if a, ok := d.thresholdBreach(series, threshold); ok {
			anomalies = append(anomalies, a)
		}
		if a, ok := d.statisticalOutliers(series); ok {
			anomalies = append(anomalies, a)
		}
		if d.isRateMetric(metric) {
			if a, ok := d.rateBreach(series, threshold); ok {
				anomalies = append(anomalies, a)
			}
		}
		if a, ok := d.sustainedBreach(series, threshold); ok {
			anomalies = append(anomalies, a)
		}
	}
	return anomalies, nil
}

// thresholdBreach flags the latest observation when it exceeds the threshold.
func (d *Detector) thresholdBreach(series models.MetricSeries, threshold float64) (models.Anomaly, bool) {
	latest, ok := series.Latest()
	if !ok || latest.Value <= threshold {
		return models.Anomaly{}, false
	}
	return models.Anomaly{
		Service:  series.Service,
		Metric:   series.Metric,
		Type:     models.AnomalyThresholdBreach,
		Severity: severityForValue(latest.Value, threshold),
		Count:    1,
		Description: fmt.Sprintf("%s at %.2f exceeds threshold %.2f",
			series.Metric, latest.Value, threshold),
		Window: models.TimeRange{Start: latest.Timestamp, End: latest.Timestamp},
	}, true
}

// statisticalOutliers flags samples beyond mean +/- sigma*stddev over the
// series window. Series with fewer than two points carry no variance estimate
// and skip the pass.
func (d *Detector) statisticalOutliers(series models.MetricSeries) (models.Anomaly, bool) {
	if len(series.Points) < 2 {
		return models.Anomaly{}, false
	}

	mean, stdDev := meanStdDev(series.Values())
	if stdDev == 0 {
		return models.Anomaly{}, false
	}

	var (
		count    int
		peak     float64
		window   models.TimeRange
		havePeak bool
	)
	for _, p := range series.Points {
		z := math.Abs(p.Value-mean) / stdDev
		if z < d.cfg.OutlierSigma {
			continue
		}
		count++
		if !havePeak || z > peak {
			peak = z
			havePeak = true
		}
		if window.Start.IsZero() || p.Timestamp.Before(window.Start) {
			window.Start = p.Timestamp
		}
		if p.Timestamp.After(window.End) {
			window.End = p.Timestamp
		}
	}
	if count == 0 {
		return models.Anomaly{}, false
	}

	severity := models.SeverityMedium
	if peak >= 1.5*d.cfg.OutlierSigma {
		severity = models.SeverityHigh
	}
	return models.Anomaly{
		Service:  series.Service,
		Metric:   series.Metric,
		Type:     models.AnomalyStatisticalOutlier,
		Severity: severity,
		Count:    count,
		Description: fmt.Sprintf("%d sample(s) of %s beyond %.1f sigma (peak z=%.2f)",
			count, series.Metric, d.cfg.OutlierSigma, peak),
		Window: window,
	}, true
}

// rateBreach flags ratio metrics whose mean over the window breaches the
// fixed rate threshold.
func (d *Detector) rateBreach(series models.MetricSeries, threshold float64) (models.Anomaly, bool) {
	mean, _ := meanStdDev(series.Values())
	if mean <= threshold {
		return models.Anomaly{}, false
	}
	first := series.Points[0]
	last := series.Points[len(series.Points)-1]
	return models.Anomaly{
		Service:  series.Service,
		Metric:   series.Metric,
		Type:     models.AnomalyRateBreach,
		Severity: severityForValue(mean, threshold),
		Count:    len(series.Points),
		Description: fmt.Sprintf("mean %s %.2f over the window breaches rate threshold %.2f",
			series.Metric, mean, threshold),
		Window: models.TimeRange{Start: first.Timestamp, End: last.Timestamp},
	}, true
}

// sustainedBreach finds runs of consecutive breaching observations lasting at
// least the configured minimum duration. A sustained run escalates one
// severity step above the equivalent single spike.
func (d *Detector) sustainedBreach(series models.MetricSeries, threshold float64) (models.Anomaly, bool) {
	var (
		runStart  = -1
		bestStart = -1
		bestEnd   = -1
	)
	flush := func(end int) {
		if runStart < 0 {
			return
		}
		duration := series.Points[end].Timestamp.Sub(series.Points[runStart].Timestamp)
		if duration >= d.cfg.SustainedMin {
			if bestStart < 0 || end-runStart > bestEnd-bestStart {
				bestStart, bestEnd = runStart, end
			}
		}
		runStart = -1
	}
	for i, p := range series.Points {
		if p.Value > threshold {
			if runStart < 0 {
				runStart = i
			}
			continue
		}
		flush(i - 1)
	}
	flush(len(series.Points) - 1)

	if bestStart < 0 {
		return models.Anomaly{}, false
	}

	var peak float64
	for i := bestStart; i <= bestEnd; i++ {
		if series.Points[i].Value > peak {
			peak = series.Points[i].Value
		}
	}
	// Points are sorted, so the run end never precedes its start.
	start := series.Points[bestStart].Timestamp
	end := series.Points[bestEnd].Timestamp
	return models.Anomaly{
		Service:  series.Service,
		Metric:   series.Metric,
		Type:     models.AnomalySustainedBreach,
		Severity: escalate(severityForValue(peak, threshold)),
		Count:    bestEnd - bestStart + 1,
		Description: fmt.Sprintf("%s above threshold %.2f for %.1f minutes (peak %.2f)",
			series.Metric, threshold, end.Sub(start).Minutes(), peak),
		Window: models.TimeRange{Start: start, End: end},
	}, true
}

func (d *Detector) isRateMetric(metric string) bool {
	for _, name := range d.cfg.RateMetrics {
		if name == metric {
			return true
		}
	}
	return false
}

func checkFinite(series models.MetricSeries) error {
	for _, p := range series.Points {
		if !isFinite(p.Value) {
			return fmt.Errorf("series %s/%s at %s: %w",
				series.Service, series.Metric, p.Timestamp.Format("2006-01-02T15:04:05Z07:00"), ErrBadSample)
		}
	}
	return nil
}

func meanStdDev(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	variance := 0.0
	for _, v := range values {
		variance += math.Pow(v-mean, 2)
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}
