package scoring

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tierlens/tierlens/internal/models"
)

func anomaliesOfType(anomalies []models.Anomaly, at models.AnomalyType) []models.Anomaly {
	var out []models.Anomaly
	for _, a := range anomalies {
		if a.Type == at {
			out = append(out, a)
		}
	}
	return out
}

func TestDetectThresholdBreachLatestOnly(t *testing.T) {
	d := NewDetector(Config{}, nil)

	snap := models.ServiceSnapshot{
		Name:       "api",
		Thresholds: map[string]float64{"avg_response_time_ms": 500},
		Series: []models.MetricSeries{
			seriesOf("api", "avg_response_time_ms", obs(0, 800), obs(5, 300)),
		},
	}
	anomalies, err := d.Detect(snap)
	require.NoError(t, err)
	assert.Empty(t, anomaliesOfType(anomalies, models.AnomalyThresholdBreach),
		"a recovered latest value must not breach")

	snap.Series[0].Points[1].Value = 760
	anomalies, err = d.Detect(snap)
	require.NoError(t, err)
	breaches := anomaliesOfType(anomalies, models.AnomalyThresholdBreach)
	require.Len(t, breaches, 1)
	assert.Equal(t, models.SeverityHigh, breaches[0].Severity)
}

func TestDetectSeverityGrading(t *testing.T) {
	d := NewDetector(Config{}, nil)

	tests := []struct {
		name  string
		value float64
		want  models.Severity
	}{
		{"just over threshold", 501, models.SeverityMedium},
		{"over 1.5x", 760, models.SeverityHigh},
		{"over 2x", 1100, models.SeverityCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := models.ServiceSnapshot{
				Name:       "api",
				Thresholds: map[string]float64{"avg_response_time_ms": 500},
				Series: []models.MetricSeries{
					seriesOf("api", "avg_response_time_ms", obs(0, tt.value)),
				},
			}
			anomalies, err := d.Detect(snap)
			require.NoError(t, err)
			breaches := anomaliesOfType(anomalies, models.AnomalyThresholdBreach)
			require.Len(t, breaches, 1)
			assert.Equal(t, tt.want, breaches[0].Severity)
		})
	}
}

func TestDetectStatisticalOutlier(t *testing.T) {
	d := NewDetector(Config{}, nil)

	// A flat baseline with one extreme spike. The spike's z-score exceeds 3.
	points := []models.Observation{
		obs(0, 100), obs(1, 102), obs(2, 98), obs(3, 101), obs(4, 99),
		obs(5, 100), obs(6, 103), obs(7, 97), obs(8, 100), obs(9, 101),
		obs(10, 99), obs(11, 100), obs(12, 450),
	}
	snap := models.ServiceSnapshot{
		Name:       "sqlserver",
		Thresholds: map[string]float64{"avg_query_time_ms": 1000},
		Series:     []models.MetricSeries{seriesOf("sqlserver", "avg_query_time_ms", points...)},
	}

	anomalies, err := d.Detect(snap)
	require.NoError(t, err)
	outliers := anomaliesOfType(anomalies, models.AnomalyStatisticalOutlier)
	require.Len(t, outliers, 1)
	assert.Equal(t, 1, outliers[0].Count)
}

func TestDetectStatisticalOutlierSkipsShortOrFlatSeries(t *testing.T) {
	d := NewDetector(Config{}, nil)

	single := models.ServiceSnapshot{
		Name:       "api",
		Thresholds: map[string]float64{"error_rate_pct": 5},
		Series:     []models.MetricSeries{seriesOf("api", "error_rate_pct", obs(0, 1))},
	}
	anomalies, err := d.Detect(single)
	require.NoError(t, err)
	assert.Empty(t, anomaliesOfType(anomalies, models.AnomalyStatisticalOutlier))

	flat := models.ServiceSnapshot{
		Name:       "api",
		Thresholds: map[string]float64{"error_rate_pct": 5},
		Series: []models.MetricSeries{
			seriesOf("api", "error_rate_pct", obs(0, 2), obs(1, 2), obs(2, 2)),
		},
	}
	anomalies, err = d.Detect(flat)
	require.NoError(t, err)
	assert.Empty(t, anomaliesOfType(anomalies, models.AnomalyStatisticalOutlier))
}

func TestDetectRateBreachOnRatioMetrics(t *testing.T) {
	d := NewDetector(Config{RateMetrics: []string{"error_rate"}}, nil)

	snap := models.ServiceSnapshot{
		Name:       "api",
		Thresholds: map[string]float64{"error_rate": 5},
		Series: []models.MetricSeries{
			// Mean 7.5 breaches the rate threshold even though some samples are under.
			seriesOf("api", "error_rate", obs(0, 4), obs(5, 9), obs(10, 8), obs(15, 4)),
		},
	}
	anomalies, err := d.Detect(snap)
	require.NoError(t, err)
	rates := anomaliesOfType(anomalies, models.AnomalyRateBreach)
	require.Len(t, rates, 1)
	assert.Equal(t, 4, rates[0].Count)

	// The same shape on a non-ratio metric skips the pass entirely.
	other := NewDetector(Config{}, nil)
	anomalies, err = other.Detect(snap)
	require.NoError(t, err)
	assert.Empty(t, anomaliesOfType(anomalies, models.AnomalyRateBreach))
}

func TestDetectSustainedBreach(t *testing.T) {
	d := NewDetector(Config{SustainedMin: 10 * time.Minute}, nil)

	// 15 continuous minutes above threshold, then recovery.
	snap := models.ServiceSnapshot{
		Name:       "aks",
		Thresholds: map[string]float64{"cpu_usage_percent": 80},
		Series: []models.MetricSeries{
			seriesOf("aks", "cpu_usage_percent",
				obs(0, 85), obs(5, 90), obs(10, 95), obs(15, 88), obs(20, 60)),
		},
	}
	anomalies, err := d.Detect(snap)
	require.NoError(t, err)
	sustained := anomaliesOfType(anomalies, models.AnomalySustainedBreach)
	require.Len(t, sustained, 1)
	assert.Equal(t, 4, sustained[0].Count)
	// Peak 95 grades medium for a spike; a sustained run escalates to high.
	assert.Equal(t, models.SeverityHigh, sustained[0].Severity)
}

func TestDetectSustainedBreachIgnoresShortRuns(t *testing.T) {
	d := NewDetector(Config{SustainedMin: 10 * time.Minute}, nil)

	// Two separate 5-minute breaches interrupted by recovery.
	snap := models.ServiceSnapshot{
		Name:       "aks",
		Thresholds: map[string]float64{"cpu_usage_percent": 80},
		Series: []models.MetricSeries{
			seriesOf("aks", "cpu_usage_percent",
				obs(0, 85), obs(5, 90), obs(10, 60), obs(15, 88), obs(20, 91), obs(25, 55)),
		},
	}
	anomalies, err := d.Detect(snap)
	require.NoError(t, err)
	assert.Empty(t, anomaliesOfType(anomalies, models.AnomalySustainedBreach))
}

func TestDetectPassesNeverDeduplicate(t *testing.T) {
	d := NewDetector(Config{SustainedMin: 10 * time.Minute, RateMetrics: []string{"error_rate"}}, nil)

	// Continuously breaching ratio metric trips threshold, rate, and sustained
	// passes at once.
	snap := models.ServiceSnapshot{
		Name:       "api",
		Thresholds: map[string]float64{"error_rate": 5},
		Series: []models.MetricSeries{
			seriesOf("api", "error_rate", obs(0, 8), obs(5, 9), obs(10, 8), obs(15, 9)),
		},
	}
	anomalies, err := d.Detect(snap)
	require.NoError(t, err)
	assert.Len(t, anomaliesOfType(anomalies, models.AnomalyThresholdBreach), 1)
	assert.Len(t, anomaliesOfType(anomalies, models.AnomalyRateBreach), 1)
	assert.Len(t, anomaliesOfType(anomalies, models.AnomalySustainedBreach), 1)
}

func TestDetectRejectsNonFiniteSamples(t *testing.T) {
	d := NewDetector(Config{}, nil)

	snap := models.ServiceSnapshot{
		Name:       "api",
		Thresholds: map[string]float64{"error_rate": 5},
		Series: []models.MetricSeries{
			seriesOf("api", "error_rate", obs(0, 1), obs(5, math.Inf(1))),
		},
	}
	_, err := d.Detect(snap)
	require.ErrorIs(t, err, ErrBadSample)
}
