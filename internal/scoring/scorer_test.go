package scoring

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tierlens/tierlens/internal/models"
)

func obs(minute int, value float64) models.Observation {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	return models.Observation{Timestamp: base.Add(time.Duration(minute) * time.Minute), Value: value}
}

func seriesOf(service, metric string, points ...models.Observation) models.MetricSeries {
	return models.MetricSeries{Service: service, Metric: metric, Points: points}
}

func TestScoreValue(t *testing.T) {
	tests := []struct {
		name      string
		value     float64
		threshold float64
		want      float64
	}{
		{"well below threshold", 40, 80, 100},
		{"exactly at threshold", 80, 80, 100},
		{"between 1x and 1.5x", 100, 80, 70},
		{"exactly at 1.5x", 120, 80, 70},
		{"between 1.5x and 2x", 150, 80, 40},
		{"exactly at 2x", 160, 80, 40},
		{"beyond 2x", 161, 80, 20},
		{"far beyond 2x", 900, 80, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ScoreValue(tt.value, tt.threshold))
		})
	}
}

func TestScoreUsesLatestObservation(t *testing.T) {
	s := NewScorer(Config{}, nil)

	// Earlier samples breach; only the latest counts.
	series := seriesOf("api", "avg_response_time_ms", obs(0, 900), obs(5, 800), obs(10, 200))
	score, err := s.Score(series, 500)
	require.NoError(t, err)
	assert.Equal(t, 100.0, score)
}

func TestScoreRejectsBadInput(t *testing.T) {
	s := NewScorer(Config{}, nil)

	_, err := s.Score(seriesOf("api", "avg_response_time_ms"), 500)
	require.Error(t, err)

	_, err = s.Score(seriesOf("api", "avg_response_time_ms", obs(0, 100)), 0)
	require.ErrorIs(t, err, ErrMissingThreshold)

	_, err = s.Score(seriesOf("api", "avg_response_time_ms", obs(0, math.NaN())), 500)
	require.ErrorIs(t, err, ErrBadSample)

	_, err = s.Score(seriesOf("api", "avg_response_time_ms", obs(0, math.Inf(1))), 500)
	require.ErrorIs(t, err, ErrBadSample)
}

func TestScoreServiceMeanOfMetricScores(t *testing.T) {
	s := NewScorer(Config{}, nil)

	snap := models.ServiceSnapshot{
		Name: "api",
		Tier: models.TierApplication,
		Thresholds: map[string]float64{
			"avg_response_time_ms": 500,
			"error_rate":           5,
		},
		Series: []models.MetricSeries{
			seriesOf("api", "avg_response_time_ms", obs(0, 600)), // 70
			seriesOf("api", "error_rate", obs(0, 1)),             // 100
		},
	}

	scores, overall, err := s.ScoreService(snap)
	require.NoError(t, err)
	assert.Equal(t, 70.0, scores["avg_response_time_ms"])
	assert.Equal(t, 100.0, scores["error_rate"])
	assert.Equal(t, 85.0, overall)
}

func TestScoreServiceAllHealthyIsExactlyHundred(t *testing.T) {
	s := NewScorer(Config{}, nil)

	snap := models.ServiceSnapshot{
		Name: "aks",
		Thresholds: map[string]float64{
			"cpu_usage_percent":    80,
			"memory_usage_percent": 85,
		},
		Series: []models.MetricSeries{
			seriesOf("aks", "cpu_usage_percent", obs(0, 50), obs(5, 60)),
			seriesOf("aks", "memory_usage_percent", obs(0, 70)),
		},
	}

	_, overall, err := s.ScoreService(snap)
	require.NoError(t, err)
	assert.Equal(t, 100.0, overall)
}

func TestScoreServiceSkipsUnthresholdedSeries(t *testing.T) {
	s := NewScorer(Config{}, nil)

	// cache_hit_rate has no threshold entry, so it is correlation-only.
	snap := models.ServiceSnapshot{
		Name:       "rediscache",
		Thresholds: map[string]float64{"cache_miss_rate": 20},
		Series: []models.MetricSeries{
			seriesOf("rediscache", "cache_miss_rate", obs(0, 10)),
			seriesOf("rediscache", "cache_hit_rate", obs(0, 90)),
		},
	}

	scores, overall, err := s.ScoreService(snap)
	require.NoError(t, err)
	assert.Len(t, scores, 1)
	assert.Equal(t, 100.0, overall)
}

func TestScoreServiceNoScorableSeries(t *testing.T) {
	s := NewScorer(Config{}, nil)

	snap := models.ServiceSnapshot{
		Name:       "blobstorage",
		Thresholds: map[string]float64{"avg_latency_ms": 100},
		Series: []models.MetricSeries{
			seriesOf("blobstorage", "throughput_mbps", obs(0, 40)),
		},
	}

	_, _, err := s.ScoreService(snap)
	require.ErrorIs(t, err, ErrNoScorableSeries)
}

func TestScoreServiceMalformedThreshold(t *testing.T) {
	s := NewScorer(Config{}, nil)

	snap := models.ServiceSnapshot{
		Name:       "api",
		Thresholds: map[string]float64{"error_rate": -5},
		Series: []models.MetricSeries{
			seriesOf("api", "error_rate", obs(0, 1)),
		},
	}

	_, _, err := s.ScoreService(snap)
	require.ErrorIs(t, err, ErrMissingThreshold)
}

func TestStateFor(t *testing.T) {
	s := NewScorer(Config{}, nil)

	assert.Equal(t, models.StateHealthy, s.StateFor(100))
	assert.Equal(t, models.StateHealthy, s.StateFor(70))
	assert.Equal(t, models.StateDegraded, s.StateFor(69.9))
	assert.Equal(t, models.StateDegraded, s.StateFor(40))
	assert.Equal(t, models.StateCritical, s.StateFor(39.9))
	assert.Equal(t, models.StateCritical, s.StateFor(0))
}
