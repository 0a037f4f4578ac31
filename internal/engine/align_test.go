package engine

import (
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

func TestAsOfJoinExactMatches(t *testing.T) {
	a := seriesOf("aks", "cpu_usage_percent", obs(0, 50), obs(5, 60), obs(10, 70))
	b := seriesOf("api", "avg_response_time_ms", obs(0, 200), obs(5, 250), obs(10, 300))

	pairs := AsOfJoin(a, b, 5*time.Minute)
	require.Len(t, pairs, 3)
	assert.Equal(t, 50.0, pairs[0].A)
	assert.Equal(t, 200.0, pairs[0].B)
	assert.Equal(t, 70.0, pairs[2].A)
	assert.Equal(t, 300.0, pairs[2].B)
}

func TestAsOfJoinTakesMostRecentEarlier(t *testing.T) {
	// b samples lag a by two minutes; each a timestamp matches the most
	// recent earlier b observation.
	a := seriesOf("aks", "cpu_usage_percent", obs(5, 60), obs(10, 70))
	b := seriesOf("api", "avg_response_time_ms", obs(3, 210), obs(8, 260))

	pairs := AsOfJoin(a, b, 5*time.Minute)
	require.Len(t, pairs, 2)
	assert.Equal(t, 210.0, pairs[0].B)
	assert.Equal(t, 260.0, pairs[1].B)
}

func TestAsOfJoinExactMatchBeatsEarlier(t *testing.T) {
	a := seriesOf("aks", "cpu_usage_percent", obs(10, 70))
	b := seriesOf("api", "avg_response_time_ms", obs(8, 260), obs(10, 300))

	pairs := AsOfJoin(a, b, 5*time.Minute)
	require.Len(t, pairs, 1)
	assert.Equal(t, 300.0, pairs[0].B)
}

func TestAsOfJoinToleranceBoundary(t *testing.T) {
	a := seriesOf("aks", "cpu_usage_percent", obs(10, 70))

	// Gap is exactly the tolerance: accepted.
	within := seriesOf("api", "avg_response_time_ms", obs(5, 250))
	assert.Len(t, AsOfJoin(a, within, 5*time.Minute), 1)

	// One minute beyond: discarded.
	beyond := seriesOf("api", "avg_response_time_ms", obs(4, 240))
	assert.Empty(t, AsOfJoin(a, beyond, 5*time.Minute))
}

func TestAsOfJoinNeverMatchesLater(t *testing.T) {
	a := seriesOf("aks", "cpu_usage_percent", obs(0, 50))
	b := seriesOf("api", "avg_response_time_ms", obs(2, 220))

	assert.Empty(t, AsOfJoin(a, b, 5*time.Minute))
}

func TestAsOfJoinEmptyInputs(t *testing.T) {
	a := seriesOf("aks", "cpu_usage_percent", obs(0, 50))
	empty := seriesOf("api", "avg_response_time_ms")

	assert.Nil(t, AsOfJoin(a, empty, 5*time.Minute))
	assert.Nil(t, AsOfJoin(empty, a, 5*time.Minute))
}

func TestAsOfJoinReusesBObservations(t *testing.T) {
	// A single b observation can serve several a timestamps inside tolerance.
	a := seriesOf("aks", "cpu_usage_percent", obs(1, 50), obs(2, 55), obs(3, 60))
	b := seriesOf("api", "avg_response_time_ms", obs(0, 200))

	pairs := AsOfJoin(a, b, 5*time.Minute)
	require.Len(t, pairs, 3)
	for _, p := range pairs {
		assert.Equal(t, 200.0, p.B)
	}
}
