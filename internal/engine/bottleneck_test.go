package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tierlens/tierlens/internal/models"
)

func scorePtr(v float64) *float64 { return &v }

func newTestInferencer(t *testing.T) *Inferencer {
	t.Helper()
	recommender, err := NewRecommender("", nil)
	require.NoError(t, err)
	return NewInferencer(recommender, 70, nil)
}

func anomaly(service, metric string) models.Anomaly {
	return models.Anomaly{
		Service:  service,
		Metric:   metric,
		Type:     models.AnomalyThresholdBreach,
		Severity: models.SeverityMedium,
		Count:    1,
	}
}

func TestInferCascadeFromHighCorrelation(t *testing.T) {
	inf := newTestInferencer(t)

	reports := []models.ServiceReport{
		{
			Service: "aks", Tier: models.TierInfrastructure,
			State: models.StateCritical, Score: scorePtr(30),
			Anomalies: []models.Anomaly{anomaly("aks", "cpu_usage_percent")},
		},
		{
			Service: "api", Tier: models.TierApplication,
			State: models.StateDegraded, Score: scorePtr(55),
			Anomalies: []models.Anomaly{anomaly("api", "avg_response_time_ms")},
		},
	}
	correlations := []models.Correlation{{
		ServiceA: "aks", MetricA: "cpu_usage_percent",
		ServiceB: "api", MetricB: "avg_response_time_ms",
		Coefficient: 0.82, SampleSize: 12, Severity: models.SeverityHigh,
		Description: "aks cpu_usage_percent correlated with api avg_response_time_ms (r=0.82, n=12)",
	}}

	bottlenecks := inf.Infer(reports, correlations)
	require.Len(t, bottlenecks, 1)

	b := bottlenecks[0]
	assert.Equal(t, models.BottleneckCascade, b.Type)
	assert.Equal(t, "aks", b.Origin)
	assert.Equal(t, []string{"api"}, b.Impacted)
	assert.NotEmpty(t, b.Recommendations)
}

func TestInferCascadeSuppressesDownstreamDegradation(t *testing.T) {
	inf := newTestInferencer(t)

	// api would qualify as a standalone degradation, but it is impacted by an
	// upstream cascade, so only the cascade is reported.
	reports := []models.ServiceReport{
		{
			Service: "sqlserver", Tier: models.TierDatabase,
			State: models.StateHealthy, Score: scorePtr(85),
		},
		{
			Service: "api", Tier: models.TierApplication,
			State: models.StateDegraded, Score: scorePtr(55),
			Anomalies: []models.Anomaly{anomaly("api", "avg_response_time_ms")},
		},
	}
	correlations := []models.Correlation{{
		ServiceA: "sqlserver", MetricA: "avg_query_time_ms",
		ServiceB: "api", MetricB: "avg_response_time_ms",
		Coefficient: 0.9, SampleSize: 8, Severity: models.SeverityHigh,
	}}

	bottlenecks := inf.Infer(reports, correlations)
	require.Len(t, bottlenecks, 1)
	assert.Equal(t, models.BottleneckCascade, bottlenecks[0].Type)
	assert.Equal(t, "sqlserver", bottlenecks[0].Origin)
}

func TestInferCascadeIgnoresSameTierAndModerate(t *testing.T) {
	inf := newTestInferencer(t)

	reports := []models.ServiceReport{
		{Service: "api", Tier: models.TierApplication, Score: scorePtr(90)},
		{Service: "blobstorage", Tier: models.TierApplication, Score: scorePtr(90)},
		{Service: "aks", Tier: models.TierInfrastructure, Score: scorePtr(90)},
	}
	correlations := []models.Correlation{
		{
			// Same tier: no causal direction.
			ServiceA: "blobstorage", MetricA: "avg_latency_ms",
			ServiceB: "api", MetricB: "error_rate",
			Coefficient: 0.95, SampleSize: 10, Severity: models.SeverityHigh,
		},
		{
			// Moderate severity never forms a cascade.
			ServiceA: "aks", MetricA: "cpu_usage_percent",
			ServiceB: "api", MetricB: "avg_response_time_ms",
			Coefficient: 0.6, SampleSize: 10, Severity: models.SeverityMedium,
		},
	}

	assert.Empty(t, inf.Infer(reports, correlations))
}

func TestInferResourceContention(t *testing.T) {
	inf := newTestInferencer(t)

	reports := []models.ServiceReport{
		{
			Service: "aks", Tier: models.TierInfrastructure,
			State: models.StateDegraded, Score: scorePtr(50),
			Anomalies: []models.Anomaly{anomaly("aks", "cpu_usage_percent")},
		},
		{
			Service: "sqlserver", Tier: models.TierDatabase,
			State: models.StateDegraded, Score: scorePtr(65),
			Anomalies: []models.Anomaly{anomaly("sqlserver", "avg_query_time_ms")},
		},
		{
			Service: "api", Tier: models.TierApplication,
			State: models.StateDegraded, Score: scorePtr(60),
			Anomalies: []models.Anomaly{anomaly("api", "avg_response_time_ms")},
		},
	}

	bottlenecks := inf.Infer(reports, nil)
	require.NotEmpty(t, bottlenecks)

	first := bottlenecks[0]
	assert.Equal(t, models.BottleneckResourceContention, first.Type)
	assert.Equal(t, "aks", first.Origin)
	assert.Equal(t, []string{"api", "sqlserver"}, first.Impacted)
}

func TestInferResourceContentionNeedsTwoAffected(t *testing.T) {
	inf := newTestInferencer(t)

	reports := []models.ServiceReport{
		{
			Service: "aks", Tier: models.TierInfrastructure,
			Score:     scorePtr(50),
			Anomalies: []models.Anomaly{anomaly("aks", "cpu_usage_percent")},
		},
		{
			Service: "api", Tier: models.TierApplication,
			Score:     scorePtr(60),
			Anomalies: []models.Anomaly{anomaly("api", "avg_response_time_ms")},
		},
	}

	for _, b := range inf.Infer(reports, nil) {
		assert.NotEqual(t, models.BottleneckResourceContention, b.Type)
	}
}

func TestInferStandaloneDegradation(t *testing.T) {
	inf := newTestInferencer(t)

	reports := []models.ServiceReport{
		{Service: "aks", Tier: models.TierInfrastructure, Score: scorePtr(95)},
		{
			Service: "rediscache", Tier: models.TierCache,
			State: models.StateDegraded, Score: scorePtr(45),
			Anomalies: []models.Anomaly{anomaly("rediscache", "cache_miss_rate")},
		},
	}

	bottlenecks := inf.Infer(reports, nil)
	require.Len(t, bottlenecks, 1)
	assert.Equal(t, models.BottleneckDegradation, bottlenecks[0].Type)
	assert.Equal(t, "rediscache", bottlenecks[0].Origin)
	assert.Equal(t, []string{"rediscache"}, bottlenecks[0].Impacted)
}

func TestInferHealthySystemIsEmpty(t *testing.T) {
	inf := newTestInferencer(t)

	reports := []models.ServiceReport{
		{Service: "aks", Tier: models.TierInfrastructure, State: models.StateHealthy, Score: scorePtr(100)},
		{Service: "api", Tier: models.TierApplication, State: models.StateHealthy, Score: scorePtr(100)},
	}

	assert.Empty(t, inf.Infer(reports, nil))
}

func TestInferRuleOrdering(t *testing.T) {
	inf := newTestInferencer(t)

	// A degraded infrastructure service with broad impact plus a standalone
	// cache degradation. Contention must rank first, degradation last.
	reports := []models.ServiceReport{
		{
			Service: "aks", Tier: models.TierInfrastructure,
			Score:     scorePtr(40),
			Anomalies: []models.Anomaly{anomaly("aks", "cpu_usage_percent")},
		},
		{
			Service: "sqlserver", Tier: models.TierDatabase,
			Score:     scorePtr(60),
			Anomalies: []models.Anomaly{anomaly("sqlserver", "avg_query_time_ms")},
		},
		{
			Service: "rediscache", Tier: models.TierCache,
			Score:     scorePtr(50),
			Anomalies: []models.Anomaly{anomaly("rediscache", "cache_miss_rate")},
		},
	}

	bottlenecks := inf.Infer(reports, nil)
	require.GreaterOrEqual(t, len(bottlenecks), 2)
	assert.Equal(t, models.BottleneckResourceContention, bottlenecks[0].Type)
	assert.Equal(t, models.BottleneckDegradation, bottlenecks[len(bottlenecks)-1].Type)
}
