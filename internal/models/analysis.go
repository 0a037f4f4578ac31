package models

// Severity captures impact levels.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// HealthState is the qualitative state attached to a service report. NoData
// and Error are distinct from computed scores and never fold into them.
type HealthState string

const (
	StateHealthy  HealthState = "healthy"
	StateDegraded HealthState = "degraded"
	StateCritical HealthState = "critical"
	StateNoData   HealthState = "no_data"
	StateError    HealthState = "error"
)

// AnomalyType identifies which detection pass produced an anomaly. Passes are
// never deduplicated against each other.
type AnomalyType string

const (
	AnomalyThresholdBreach    AnomalyType = "threshold_breach"
	AnomalyStatisticalOutlier AnomalyType = "statistical_outlier"
	AnomalyRateBreach         AnomalyType = "rate_breach"
	AnomalySustainedBreach    AnomalyType = "sustained_breach"
)

// Anomaly is a single structured detection record.
type Anomaly struct {
	Service     string      `json:"service"`
	Metric      string      `json:"metric"`
	Type        AnomalyType `json:"type"`
	Severity    Severity    `json:"severity"`
	Count       int         `json:"count"`
	Description string      `json:"description"`
	Resources   []string    `json:"resources,omitempty"`
	Window      TimeRange   `json:"window"`
}

// Correlation records the strength of one evaluated service-metric pair.
// The coefficient keeps its sign; only severity gating uses the absolute value.
type Correlation struct {
	ServiceA    string   `json:"service_a"`
	MetricA     string   `json:"metric_a"`
	ServiceB    string   `json:"service_b"`
	MetricB     string   `json:"metric_b"`
	Coefficient float64  `json:"coefficient"`
	SampleSize  int      `json:"sample_size"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
}

// BottleneckType classifies how a bottleneck was inferred.
type BottleneckType string

const (
	BottleneckResourceContention BottleneckType = "resource_contention"
	BottleneckCascade            BottleneckType = "cascade"
	BottleneckDegradation        BottleneckType = "degradation"
)

// Bottleneck names a root-cause origin service together with the downstream
// services its degradation impacts. Recomputed fresh every run.
type Bottleneck struct {
	Origin          string         `json:"origin"`
	Type            BottleneckType `json:"type"`
	Description     string         `json:"description"`
	Impacted        []string       `json:"impacted"`
	Recommendations []string       `json:"recommendations"`
}

// ServiceReport is the per-service slice of an analysis result. Score is nil
// for the no-data and error states.
type ServiceReport struct {
	Service      string             `json:"service"`
	Tier         Tier               `json:"tier"`
	State        HealthState        `json:"state"`
	Score        *float64           `json:"score,omitempty"`
	MetricScores map[string]float64 `json:"metric_scores,omitempty"`
	Anomalies    []Anomaly          `json:"anomalies"`
	Insights     []string           `json:"insights"`
	Error        string             `json:"error,omitempty"`
}

// Summary carries the headline counts of a run.
type Summary struct {
	ServicesAnalyzed int `json:"services_analyzed"`
	AnomalyCount     int `json:"anomaly_count"`
	CorrelationCount int `json:"correlation_count"`
	BottleneckCount  int `json:"bottleneck_count"`
}

// AnalysisResult is the sole object the engine hands back per run. It is
// derived entirely from the input snapshot, so identical snapshots encode to
// identical results.
type AnalysisResult struct {
	Window       TimeRange       `json:"window"`
	Services     []ServiceReport `json:"services"`
	Correlations []Correlation   `json:"correlations"`
	Bottlenecks  []Bottleneck    `json:"bottlenecks"`
	OverallScore *float64        `json:"overall_score,omitempty"`
	Summary      Summary         `json:"summary"`
}
