package engine

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CandidatePair names one service-metric pair the correlation engine should
// evaluate. The catalogue reflects known architectural dependencies and is
// plain data: adding a pair never touches the alignment or coefficient code.
type CandidatePair struct {
	ServiceA string `yaml:"service_a" json:"service_a"`
	MetricA  string `yaml:"metric_a" json:"metric_a"`
	ServiceB string `yaml:"service_b" json:"service_b"`
	MetricB  string `yaml:"metric_b" json:"metric_b"`
}

// Catalogue is the fixed set of candidate pairs evaluated per run.
type Catalogue struct {
	Pairs []CandidatePair `yaml:"pairs"`
}

// LoadCatalogue reads a pair catalogue from a YAML file. An empty path or a
// missing file falls back to the built-in default catalogue.
func LoadCatalogue(path string) (*Catalogue, error) {
	if path == "" {
		return DefaultCatalogue(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultCatalogue(), nil
		}
		return nil, fmt.Errorf("read catalogue: %w", err)
	}
	var cat Catalogue
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse catalogue: %w", err)
	}
	if len(cat.Pairs) == 0 {
		return nil, fmt.Errorf("catalogue %s defines no pairs", path)
	}
	for i, pair := range cat.Pairs {
		if pair.ServiceA == "" || pair.MetricA == "" || pair.ServiceB == "" || pair.MetricB == "" {
			return nil, fmt.Errorf("catalogue %s: pair %d is incomplete", path, i)
		}
	}
	return &cat, nil
}

// DefaultCatalogue covers the dependency edges of the stock multi-tier
// deployment: cluster CPU against every downstream latency metric, database
// query time and cache hit rate against the application response time, and
// storage latency against the application error rate.
func DefaultCatalogue() *Catalogue {
	return &Catalogue{Pairs: []CandidatePair{
		{ServiceA: "aks", MetricA: "cpu_usage_percent", ServiceB: "api", MetricB: "avg_response_time_ms"},
		{ServiceA: "aks", MetricA: "cpu_usage_percent", ServiceB: "sqlserver", MetricB: "avg_query_time_ms"},
		{ServiceA: "aks", MetricA: "cpu_usage_percent", ServiceB: "blobstorage", MetricB: "avg_latency_ms"},
		{ServiceA: "aks", MetricA: "memory_usage_percent", ServiceB: "api", MetricB: "avg_response_time_ms"},
		{ServiceA: "sqlserver", MetricA: "avg_query_time_ms", ServiceB: "api", MetricB: "avg_response_time_ms"},
		{ServiceA: "sqlserver", MetricA: "dtu_percent", ServiceB: "api", MetricB: "avg_response_time_ms"},
		{ServiceA: "rediscache", MetricA: "cache_hit_rate", ServiceB: "api", MetricB: "avg_response_time_ms"},
		{ServiceA: "rediscache", MetricA: "cache_miss_rate", ServiceB: "sqlserver", MetricB: "avg_query_time_ms"},
		{ServiceA: "blobstorage", MetricA: "avg_latency_ms", ServiceB: "api", MetricB: "error_rate"},
	}}
}
