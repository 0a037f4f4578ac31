package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Tier is the architectural layer a service belongs to. Lower tiers are
// upstream of higher ones when ordering cascade root causes.
type Tier int

const (
	TierInfrastructure Tier = iota
	TierDatabase
	TierCache
	TierApplication
)

var tierNames = map[Tier]string{
	TierInfrastructure: "infrastructure",
	TierDatabase:       "database",
	TierCache:          "cache",
	TierApplication:    "application",
}

func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return fmt.Sprintf("tier(%d)", int(t))
}

// Upstream reports whether t is strictly upstream of other.
func (t Tier) Upstream(other Tier) bool {
	return t < other
}

// ParseTier maps a tier name to its Tier value.
func ParseTier(name string) (Tier, error) {
	for tier, n := range tierNames {
		if strings.EqualFold(name, n) {
			return tier, nil
		}
	}
	return 0, fmt.Errorf("unknown tier %q", name)
}

// MarshalText renders the tier name for JSON and YAML output.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText parses a tier name.
func (t *Tier) UnmarshalText(data []byte) error {
	tier, err := ParseTier(string(data))
	if err != nil {
		return err
	}
	*t = tier
	return nil
}

// Observation is a single timestamped metric sample. Immutable once recorded.
type Observation struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// MetricSeries is the time-ordered observation sequence for one
// (service, metric) pair.
type MetricSeries struct {
	Service string        `json:"service"`
	Metric  string        `json:"metric"`
	Points  []Observation `json:"points"`
}

// Empty reports whether the series holds no observations.
func (s MetricSeries) Empty() bool {
	return len(s.Points) == 0
}

// Latest returns the most recent observation, if any.
func (s MetricSeries) Latest() (Observation, bool) {
	if len(s.Points) == 0 {
		return Observation{}, false
	}
	return s.Points[len(s.Points)-1], true
}

// Values extracts the sample values in time order.
func (s MetricSeries) Values() []float64 {
	values := make([]float64, len(s.Points))
	for i, p := range s.Points {
		values[i] = p.Value
	}
	return values
}

// Normalize sorts the points by timestamp and rejects duplicate timestamps,
// enforcing the per-run series invariant at the ingestion boundary.
func (s *MetricSeries) Normalize() error {
	sort.SliceStable(s.Points, func(i, j int) bool {
		return s.Points[i].Timestamp.Before(s.Points[j].Timestamp)
	})
	for i := 1; i < len(s.Points); i++ {
		if s.Points[i].Timestamp.Equal(s.Points[i-1].Timestamp) {
			return fmt.Errorf("series %s/%s: duplicate timestamp %s",
				s.Service, s.Metric, s.Points[i].Timestamp.Format(time.RFC3339))
		}
	}
	return nil
}

// ServiceSnapshot is the immutable per-service input to one analysis run.
// A snapshot without series is the explicit "no data" state for the service.
type ServiceSnapshot struct {
	Name       string             `json:"name"`
	Tier       Tier               `json:"tier"`
	Thresholds map[string]float64 `json:"thresholds"`
	Series     []MetricSeries     `json:"series"`
}

// HasData reports whether at least one series carries observations.
func (s ServiceSnapshot) HasData() bool {
	for _, series := range s.Series {
		if !series.Empty() {
			return true
		}
	}
	return false
}

// SeriesFor looks up the series recorded for a metric name.
func (s ServiceSnapshot) SeriesFor(metric string) (MetricSeries, bool) {
	for _, series := range s.Series {
		if series.Metric == metric {
			return series, true
		}
	}
	return MetricSeries{}, false
}

// Snapshot is the full input to one analysis run: every service's series plus
// thresholds, captured as an immutable unit.
type Snapshot struct {
	Services []ServiceSnapshot `json:"services"`
}

// TimeRange bounds a window of observations.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Window derives the observed time range across every series in the snapshot.
// The zero TimeRange is returned when no observations exist.
func (s Snapshot) Window() TimeRange {
	var window TimeRange
	for _, svc := range s.Services {
		for _, series := range svc.Series {
			for _, p := range series.Points {
				if window.Start.IsZero() || p.Timestamp.Before(window.Start) {
					window.Start = p.Timestamp
				}
				if window.End.IsZero() || p.Timestamp.After(window.End) {
					window.End = p.Timestamp
				}
			}
		}
	}
	return window
}
