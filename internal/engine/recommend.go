package engine

import (
	"errors"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tierlens/tierlens/internal/models"
)

// Recommender resolves static remediation guidance for a bottleneck, keyed by
// bottleneck type and origin service. Packs are data, not logic: operators
// swap recommendations without touching the inference rules.
type Recommender struct {
	rules  []RecommendationRule
	logger *slog.Logger
}

// RecommendationRule maps a bottleneck type (and optionally a specific origin
// service) to an ordered list of remediation steps.
type RecommendationRule struct {
	Type            models.BottleneckType `yaml:"type"`
	Origin          string                `yaml:"origin"`
	Recommendations []string              `yaml:"recommendations"`
}

// RecommendationPack is the YAML root structure.
type RecommendationPack struct {
	Rules []RecommendationRule `yaml:"rules"`
}

// NewRecommender loads a recommendation pack from path. An empty path or a
// missing file yields a recommender that serves only the built-in defaults.
func NewRecommender(path string, logger *slog.Logger) (*Recommender, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		return &Recommender{logger: logger}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Recommender{logger: logger}, nil
		}
		return nil, err
	}
	var pack RecommendationPack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, err
	}
	return &Recommender{rules: pack.Rules, logger: logger}, nil
}

// For returns the remediation steps for a bottleneck. Origin-specific rules
// rank before type-wide ones; built-in defaults fill in when no pack rule
// matches, so a bottleneck is never emitted without guidance.
func (r *Recommender) For(btype models.BottleneckType, origin string) []string {
	var matched []string
	for _, rule := range r.rules {
		if rule.Type != btype {
			continue
		}
		if rule.Origin != "" && !strings.EqualFold(rule.Origin, origin) {
			continue
		}
		if rule.Origin != "" {
			matched = appendUnique(nil, rule.Recommendations...)
			matched = appendUnique(matched, r.typeWide(btype)...)
			return matched
		}
		matched = appendUnique(matched, rule.Recommendations...)
	}
	if len(matched) > 0 {
		return matched
	}
	return defaultRecommendations(btype)
}

func (r *Recommender) typeWide(btype models.BottleneckType) []string {
	var recs []string
	for _, rule := range r.rules {
		if rule.Type == btype && rule.Origin == "" {
			recs = appendUnique(recs, rule.Recommendations...)
		}
	}
	return recs
}

func defaultRecommendations(btype models.BottleneckType) []string {
	switch btype {
	case models.BottleneckResourceContention:
		return []string{
			"Scale out the infrastructure tier before tuning downstream services",
			"Review node pool sizing and pod resource requests",
			"Check for noisy-neighbour workloads on shared nodes",
		}
	case models.BottleneckCascade:
		return []string{
			"Address the upstream origin service first; downstream symptoms follow it",
			"Verify capacity headroom on the origin tier",
			"Re-run the analysis after remediating the origin to confirm downstream recovery",
		}
	case models.BottleneckDegradation:
		return []string{
			"Profile the service for recent regressions",
			"Compare current thresholds against observed baselines",
		}
	default:
		return []string{"Investigate the origin service's recent changes"}
	}
}

func appendUnique(existing []string, additions ...string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, rec := range existing {
		seen[rec] = struct{}{}
	}
	for _, item := range additions {
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		existing = append(existing, item)
		seen[item] = struct{}{}
	}
	return existing
}
