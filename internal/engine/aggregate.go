package engine

import "github.com/tierlens/tierlens/internal/models"

// DefaultWeight returns the aggregation weight for a tier: infrastructure
// carries the most, application-tier services the least.
func DefaultWeight(tier models.Tier) float64 {
	switch tier {
	case models.TierInfrastructure:
		return 1.5
	case models.TierDatabase:
		return 1.3
	case models.TierCache:
		return 1.2
	default:
		return 1.0
	}
}

// Aggregate computes the weighted mean health score over services with a
// defined score. No-data and errored services contribute to neither numerator
// nor denominator, so their absence is indistinguishable from never having
// been included. Returns nil when no service has a score. Weights missing
// from the map fall back to the tier default.
func Aggregate(reports []models.ServiceReport, weights map[string]float64) *float64 {
	var weighted, total float64
	for _, rep := range reports {
		if rep.Score == nil {
			continue
		}
		weight, ok := weights[rep.Service]
		if !ok || weight <= 0 {
			weight = DefaultWeight(rep.Tier)
		}
		weighted += weight * *rep.Score
		total += weight
	}
	if total == 0 {
		return nil
	}
	overall := weighted / total
	return &overall
}
