package engine

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/tierlens/tierlens/internal/models"
)

// Inferencer combines health scores, anomalies, and correlations into ranked
// bottleneck records. Rules run in fixed tier-priority order: infrastructure
// contention, then cascades, then self-contained degradation. Records sharing
// an underlying anomaly are not merged; every satisfied rule emits its own
// record in its own priority slot.
type Inferencer struct {
	recommender    *Recommender
	degradedCutoff float64
	logger         *slog.Logger
}

// NewInferencer constructs an Inferencer. The degraded cutoff must match the
// scorer's so "degraded" means the same thing in both places.
func NewInferencer(recommender *Recommender, degradedCutoff float64, logger *slog.Logger) *Inferencer {
	if logger == nil {
		logger = slog.Default()
	}
	if degradedCutoff == 0 {
		degradedCutoff = 70
	}
	return &Inferencer{recommender: recommender, degradedCutoff: degradedCutoff, logger: logger}
}

// Infer derives the bottleneck list for one run. Reports supply scores, tiers,
// and anomaly counts; correlations supply the cascade evidence.
func (i *Inferencer) Infer(reports []models.ServiceReport, correlations []models.Correlation) []models.Bottleneck {
	byName := make(map[string]models.ServiceReport, len(reports))
	for _, rep := range reports {
		byName[rep.Service] = rep
	}

	var bottlenecks []models.Bottleneck
	bottlenecks = append(bottlenecks, i.resourceContention(reports)...)
	cascades := i.cascades(correlations, byName)
	bottlenecks = append(bottlenecks, cascades...)
	bottlenecks = append(bottlenecks, i.degradations(reports, cascades)...)
	return bottlenecks
}

// resourceContention fires when an infrastructure-tier service is degraded
// while multiple other services show anomalies in the same window.
func (i *Inferencer) resourceContention(reports []models.ServiceReport) []models.Bottleneck {
	var out []models.Bottleneck
	for _, infra := range reports {
		if infra.Tier != models.TierInfrastructure {
			continue
		}
		if infra.Score == nil || *infra.Score >= i.degradedCutoff {
			continue
		}

		var affected []string
		for _, other := range reports {
			if other.Service == infra.Service || len(other.Anomalies) == 0 {
				continue
			}
			affected = append(affected, other.Service)
		}
		if len(affected) < 2 {
			continue
		}
		sort.Strings(affected)

		out = append(out, models.Bottleneck{
			Origin: infra.Service,
			Type:   models.BottleneckResourceContention,
			Description: fmt.Sprintf("%s is degraded (score %.0f) while %d downstream services show anomalies; likely shared resource contention",
				infra.Service, *infra.Score, len(affected)),
			Impacted:        affected,
			Recommendations: i.recommender.For(models.BottleneckResourceContention, infra.Service),
		})
	}
	return out
}

// cascades turns each high-severity correlation whose endpoints sit on
// strictly ordered tiers into a cascade record with the upstream service as
// origin.
func (i *Inferencer) cascades(correlations []models.Correlation, byName map[string]models.ServiceReport) []models.Bottleneck {
	var out []models.Bottleneck
	for _, corr := range correlations {
		if corr.Severity != models.SeverityHigh {
			continue
		}
		repA, okA := byName[corr.ServiceA]
		repB, okB := byName[corr.ServiceB]
		if !okA || !okB {
			continue
		}

		var origin, impacted models.ServiceReport
		switch {
		case repA.Tier.Upstream(repB.Tier):
			origin, impacted = repA, repB
		case repB.Tier.Upstream(repA.Tier):
			origin, impacted = repB, repA
		default:
			// Same tier: correlation is reported but implies no causal order.
			continue
		}

		out = append(out, models.Bottleneck{
			Origin: origin.Service,
			Type:   models.BottleneckCascade,
			Description: fmt.Sprintf("%s (%s tier) drives %s (%s tier): %s",
				origin.Service, origin.Tier, impacted.Service, impacted.Tier, corr.Description),
			Impacted:        []string{impacted.Service},
			Recommendations: i.recommender.For(models.BottleneckCascade, origin.Service),
		})
	}
	return out
}

// degradations covers services that are anomalous and degraded without a
// qualifying cascade: classified as self-contained, origin = itself. Services
// already named by a cascade record, as origin or impacted, are skipped so a
// single root cause is not reported twice.
func (i *Inferencer) degradations(reports []models.ServiceReport, cascades []models.Bottleneck) []models.Bottleneck {
	cascaded := make(map[string]struct{})
	for _, c := range cascades {
		cascaded[strings.ToLower(c.Origin)] = struct{}{}
		for _, svc := range c.Impacted {
			cascaded[strings.ToLower(svc)] = struct{}{}
		}
	}

	var out []models.Bottleneck
	for _, rep := range reports {
		if rep.Score == nil || *rep.Score >= i.degradedCutoff || len(rep.Anomalies) == 0 {
			continue
		}
		if _, ok := cascaded[strings.ToLower(rep.Service)]; ok {
			continue
		}
		out = append(out, models.Bottleneck{
			Origin: rep.Service,
			Type:   models.BottleneckDegradation,
			Description: fmt.Sprintf("%s is degraded (score %.0f, %d anomalies) with no qualifying upstream correlation",
				rep.Service, *rep.Score, len(rep.Anomalies)),
			Impacted:        []string{rep.Service},
			Recommendations: i.recommender.For(models.BottleneckDegradation, rep.Service),
		})
	}
	return out
}
