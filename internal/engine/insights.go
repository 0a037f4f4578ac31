package engine

import (
	"fmt"
	"strings"

	"github.com/tierlens/tierlens/internal/models"
)

// insightsFor builds the human-readable insight strings for one service from
// its anomaly and correlation context. Templated, deterministic text only.
func insightsFor(rep models.ServiceReport, correlations []models.Correlation) []string {
	var insights []string

	switch rep.State {
	case models.StateNoData:
		return []string{fmt.Sprintf("no observations available for %s in this window", rep.Service)}
	case models.StateError:
		return []string{fmt.Sprintf("analysis failed for %s: %s", rep.Service, rep.Error)}
	case models.StateCritical:
		insights = append(insights, fmt.Sprintf("%s health is critical (score %.0f); prioritise investigation", rep.Service, deref(rep.Score)))
	case models.StateDegraded:
		insights = append(insights, fmt.Sprintf("%s health is degraded (score %.0f)", rep.Service, deref(rep.Score)))
	}

	byType := make(map[models.AnomalyType]int)
	for _, a := range rep.Anomalies {
		byType[a.Type]++
	}
	if n := byType[models.AnomalySustainedBreach]; n > 0 {
		insights = append(insights, fmt.Sprintf("%d sustained threshold breach(es) on %s indicate a persistent condition, not a spike", n, rep.Service))
	}
	if n := byType[models.AnomalyRateBreach]; n > 0 {
		insights = append(insights, fmt.Sprintf("ratio metrics on %s are breaching their rate thresholds", rep.Service))
	}

	for _, corr := range correlations {
		if !strings.EqualFold(corr.ServiceA, rep.Service) && !strings.EqualFold(corr.ServiceB, rep.Service) {
			continue
		}
		insights = append(insights, corr.Description)
	}

	if len(insights) == 0 {
		insights = append(insights, fmt.Sprintf("%s is operating within thresholds", rep.Service))
	}
	return insights
}

func deref(score *float64) float64 {
	if score == nil {
		return 0
	}
	return *score
}
