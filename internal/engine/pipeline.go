package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tierlens/tierlens/internal/models"
	"github.com/tierlens/tierlens/internal/scoring"
)

// Pipeline runs one full analysis: concurrent per-service scoring and anomaly
// detection, then cross-service correlation over the catalogue, bottleneck
// inference, and weighted aggregation. A run is a pure function of its input
// snapshot; the pipeline holds only configuration, never run state.
type Pipeline struct {
	logger     *slog.Logger
	scorer     *scoring.Scorer
	detector   *scoring.Detector
	correlator *Correlator
	inferencer *Inferencer
	catalogue  *Catalogue
	weights    map[string]float64
}

// NewPipeline constructs a Pipeline. Nil collaborators fall back to defaults
// so tests can build a pipeline from just the pieces under test.
func NewPipeline(
	logger *slog.Logger,
	scorer *scoring.Scorer,
	detector *scoring.Detector,
	correlator *Correlator,
	inferencer *Inferencer,
	catalogue *Catalogue,
	weights map[string]float64,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if scorer == nil {
		scorer = scoring.NewScorer(scoring.Config{}, logger)
	}
	if detector == nil {
		detector = scoring.NewDetector(scoring.Config{}, logger)
	}
	if correlator == nil {
		correlator = NewCorrelator(CorrelatorConfig{}, logger)
	}
	if catalogue == nil {
		catalogue = DefaultCatalogue()
	}
	if inferencer == nil {
		recommender, _ := NewRecommender("", logger)
		inferencer = NewInferencer(recommender, 0, logger)
	}
	return &Pipeline{
		logger:     logger,
		scorer:     scorer,
		detector:   detector,
		correlator: correlator,
		inferencer: inferencer,
		catalogue:  catalogue,
		weights:    weights,
	}
}

// Analyze executes the full flow over an immutable snapshot. Per-service
// failures are isolated into that service's report; only an invalid snapshot
// aborts the whole run.
func (p *Pipeline) Analyze(ctx context.Context, snap models.Snapshot) (models.AnalysisResult, error) {
	if err := validateSnapshot(snap); err != nil {
		return models.AnalysisResult{}, fmt.Errorf("invalid snapshot: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return models.AnalysisResult{}, err
	}

	reports := p.scoreServices(snap)
	correlations := p.correlate(snap)
	bottlenecks := p.inferencer.Infer(reports, correlations)
	overall := Aggregate(reports, p.weights)

	for idx := range reports {
		reports[idx].Insights = insightsFor(reports[idx], correlations)
	}

	anomalyCount := 0
	analyzed := 0
	for _, rep := range reports {
		anomalyCount += len(rep.Anomalies)
		if rep.Score != nil {
			analyzed++
		}
	}

	return models.AnalysisResult{
		Window:       snap.Window(),
		Services:     reports,
		Correlations: correlations,
		Bottlenecks:  bottlenecks,
		OverallScore: overall,
		Summary: models.Summary{
			ServicesAnalyzed: analyzed,
			AnomalyCount:     anomalyCount,
			CorrelationCount: len(correlations),
			BottleneckCount:  len(bottlenecks),
		},
	}, nil
}

// scoreServices fans one goroutine out per service. Scoring has no
// cross-service dependency, so services proceed independently and a failing
// service degrades only its own report.
func (p *Pipeline) scoreServices(snap models.Snapshot) []models.ServiceReport {
	reports := make([]models.ServiceReport, len(snap.Services))

	var wg sync.WaitGroup
	for idx, svc := range snap.Services {
		wg.Add(1)
		go func(idx int, svc models.ServiceSnapshot) {
			defer wg.Done()
			reports[idx] = p.scoreService(svc)
		}(idx, svc)
	}
	wg.Wait()

	return reports
}

func (p *Pipeline) scoreService(svc models.ServiceSnapshot) models.ServiceReport {
	report := models.ServiceReport{
		Service:   svc.Name,
		Tier:      svc.Tier,
		Anomalies: []models.Anomaly{},
	}

	if !svc.HasData() {
		report.State = models.StateNoData
		return report
	}

	metricScores, score, err := p.scorer.ScoreService(svc)
	if err != nil {
		if errors.Is(err, scoring.ErrNoScorableSeries) {
			report.State = models.StateNoData
			return report
		}
		p.logger.Error("service scoring failed", slog.String("service", svc.Name), slog.Any("error", err))
		report.State = models.StateError
		report.Error = err.Error()
		return report
	}

	anomalies, err := p.detector.Detect(svc)
	if err != nil {
		p.logger.Error("anomaly detection failed", slog.String("service", svc.Name), slog.Any("error", err))
		report.State = models.StateError
		report.Error = err.Error()
		return report
	}

	report.MetricScores = metricScores
	report.Score = &score
	report.State = p.scorer.StateFor(score)
	if len(anomalies) > 0 {
		report.Anomalies = anomalies
	}
	return report
}

// correlate evaluates every catalogue pair present in the snapshot. Each
// pair's computation is independent and writes only its own slot, so pairs
// run concurrently without shared accumulators; the result keeps catalogue
// order for determinism.
func (p *Pipeline) correlate(snap models.Snapshot) []models.Correlation {
	index := make(map[string]map[string]models.MetricSeries, len(snap.Services))
	for _, svc := range snap.Services {
		byMetric := make(map[string]models.MetricSeries, len(svc.Series))
		for _, series := range svc.Series {
			byMetric[series.Metric] = series
		}
		index[svc.Name] = byMetric
	}

	slots := make([]*models.Correlation, len(p.catalogue.Pairs))
	var wg sync.WaitGroup
	for idx, pair := range p.catalogue.Pairs {
		a, okA := index[pair.ServiceA][pair.MetricA]
		b, okB := index[pair.ServiceB][pair.MetricB]
		if !okA || !okB || a.Empty() || b.Empty() {
			continue
		}
		wg.Add(1)
		go func(idx int, a, b models.MetricSeries) {
			defer wg.Done()
			slots[idx] = p.correlator.Correlate(a, b)
		}(idx, a, b)
	}
	wg.Wait()

	correlations := make([]models.Correlation, 0, len(slots))
	for _, c := range slots {
		if c != nil {
			correlations = append(correlations, *c)
		}
	}
	return correlations
}

func validateSnapshot(snap models.Snapshot) error {
	seen := make(map[string]struct{}, len(snap.Services))
	for i := range snap.Services {
		svc := &snap.Services[i]
		if svc.Name == "" {
			return fmt.Errorf("service %d has no name", i)
		}
		if _, dup := seen[svc.Name]; dup {
			return fmt.Errorf("duplicate service %q", svc.Name)
		}
		seen[svc.Name] = struct{}{}
		metrics := make(map[string]struct{}, len(svc.Series))
		for j := range svc.Series {
			metric := svc.Series[j].Metric
			if _, dup := metrics[metric]; dup {
				return fmt.Errorf("service %q has duplicate series for metric %q", svc.Name, metric)
			}
			metrics[metric] = struct{}{}
			if err := svc.Series[j].Normalize(); err != nil {
				return err
			}
		}
	}
	return nil
}
