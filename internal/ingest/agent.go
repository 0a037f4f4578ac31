package ingest

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tierlens/tierlens/internal/models"
)

// Agent is the capability an ingestion source exposes per service: its
// identity, tier, scored-metric thresholds, and a way to load the collected
// series. The analysis core consumes only the resulting snapshot; agents are
// thin data-driven adapters, not per-service logic.
type Agent interface {
	Service() string
	Tier() models.Tier
	Thresholds() map[string]float64
	LoadSeries(ctx context.Context) ([]models.MetricSeries, error)
}

// SnapshotAgent serves a pre-materialized service snapshot, the path taken by
// the HTTP API and by tests.
type SnapshotAgent struct {
	snap models.ServiceSnapshot
}

// NewSnapshotAgent wraps an in-memory snapshot as an Agent.
func NewSnapshotAgent(snap models.ServiceSnapshot) *SnapshotAgent {
	return &SnapshotAgent{snap: snap}
}

func (a *SnapshotAgent) Service() string { return a.snap.Name }

func (a *SnapshotAgent) Tier() models.Tier { return a.snap.Tier }

func (a *SnapshotAgent) Thresholds() map[string]float64 { return a.snap.Thresholds }

func (a *SnapshotAgent) LoadSeries(context.Context) ([]models.MetricSeries, error) {
	return a.snap.Series, nil
}

// Collect loads every agent concurrently and assembles the run snapshot.
// An agent that fails to load contributes an explicit no-data service rather
// than failing the collection: missing data is a per-service result state,
// not a run error.
func Collect(ctx context.Context, agents []Agent, logger *slog.Logger) models.Snapshot {
	if logger == nil {
		logger = slog.Default()
	}

	services := make([]models.ServiceSnapshot, len(agents))
	var wg sync.WaitGroup
	for idx, agent := range agents {
		wg.Add(1)
		go func(idx int, agent Agent) {
			defer wg.Done()
			snap := models.ServiceSnapshot{
				Name:       agent.Service(),
				Tier:       agent.Tier(),
				Thresholds: agent.Thresholds(),
			}
			series, err := agent.LoadSeries(ctx)
			if err != nil {
				logger.Warn("series load failed, treating service as no-data",
					slog.String("service", agent.Service()), slog.Any("error", err))
			} else {
				snap.Series = series
			}
			services[idx] = snap
		}(idx, agent)
	}
	wg.Wait()

	return models.Snapshot{Services: services}
}
