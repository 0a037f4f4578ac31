package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/tierlens/tierlens/internal/cache"
	"github.com/tierlens/tierlens/internal/engine"
	"github.com/tierlens/tierlens/internal/metrics"
	"github.com/tierlens/tierlens/internal/models"
	"github.com/tierlens/tierlens/internal/utils"
)

// Broadcaster pushes completed results to live subscribers.
type Broadcaster interface {
	Broadcast(models.AnalysisResult)
}

// Analyzer is the service facade over the analysis pipeline. It memoizes
// results keyed by snapshot content plus configuration fingerprint (the
// pipeline itself stays a stateless function) and reports operational
// metrics and latency percentiles per run.
type Analyzer struct {
	logger      *slog.Logger
	pipeline    *engine.Pipeline
	cache       cache.Provider
	cacheTTL    time.Duration
	fingerprint string
	broadcaster Broadcaster
	latencies   *utils.LatencyTracker

	mu          sync.RWMutex
	lastOverall *float64
}

// NewAnalyzer constructs the analyzer facade. cacheProvider may be nil to
// disable memoization; broadcaster may be nil when no live feed is attached.
func NewAnalyzer(
	logger *slog.Logger,
	pipeline *engine.Pipeline,
	cacheProvider cache.Provider,
	cacheTTL time.Duration,
	configFingerprint string,
	broadcaster Broadcaster,
) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	return &Analyzer{
		logger:      logger,
		pipeline:    pipeline,
		cache:       cacheProvider,
		cacheTTL:    cacheTTL,
		fingerprint: configFingerprint,
		broadcaster: broadcaster,
		latencies:   utils.NewLatencyTracker(1024),
	}
}

// Analyze runs (or replays) one analysis over the snapshot.
func (a *Analyzer) Analyze(ctx context.Context, snap models.Snapshot) (models.AnalysisResult, error) {
	key, keyErr := a.snapshotKey(snap)
	if keyErr == nil {
		if cached, err := a.cache.Get(ctx, key); err == nil {
			var result models.AnalysisResult
			if err := json.Unmarshal(cached, &result); err == nil {
				metrics.ObserveAnalysis(0, metrics.OutcomeCached)
				a.logger.Debug("analysis served from cache", slog.String("key", key[:12]))
				a.storeOverall(result.OverallScore)
				return result, nil
			}
			// A corrupt entry is dropped and recomputed.
			_ = a.cache.Del(ctx, key)
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			a.logger.Warn("cache lookup failed", slog.Any("error", err))
		}
	}

	start := time.Now()
	result, err := a.pipeline.Analyze(ctx, snap)
	duration := time.Since(start)
	if err != nil {
		metrics.ObserveAnalysis(duration, metrics.OutcomeError)
		return models.AnalysisResult{}, utils.NewAppError("analyze", "pipeline run failed", err)
	}

	a.latencies.Observe(duration)
	metrics.ObserveAnalysis(duration, metrics.OutcomeSuccess)
	metrics.ObserveFindings(result.Summary.CorrelationCount, result.Summary.BottleneckCount)
	if count := a.latencies.Count(); count >= 20 && count%20 == 0 {
		a.logger.Info("analysis latency",
			slog.Duration("p95", a.latencies.Percentile(95)), slog.Int("samples", count))
	}

	if keyErr == nil {
		if data, err := json.Marshal(result); err == nil {
			if err := a.cache.Set(ctx, key, data, a.cacheTTL); err != nil {
				a.logger.Warn("cache store failed", slog.Any("error", err))
			}
		}
	}

	a.storeOverall(result.OverallScore)
	if a.broadcaster != nil {
		a.broadcaster.Broadcast(result)
	}
	return result, nil
}

// LatencyP95 returns the current p95 analysis latency.
func (a *Analyzer) LatencyP95() time.Duration {
	return a.latencies.Percentile(95)
}

// LastOverallScore returns the overall score of the most recent run, or nil
// before the first one.
func (a *Analyzer) LastOverallScore() *float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastOverall
}

func (a *Analyzer) storeOverall(score *float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if score == nil {
		a.lastOverall = nil
		return
	}
	v := *score
	a.lastOverall = &v
}

// snapshotKey hashes the canonical JSON encoding of the snapshot together
// with the configuration fingerprint.
func (a *Analyzer) snapshotKey(snap models.Snapshot) (string, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write(data)
	h.Write([]byte(a.fingerprint))
	return "analysis:" + hex.EncodeToString(h.Sum(nil)), nil
}
