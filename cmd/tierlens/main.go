package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tierlens/tierlens/internal/api"
	"github.com/tierlens/tierlens/internal/cache"
	"github.com/tierlens/tierlens/internal/config"
	"github.com/tierlens/tierlens/internal/engine"
	"github.com/tierlens/tierlens/internal/ingest"
	"github.com/tierlens/tierlens/internal/metrics"
	"github.com/tierlens/tierlens/internal/models"
	"github.com/tierlens/tierlens/internal/scoring"
	"github.com/tierlens/tierlens/internal/services"
	"github.com/tierlens/tierlens/internal/utils"
	"github.com/tierlens/tierlens/internal/ws"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	slog.SetDefault(logger)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	hub := ws.NewHub(logger)
	defer hub.Close()

	rt, err := buildRuntime(cfg, logger, hub)
	if err != nil {
		logger.Error("failed to assemble engine", slog.Any("error", err))
		os.Exit(1)
	}

	var current atomic.Pointer[runtime]
	current.Store(rt)

	handler := api.NewHandler(
		logger,
		&swappableAnalyzer{current: &current},
		func() *engine.Catalogue { return current.Load().catalogue },
		func() *config.Config { return current.Load().cfg },
		hub,
	)

	apiServer := api.NewServer(logger, cfg.Server.Address, handler.Routes(), cfg.Server.GracefulTimeout)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := api.NewServer(logger, cfg.Server.MetricsAddress, metricsMux, cfg.Server.GracefulTimeout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reloads := make(chan struct{}, 1)
	if *configPath != "" {
		go func() {
			err := config.Watch(ctx, *configPath, logger, func(next *config.Config) {
				nextRT, err := buildRuntime(next, logger, hub)
				if err != nil {
					logger.Error("config reload rejected", slog.Any("error", err))
					return
				}
				current.Store(nextRT)
				logger.Info("configuration reloaded")
				select {
				case reloads <- struct{}{}:
				default:
				}
			})
			if err != nil {
				logger.Warn("config watcher stopped", slog.Any("error", err))
			}
		}()
	}

	if cfg.Scrape.Enabled {
		go runScrapeLoop(ctx, &current, reloads, logger)
	}

	errCh := make(chan error, 2)
	go func() { errCh <- apiServer.Start() }()
	go func() { errCh <- metricsServer.Start() }()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", slog.Any("error", err))
		}
	}

	shutdownCtx := context.Background()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api shutdown incomplete", slog.Any("error", err))
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics shutdown incomplete", slog.Any("error", err))
	}
	logger.Info("stopped")
}

// runtime bundles everything derived from one configuration revision so a
// reload can swap it atomically.
type runtime struct {
	cfg       *config.Config
	analyzer  *services.Analyzer
	catalogue *engine.Catalogue
	agents    []ingest.Agent
}

func buildRuntime(cfg *config.Config, logger *slog.Logger, hub *ws.Hub) (*runtime, error) {
	catalogue, err := engine.LoadCatalogue(cfg.Catalogue.Path)
	if err != nil {
		return nil, fmt.Errorf("load catalogue: %w", err)
	}
	recommender, err := engine.NewRecommender(cfg.Recommendations.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("load recommendations: %w", err)
	}

	scoringCfg := scoring.Config{
		DegradedCutoff: cfg.Analysis.DegradedCutoff,
		CriticalCutoff: cfg.Analysis.CriticalCutoff,
		OutlierSigma:   cfg.Analysis.OutlierSigma,
		SustainedMin:   cfg.Analysis.SustainedMin,
		RateMetrics:    cfg.Analysis.RateMetrics,
	}
	correlatorCfg := engine.CorrelatorConfig{
		Tolerance:      cfg.Analysis.ToleranceWindow,
		SampleFloor:    cfg.Analysis.SampleFloor,
		ModerateCutoff: cfg.Analysis.ModerateCutoff,
		HighCutoff:     cfg.Analysis.HighCutoff,
	}

	pipeline := engine.NewPipeline(
		logger,
		scoring.NewScorer(scoringCfg, logger),
		scoring.NewDetector(scoringCfg, logger),
		engine.NewCorrelator(correlatorCfg, logger),
		engine.NewInferencer(recommender, cfg.Analysis.DegradedCutoff, logger),
		catalogue,
		cfg.Weights(),
	)

	var provider cache.Provider = cache.NoopProvider{}
	if cfg.Cache.Enabled {
		provider = cache.NewMemoryProvider(0)
	}

	analyzer := services.NewAnalyzer(logger, pipeline, provider, cfg.Cache.TTL, cfg.Fingerprint(), hub)

	agents, err := buildAgents(cfg)
	if err != nil {
		return nil, err
	}

	return &runtime{
		cfg:       cfg,
		analyzer:  analyzer,
		catalogue: catalogue,
		agents:    agents,
	}, nil
}

func buildAgents(cfg *config.Config) ([]ingest.Agent, error) {
	var agents []ingest.Agent
	for _, svc := range cfg.Services {
		if svc.Source.Endpoint == "" {
			continue
		}
		tier, err := models.ParseTier(svc.Tier)
		if err != nil {
			return nil, fmt.Errorf("service %s: %w", svc.Name, err)
		}
		agent, err := ingest.NewScrapeAgent(svc, tier, cfg.Scrape.Window)
		if err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}
	return agents, nil
}

// runScrapeLoop periodically collects a snapshot from the configured scrape
// agents and pushes it through the analyzer. Results reach subscribers via
// the broadcast hub. A signal on reloads resets the ticker to the current
// runtime's interval, so a reload takes effect without waiting out the old
// interval.
func runScrapeLoop(ctx context.Context, current *atomic.Pointer[runtime], reloads <-chan struct{}, logger *slog.Logger) {
	interval := scrapeInterval(current.Load())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("scrape loop started", slog.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			logger.Info("scrape loop stopped")
			return
		case <-reloads:
			if next := scrapeInterval(current.Load()); next != interval {
				interval = next
				ticker.Reset(interval)
				logger.Info("scrape interval changed", slog.Duration("interval", interval))
			}
		case <-ticker.C:
			rt := current.Load()
			if len(rt.agents) == 0 {
				continue
			}
			snap := ingest.Collect(ctx, rt.agents, logger)
			if _, err := rt.analyzer.Analyze(ctx, snap); err != nil {
				logger.Warn("scheduled analysis failed", slog.Any("error", err))
			}
		}
	}
}

func scrapeInterval(rt *runtime) time.Duration {
	if rt.cfg.Scrape.Interval > 0 {
		return rt.cfg.Scrape.Interval
	}
	return time.Minute
}

// swappableAnalyzer delegates to whichever analyzer the current runtime
// holds, so reloads take effect without restarting the API server.
type swappableAnalyzer struct {
	current *atomic.Pointer[runtime]
}

func (s *swappableAnalyzer) Analyze(ctx context.Context, snap models.Snapshot) (models.AnalysisResult, error) {
	return s.current.Load().analyzer.Analyze(ctx, snap)
}

func (s *swappableAnalyzer) LatencyP95() time.Duration {
	return s.current.Load().analyzer.LatencyP95()
}

func (s *swappableAnalyzer) LastOverallScore() *float64 {
	return s.current.Load().analyzer.LastOverallScore()
}
