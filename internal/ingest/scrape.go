package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/tierlens/tierlens/internal/config"
	"github.com/tierlens/tierlens/internal/models"
)

const defaultScrapeTimeout = 10 * time.Second

// ScrapeAgent pulls a collaborator service's Prometheus text endpoint and
// accumulates one observation per configured metric per scrape. The buffered
// window is bounded; observations older than the window are dropped on
// append. The agent carries this collection state so the analysis core can
// stay stateless: LoadSeries hands out an immutable copy.
type ScrapeAgent struct {
	cfg    config.ServiceConfig
	tier   models.Tier
	client *http.Client
	window time.Duration

	mu     sync.Mutex
	series map[string][]models.Observation

	// now is swappable for tests.
	now func() time.Time
}

// NewScrapeAgent builds an agent for one configured scrape source. window
// bounds how much history the agent retains between analyses.
func NewScrapeAgent(cfg config.ServiceConfig, tier models.Tier, window time.Duration) (*ScrapeAgent, error) {
	if cfg.Source.Endpoint == "" {
		return nil, fmt.Errorf("service %s: scrape source has no endpoint", cfg.Name)
	}
	if len(cfg.Source.Metrics) == 0 {
		return nil, fmt.Errorf("service %s: scrape source maps no metrics", cfg.Name)
	}
	timeout := cfg.Source.Timeout
	if timeout <= 0 {
		timeout = defaultScrapeTimeout
	}
	if window <= 0 {
		window = 30 * time.Minute
	}
	return &ScrapeAgent{
		cfg:    cfg,
		tier:   tier,
		client: &http.Client{Timeout: timeout},
		window: window,
		series: make(map[string][]models.Observation),
		now:    time.Now,
	}, nil
}

func (a *ScrapeAgent) Service() string { return a.cfg.Name }

func (a *ScrapeAgent) Tier() models.Tier { return a.tier }

func (a *ScrapeAgent) Thresholds() map[string]float64 { return a.cfg.Thresholds }

// LoadSeries scrapes the endpoint once, appends the mapped samples to the
// buffered window, and returns a copy of the accumulated series.
func (a *ScrapeAgent) LoadSeries(ctx context.Context) ([]models.MetricSeries, error) {
	families, err := a.fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("scrape %s: %w", a.cfg.Name, err)
	}

	ts := a.now().UTC()

	a.mu.Lock()
	defer a.mu.Unlock()

	for metric, family := range a.cfg.Source.Metrics {
		mf, ok := families[family]
		if !ok {
			continue
		}
		points := append(a.series[metric], models.Observation{Timestamp: ts, Value: sumFamily(mf)})
		cutoff := ts.Add(-a.window)
		for len(points) > 0 && points[0].Timestamp.Before(cutoff) {
			points = points[1:]
		}
		a.series[metric] = points
	}

	names := make([]string, 0, len(a.series))
	for metric := range a.series {
		names = append(names, metric)
	}
	sort.Strings(names)

	// Sorted output keeps the snapshot encoding stable, so memoization keys
	// match across scrapes of identical data.
	out := make([]models.MetricSeries, 0, len(names))
	for _, metric := range names {
		out = append(out, models.MetricSeries{
			Service: a.cfg.Name,
			Metric:  metric,
			Points:  append([]models.Observation(nil), a.series[metric]...),
		})
	}
	return out, nil
}

func (a *ScrapeAgent) fetch(ctx context.Context) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.Source.Endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return parseExposition(resp.Body)
}

// parseExposition decodes a Prometheus text exposition into metric families.
// A partial result with a non-fatal parse warning still counts as success.
func parseExposition(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse exposition: %w", err)
	}
	return mfs, nil
}

// sumFamily adds up all counter, gauge, or untyped values in a MetricFamily.
func sumFamily(mf *dto.MetricFamily) float64 {
	var total float64
	for _, m := range mf.GetMetric() {
		switch {
		case m.Counter != nil:
			total += m.Counter.GetValue()
		case m.Gauge != nil:
			total += m.Gauge.GetValue()
		case m.Untyped != nil:
			total += m.Untyped.GetValue()
		}
	}
	return total
}
