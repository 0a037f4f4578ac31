package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tierlens/tierlens/internal/models"
)

// Config captures everything needed to boot the analyzer service. The
// analysis surface (thresholds, tiers, weights, catalogue and recommendation
// paths, statistical constants) is all data here, swappable without touching
// the engine.
type Config struct {
	Server          ServerConfig    `yaml:"server"`
	Logging         LoggingConfig   `yaml:"logging"`
	Analysis        AnalysisConfig  `yaml:"analysis"`
	Services        []ServiceConfig `yaml:"services"`
	Catalogue       PathConfig      `yaml:"catalogue"`
	Recommendations PathConfig      `yaml:"recommendations"`
	Cache           CacheConfig     `yaml:"cache"`
	Scrape          ScrapeConfig    `yaml:"scrape"`
}

// ServerConfig controls the HTTP listeners.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// AnalysisConfig holds the statistical constants of one run.
type AnalysisConfig struct {
	ToleranceWindow time.Duration `yaml:"toleranceWindow"`
	SampleFloor     int           `yaml:"sampleFloor"`
	ModerateCutoff  float64       `yaml:"moderateCutoff"`
	HighCutoff      float64       `yaml:"highCutoff"`
	DegradedCutoff  float64       `yaml:"degradedCutoff"`
	CriticalCutoff  float64       `yaml:"criticalCutoff"`
	OutlierSigma    float64       `yaml:"outlierSigma"`
	SustainedMin    time.Duration `yaml:"sustainedMin"`
	RateMetrics     []string      `yaml:"rateMetrics"`
}

// ServiceConfig assigns a service its tier, aggregation weight, scored-metric
// thresholds, and optionally a scrape source.
type ServiceConfig struct {
	Name       string             `yaml:"name"`
	Tier       string             `yaml:"tier"`
	Weight     float64            `yaml:"weight"`
	Thresholds map[string]float64 `yaml:"thresholds"`
	Source     SourceConfig       `yaml:"source"`
}

// SourceConfig points at a collaborator's Prometheus text endpoint and maps
// exposition family names onto the service's metric names.
type SourceConfig struct {
	Endpoint string            `yaml:"endpoint"`
	Metrics  map[string]string `yaml:"metrics"`
	Timeout  time.Duration     `yaml:"timeout"`
}

// PathConfig references an external YAML data file.
type PathConfig struct {
	Path string `yaml:"path"`
}

// CacheConfig controls result memoization.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
}

// ScrapeConfig controls the optional periodic scrape-and-analyze loop.
type ScrapeConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Window   time.Duration `yaml:"window"`
}

// Load initialises Config from a YAML file and optional environment
// overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("TIERLENS_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects malformed threshold and tier configuration up front, so a
// bad override surfaces as a config error rather than a defaulted score.
func (c *Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Services))
	for _, svc := range c.Services {
		if svc.Name == "" {
			return fmt.Errorf("service with empty name in config")
		}
		if _, dup := seen[svc.Name]; dup {
			return fmt.Errorf("service %q configured twice", svc.Name)
		}
		seen[svc.Name] = struct{}{}
		if _, err := models.ParseTier(svc.Tier); err != nil {
			return fmt.Errorf("service %s: %w", svc.Name, err)
		}
		for metric, threshold := range svc.Thresholds {
			if threshold <= 0 {
				return fmt.Errorf("service %s metric %s: threshold must be positive, got %v", svc.Name, metric, threshold)
			}
		}
	}
	return nil
}

// TierFor resolves a service's configured tier; unknown services default to
// the application tier.
func (c *Config) TierFor(service string) models.Tier {
	for _, svc := range c.Services {
		if strings.EqualFold(svc.Name, service) {
			tier, err := models.ParseTier(svc.Tier)
			if err == nil {
				return tier
			}
		}
	}
	return models.TierApplication
}

// ThresholdsFor returns a copy of a service's configured thresholds.
func (c *Config) ThresholdsFor(service string) map[string]float64 {
	for _, svc := range c.Services {
		if strings.EqualFold(svc.Name, service) {
			out := make(map[string]float64, len(svc.Thresholds))
			for k, v := range svc.Thresholds {
				out[k] = v
			}
			return out
		}
	}
	return nil
}

// Weights builds the aggregation weight map from explicit per-service values.
// Services without one fall back to their tier default inside the aggregator.
func (c *Config) Weights() map[string]float64 {
	weights := make(map[string]float64)
	for _, svc := range c.Services {
		if svc.Weight > 0 {
			weights[svc.Name] = svc.Weight
		}
	}
	return weights
}

// Fingerprint hashes the analysis-relevant configuration. The memoization key
// combines this with the snapshot hash so a config change invalidates cached
// results.
func (c *Config) Fingerprint() string {
	type fingerprint struct {
		Analysis AnalysisConfig
		Services []ServiceConfig
		CatPath  string
		RecPath  string
	}
	fp := fingerprint{
		Analysis: c.Analysis,
		Services: append([]ServiceConfig(nil), c.Services...),
		CatPath:  c.Catalogue.Path,
		RecPath:  c.Recommendations.Path,
	}
	sort.Slice(fp.Services, func(i, j int) bool { return fp.Services[i].Name < fp.Services[j].Name })
	data, err := json.Marshal(fp)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Analysis: AnalysisConfig{
			ToleranceWindow: 5 * time.Minute,
			SampleFloor:     3,
			ModerateCutoff:  0.5,
			HighCutoff:      0.7,
			DegradedCutoff:  70,
			CriticalCutoff:  40,
			OutlierSigma:    3,
			SustainedMin:    10 * time.Minute,
			RateMetrics:     []string{"error_rate", "cache_miss_rate"},
		},
		Services: defaultServices(),
		Cache: CacheConfig{
			Enabled: true,
			TTL:     5 * time.Minute,
		},
		Scrape: ScrapeConfig{
			Enabled:  false,
			Interval: time.Minute,
			Window:   30 * time.Minute,
		},
	}
}

// defaultServices mirrors the stock multi-tier deployment: a cluster at the
// infrastructure tier, a database, a cache, and two application-tier services.
func defaultServices() []ServiceConfig {
	return []ServiceConfig{
		{
			Name: "aks", Tier: "infrastructure", Weight: 1.5,
			Thresholds: map[string]float64{
				"cpu_usage_percent":    80,
				"memory_usage_percent": 85,
				"pod_restarts":         5,
			},
		},
		{
			Name: "sqlserver", Tier: "database", Weight: 1.3,
			Thresholds: map[string]float64{
				"dtu_percent":        80,
				"avg_query_time_ms":  300,
				"active_connections": 150,
			},
		},
		{
			Name: "rediscache", Tier: "cache", Weight: 1.2,
			Thresholds: map[string]float64{
				"cache_miss_rate":      20,
				"memory_usage_percent": 90,
				"evictions_per_min":    100,
			},
		},
		{
			Name: "blobstorage", Tier: "application", Weight: 1.0,
			Thresholds: map[string]float64{
				"avg_latency_ms": 100,
				"error_rate":     2,
			},
		},
		{
			Name: "api", Tier: "application", Weight: 1.0,
			Thresholds: map[string]float64{
				"avg_response_time_ms": 500,
				"error_rate":           5,
			},
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TIERLENS_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("TIERLENS_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("TIERLENS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TIERLENS_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("TIERLENS_CATALOGUE_PATH"); v != "" {
		cfg.Catalogue.Path = v
	}
	if v := os.Getenv("TIERLENS_RECOMMENDATIONS_PATH"); v != "" {
		cfg.Recommendations.Path = v
	}
	if v := os.Getenv("TIERLENS_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("TIERLENS_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.TTL = d
		}
	}
	if v := os.Getenv("TIERLENS_SCRAPE_ENABLED"); v != "" {
		cfg.Scrape.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("TIERLENS_SCRAPE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Scrape.Interval = d
		}
	}
	if v := os.Getenv("TIERLENS_TOLERANCE_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Analysis.ToleranceWindow = d
		}
	}
	if v := os.Getenv("TIERLENS_SAMPLE_FLOOR"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Analysis.SampleFloor = n
		}
	}
}
