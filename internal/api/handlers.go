package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/tierlens/tierlens/internal/config"
	"github.com/tierlens/tierlens/internal/engine"
	"github.com/tierlens/tierlens/internal/models"
	"github.com/tierlens/tierlens/internal/utils"
)

const maxRequestBytes = 8 << 20

// AnalysisService runs analyses on behalf of the handler.
type AnalysisService interface {
	Analyze(ctx context.Context, snap models.Snapshot) (models.AnalysisResult, error)
	LatencyP95() time.Duration
	LastOverallScore() *float64
}

// ConfigSource hands the handler the current configuration. Hot reloads swap
// the config behind this function without restarting the server.
type ConfigSource func() *config.Config

// CatalogueSource hands the handler the current candidate-pair catalogue.
type CatalogueSource func() *engine.Catalogue

// Handler serves the analysis API.
type Handler struct {
	logger    *slog.Logger
	analyzer  AnalysisService
	catalogue CatalogueSource
	cfg       ConfigSource
	stream    http.Handler
}

// NewHandler wires the API routes. stream may be nil when the live feed is
// disabled.
func NewHandler(
	logger *slog.Logger,
	analyzer AnalysisService,
	catalogue CatalogueSource,
	cfg ConfigSource,
	stream http.Handler,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		analyzer:  analyzer,
		catalogue: catalogue,
		cfg:       cfg,
		stream:    stream,
	}
}

// Routes returns the configured mux.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/analyze", h.handleAnalyze)
	mux.HandleFunc("GET /api/v1/health", h.handleHealth)
	mux.HandleFunc("GET /api/v1/catalogue", h.handleCatalogue)
	if h.stream != nil {
		mux.Handle("GET /api/v1/stream", h.stream)
	}
	return mux
}

// AnalyzeRequest is the analyze endpoint payload. Tier and thresholds may be
// omitted per service; the configured defaults for that service name apply.
type AnalyzeRequest struct {
	Window   *WindowRequest   `json:"window,omitempty"`
	Services []ServiceRequest `json:"services"`
}

// WindowRequest optionally restricts the observations considered, both
// bounds RFC3339 and inclusive.
type WindowRequest struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// ServiceRequest carries one service's metric series keyed by metric name.
type ServiceRequest struct {
	Name       string                          `json:"name"`
	Tier       string                          `json:"tier,omitempty"`
	Thresholds map[string]float64              `json:"thresholds,omitempty"`
	Metrics    map[string][]models.Observation `json:"metrics"`
}

func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.jsonErr(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Services) == 0 {
		h.jsonErr(w, http.StatusBadRequest, "at least one service is required")
		return
	}

	snap, err := h.toSnapshot(req)
	if err != nil {
		h.jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.analyzer.Analyze(r.Context(), snap)
	if err != nil {
		h.logger.Error("analysis failed", slog.Any("error", err))
		h.jsonErr(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	h.jsonResp(w, http.StatusOK, result)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{
		"status":          "ok",
		"analysis_p95_ms": h.analyzer.LatencyP95().Milliseconds(),
	}
	if score := h.analyzer.LastOverallScore(); score != nil {
		body["last_overall_score"] = *score
	}
	h.jsonResp(w, http.StatusOK, body)
}

func (h *Handler) handleCatalogue(w http.ResponseWriter, _ *http.Request) {
	h.jsonResp(w, http.StatusOK, map[string]any{
		"pairs": h.catalogue().Pairs,
	})
}

// toSnapshot converts the request into the engine snapshot, filling omitted
// tiers and thresholds from configuration.
func (h *Handler) toSnapshot(req AnalyzeRequest) (models.Snapshot, error) {
	window, err := parseWindow(req.Window)
	if err != nil {
		return models.Snapshot{}, err
	}

	cfg := h.cfg()
	snap := models.Snapshot{Services: make([]models.ServiceSnapshot, 0, len(req.Services))}
	for _, svc := range req.Services {
		if svc.Name == "" {
			return models.Snapshot{}, utils.NewAppError("analyze", "service name is required", nil)
		}

		tier := cfg.TierFor(svc.Name)
		if svc.Tier != "" {
			parsed, err := models.ParseTier(svc.Tier)
			if err != nil {
				return models.Snapshot{}, utils.NewAppError("analyze", "service "+svc.Name, err)
			}
			tier = parsed
		}

		thresholds := svc.Thresholds
		if thresholds == nil {
			thresholds = cfg.ThresholdsFor(svc.Name)
		}

		names := make([]string, 0, len(svc.Metrics))
		for metric := range svc.Metrics {
			names = append(names, metric)
		}
		sort.Strings(names)

		series := make([]models.MetricSeries, 0, len(names))
		for _, metric := range names {
			points := trimWindow(svc.Metrics[metric], window)
			if len(points) == 0 {
				continue
			}
			series = append(series, models.MetricSeries{
				Service: svc.Name,
				Metric:  metric,
				Points:  points,
			})
		}

		snap.Services = append(snap.Services, models.ServiceSnapshot{
			Name:       svc.Name,
			Tier:       tier,
			Thresholds: thresholds,
			Series:     series,
		})
	}
	return snap, nil
}

func parseWindow(req *WindowRequest) (*models.TimeRange, error) {
	if req == nil {
		return nil, nil
	}
	var window models.TimeRange
	var err error
	if req.Start != "" {
		if window.Start, err = time.Parse(time.RFC3339, req.Start); err != nil {
			return nil, utils.NewAppError("analyze", "invalid window start", err)
		}
	}
	if req.End != "" {
		if window.End, err = time.Parse(time.RFC3339, req.End); err != nil {
			return nil, utils.NewAppError("analyze", "invalid window end", err)
		}
	}
	if !window.Start.IsZero() && !window.End.IsZero() && window.End.Before(window.Start) {
		return nil, utils.NewAppError("analyze", "window end precedes start", nil)
	}
	return &window, nil
}

func trimWindow(points []models.Observation, window *models.TimeRange) []models.Observation {
	if window == nil {
		return append([]models.Observation(nil), points...)
	}
	kept := make([]models.Observation, 0, len(points))
	for _, p := range points {
		if !window.Start.IsZero() && p.Timestamp.Before(window.Start) {
			continue
		}
		if !window.End.IsZero() && p.Timestamp.After(window.End) {
			continue
		}
		kept = append(kept, p)
	}
	return kept
}

func (h *Handler) jsonResp(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Warn("response encode failed", slog.Any("error", err))
	}
}

func (h *Handler) jsonErr(w http.ResponseWriter, status int, msg string) {
	h.jsonResp(w, status, map[string]any{
		"error":     msg,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
