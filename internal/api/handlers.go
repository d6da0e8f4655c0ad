package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/serpstack/aiops-engine/internal/alerting"
	"github.com/serpstack/aiops-engine/internal/anomaly"
	"github.com/serpstack/aiops-engine/internal/config"
	"github.com/serpstack/aiops-engine/internal/models"
	"github.com/serpstack/aiops-engine/internal/pipeline"
	"github.com/serpstack/aiops-engine/internal/remediation"
	"github.com/serpstack/aiops-engine/internal/rules"
	"github.com/serpstack/aiops-engine/internal/utils"
)

// Handler holds all HTTP handler dependencies.
type Handler struct {
	cfg        config.ServerConfig
	logger     *slog.Logger
	pipe       *pipeline.Pipeline
	detector   *anomaly.Detector
	optimizer  *alerting.Optimizer
	remediator *remediation.Engine
	loaders    []*rules.Loader
	mux        *http.ServeMux
}

// NewHandler creates the HTTP handler and registers all routes.
func NewHandler(
	cfg config.ServerConfig,
	logger *slog.Logger,
	pipe *pipeline.Pipeline,
	detector *anomaly.Detector,
	optimizer *alerting.Optimizer,
	remediator *remediation.Engine,
	loaders ...*rules.Loader,
) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		cfg:        cfg,
		logger:     logger,
		pipe:       pipe,
		detector:   detector,
		optimizer:  optimizer,
		remediator: remediator,
		loaders:    loaders,
		mux:        http.NewServeMux(),
	}

	h.mux.HandleFunc("POST /v1/events", h.ingestEvents)
	h.mux.HandleFunc("POST /v1/alerts", h.ingestAlerts)
	h.mux.HandleFunc("GET /v1/alerts/optimized", h.listOptimizedAlerts)
	h.mux.HandleFunc("GET /v1/actions", h.listActions)
	h.mux.HandleFunc("GET /v1/patterns", h.listPatterns)
	h.mux.HandleFunc("POST /v1/train", h.train)
	h.mux.HandleFunc("POST /v1/rules/reload", h.reloadRules)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return h.logging(h.mux)
}

// POST /v1/events: synchronous batch ingestion through the full pipeline.
func (h *Handler) ingestEvents(w http.ResponseWriter, r *http.Request) {
	var events []models.Event
	if err := json.NewDecoder(r.Body).Decode(&events); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if len(events) == 0 {
		writeError(w, http.StatusBadRequest, "batch must contain at least one event")
		return
	}
	if max := h.cfg.MaxBatchSize; max > 0 && len(events) > max {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("batch size %d exceeds max %d", len(events), max))
		return
	}

	result := h.pipe.ProcessBatch(r.Context(), events, nil)
	writeJSON(w, http.StatusOK, result)
}

// POST /v1/alerts: raw alert batch through suppression/grouping/scoring.
func (h *Handler) ingestAlerts(w http.ResponseWriter, r *http.Request) {
	var alerts []models.RawAlert
	if err := json.NewDecoder(r.Body).Decode(&alerts); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if len(alerts) == 0 {
		writeError(w, http.StatusBadRequest, "batch must contain at least one alert")
		return
	}
	if max := h.cfg.MaxBatchSize; max > 0 && len(alerts) > max {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("batch size %d exceeds max %d", len(alerts), max))
		return
	}

	result := h.pipe.ProcessBatch(r.Context(), nil, alerts)
	writeJSON(w, http.StatusOK, result)
}

// GET /v1/alerts/optimized: the optimizer's alert ledger plus counters.
func (h *Handler) listOptimizedAlerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": h.optimizer.Alerts(),
		"groups": h.optimizer.Groups(),
		"stats":  h.optimizer.Stats(),
	})
}

// GET /v1/actions: the remediation action ledger, optionally filtered by a
// ?since=RFC3339 lower bound on the start timestamp.
func (h *Handler) listActions(w http.ResponseWriter, r *http.Request) {
	actions := h.remediator.Actions()
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := utils.ParseRFC3339(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid since parameter: %s", err))
			return
		}
		filtered := actions[:0]
		for _, a := range actions {
			if !a.StartedAt.Before(since) {
				filtered = append(filtered, a)
			}
		}
		actions = filtered
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"actions": actions,
	})
}

// GET /v1/patterns: failure patterns mined from the correlation stream.
func (h *Handler) listPatterns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"patterns": h.pipe.Patterns(),
	})
}

// POST /v1/train: fit the anomaly ensemble on a labeled-free event batch.
func (h *Handler) train(w http.ResponseWriter, r *http.Request) {
	var events []models.Event
	if err := json.NewDecoder(r.Body).Decode(&events); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}

	report, err := h.detector.Train(r.Context(), events)
	if err != nil {
		if errors.Is(err, anomaly.ErrInsufficientData) {
			// Not an exception: report the distinct status with the partial report.
			writeJSON(w, http.StatusUnprocessableEntity, report)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// POST /v1/rules/reload: hot-reload all rule packs from disk.
func (h *Handler) reloadRules(w http.ResponseWriter, r *http.Request) {
	suppression, remediationRules := 0, 0
	for _, loader := range h.loaders {
		pack, err := loader.Reload()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		suppression += len(pack.Suppression)
		remediationRules += len(pack.Remediation)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reloaded":          true,
		"suppression_rules": suppression,
		"remediation_rules": remediationRules,
	})
}

// GET /healthz: always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		h.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start))
	})
}
