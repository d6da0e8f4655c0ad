package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/serpstack/aiops-engine/internal/alerting"
	"github.com/serpstack/aiops-engine/internal/anomaly"
	"github.com/serpstack/aiops-engine/internal/config"
	"github.com/serpstack/aiops-engine/internal/correlation"
	"github.com/serpstack/aiops-engine/internal/executor"
	"github.com/serpstack/aiops-engine/internal/models"
	"github.com/serpstack/aiops-engine/internal/pipeline"
	"github.com/serpstack/aiops-engine/internal/remediation"
	"github.com/serpstack/aiops-engine/internal/storage"
)

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.Server.MaxBatchSize = 10

	store := storage.NewMemoryProvider()
	correlator := correlation.NewEngine(cfg.Correlation, nil)
	detector := anomaly.NewDetector(cfg.Anomaly, nil, store)
	optimizer := alerting.NewOptimizer(cfg.Alerting, nil)
	remediator := remediation.NewEngine(cfg.Remediation, remediation.DefaultRegistry(&executor.Simulated{}), nil)
	pipe := pipeline.NewPipeline(cfg, nil, correlator, detector, optimizer, remediator, store)

	return NewHandler(cfg.Server, nil, pipe, detector, optimizer, remediator)
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestIngestEventsReturnsResult(t *testing.T) {
	handler := newTestHandler(t)

	now := time.Now().UTC()
	events := []models.Event{
		{ID: "ev-1", Type: models.EventTypeSystemMetric, Source: "app-1", Severity: models.SeverityHigh, Timestamp: now, CorrelationID: "c-1"},
		{ID: "ev-2", Type: models.EventTypeSystemMetric, Source: "app-1", Severity: models.SeverityHigh, Timestamp: now.Add(2 * time.Minute), CorrelationID: "c-1"},
	}
	rec := postJSON(t, handler, "/v1/events", events)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var result pipeline.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Events != 2 {
		t.Fatalf("expected two processed events, got %d", result.Events)
	}
	if len(result.Correlations) == 0 {
		t.Fatalf("expected a correlation in the response")
	}
}

func TestIngestEventsRejectsEmptyAndOversized(t *testing.T) {
	handler := newTestHandler(t)

	if rec := postJSON(t, handler, "/v1/events", []models.Event{}); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty batch must be rejected, got %d", rec.Code)
	}

	big := make([]models.Event, 11)
	for i := range big {
		big[i] = models.Event{ID: fmt.Sprintf("ev-%d", i), Type: models.EventTypeLog, Source: "app", Severity: models.SeverityLow, Timestamp: time.Now()}
	}
	if rec := postJSON(t, handler, "/v1/events", big); rec.Code != http.StatusBadRequest {
		t.Fatalf("oversized batch must be rejected, got %d", rec.Code)
	}
}

func TestIngestAlertsOptimizes(t *testing.T) {
	handler := newTestHandler(t)

	alerts := []models.RawAlert{{
		ID: "al-1", Type: "breach", Severity: models.SeverityCritical, Source: "auth",
		ImpactType: "security_breach", AffectedUsers: 1500, DurationMinutes: 90,
		Timestamp: time.Now().UTC(),
	}}
	rec := postJSON(t, handler, "/v1/alerts", alerts)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var result pipeline.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(result.OptimizedAlerts) != 1 || result.OptimizedAlerts[0].ImpactScore != 1.0 {
		t.Fatalf("expected one optimized alert with impact 1.0, got %+v", result.OptimizedAlerts)
	}
}

func TestListOptimizedAlerts(t *testing.T) {
	handler := newTestHandler(t)

	postJSON(t, handler, "/v1/alerts", []models.RawAlert{{
		ID: "al-1", Type: "latency", Severity: models.SeverityHigh, Source: "api", Timestamp: time.Now(),
	}})

	req := httptest.NewRequest(http.MethodGet, "/v1/alerts/optimized", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var payload struct {
		Alerts []models.OptimizedAlert `json:"alerts"`
		Stats  alerting.Stats          `json:"stats"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if len(payload.Alerts) != 1 || payload.Stats.Processed != 1 {
		t.Fatalf("expected one ledger alert, got %+v", payload)
	}
}

func TestTrainInsufficientData(t *testing.T) {
	handler := newTestHandler(t)

	events := []models.Event{{ID: "ev-1", Type: models.EventTypeLog, Source: "app", Severity: models.SeverityLow, Timestamp: time.Now()}}
	rec := postJSON(t, handler, "/v1/train", events)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("too few samples must yield 422, got %d", rec.Code)
	}

	var report models.TrainingReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Trained {
		t.Fatalf("report must not claim training succeeded")
	}
}

func TestTrainThenDetect(t *testing.T) {
	handler := newTestHandler(t)

	now := time.Now().UTC()
	events := make([]models.Event, 0, 120)
	for i := 0; i < 120; i++ {
		events = append(events, models.Event{
			ID: fmt.Sprintf("tr-%d", i), Type: models.EventTypeSystemMetric, Source: "app-1",
			Severity: models.SeverityLow, Timestamp: now.Add(time.Duration(i) * time.Second),
			Payload: map[string]any{"metric_name": "cpu_usage", "value": 40.0 + float64(i%5)},
		})
	}
	rec := postJSON(t, handler, "/v1/train", events)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from training, got %d: %s", rec.Code, rec.Body.String())
	}

	var report models.TrainingReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if !report.Trained {
		t.Fatalf("expected a trained report")
	}
}

func TestHealthz(t *testing.T) {
	handler := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
