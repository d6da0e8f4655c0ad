package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/serpstack/aiops-engine/internal/alerting"
	"github.com/serpstack/aiops-engine/internal/anomaly"
	"github.com/serpstack/aiops-engine/internal/config"
	"github.com/serpstack/aiops-engine/internal/correlation"
	"github.com/serpstack/aiops-engine/internal/executor"
	"github.com/serpstack/aiops-engine/internal/models"
	"github.com/serpstack/aiops-engine/internal/remediation"
	"github.com/serpstack/aiops-engine/internal/storage"
)

func newTestPipeline(t *testing.T, store storage.Provider) *Pipeline {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	correlator := correlation.NewEngine(cfg.Correlation, nil)
	detector := anomaly.NewDetector(cfg.Anomaly, nil, store)
	optimizer := alerting.NewOptimizer(cfg.Alerting, nil)
	remediator := remediation.NewEngine(cfg.Remediation, remediation.DefaultRegistry(&executor.Simulated{}), nil)
	return NewPipeline(cfg, nil, correlator, detector, optimizer, remediator, store)
}

func TestProcessBatchEmpty(t *testing.T) {
	store := storage.NewMemoryProvider()
	p := newTestPipeline(t, store)

	result := p.ProcessBatch(context.Background(), nil, nil)
	if result.Events != 0 || len(result.Correlations) != 0 || len(result.OptimizedAlerts) != 0 {
		t.Fatalf("empty batch must yield an empty result: %+v", result)
	}
	if store.Len() != 0 {
		t.Fatalf("empty batch must not touch storage")
	}
}

func TestProcessBatchCorrelatesAndPersists(t *testing.T) {
	store := storage.NewMemoryProvider()
	p := newTestPipeline(t, store)

	now := time.Now().UTC()
	events := []models.Event{
		{
			ID: "ev-1", Type: models.EventTypeSystemMetric, Source: "app-1",
			Severity: models.SeverityHigh, Timestamp: now,
			CorrelationID: "corr-1",
			Payload:       map[string]any{"metric_name": "cpu_usage", "value": 95.0},
		},
		{
			ID: "ev-2", Type: models.EventTypeSystemMetric, Source: "app-1",
			Severity: models.SeverityHigh, Timestamp: now.Add(2 * time.Minute),
			CorrelationID: "corr-1",
			Payload:       map[string]any{"metric_name": "cpu_usage", "value": 97.0},
		},
	}

	result := p.ProcessBatch(context.Background(), events, nil)
	if result.Events != 2 {
		t.Fatalf("expected both events counted, got %d", result.Events)
	}
	if len(result.Correlations) == 0 {
		t.Fatalf("expected a temporal correlation for the shared correlation id")
	}
	if len(result.Anomalies) != 0 {
		t.Fatalf("untrained detector must contribute no anomalies")
	}
	if store.Len() == 0 {
		t.Fatalf("events and correlations must be persisted")
	}
	if _, err := store.Get(context.Background(), storage.KeyPrefixEvent+"ev-1"); err != nil {
		t.Fatalf("event not persisted: %v", err)
	}
}

func TestProcessBatchSkipsMalformedEvents(t *testing.T) {
	store := storage.NewMemoryProvider()
	p := newTestPipeline(t, store)

	events := []models.Event{
		{ID: "", Type: models.EventTypeLog, Source: "app", Severity: models.SeverityLow, Timestamp: time.Now()},
		{ID: "ok-1", Type: models.EventTypeLog, Source: "app", Severity: models.SeverityLow, Timestamp: time.Now()},
	}
	result := p.ProcessBatch(context.Background(), events, nil)
	if result.Events != 1 || result.Skipped != 1 {
		t.Fatalf("expected one valid and one skipped event, got %+v", result)
	}
}

func TestProcessBatchHonorsStageEnableFlags(t *testing.T) {
	store := storage.NewMemoryProvider()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.Correlation.Enabled = false
	cfg.Anomaly.Enabled = false
	cfg.Anomaly.MinSamples = 10

	correlator := correlation.NewEngine(cfg.Correlation, nil)
	detector := anomaly.NewDetector(cfg.Anomaly, nil, store)
	optimizer := alerting.NewOptimizer(cfg.Alerting, nil)
	remediator := remediation.NewEngine(cfg.Remediation, remediation.DefaultRegistry(&executor.Simulated{}), nil)
	p := NewPipeline(cfg, nil, correlator, detector, optimizer, remediator, store)

	now := time.Now().UTC()
	training := make([]models.Event, 0, 40)
	for i := 0; i < 40; i++ {
		training = append(training, models.Event{
			ID: fmt.Sprintf("tr-%d", i), Type: models.EventTypeSystemMetric,
			Source: "app-1", Severity: models.SeverityLow,
			Timestamp: now.Add(time.Duration(i) * time.Minute),
			Payload:   map[string]any{"metric_name": "cpu_usage", "value": 40.0 + float64(i%5)},
		})
	}
	if _, err := detector.Train(context.Background(), training); err != nil {
		t.Fatalf("train: %v", err)
	}

	events := []models.Event{
		{
			ID: "ev-1", Type: models.EventTypeSystemMetric, Source: "app-1",
			Severity: models.SeverityHigh, Timestamp: now,
			CorrelationID: "corr-1",
			Payload:       map[string]any{"metric_name": "cpu_usage", "value": 95.0},
		},
		{
			ID: "ev-2", Type: models.EventTypeSystemMetric, Source: "app-1",
			Severity: models.SeverityHigh, Timestamp: now.Add(2 * time.Minute),
			CorrelationID: "corr-1",
			Payload:       map[string]any{"metric_name": "cpu_usage", "value": 97.0},
		},
	}
	result := p.ProcessBatch(context.Background(), events, nil)
	if result.Events != 2 {
		t.Fatalf("disabled stages must not drop events, got %d", result.Events)
	}
	if len(result.Correlations) != 0 || len(result.CorrelationAlerts) != 0 {
		t.Fatalf("disabled correlation stage must produce nothing, got %d correlations", len(result.Correlations))
	}
	if len(result.Anomalies) != 0 {
		t.Fatalf("disabled anomaly stage must produce nothing even when trained, got %d results", len(result.Anomalies))
	}
}

func TestProcessBatchOptimizesAlerts(t *testing.T) {
	store := storage.NewMemoryProvider()
	p := newTestPipeline(t, store)

	alerts := []models.RawAlert{
		{
			ID: "al-1", Type: "breach", Severity: models.SeverityCritical, Source: "auth",
			ImpactType: "security_breach", AffectedUsers: 1500, DurationMinutes: 90,
			Timestamp: time.Now().UTC(),
		},
	}
	result := p.ProcessBatch(context.Background(), nil, alerts)
	if len(result.OptimizedAlerts) != 1 {
		t.Fatalf("expected one optimized alert, got %d", len(result.OptimizedAlerts))
	}
	if result.OptimizedAlerts[0].ImpactScore != 1.0 {
		t.Fatalf("expected impact 1.0, got %f", result.OptimizedAlerts[0].ImpactScore)
	}
}
