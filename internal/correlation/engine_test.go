package correlation

import (
	"testing"
	"time"

	"github.com/serpstack/aiops-engine/internal/config"
	"github.com/serpstack/aiops-engine/internal/models"
)

func testConfig() config.CorrelationConfig {
	return config.CorrelationConfig{
		Enabled:              true,
		Methods:              []string{"temporal", "causal"},
		WindowMinutes:        10,
		MinCorrelationEvents: 2,
		AlertThreshold:       0.8,
	}
}

func TestCorrelateEmptyBatch(t *testing.T) {
	engine := NewEngine(testConfig(), nil)
	if got := engine.Correlate(nil); len(got) != 0 {
		t.Fatalf("expected empty result for empty batch, got %d", len(got))
	}
}

func TestTemporalCorrelationSharedID(t *testing.T) {
	engine := NewEngine(testConfig(), nil)
	now := time.Now()
	events := []models.Event{
		{ID: "ev-1", Type: models.EventTypeSystemMetric, Source: "app-1", Severity: models.SeverityHigh, Timestamp: now, CorrelationID: "corr-a"},
		{ID: "ev-2", Type: models.EventTypeSystemMetric, Source: "app-1", Severity: models.SeverityHigh, Timestamp: now.Add(2 * time.Minute), CorrelationID: "corr-a"},
	}

	results := engine.Correlate(events)

	var temporal []models.Correlation
	for _, c := range results {
		if c.Method == models.MethodTemporal {
			temporal = append(temporal, c)
		}
	}
	if len(temporal) == 0 {
		t.Fatalf("expected at least one temporal correlation")
	}
	ids := temporal[0].EventIDs
	if !containsString(ids, "ev-1") || !containsString(ids, "ev-2") {
		t.Fatalf("temporal correlation missing member ids: %v", ids)
	}
}

func TestCausalCorrelationDelta(t *testing.T) {
	cfg := testConfig()
	cfg.Methods = []string{"causal"}
	engine := NewEngine(cfg, nil)
	base := time.Now()
	events := []models.Event{
		{ID: "cause", Type: models.EventTypeSystemMetric, Source: "db-1", Severity: models.SeverityHigh, Timestamp: base},
		{ID: "effect", Type: models.EventTypeError, Source: "db-1", Severity: models.SeverityHigh, Timestamp: base.Add(30 * time.Second)},
	}

	results := engine.Correlate(events)
	if len(results) != 1 {
		t.Fatalf("expected exactly one causal record, got %d", len(results))
	}
	got := results[0]
	if got.CauseID != "cause" || got.EffectID != "effect" {
		t.Fatalf("unexpected pair: cause=%s effect=%s", got.CauseID, got.EffectID)
	}
	if got.DeltaSeconds != 30 {
		t.Fatalf("expected delta_seconds=30, got %f", got.DeltaSeconds)
	}
}

func TestCausalSkipsSameType(t *testing.T) {
	cfg := testConfig()
	cfg.Methods = []string{"causal"}
	engine := NewEngine(cfg, nil)
	base := time.Now()
	events := []models.Event{
		{ID: "a", Type: models.EventTypeLog, Source: "svc", Severity: models.SeverityLow, Timestamp: base},
		{ID: "b", Type: models.EventTypeLog, Source: "svc", Severity: models.SeverityLow, Timestamp: base.Add(time.Second)},
	}
	if got := engine.Correlate(events); len(got) != 0 {
		t.Fatalf("expected no causal pair for same-type events, got %d", len(got))
	}
}

func TestCorrelateIdempotent(t *testing.T) {
	engine := NewEngine(testConfig(), nil)
	base := time.Now()
	events := []models.Event{
		{ID: "e1", Type: models.EventTypeSystemMetric, Source: "app", Severity: models.SeverityMedium, Timestamp: base, CorrelationID: "c1"},
		{ID: "e2", Type: models.EventTypeSystemMetric, Source: "app", Severity: models.SeverityMedium, Timestamp: base.Add(time.Minute), CorrelationID: "c1"},
		{ID: "e3", Type: models.EventTypeError, Source: "app", Severity: models.SeverityHigh, Timestamp: base.Add(90 * time.Second)},
	}

	first := pairSet(engine.Correlate(events))
	second := pairSet(engine.Correlate(events))
	if len(first) != len(second) {
		t.Fatalf("correlate not idempotent: %d vs %d pairs", len(first), len(second))
	}
	for k := range first {
		if _, ok := second[k]; !ok {
			t.Fatalf("pair %s missing on second pass", k)
		}
	}
}

func TestGenerateAlertsThreshold(t *testing.T) {
	engine := NewEngine(testConfig(), nil)
	base := time.Now()
	events := []models.Event{
		{ID: "e1", Type: models.EventTypeSecurity, Source: "auth", Severity: models.SeverityCritical, Timestamp: base, CorrelationID: "sec-1"},
		{ID: "e2", Type: models.EventTypeError, Source: "auth", Severity: models.SeverityCritical, Timestamp: base.Add(2 * time.Minute), CorrelationID: "sec-1"},
	}
	correlations := engine.Correlate(events)
	alerts := engine.GenerateAlerts(correlations, events)
	if len(alerts) == 0 {
		t.Fatalf("expected alerts for high-scoring security correlation")
	}
	for _, a := range alerts {
		if a.Score < 0.8 {
			t.Fatalf("alert emitted below threshold: %f", a.Score)
		}
		if a.Type != models.AlertTypeSecurityIncident {
			t.Fatalf("security members must win type precedence, got %s", a.Type)
		}
		if a.Severity != models.SeverityCritical {
			t.Fatalf("expected critical severity, got %s", a.Severity)
		}
	}
}

func TestGenerateAlertsLowScoreFiltered(t *testing.T) {
	engine := NewEngine(testConfig(), nil)
	base := time.Now()
	events := []models.Event{
		{ID: "e1", Type: models.EventTypeLog, Source: "web", Severity: models.SeverityLow, Timestamp: base, CorrelationID: "quiet"},
		{ID: "e2", Type: models.EventTypeLog, Source: "web", Severity: models.SeverityLow, Timestamp: base.Add(time.Second), CorrelationID: "quiet"},
	}
	correlations := engine.Correlate(events)
	if alerts := engine.GenerateAlerts(correlations, events); len(alerts) != 0 {
		t.Fatalf("expected no alerts for low-severity log cluster, got %d", len(alerts))
	}
}

func pairSet(correlations []models.Correlation) map[string]struct{} {
	set := make(map[string]struct{}, len(correlations))
	for _, c := range correlations {
		set[c.ID+"|"+string(c.Method)] = struct{}{}
	}
	return set
}

func containsString(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
