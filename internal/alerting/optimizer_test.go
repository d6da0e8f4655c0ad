package alerting

import (
	"fmt"
	"testing"
	"time"

	"github.com/serpstack/aiops-engine/internal/config"
	"github.com/serpstack/aiops-engine/internal/models"
)

func testAlertingConfig() config.AlertingConfig {
	return config.AlertingConfig{
		Enabled:             true,
		TimeWindowMinutes:   10,
		MaxAlertsPerGroup:   50,
		SimilarityThreshold: 0.7,
	}
}

func TestOptimizeEmptyBatch(t *testing.T) {
	opt := NewOptimizer(testAlertingConfig(), nil)
	if got := opt.OptimizeAlerts(nil, nil, nil); got != nil {
		t.Fatalf("expected nil for empty batch, got %v", got)
	}
	if stats := opt.Stats(); stats.Processed != 0 {
		t.Fatalf("counters must stay unchanged on empty batch: %+v", stats)
	}
}

func TestOptimizeDisabled(t *testing.T) {
	cfg := testAlertingConfig()
	cfg.Enabled = false
	opt := NewOptimizer(cfg, nil)
	alerts := []models.RawAlert{{ID: "a-1", Severity: models.SeverityHigh}}
	if got := opt.OptimizeAlerts(alerts, nil, nil); got != nil {
		t.Fatalf("disabled optimizer must be a no-op")
	}
}

func TestSeverityPredicateDoesNotSuppressOtherSeverities(t *testing.T) {
	opt := NewOptimizer(testAlertingConfig(), nil)
	low := models.SeverityLow
	opt.SetRules([]models.SuppressionRule{{
		ID:         "low-only",
		Conditions: models.SuppressionConditions{Severity: &low},
		Reason:     models.ReasonLowSeverity,
		Enabled:    true,
	}})

	results := opt.OptimizeAlerts([]models.RawAlert{
		{ID: "crit-1", Severity: models.SeverityCritical, Source: "db", Timestamp: time.Now()},
	}, nil, nil)
	if len(results) != 1 {
		t.Fatalf("expected one optimized alert, got %d", len(results))
	}
	if results[0].Status == models.AlertSuppressed {
		t.Fatalf("severity predicate alone must not suppress a different severity")
	}
}

func TestLowSeverityFrequencySuppression(t *testing.T) {
	opt := NewOptimizer(testAlertingConfig(), nil)

	now := time.Now().UTC()
	// Five similar low-severity health-check alerts land in the ledger first.
	seed := make([]models.RawAlert, 0, 5)
	for i := 0; i < 5; i++ {
		seed = append(seed, models.RawAlert{
			ID:        fmt.Sprintf("hc-%d", i),
			Type:      "health_check",
			Severity:  models.SeverityLow,
			Source:    "health_check_service",
			Message:   "health probe failed",
			Timestamp: now.Add(-time.Duration(i) * time.Minute),
		})
	}
	opt.OptimizeAlerts(seed, nil, nil)

	results := opt.OptimizeAlerts([]models.RawAlert{{
		ID:        "hc-candidate",
		Type:      "health_check",
		Severity:  models.SeverityLow,
		Source:    "health_check_service",
		Message:   "health probe failed",
		Timestamp: now,
	}}, nil, nil)

	if len(results) != 1 {
		t.Fatalf("expected one optimized alert, got %d", len(results))
	}
	got := results[0]
	if got.Status != models.AlertSuppressed {
		t.Fatalf("expected suppression, got status %s", got.Status)
	}
	if got.SuppressionReason != string(models.ReasonLowSeverity) {
		t.Fatalf("expected reason low_severity, got %s", got.SuppressionReason)
	}
}

func TestImpactScoreScenario(t *testing.T) {
	alert := models.RawAlert{
		ID:              "sec-1",
		ImpactType:      "security_breach",
		AffectedUsers:   1500,
		DurationMinutes: 90,
	}
	if got := ImpactScore(alert); got != 1.0 {
		t.Fatalf("expected impact score 1.0, got %f", got)
	}
}

func TestPriorityMonotonicInSeverity(t *testing.T) {
	medium := models.RawAlert{ID: "a", Severity: models.SeverityMedium, Source: "web"}
	critical := medium
	critical.Severity = models.SeverityCritical
	if PriorityScore(critical, nil) < PriorityScore(medium, nil) {
		t.Fatalf("raising severity must never lower priority")
	}
}

func TestPriorityAnomalyReference(t *testing.T) {
	alert := models.RawAlert{ID: "a-9", Severity: models.SeverityLow, Source: "web"}
	without := PriorityScore(alert, nil)
	with := PriorityScore(alert, []models.AnomalyResult{{EventID: "a-9", IsAnomaly: true}})
	if with <= without {
		t.Fatalf("anomaly reference must raise priority: %f <= %f", with, without)
	}
}

func TestGroupingBySourceRequiresTwoMembers(t *testing.T) {
	opt := NewOptimizer(testAlertingConfig(), nil)
	opt.SetRules(nil)

	now := time.Now().UTC()
	results := opt.OptimizeAlerts([]models.RawAlert{
		{ID: "g-1", Type: "latency", Severity: models.SeverityHigh, Source: "api-gw", Timestamp: now},
		{ID: "g-2", Type: "latency", Severity: models.SeverityMedium, Source: "api-gw", Timestamp: now},
		{ID: "g-3", Type: "latency", Severity: models.SeverityLow, Source: "solo-svc", Timestamp: now},
	}, nil, nil)

	byID := make(map[string]models.OptimizedAlert)
	for _, r := range results {
		byID[r.ID] = r
	}
	if byID["g-1"].GroupID == "" || byID["g-2"].GroupID == "" {
		t.Fatalf("alerts sharing a source must be grouped")
	}
	if byID["g-1"].GroupID != byID["g-2"].GroupID {
		t.Fatalf("shared-source alerts must land in the same group")
	}

	groups := opt.Groups()
	var sourceGroup *models.AlertGroup
	for i := range groups {
		if groups[i].Strategy == models.GroupBySource && groups[i].Key == "api-gw" {
			sourceGroup = &groups[i]
		}
	}
	if sourceGroup == nil {
		t.Fatalf("expected a source group for api-gw")
	}
	if sourceGroup.Summary["dominant_severity"] != string(models.SeverityHigh) {
		t.Fatalf("expected dominant severity high, got %v", sourceGroup.Summary["dominant_severity"])
	}
}

func TestGroupIDNeverClearedByLaterPass(t *testing.T) {
	opt := NewOptimizer(testAlertingConfig(), nil)
	opt.SetRules(nil)

	now := time.Now().UTC()
	results := opt.OptimizeAlerts([]models.RawAlert{
		{ID: "s-1", Type: "errors", Severity: models.SeverityHigh, Source: "payments", Message: "timeout spike", Timestamp: now},
		{ID: "s-2", Type: "errors", Severity: models.SeverityHigh, Source: "payments", Message: "timeout spike", Timestamp: now.Add(time.Minute)},
	}, nil, nil)

	for _, r := range results {
		if r.GroupID == "" {
			t.Fatalf("alert %s should be grouped", r.ID)
		}
	}
	// Both were claimed by the source pass; later passes must not reassign.
	groups := opt.Groups()
	for _, g := range groups {
		if g.Strategy == models.GroupBySource {
			for _, r := range results {
				if r.GroupID != g.ID {
					t.Fatalf("group id reassigned from %s to %s", g.ID, r.GroupID)
				}
			}
		}
	}
}

func TestSuppressedAlertsNeverGrouped(t *testing.T) {
	opt := NewOptimizer(testAlertingConfig(), nil)
	low := models.SeverityLow
	opt.SetRules([]models.SuppressionRule{{
		ID:         "all-low",
		Conditions: models.SuppressionConditions{Severity: &low},
		Reason:     models.ReasonLowSeverity,
		Enabled:    true,
	}})

	now := time.Now().UTC()
	results := opt.OptimizeAlerts([]models.RawAlert{
		{ID: "l-1", Type: "noise", Severity: models.SeverityLow, Source: "cron", Timestamp: now},
		{ID: "l-2", Type: "noise", Severity: models.SeverityLow, Source: "cron", Timestamp: now},
	}, nil, nil)

	for _, r := range results {
		if r.Status != models.AlertSuppressed {
			t.Fatalf("expected suppression of %s", r.ID)
		}
		if r.GroupID != "" {
			t.Fatalf("suppressed alert %s must not be grouped", r.ID)
		}
	}
}

func TestRuleMutatorsEffectiveNextCall(t *testing.T) {
	opt := NewOptimizer(testAlertingConfig(), nil)
	opt.SetRules(nil)

	rule := models.SuppressionRule{
		ID:         "mute-batch-jobs",
		Conditions: models.SuppressionConditions{SourceContains: []string{"batch"}},
		Reason:     models.ReasonKnownIssue,
		Enabled:    true,
	}
	if err := opt.AddRule(rule); err != nil {
		t.Fatalf("add rule: %v", err)
	}
	if err := opt.AddRule(rule); err == nil {
		t.Fatalf("duplicate rule id must be rejected")
	}

	results := opt.OptimizeAlerts([]models.RawAlert{
		{ID: "b-1", Source: "batch-runner", Severity: models.SeverityMedium, Timestamp: time.Now()},
	}, nil, nil)
	if results[0].Status != models.AlertSuppressed {
		t.Fatalf("expected freshly added rule to apply on next pass")
	}

	if err := opt.DeleteRule("mute-batch-jobs"); err != nil {
		t.Fatalf("delete rule: %v", err)
	}
	if err := opt.DeleteRule("mute-batch-jobs"); err == nil {
		t.Fatalf("deleting a missing rule must error")
	}
}

func TestMaintenanceWindowPredicate(t *testing.T) {
	// 2026-03-07 is a Saturday.
	saturday := func(hour, minute int) time.Time {
		return time.Date(2026, 3, 7, hour, minute, 0, 0, time.UTC)
	}
	weekend := models.SuppressionConditions{
		MaintenanceWeekdays: []string{"saturday", "sunday"},
		MaintenanceStart:    "02:00",
		MaintenanceEnd:      "04:00",
	}

	cases := []struct {
		name string
		cond models.SuppressionConditions
		now  time.Time
		want bool
	}{
		{"inside window", weekend, saturday(3, 0), true},
		{"start boundary", weekend, saturday(2, 0), true},
		{"end boundary", weekend, saturday(4, 0), true},
		{"minute before start", weekend, saturday(1, 59), false},
		{"minute after end", weekend, saturday(4, 1), false},
		{"wrong weekday", weekend, time.Date(2026, 3, 9, 3, 0, 0, 0, time.UTC), false},
		{"weekday only", models.SuppressionConditions{MaintenanceWeekdays: []string{"Saturday"}}, saturday(23, 59), true},
		{"time range only", models.SuppressionConditions{MaintenanceStart: "02:00", MaintenanceEnd: "04:00"}, time.Date(2026, 3, 9, 3, 0, 0, 0, time.UTC), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := inMaintenanceWindow(tc.cond, tc.now); got != tc.want {
				t.Fatalf("inMaintenanceWindow(%v) = %v, want %v", tc.now, got, tc.want)
			}
		})
	}
}

func TestSimilarityGate(t *testing.T) {
	a := models.RawAlert{Type: "latency", Severity: models.SeverityHigh, Source: "api", Message: "p99 latency above threshold"}
	b := models.RawAlert{Type: "latency", Severity: models.SeverityHigh, Source: "api", Message: "p99 latency above threshold"}
	if !Similar(a, b) {
		t.Fatalf("identical alerts must be similar")
	}
	c := models.RawAlert{Type: "disk", Severity: models.SeverityLow, Source: "node-7", Message: "disk usage warning"}
	if Similar(a, c) {
		t.Fatalf("unrelated alerts must not be similar")
	}
	if PairScore(a, b) != 0.9 || PairScore(a, c) != 0.3 {
		t.Fatalf("pair scores must collapse to the two-level approximation")
	}
}
