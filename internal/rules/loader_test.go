package rules

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/serpstack/aiops-engine/internal/models"
)

const samplePack = `
suppression_rules:
  - id: mute-staging
    description: Staging noise is not actionable
    conditions:
      source_contains: ["staging"]
    reason: known_issue
    enabled: true

remediation_rules:
  - id: restart-on-refused
    description: Restart after repeated connection refusals
    conditions:
      event_type: error_event
      error_pattern: "connection refused"
      error_min_count: 3
    actions:
      - type: restart_service
        target: api-service
    priority: 20
    enabled: true
    max_executions: 10
    cooldown_minutes: 15
`

func writePack(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write pack: %v", err)
	}
	return path
}

func TestLoadPack(t *testing.T) {
	loader, err := NewLoader(writePack(t, samplePack), nil)
	if err != nil {
		t.Fatalf("new loader: %v", err)
	}
	pack := loader.Pack()

	if len(pack.Suppression) != 1 {
		t.Fatalf("expected one suppression rule, got %d", len(pack.Suppression))
	}
	if pack.Suppression[0].Reason != models.ReasonKnownIssue {
		t.Fatalf("unexpected reason %s", pack.Suppression[0].Reason)
	}

	if len(pack.Remediation) != 1 {
		t.Fatalf("expected one remediation rule, got %d", len(pack.Remediation))
	}
	rule := pack.Remediation[0]
	if rule.Cooldown != 15*time.Minute {
		t.Fatalf("cooldown_minutes must convert to a duration, got %s", rule.Cooldown)
	}
	if rule.Conditions.EventType == nil || *rule.Conditions.EventType != models.EventTypeError {
		t.Fatalf("event type predicate not parsed")
	}
	if rule.Conditions.ErrorMinCount == nil || *rule.Conditions.ErrorMinCount != 3 {
		t.Fatalf("error_min_count predicate not parsed")
	}
	if len(rule.Actions) != 1 || rule.Actions[0].Type != models.ActionRestartService {
		t.Fatalf("actions not parsed: %+v", rule.Actions)
	}
}

func TestAbsentFileYieldsEmptyPack(t *testing.T) {
	loader, err := NewLoader(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	if err != nil {
		t.Fatalf("absent file must not be an error: %v", err)
	}
	pack := loader.Pack()
	if len(pack.Suppression) != 0 || len(pack.Remediation) != 0 {
		t.Fatalf("absent file must yield an empty pack")
	}
}

func TestMalformedPackIsAnError(t *testing.T) {
	if _, err := NewLoader(writePack(t, "suppression_rules: [not a rule"), nil); err == nil {
		t.Fatalf("malformed YAML must fail loading")
	}
}

func TestRemediationRuleWithoutIDSkipped(t *testing.T) {
	loader, err := NewLoader(writePack(t, `
remediation_rules:
  - description: no id here
    enabled: true
`), nil)
	if err != nil {
		t.Fatalf("new loader: %v", err)
	}
	if len(loader.Pack().Remediation) != 0 {
		t.Fatalf("rule without id must be skipped")
	}
}

func TestReloadNotifiesCallbacks(t *testing.T) {
	path := writePack(t, samplePack)
	loader, err := NewLoader(path, nil)
	if err != nil {
		t.Fatalf("new loader: %v", err)
	}

	var got Pack
	loader.OnChange(func(p Pack) { got = p })

	updated := samplePack + `
  - id: scale-up-burst
    description: Add replicas during traffic bursts
    conditions:
      event_type: system_metric
      metric_name: request_rate
      metric_threshold: 1000
    actions:
      - type: scale_up
        target: api-deployment
    priority: 30
    enabled: true
    max_executions: 5
    cooldown_minutes: 10
`
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("rewrite pack: %v", err)
	}
	if _, err := loader.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(got.Remediation) != 2 {
		t.Fatalf("callback must observe the reloaded pack, got %d remediation rules", len(got.Remediation))
	}
}
