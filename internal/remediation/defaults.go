package remediation

import (
	"time"

	"github.com/serpstack/aiops-engine/internal/models"
)

func ptrFloat(v float64) *float64                    { return &v }
func ptrInt(v int) *int                              { return &v }
func ptrType(v models.EventType) *models.EventType   { return &v }
func ptrSeverity(v models.Severity) *models.Severity { return &v }

// DefaultRemediationRules seeds the engine with the built-in rule pack.
// Operators override or extend it through the YAML rule pack and the rule
// mutators.
func DefaultRemediationRules() []models.RemediationRule {
	now := time.Now().UTC()
	rules := []models.RemediationRule{
		{
			ID:          "block-attack-source",
			Description: "Block the source IP of classified attack traffic",
			Conditions: models.RemediationConditions{
				EventType:   ptrType(models.EventTypeSecurity),
				AttackTypes: []string{"brute_force", "sql_injection", "credential_stuffing"},
			},
			Actions: []models.ActionSpec{
				{Type: models.ActionBlockIP, Target: "edge-firewall"},
				{Type: models.ActionSendAlert, Target: "security-oncall"},
			},
			Priority:      10,
			Enabled:       true,
			MaxExecutions: 50,
			Cooldown:      5 * time.Minute,
		},
		{
			ID:          "restart-unhealthy-service",
			Description: "Restart a service after repeated critical errors",
			Conditions: models.RemediationConditions{
				EventType:     ptrType(models.EventTypeError),
				ErrorPattern:  "connection refused",
				ErrorSeverity: ptrSeverity(models.SeverityHigh),
				ErrorMinCount: ptrInt(3),
			},
			Actions: []models.ActionSpec{
				{Type: models.ActionRestartService, Target: "api-service"},
			},
			Priority:      20,
			Enabled:       true,
			MaxExecutions: 10,
			Cooldown:      15 * time.Minute,
		},
		{
			ID:          "scale-up-on-cpu-pressure",
			Description: "Add replicas when CPU stays above 90% for several samples",
			Conditions: models.RemediationConditions{
				EventType:       ptrType(models.EventTypeSystemMetric),
				MetricName:      "cpu_usage",
				MetricThreshold: ptrFloat(90),
				MetricMinCount:  ptrInt(3),
				MetricWindowMin: ptrInt(5),
			},
			Actions: []models.ActionSpec{
				{Type: models.ActionScaleUp, Target: "api-deployment", Parameters: map[string]any{"replicas": 2}},
			},
			Priority:      30,
			Enabled:       true,
			MaxExecutions: 5,
			Cooldown:      10 * time.Minute,
		},
		{
			ID:          "flag-slow-queries",
			Description: "Surface repeated slow database queries for optimization",
			Conditions: models.RemediationConditions{
				EventType:     ptrType(models.EventTypeDatabaseQuery),
				QueryTimeMs:   ptrFloat(5000),
				QueryMinCount: ptrInt(5),
			},
			Actions: []models.ActionSpec{
				{Type: models.ActionOptimizeQuery, Target: "primary-db"},
				{Type: models.ActionSendAlert, Target: "db-oncall"},
			},
			Priority:      40,
			Enabled:       true,
			MaxExecutions: 20,
			Cooldown:      30 * time.Minute,
		},
		{
			ID:          "clear-cache-on-degradation",
			Description: "Flush the session cache when performance anomalies drop sharply",
			Conditions: models.RemediationConditions{
				EventType:         ptrType(models.EventTypePerformance),
				AnomalyScoreBelow: ptrFloat(-0.3),
			},
			Actions: []models.ActionSpec{
				{Type: models.ActionClearCache, Target: "session-cache"},
			},
			Priority:      50,
			Enabled:       true,
			MaxExecutions: 10,
			Cooldown:      20 * time.Minute,
		},
	}
	for i := range rules {
		rules[i].CreatedAt = now
		rules[i].UpdatedAt = now
	}
	return rules
}
