package models

import "time"

// ActionType enumerates the remediation actions the engine can dispatch.
type ActionType string

const (
	ActionRestartService ActionType = "restart_service"
	ActionScaleUp        ActionType = "scale_up"
	ActionScaleDown      ActionType = "scale_down"
	ActionClearCache     ActionType = "clear_cache"
	ActionOptimizeQuery  ActionType = "optimize_query"
	ActionBlockIP        ActionType = "block_ip"
	ActionSendAlert      ActionType = "send_alert"
	ActionRollback       ActionType = "rollback"
	ActionCustomScript   ActionType = "custom_script"
)

// ActionStatus tracks a remediation action's state machine:
// pending -> running -> {success|failed|timeout|cancelled}. Terminal states
// are immutable.
type ActionStatus string

const (
	ActionPending   ActionStatus = "pending"
	ActionRunning   ActionStatus = "running"
	ActionSuccess   ActionStatus = "success"
	ActionFailed    ActionStatus = "failed"
	ActionTimeout   ActionStatus = "timeout"
	ActionCancelled ActionStatus = "cancelled"
)

// Terminal reports whether the status permits no further transitions.
func (s ActionStatus) Terminal() bool {
	switch s {
	case ActionSuccess, ActionFailed, ActionTimeout, ActionCancelled:
		return true
	}
	return false
}

// ActionSpec declares one action a rule executes on match.
type ActionSpec struct {
	Type       ActionType     `yaml:"type" json:"type"`
	Target     string         `yaml:"target" json:"target"`
	Parameters map[string]any `yaml:"parameters,omitempty" json:"parameters,omitempty"`
}

// RemediationConditions is the closed predicate set evaluated against a batch
// of events, anomalies and correlations. Nil fields are absent predicates and
// therefore satisfied; declared predicates combine as a conjunction.
type RemediationConditions struct {
	EventType *EventType `yaml:"event_type,omitempty" json:"event_type,omitempty"`

	MetricName        string    `yaml:"metric_name,omitempty" json:"metric_name,omitempty"`
	MetricThreshold   *float64  `yaml:"metric_threshold,omitempty" json:"metric_threshold,omitempty"`
	MetricMinCount    *int      `yaml:"metric_min_count,omitempty" json:"metric_min_count,omitempty"`
	MetricWindowMin   *int      `yaml:"metric_window_minutes,omitempty" json:"metric_window_minutes,omitempty"`
	QueryTimeMs       *float64  `yaml:"query_time_ms,omitempty" json:"query_time_ms,omitempty"`
	QueryMinCount     *int      `yaml:"query_min_count,omitempty" json:"query_min_count,omitempty"`
	ErrorPattern      string    `yaml:"error_pattern,omitempty" json:"error_pattern,omitempty"`
	ErrorSeverity     *Severity `yaml:"error_severity,omitempty" json:"error_severity,omitempty"`
	ErrorMinCount     *int      `yaml:"error_min_count,omitempty" json:"error_min_count,omitempty"`
	AttackTypes       []string  `yaml:"attack_types,omitempty" json:"attack_types,omitempty"`
	AnomalyScoreBelow *float64  `yaml:"anomaly_score_below,omitempty" json:"anomaly_score_below,omitempty"`
	CorrelationEvents *int      `yaml:"correlation_events_above,omitempty" json:"correlation_events_above,omitempty"`
}

// RemediationRule couples trigger conditions with ordered actions. Priority
// fixes evaluation order only (ascending); MaxExecutions is a lifetime cap
// and Cooldown the minimum spacing between firings, both measured against the
// rule's own slice of the action ledger.
type RemediationRule struct {
	ID            string                `yaml:"id" json:"id"`
	Description   string                `yaml:"description" json:"description"`
	Conditions    RemediationConditions `yaml:"conditions" json:"conditions"`
	Actions       []ActionSpec          `yaml:"actions" json:"actions"`
	Priority      int                   `yaml:"priority" json:"priority"`
	Enabled       bool                  `yaml:"enabled" json:"enabled"`
	MaxExecutions int                   `yaml:"max_executions" json:"max_executions"`
	Cooldown      time.Duration         `yaml:"cooldown" json:"cooldown"`
	CreatedAt     time.Time             `yaml:"-" json:"created_at"`
	UpdatedAt     time.Time             `yaml:"-" json:"updated_at"`
}

// RemediationAction records one execution attempt in the historical ledger.
type RemediationAction struct {
	ID          string         `json:"id"`
	RuleID      string         `json:"rule_id"`
	Type        ActionType     `json:"type"`
	Status      ActionStatus   `json:"status"`
	Target      string         `json:"target"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at,omitempty"`
	Duration    time.Duration  `json:"duration,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
}
