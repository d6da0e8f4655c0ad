package models

import "time"

// RawAlert is an incoming alert record prior to optimization. Only ID is
// mandatory; every other field participates in suppression, scoring and
// grouping when present.
type RawAlert struct {
	ID              string    `json:"id"`
	Type            string    `json:"type,omitempty"`
	Severity        Severity  `json:"severity,omitempty"`
	Source          string    `json:"source,omitempty"`
	Message         string    `json:"message,omitempty"`
	UserImpact      bool      `json:"user_impact,omitempty"`
	ImpactType      string    `json:"impact_type,omitempty"`
	AffectedUsers   int       `json:"affected_users,omitempty"`
	DurationMinutes float64   `json:"duration_minutes,omitempty"`
	Timestamp       time.Time `json:"timestamp,omitempty"`
}

// AlertStatus tracks an optimized alert through its lifecycle.
type AlertStatus string

const (
	AlertActive     AlertStatus = "active"
	AlertSuppressed AlertStatus = "suppressed"
	AlertGrouped    AlertStatus = "grouped"
	AlertResolved   AlertStatus = "resolved"
	AlertExpired    AlertStatus = "expired"
)

// OptimizedAlert wraps one raw alert with the optimizer's verdicts. Created
// once per raw alert per pass; GroupID is the only post-construction mutation.
type OptimizedAlert struct {
	ID                string      `json:"id"`
	Status            AlertStatus `json:"status"`
	SuppressionReason string      `json:"suppression_reason,omitempty"`
	GroupID           string      `json:"group_id,omitempty"`
	PriorityScore     float64     `json:"priority_score"`
	ImpactScore       float64     `json:"impact_score"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
	Original          RawAlert    `json:"original"`
}

// GroupStrategy names the pass that produced an alert group.
type GroupStrategy string

const (
	GroupBySource     GroupStrategy = "source"
	GroupByType       GroupStrategy = "type"
	GroupByTimeWindow GroupStrategy = "time_window"
	GroupByImpact     GroupStrategy = "impact"
)

// AlertGroup clusters related active alerts under one summary.
type AlertGroup struct {
	ID        string         `json:"id"`
	Strategy  GroupStrategy  `json:"strategy"`
	Key       string         `json:"key"`
	AlertIDs  []string       `json:"alert_ids"`
	Summary   map[string]any `json:"summary,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// SuppressionReason labels why an alert was suppressed.
type SuppressionReason string

const (
	ReasonLowSeverity       SuppressionReason = "low_severity"
	ReasonDuplicate         SuppressionReason = "duplicate"
	ReasonMaintenanceWindow SuppressionReason = "maintenance_window"
	ReasonKnownIssue        SuppressionReason = "known_issue"
	ReasonNoisePattern      SuppressionReason = "noise_pattern"
)

// SuppressionConditions is the closed predicate set evaluated against a raw
// alert. A nil field means the predicate is absent and therefore satisfied;
// declared predicates combine as a conjunction.
type SuppressionConditions struct {
	Severity            *Severity `yaml:"severity,omitempty" json:"severity,omitempty"`
	FrequencyThreshold  *int      `yaml:"frequency_threshold,omitempty" json:"frequency_threshold,omitempty"`
	FrequencyWindowMin  *int      `yaml:"frequency_window_minutes,omitempty" json:"frequency_window_minutes,omitempty"`
	SourceContains      []string  `yaml:"source_contains,omitempty" json:"source_contains,omitempty"`
	DuplicateThreshold  *int      `yaml:"duplicate_threshold,omitempty" json:"duplicate_threshold,omitempty"`
	DuplicateWindowMin  *int      `yaml:"duplicate_window_minutes,omitempty" json:"duplicate_window_minutes,omitempty"`
	MaintenanceWeekdays []string  `yaml:"maintenance_weekdays,omitempty" json:"maintenance_weekdays,omitempty"`
	MaintenanceStart    string    `yaml:"maintenance_start,omitempty" json:"maintenance_start,omitempty"`
	MaintenanceEnd      string    `yaml:"maintenance_end,omitempty" json:"maintenance_end,omitempty"`
	MessageContains     []string  `yaml:"message_contains,omitempty" json:"message_contains,omitempty"`
	PatternType         string    `yaml:"pattern_type,omitempty" json:"pattern_type,omitempty"`
	PatternThreshold    *int      `yaml:"pattern_threshold,omitempty" json:"pattern_threshold,omitempty"`
	PatternWindowMin    *int      `yaml:"pattern_window_minutes,omitempty" json:"pattern_window_minutes,omitempty"`
}

// SuppressionRule marks matching alerts non-actionable without deleting them.
// Rules are evaluated in stored order; the first match wins.
type SuppressionRule struct {
	ID          string                `yaml:"id" json:"id"`
	Description string                `yaml:"description" json:"description"`
	Conditions  SuppressionConditions `yaml:"conditions" json:"conditions"`
	Reason      SuppressionReason     `yaml:"reason" json:"reason"`
	Duration    time.Duration         `yaml:"duration" json:"duration"`
	Enabled     bool                  `yaml:"enabled" json:"enabled"`
	CreatedAt   time.Time             `yaml:"-" json:"created_at"`
	UpdatedAt   time.Time             `yaml:"-" json:"updated_at"`
}
