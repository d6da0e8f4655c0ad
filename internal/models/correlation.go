package models

import "time"

// CorrelationMethod enumerates correlation strategies.
type CorrelationMethod string

const (
	MethodTemporal  CorrelationMethod = "temporal"
	MethodCausal    CorrelationMethod = "causal"
	MethodFrequency CorrelationMethod = "frequency"
	MethodCustom    CorrelationMethod = "custom"
)

// Correlation describes a derived relationship between events: either a
// temporal cluster (EventIDs + time bounds) or a causal pair (CauseID/EffectID
// + DeltaSeconds). Records are computed fresh per pass and never mutated.
type Correlation struct {
	ID           string            `json:"id"`
	Method       CorrelationMethod `json:"method"`
	EventIDs     []string          `json:"event_ids"`
	StartTime    time.Time         `json:"start_time"`
	EndTime      time.Time         `json:"end_time"`
	CauseID      string            `json:"cause_id,omitempty"`
	EffectID     string            `json:"effect_id,omitempty"`
	CauseType    EventType         `json:"cause_type,omitempty"`
	EffectType   EventType         `json:"effect_type,omitempty"`
	DeltaSeconds float64           `json:"delta_seconds,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// Duration returns the correlation's time extent.
func (c Correlation) Duration() time.Duration {
	if c.EndTime.Before(c.StartTime) {
		return 0
	}
	return c.EndTime.Sub(c.StartTime)
}

// CorrelationAlertType enumerates alert categories derived from correlations.
type CorrelationAlertType string

const (
	AlertTypeSecurityIncident CorrelationAlertType = "security_incident"
	AlertTypeErrorCluster     CorrelationAlertType = "error_cluster"
	AlertTypeCausalChain      CorrelationAlertType = "causal_chain"
	AlertTypeTemporalPattern  CorrelationAlertType = "temporal_pattern"
)

// CorrelationAlert is a correlation promoted to alert level by scoring.
type CorrelationAlert struct {
	ID            string               `json:"id"`
	CorrelationID string               `json:"correlation_id"`
	Type          CorrelationAlertType `json:"type"`
	Severity      Severity             `json:"severity"`
	Score         float64              `json:"score"`
	EventIDs      []string             `json:"event_ids"`
	CreatedAt     time.Time            `json:"created_at"`
}
