package models

import "time"

// FailurePattern is a recurring correlation shape mined from history: the
// same combination of event types showing up in correlation after
// correlation. Patterns are advisory; they feed operator review, not the
// automated rule engines.
type FailurePattern struct {
	ID              string            `json:"id"`
	Method          CorrelationMethod `json:"method"`
	Signature       string            `json:"signature"`
	CauseType       EventType         `json:"cause_type,omitempty"`
	EffectType      EventType         `json:"effect_type,omitempty"`
	Occurrences     int               `json:"occurrences"`
	Prevalence      float64           `json:"prevalence"`
	AvgDeltaSeconds float64           `json:"avg_delta_seconds,omitempty"`
	FirstSeen       time.Time         `json:"first_seen"`
	LastSeen        time.Time         `json:"last_seen"`
}
