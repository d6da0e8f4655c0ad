package models

import "time"

// EventType enumerates the operational event categories ingested by the core.
type EventType string

const (
	EventTypeSystemMetric   EventType = "system_metric"
	EventTypeLog            EventType = "log_event"
	EventTypeDatabaseQuery  EventType = "db_query"
	EventTypeAPIRequest     EventType = "api_request"
	EventTypeError          EventType = "error_event"
	EventTypePerformance    EventType = "performance"
	EventTypeSecurity       EventType = "security"
	EventTypeUserAction     EventType = "user_action"
	EventTypeBusinessMetric EventType = "business_metric"
	EventTypeInfraAlert     EventType = "infra_alert"
)

// Severity captures impact levels. Ordering is total: low < medium < high < critical.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank maps a severity onto its ordinal position. Unknown severities rank below low.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// AtLeast reports whether s is as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// MaxSeverity returns the highest severity among the provided values.
func MaxSeverity(values ...Severity) Severity {
	max := SeverityLow
	for _, v := range values {
		if v.Rank() > max.Rank() {
			max = v
		}
	}
	return max
}

// Event is the normalized record every downstream engine consumes. Events are
// immutable once collected; Metadata is the only field the pipeline appends to.
type Event struct {
	ID            string         `json:"id"`
	Type          EventType      `json:"type"`
	Source        string         `json:"source"`
	Severity      Severity       `json:"severity"`
	Timestamp     time.Time      `json:"timestamp"`
	Payload       map[string]any `json:"payload,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	UserID        string         `json:"user_id,omitempty"`
	SessionID     string         `json:"session_id,omitempty"`
}

// Valid reports whether the mandatory ingest fields are present.
func (e Event) Valid() bool {
	return e.ID != "" && e.Type != "" && e.Severity != "" && e.Source != "" && !e.Timestamp.IsZero()
}

// Annotate sets a metadata key, allocating the map on first use.
func (e *Event) Annotate(key string, value any) {
	if e.Metadata == nil {
		e.Metadata = make(map[string]any)
	}
	e.Metadata[key] = value
}

// PayloadFloat reads a numeric payload field, tolerating the numeric types
// JSON decoding and collectors produce. Missing or non-numeric values yield 0.
func (e Event) PayloadFloat(key string) float64 {
	if e.Payload == nil {
		return 0
	}
	switch v := e.Payload[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

// PayloadString reads a string payload field, returning "" when absent.
func (e Event) PayloadString(key string) string {
	if e.Payload == nil {
		return ""
	}
	if s, ok := e.Payload[key].(string); ok {
		return s
	}
	return ""
}
