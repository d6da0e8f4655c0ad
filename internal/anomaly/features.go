package anomaly

import (
	"hash/fnv"

	"github.com/serpstack/aiops-engine/internal/models"
)

// FeatureCount is the fixed width of every extracted vector.
const FeatureCount = 16

// Feature vector layout. Fields absent from an event contribute 0.
const (
	featHour = iota
	featMinute
	featWeekday
	featSeverity
	featEventType
	featSource
	featHasCorrelation
	featHasUser
	featHasSession
	featMetricValue
	featMetricName
	featLogLevel
	featMessageLen
	featExecTimeMs
	featRowsAffected
	featResponseTimeMs
)

var typeOrdinals = map[models.EventType]float64{
	models.EventTypeSystemMetric:   1,
	models.EventTypeLog:            2,
	models.EventTypeDatabaseQuery:  3,
	models.EventTypeAPIRequest:     4,
	models.EventTypeError:          5,
	models.EventTypePerformance:    6,
	models.EventTypeSecurity:       7,
	models.EventTypeUserAction:     8,
	models.EventTypeBusinessMetric: 9,
	models.EventTypeInfraAlert:     10,
}

var logLevelOrdinals = map[string]float64{
	"debug":    1,
	"info":     2,
	"warn":     3,
	"warning":  3,
	"error":    4,
	"critical": 5,
	"fatal":    5,
}

// ExtractFeatures projects an event onto the fixed numeric vector used by
// every detection algorithm.
func ExtractFeatures(ev models.Event) []float64 {
	f := make([]float64, FeatureCount)

	f[featHour] = float64(ev.Timestamp.Hour())
	f[featMinute] = float64(ev.Timestamp.Minute())
	f[featWeekday] = float64(ev.Timestamp.Weekday())
	f[featSeverity] = float64(ev.Severity.Rank())
	f[featEventType] = typeOrdinals[ev.Type]
	f[featSource] = sourceOrdinal(ev.Source)

	if ev.CorrelationID != "" {
		f[featHasCorrelation] = 1
	}
	if ev.UserID != "" {
		f[featHasUser] = 1
	}
	if ev.SessionID != "" {
		f[featHasSession] = 1
	}

	switch ev.Type {
	case models.EventTypeSystemMetric:
		f[featMetricValue] = ev.PayloadFloat("value")
		f[featMetricName] = sourceOrdinal(ev.PayloadString("metric_name"))
	case models.EventTypeLog:
		f[featLogLevel] = logLevelOrdinals[ev.PayloadString("level")]
		f[featMessageLen] = float64(len(ev.PayloadString("message")))
	case models.EventTypeDatabaseQuery:
		f[featExecTimeMs] = ev.PayloadFloat("execution_time_ms")
		f[featRowsAffected] = ev.PayloadFloat("rows_affected")
	case models.EventTypeAPIRequest:
		f[featResponseTimeMs] = ev.PayloadFloat("response_time_ms")
		f[featMetricName] = sourceOrdinal(ev.PayloadString("endpoint"))
	case models.EventTypeError:
		f[featMessageLen] = float64(len(ev.PayloadString("error_message")))
	}

	return f
}

// sourceOrdinal maps an arbitrary string onto a stable small ordinal. Hashing
// keeps the encoding stateless across restarts.
func sourceOrdinal(s string) float64 {
	if s == "" {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return float64(h.Sum32()%97) + 1
}

// Categorize applies the anomaly-type rule for a flagged event.
func Categorize(ev models.Event) models.AnomalyCategory {
	switch ev.Type {
	case models.EventTypeSystemMetric:
		if ev.PayloadFloat("value") > 90 {
			return models.AnomalyPoint
		}
		return models.AnomalyContextual
	case models.EventTypeError:
		return models.AnomalyCollective
	case models.EventTypeDatabaseQuery:
		if ev.PayloadFloat("execution_time_ms") > 5000 {
			return models.AnomalyTrend
		}
		return models.AnomalyPoint
	default:
		return models.AnomalyContextual
	}
}
