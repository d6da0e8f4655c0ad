package remediation

import (
	"strings"
	"time"

	"github.com/serpstack/aiops-engine/internal/models"
)

// conditionsMatch evaluates a rule's predicate set against one batch.
// Declared predicates combine as a conjunction; absent predicates are
// satisfied. The event-type filter, when declared, gates which events the
// event-based predicates see and must itself select at least one event.
func conditionsMatch(c models.RemediationConditions, events []models.Event, anomalies []models.AnomalyResult, correlations []models.Correlation) bool {
	pool := events
	if c.EventType != nil {
		pool = pool[:0:0]
		for _, ev := range events {
			if ev.Type == *c.EventType {
				pool = append(pool, ev)
			}
		}
		if len(pool) == 0 {
			return false
		}
	}

	if c.MetricThreshold != nil && !metricMatch(c, pool) {
		return false
	}
	if c.QueryTimeMs != nil && !queryMatch(c, pool) {
		return false
	}
	if c.ErrorPattern != "" && !errorMatch(c, pool) {
		return false
	}
	if len(c.AttackTypes) > 0 && !attackMatch(c, pool) {
		return false
	}
	if c.AnomalyScoreBelow != nil && !anomalyMatch(c, anomalies) {
		return false
	}
	if c.CorrelationEvents != nil && !correlationMatch(c, correlations) {
		return false
	}
	return true
}

// metricMatch counts events whose named metric breaches the threshold,
// optionally within a trailing window anchored at the newest breach.
func metricMatch(c models.RemediationConditions, events []models.Event) bool {
	var breaches []time.Time
	for _, ev := range events {
		if c.MetricName != "" && ev.PayloadString("metric_name") != c.MetricName {
			continue
		}
		if ev.PayloadFloat("value") > *c.MetricThreshold {
			breaches = append(breaches, ev.Timestamp)
		}
	}
	if len(breaches) == 0 {
		return false
	}

	required := 1
	if c.MetricMinCount != nil {
		required = *c.MetricMinCount
	}
	if c.MetricWindowMin == nil {
		return len(breaches) >= required
	}

	window := time.Duration(*c.MetricWindowMin) * time.Minute
	newest := breaches[0]
	for _, t := range breaches[1:] {
		if t.After(newest) {
			newest = t
		}
	}
	inWindow := 0
	for _, t := range breaches {
		if newest.Sub(t) <= window {
			inWindow++
		}
	}
	return inWindow >= required
}

func queryMatch(c models.RemediationConditions, events []models.Event) bool {
	count := 0
	for _, ev := range events {
		if ev.PayloadFloat("execution_time_ms") >= *c.QueryTimeMs {
			count++
		}
	}
	required := 1
	if c.QueryMinCount != nil {
		required = *c.QueryMinCount
	}
	return count >= required
}

func errorMatch(c models.RemediationConditions, events []models.Event) bool {
	count := 0
	for _, ev := range events {
		msg := ev.PayloadString("error_message")
		if msg == "" {
			msg = ev.PayloadString("message")
		}
		if !strings.Contains(strings.ToLower(msg), strings.ToLower(c.ErrorPattern)) {
			continue
		}
		if c.ErrorSeverity != nil && !ev.Severity.AtLeast(*c.ErrorSeverity) {
			continue
		}
		count++
	}
	required := 1
	if c.ErrorMinCount != nil {
		required = *c.ErrorMinCount
	}
	return count >= required
}

func attackMatch(c models.RemediationConditions, events []models.Event) bool {
	for _, ev := range events {
		attack := ev.PayloadString("attack_type")
		if attack == "" {
			continue
		}
		for _, want := range c.AttackTypes {
			if attack == want {
				return true
			}
		}
	}
	return false
}

func anomalyMatch(c models.RemediationConditions, anomalies []models.AnomalyResult) bool {
	for _, a := range anomalies {
		if a.IsAnomaly && a.Score < *c.AnomalyScoreBelow {
			return true
		}
	}
	return false
}

func correlationMatch(c models.RemediationConditions, correlations []models.Correlation) bool {
	for _, corr := range correlations {
		if len(corr.EventIDs) > *c.CorrelationEvents {
			return true
		}
	}
	return false
}
