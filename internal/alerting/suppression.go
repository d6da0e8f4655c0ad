package alerting

import (
	"fmt"
	"strings"
	"time"

	"github.com/serpstack/aiops-engine/internal/models"
)

// ledgerEntry pairs a stored optimized alert with the timestamp used for
// trailing-window predicates.
type ledgerEntry struct {
	alert models.OptimizedAlert
	at    time.Time
}

// evaluateRule checks every declared predicate of a suppression rule against
// the alert. Absent predicates are satisfied; declared predicates combine as
// a conjunction.
func (o *Optimizer) evaluateRule(rule models.SuppressionRule, alert models.RawAlert, now time.Time) bool {
	cond := rule.Conditions

	if cond.Severity != nil && alert.Severity != *cond.Severity {
		return false
	}

	if cond.FrequencyThreshold != nil {
		window := windowOrDefault(cond.FrequencyWindowMin, o.cfg.TimeWindowMinutes)
		if o.countSimilarInWindow(alert, now, window) < *cond.FrequencyThreshold {
			return false
		}
	}

	if len(cond.SourceContains) > 0 && !containsAny(alert.Source, cond.SourceContains) {
		return false
	}

	if cond.DuplicateThreshold != nil {
		window := windowOrDefault(cond.DuplicateWindowMin, o.cfg.TimeWindowMinutes)
		if o.countDuplicatesInWindow(alert, now, window) < *cond.DuplicateThreshold {
			return false
		}
	}

	if len(cond.MaintenanceWeekdays) > 0 || cond.MaintenanceStart != "" {
		if !inMaintenanceWindow(cond, now) {
			return false
		}
	}

	if len(cond.MessageContains) > 0 && !containsAny(alert.Message, cond.MessageContains) {
		return false
	}

	if cond.PatternThreshold != nil {
		window := windowOrDefault(cond.PatternWindowMin, o.cfg.TimeWindowMinutes)
		if o.countPatternInWindow(cond.PatternType, now, window) < *cond.PatternThreshold {
			return false
		}
	}

	return true
}

// countSimilarInWindow counts ledger alerts structurally similar to the
// candidate whose timestamps fall inside the trailing window.
func (o *Optimizer) countSimilarInWindow(alert models.RawAlert, now time.Time, window time.Duration) int {
	cutoff := now.Add(-window)
	count := 0
	for _, entry := range o.ledger {
		if entry.at.Before(cutoff) {
			continue
		}
		if Similar(alert, entry.alert.Original) {
			count++
		}
	}
	return count
}

// countDuplicatesInWindow counts ledger alerts whose two-level pairwise score
// reaches the configured similarity threshold.
func (o *Optimizer) countDuplicatesInWindow(alert models.RawAlert, now time.Time, window time.Duration) int {
	cutoff := now.Add(-window)
	count := 0
	for _, entry := range o.ledger {
		if entry.at.Before(cutoff) {
			continue
		}
		if PairScore(alert, entry.alert.Original) >= o.cfg.SimilarityThreshold {
			count++
		}
	}
	return count
}

// countPatternInWindow counts ledger alerts whose declared type contains the
// pattern substring.
func (o *Optimizer) countPatternInWindow(pattern string, now time.Time, window time.Duration) int {
	if pattern == "" {
		return 0
	}
	cutoff := now.Add(-window)
	count := 0
	for _, entry := range o.ledger {
		if entry.at.Before(cutoff) {
			continue
		}
		if strings.Contains(strings.ToLower(entry.alert.Original.Type), strings.ToLower(pattern)) {
			count++
		}
	}
	return count
}

// inMaintenanceWindow checks weekday membership plus a naive inclusive
// "HH:MM" string range comparison. Windows never span midnight.
func inMaintenanceWindow(cond models.SuppressionConditions, now time.Time) bool {
	if len(cond.MaintenanceWeekdays) > 0 {
		weekday := strings.ToLower(now.Weekday().String())
		matched := false
		for _, d := range cond.MaintenanceWeekdays {
			if strings.EqualFold(d, weekday) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if cond.MaintenanceStart != "" && cond.MaintenanceEnd != "" {
		hhmm := fmt.Sprintf("%02d:%02d", now.Hour(), now.Minute())
		if hhmm < cond.MaintenanceStart || hhmm > cond.MaintenanceEnd {
			return false
		}
	}
	return true
}

func windowOrDefault(minutes *int, fallback int) time.Duration {
	if minutes != nil && *minutes > 0 {
		return time.Duration(*minutes) * time.Minute
	}
	return time.Duration(fallback) * time.Minute
}

func containsAny(value string, needles []string) bool {
	lower := strings.ToLower(value)
	for _, n := range needles {
		if strings.Contains(lower, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

// DefaultSuppressionRules seeds the optimizer when no rule pack is loaded.
func DefaultSuppressionRules() []models.SuppressionRule {
	low := models.SeverityLow
	freq := 5
	freqWindow := 10
	dup := 3
	dupWindow := 5
	noise := 10
	noiseWindow := 15
	now := time.Now().UTC()
	return []models.SuppressionRule{
		{
			ID:          "suppress-low-severity-flapping",
			Description: "Low-severity alerts repeating from health checks",
			Conditions: models.SuppressionConditions{
				Severity:           &low,
				FrequencyThreshold: &freq,
				FrequencyWindowMin: &freqWindow,
			},
			Reason:    models.ReasonLowSeverity,
			Duration:  30 * time.Minute,
			Enabled:   true,
			CreatedAt: now,
			UpdatedAt: now,
		},
		{
			ID:          "suppress-duplicates",
			Description: "Near-identical alerts inside a short window",
			Conditions: models.SuppressionConditions{
				DuplicateThreshold: &dup,
				DuplicateWindowMin: &dupWindow,
			},
			Reason:    models.ReasonDuplicate,
			Duration:  15 * time.Minute,
			Enabled:   true,
			CreatedAt: now,
			UpdatedAt: now,
		},
		{
			ID:          "suppress-maintenance",
			Description: "Planned weekend maintenance window",
			Conditions: models.SuppressionConditions{
				MaintenanceWeekdays: []string{"saturday", "sunday"},
				MaintenanceStart:    "02:00",
				MaintenanceEnd:      "04:00",
			},
			Reason:    models.ReasonMaintenanceWindow,
			Duration:  2 * time.Hour,
			Enabled:   true,
			CreatedAt: now,
			UpdatedAt: now,
		},
		{
			ID:          "suppress-known-timeouts",
			Description: "Known noisy upstream timeout messages",
			Conditions: models.SuppressionConditions{
				MessageContains: []string{"connection reset by peer", "context deadline exceeded"},
			},
			Reason:    models.ReasonKnownIssue,
			Duration:  time.Hour,
			Enabled:   true,
			CreatedAt: now,
			UpdatedAt: now,
		},
		{
			ID:          "suppress-heartbeat-noise",
			Description: "High-volume heartbeat alert pattern",
			Conditions: models.SuppressionConditions{
				PatternType:      "heartbeat",
				PatternThreshold: &noise,
				PatternWindowMin: &noiseWindow,
			},
			Reason:    models.ReasonNoisePattern,
			Duration:  time.Hour,
			Enabled:   true,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}
