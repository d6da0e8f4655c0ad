package correlation

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/serpstack/aiops-engine/internal/config"
	"github.com/serpstack/aiops-engine/internal/models"
)

// causalLookback bounds how many preceding events are scanned per candidate
// effect, keeping the causal pass linear over sorted input.
const causalLookback = 20

// Engine groups and relates events across a batch. All internal failures are
// absorbed and logged; callers always receive a (possibly empty) result.
type Engine struct {
	cfg    config.CorrelationConfig
	logger *slog.Logger
}

// NewEngine constructs a correlation engine.
func NewEngine(cfg config.CorrelationConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{cfg: cfg, logger: logger}
}

// Correlate runs every configured method over the batch, concatenates the
// results and deduplicates by (id, method) keeping the first occurrence.
// Order is preserved. An empty batch yields an empty result.
func (e *Engine) Correlate(events []models.Event) []models.Correlation {
	if len(events) == 0 {
		return nil
	}

	var all []models.Correlation
	for _, method := range e.cfg.Methods {
		switch models.CorrelationMethod(method) {
		case models.MethodTemporal:
			all = append(all, e.detectTemporal(events)...)
		case models.MethodCausal:
			all = append(all, e.detectCausal(events)...)
		case models.MethodFrequency, models.MethodCustom:
			// Reserved methods, not yet implemented.
		default:
			e.logger.Warn("unknown correlation method", slog.String("method", method))
		}
	}

	seen := make(map[string]struct{}, len(all))
	deduped := make([]models.Correlation, 0, len(all))
	for _, corr := range all {
		key := corr.ID + "|" + string(corr.Method)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		deduped = append(deduped, corr)
	}
	return deduped
}

// detectTemporal groups events by correlation key and emits one correlation
// per window start index whose forward-grown window reaches the configured
// minimum size. Overlapping windows are intentional: every qualifying start
// index produces a record, and only the (id, method) filter in Correlate
// collapses them.
func (e *Engine) detectTemporal(events []models.Event) []models.Correlation {
	groups := make(map[string][]models.Event)
	order := make([]string, 0)
	for _, ev := range events {
		key := ev.CorrelationID
		if key == "" {
			key = string(ev.Type) + "|" + ev.Source
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], ev)
	}

	window := time.Duration(e.cfg.WindowMinutes) * time.Minute
	var correlations []models.Correlation
	for _, key := range order {
		group := groups[key]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Timestamp.Before(group[j].Timestamp)
		})

		for start := 0; start < len(group); start++ {
			members := []models.Event{group[start]}
			for next := start + 1; next < len(group); next++ {
				if group[next].Timestamp.Sub(group[start].Timestamp) > window {
					break
				}
				members = append(members, group[next])
			}
			if len(members) < e.cfg.MinCorrelationEvents {
				continue
			}

			ids := make([]string, 0, len(members))
			for _, m := range members {
				ids = append(ids, m.ID)
			}
			corrID := members[0].CorrelationID
			if corrID == "" {
				corrID = fmt.Sprintf("temporal-%s-%d", members[0].ID, members[0].Timestamp.Unix())
			}
			correlations = append(correlations, models.Correlation{
				ID:        corrID,
				Method:    models.MethodTemporal,
				EventIDs:  ids,
				StartTime: members[0].Timestamp,
				EndTime:   members[len(members)-1].Timestamp,
				CreatedAt: time.Now().UTC(),
			})
		}
	}
	return correlations
}

// detectCausal sorts the whole batch by timestamp and, for each candidate
// effect, scans the bounded lookback for a strictly earlier cause of a
// different type inside the window. Each qualifying pair becomes one record.
func (e *Engine) detectCausal(events []models.Event) []models.Correlation {
	sorted := append([]models.Event(nil), events...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	window := time.Duration(e.cfg.WindowMinutes) * time.Minute
	var correlations []models.Correlation
	for i, effect := range sorted {
		lo := i - causalLookback
		if lo < 0 {
			lo = 0
		}
		for j := lo; j < i; j++ {
			cause := sorted[j]
			if !cause.Timestamp.Before(effect.Timestamp) {
				continue
			}
			if cause.Type == effect.Type {
				continue
			}
			delta := effect.Timestamp.Sub(cause.Timestamp)
			if delta > window {
				continue
			}

			corrID := cause.CorrelationID
			if corrID == "" {
				corrID = effect.CorrelationID
			}
			if corrID == "" {
				corrID = fmt.Sprintf("causal-%s-%s", cause.ID, effect.ID)
			}
			correlations = append(correlations, models.Correlation{
				ID:           corrID,
				Method:       models.MethodCausal,
				EventIDs:     []string{cause.ID, effect.ID},
				StartTime:    cause.Timestamp,
				EndTime:      effect.Timestamp,
				CauseID:      cause.ID,
				EffectID:     effect.ID,
				CauseType:    cause.Type,
				EffectType:   effect.Type,
				DeltaSeconds: delta.Seconds(),
				CreatedAt:    time.Now().UTC(),
			})
		}
	}
	return correlations
}

// GenerateAlerts scores each correlation in [0,1] and promotes those meeting
// the alert threshold.
func (e *Engine) GenerateAlerts(correlations []models.Correlation, events []models.Event) []models.CorrelationAlert {
	if len(correlations) == 0 {
		return nil
	}

	byID := make(map[string]models.Event, len(events))
	for _, ev := range events {
		byID[ev.ID] = ev
	}

	var alerts []models.CorrelationAlert
	for _, corr := range correlations {
		members := make([]models.Event, 0, len(corr.EventIDs))
		for _, id := range corr.EventIDs {
			if ev, ok := byID[id]; ok {
				members = append(members, ev)
			}
		}

		score := scoreCorrelation(corr, members)
		if score < e.cfg.AlertThreshold {
			continue
		}

		alerts = append(alerts, models.CorrelationAlert{
			ID:            uuid.NewString(),
			CorrelationID: corr.ID,
			Type:          alertType(corr, members),
			Severity:      derivedSeverity(score, members),
			Score:         score,
			EventIDs:      append([]string(nil), corr.EventIDs...),
			CreatedAt:     time.Now().UTC(),
		})
	}
	return alerts
}

func scoreCorrelation(corr models.Correlation, members []models.Event) float64 {
	score := 0.1 * float64(len(members))
	if score > 0.3 {
		score = 0.3
	}

	switch models.MaxSeverity(severities(members)...) {
	case models.SeverityCritical:
		score += 0.4
	case models.SeverityHigh:
		score += 0.3
	case models.SeverityMedium:
		score += 0.2
	}

	duration := corr.Duration().Seconds()
	switch {
	case duration > 300:
		score += 0.2
	case duration > 60:
		score += 0.1
	}

	if hasType(members, models.EventTypeError) || hasType(members, models.EventTypeSecurity) {
		score += 0.2
	}

	if score > 1 {
		score = 1
	}
	return score
}

func derivedSeverity(score float64, members []models.Event) models.Severity {
	max := models.MaxSeverity(severities(members)...)
	switch {
	case score > 0.9 || max == models.SeverityCritical:
		return models.SeverityCritical
	case score > 0.7 || max == models.SeverityHigh:
		return models.SeverityHigh
	case score > 0.5 || max == models.SeverityMedium:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

func alertType(corr models.Correlation, members []models.Event) models.CorrelationAlertType {
	switch {
	case hasType(members, models.EventTypeSecurity):
		return models.AlertTypeSecurityIncident
	case hasType(members, models.EventTypeError):
		return models.AlertTypeErrorCluster
	case corr.Method == models.MethodCausal:
		return models.AlertTypeCausalChain
	default:
		return models.AlertTypeTemporalPattern
	}
}

func severities(members []models.Event) []models.Severity {
	out := make([]models.Severity, 0, len(members))
	for _, m := range members {
		out = append(out, m.Severity)
	}
	return out
}

func hasType(members []models.Event, t models.EventType) bool {
	for _, m := range members {
		if m.Type == t {
			return true
		}
	}
	return false
}
