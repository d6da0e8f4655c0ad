package alerting

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/serpstack/aiops-engine/internal/config"
	"github.com/serpstack/aiops-engine/internal/models"
)

// Stats are the optimizer's running counters.
type Stats struct {
	Processed  int `json:"processed"`
	Active     int `json:"active"`
	Suppressed int `json:"suppressed"`
	Grouped    int `json:"grouped"`
	Groups     int `json:"groups"`
}

// Optimizer de-duplicates, prioritizes and groups raw alerts. The optimized
// ledger is append-only and keyed by alert id; a single mutex serializes
// every ledger mutation so trailing-window predicates and grouping stay
// consistent under concurrent batches.
type Optimizer struct {
	cfg    config.AlertingConfig
	logger *slog.Logger

	mu     sync.Mutex
	rules  []models.SuppressionRule
	ledger map[string]ledgerEntry
	order  []string
	groups map[string]models.AlertGroup
	stats  Stats
}

// NewOptimizer constructs an optimizer seeded with the default rule pack.
func NewOptimizer(cfg config.AlertingConfig, logger *slog.Logger) *Optimizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Optimizer{
		cfg:    cfg,
		logger: logger,
		rules:  DefaultSuppressionRules(),
		ledger: make(map[string]ledgerEntry),
		groups: make(map[string]models.AlertGroup),
	}
}

// OptimizeAlerts runs one optimization pass: suppression verdicts, priority
// and impact scoring, then the grouping passes in fixed order. It never
// raises for partial failure; malformed alerts are skipped and logged.
func (o *Optimizer) OptimizeAlerts(alerts []models.RawAlert, events []models.Event, anomalies []models.AnomalyResult) []models.OptimizedAlert {
	if !o.cfg.Enabled || len(alerts) == 0 {
		return nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	batch := make([]*models.OptimizedAlert, 0, len(alerts))
	for _, raw := range alerts {
		if raw.ID == "" {
			o.logger.Warn("skipping alert without id", slog.String("source", raw.Source))
			continue
		}
		if _, exists := o.ledger[raw.ID]; exists {
			o.logger.Debug("alert already optimized", slog.String("alert_id", raw.ID))
			continue
		}

		now := raw.Timestamp
		if now.IsZero() {
			now = time.Now().UTC()
		}

		opt := &models.OptimizedAlert{
			ID:            raw.ID,
			Status:        models.AlertActive,
			PriorityScore: PriorityScore(raw, anomalies),
			ImpactScore:   ImpactScore(raw),
			CreatedAt:     time.Now().UTC(),
			UpdatedAt:     time.Now().UTC(),
			Original:      raw,
		}

		if rule, matched := o.firstMatch(raw, now); matched {
			opt.Status = models.AlertSuppressed
			opt.SuppressionReason = string(rule.Reason)
			o.logger.Debug("alert suppressed",
				slog.String("alert_id", raw.ID),
				slog.String("rule_id", rule.ID),
				slog.String("reason", string(rule.Reason)))
		}

		o.ledger[raw.ID] = ledgerEntry{alert: *opt, at: now}
		o.order = append(o.order, raw.ID)
		batch = append(batch, opt)
	}

	groups := o.runGroupingPasses(batch)
	for _, g := range groups {
		o.groups[g.ID] = g
	}

	// Re-store batch entries so grouping mutations reach the ledger.
	results := make([]models.OptimizedAlert, 0, len(batch))
	for _, opt := range batch {
		entry := o.ledger[opt.ID]
		entry.alert = *opt
		o.ledger[opt.ID] = entry
		results = append(results, *opt)
	}

	o.stats.Processed += len(batch)
	o.stats.Groups += len(groups)
	for _, opt := range batch {
		switch {
		case opt.Status == models.AlertSuppressed:
			o.stats.Suppressed++
		case opt.GroupID != "":
			o.stats.Grouped++
			o.stats.Active++
		default:
			o.stats.Active++
		}
	}

	return results
}

// firstMatch evaluates enabled rules in stored order; the first match wins.
// A predicate that fails to evaluate is treated as not matched.
func (o *Optimizer) firstMatch(alert models.RawAlert, now time.Time) (models.SuppressionRule, bool) {
	for _, rule := range o.rules {
		if !rule.Enabled {
			continue
		}
		matched := func() (m bool) {
			defer func() {
				if r := recover(); r != nil {
					o.logger.Error("suppression rule panicked",
						slog.String("rule_id", rule.ID), slog.Any("panic", r))
					m = false
				}
			}()
			return o.evaluateRule(rule, alert, now)
		}()
		if matched {
			return rule, true
		}
	}
	return models.SuppressionRule{}, false
}

// AddRule appends a suppression rule, effective on the next pass.
func (o *Optimizer) AddRule(rule models.SuppressionRule) error {
	if rule.ID == "" {
		return fmt.Errorf("suppression rule id is required")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, existing := range o.rules {
		if existing.ID == rule.ID {
			return fmt.Errorf("suppression rule %s already exists", rule.ID)
		}
	}
	rule.CreatedAt = time.Now().UTC()
	rule.UpdatedAt = rule.CreatedAt
	o.rules = append(o.rules, rule)
	return nil
}

// UpdateRule replaces an existing rule in place, preserving stored order.
func (o *Optimizer) UpdateRule(rule models.SuppressionRule) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, existing := range o.rules {
		if existing.ID == rule.ID {
			rule.CreatedAt = existing.CreatedAt
			rule.UpdatedAt = time.Now().UTC()
			o.rules[i] = rule
			return nil
		}
	}
	return fmt.Errorf("suppression rule %s not found", rule.ID)
}

// DeleteRule removes a rule by id.
func (o *Optimizer) DeleteRule(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, existing := range o.rules {
		if existing.ID == id {
			o.rules = append(o.rules[:i], o.rules[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("suppression rule %s not found", id)
}

// SetRules replaces the whole rule pack (used by hot reload).
func (o *Optimizer) SetRules(rules []models.SuppressionRule) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rules = append([]models.SuppressionRule(nil), rules...)
}

// Rules returns a snapshot of the current rule pack.
func (o *Optimizer) Rules() []models.SuppressionRule {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]models.SuppressionRule(nil), o.rules...)
}

// Alerts returns a snapshot of the optimized ledger in insertion order.
func (o *Optimizer) Alerts() []models.OptimizedAlert {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]models.OptimizedAlert, 0, len(o.order))
	for _, id := range o.order {
		out = append(out, o.ledger[id].alert)
	}
	return out
}

// Groups returns a snapshot of all alert groups.
func (o *Optimizer) Groups() []models.AlertGroup {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]models.AlertGroup, 0, len(o.groups))
	for _, g := range o.groups {
		out = append(out, g)
	}
	return out
}

// Stats returns the running counters.
func (o *Optimizer) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stats
}
