package remediation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/serpstack/aiops-engine/internal/config"
	"github.com/serpstack/aiops-engine/internal/models"
)

// Engine evaluates remediation rules against event batches and executes the
// matched actions through the handler registry. Cooldown and lifetime-cap
// accounting run against the engine's own action ledger; concurrent batches
// touching the same rule are serialized per rule id so a rule never
// double-counts toward either bound.
type Engine struct {
	cfg      config.RemediationConfig
	logger   *slog.Logger
	registry *Registry

	rulesMu sync.Mutex
	rules   map[string]models.RemediationRule
	order   []string

	ruleLocksMu sync.Mutex
	ruleLocks   map[string]*sync.Mutex

	ledgerMu sync.Mutex
	ledger   []models.RemediationAction
}

// NewEngine builds an engine seeded with the default rule pack.
func NewEngine(cfg config.RemediationConfig, registry *Registry, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		cfg:       cfg,
		logger:    logger,
		registry:  registry,
		rules:     make(map[string]models.RemediationRule),
		ruleLocks: make(map[string]*sync.Mutex),
	}
	e.SetRules(DefaultRemediationRules())
	return e
}

// ProcessEvents runs one remediation pass over a batch. Rules are evaluated
// in priority-ascending order; admission stops once the executed-action
// count for this call reaches maxConcurrentActions. The returned slice holds
// the actions recorded during this call, terminal states included.
func (e *Engine) ProcessEvents(ctx context.Context, events []models.Event, anomalies []models.AnomalyResult, correlations []models.Correlation) []models.RemediationAction {
	if !e.cfg.Enabled {
		return nil
	}
	if len(events) == 0 && len(anomalies) == 0 && len(correlations) == 0 {
		return nil
	}

	var executed []models.RemediationAction
	for _, rule := range e.snapshotRules() {
		if len(executed) >= e.cfg.MaxConcurrentActions {
			e.logger.Warn("remediation admission cap reached", "cap", e.cfg.MaxConcurrentActions)
			break
		}
		if !rule.Enabled {
			continue
		}

		lock := e.ruleLock(rule.ID)
		lock.Lock()
		admitted := e.admit(rule)
		if admitted && conditionsMatch(rule.Conditions, events, anomalies, correlations) {
			e.logger.Info("remediation rule matched",
				"rule_id", rule.ID,
				"actions", len(rule.Actions))
			for _, spec := range rule.Actions {
				executed = append(executed, e.executeAction(ctx, rule, spec))
			}
		}
		lock.Unlock()
	}
	return executed
}

// admit checks the rule's cooldown and lifetime cap against its ledger
// slice. Callers must hold the rule's lock.
func (e *Engine) admit(rule models.RemediationRule) bool {
	cooldown := rule.Cooldown
	if cooldown <= 0 {
		cooldown = time.Duration(e.cfg.CooldownMinutes) * time.Minute
	}

	e.ledgerMu.Lock()
	defer e.ledgerMu.Unlock()

	fired := 0
	var latest time.Time
	for _, action := range e.ledger {
		if action.RuleID != rule.ID {
			continue
		}
		fired++
		if action.StartedAt.After(latest) {
			latest = action.StartedAt
		}
	}
	if rule.MaxExecutions > 0 && fired >= rule.MaxExecutions {
		e.logger.Debug("remediation rule at lifetime cap", "rule_id", rule.ID, "cap", rule.MaxExecutions)
		return false
	}
	if !latest.IsZero() && time.Since(latest) < cooldown {
		e.logger.Debug("remediation rule in cooldown", "rule_id", rule.ID, "cooldown", cooldown)
		return false
	}
	return true
}

// executeAction runs one action spec through its handler under the
// configured deadline. Handler errors and panics become FAILED; deadline
// overruns become TIMEOUT. The action is appended to the ledger in its
// terminal state.
func (e *Engine) executeAction(ctx context.Context, rule models.RemediationRule, spec models.ActionSpec) models.RemediationAction {
	action := models.RemediationAction{
		ID:         uuid.NewString(),
		RuleID:     rule.ID,
		Type:       spec.Type,
		Status:     models.ActionPending,
		Target:     spec.Target,
		Parameters: spec.Parameters,
		StartedAt:  time.Now().UTC(),
	}

	handler, err := e.registry.Get(spec.Type)
	if err != nil {
		e.finish(&action, nil, err)
		return action
	}

	action.Status = models.ActionRunning

	timeout := e.cfg.ActionTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	actionCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := e.runHandler(actionCtx, handler, spec)
	if err == nil && actionCtx.Err() != nil {
		err = actionCtx.Err()
	}
	e.finish(&action, result, err)
	return action
}

// runHandler invokes a handler, converting panics into errors so a broken
// handler never takes the pass down.
func (e *Engine) runHandler(ctx context.Context, handler Handler, spec models.ActionSpec) (result map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, spec.Target, spec.Parameters)
}

// finish stamps the terminal state and appends the action to the ledger.
func (e *Engine) finish(action *models.RemediationAction, result map[string]any, err error) {
	action.CompletedAt = time.Now().UTC()
	action.Duration = action.CompletedAt.Sub(action.StartedAt)
	switch {
	case err == nil:
		action.Status = models.ActionSuccess
		action.Result = result
	case errors.Is(err, context.DeadlineExceeded):
		action.Status = models.ActionTimeout
		action.Error = err.Error()
	case errors.Is(err, context.Canceled):
		action.Status = models.ActionCancelled
		action.Error = err.Error()
	default:
		action.Status = models.ActionFailed
		action.Error = err.Error()
	}

	if action.Status != models.ActionSuccess {
		e.logger.Warn("remediation action did not succeed",
			"action_id", action.ID,
			"rule_id", action.RuleID,
			"type", action.Type,
			"status", action.Status,
			"error", action.Error)
	}

	e.ledgerMu.Lock()
	e.ledger = append(e.ledger, *action)
	e.ledgerMu.Unlock()
}

func (e *Engine) ruleLock(id string) *sync.Mutex {
	e.ruleLocksMu.Lock()
	defer e.ruleLocksMu.Unlock()
	lock, ok := e.ruleLocks[id]
	if !ok {
		lock = &sync.Mutex{}
		e.ruleLocks[id] = lock
	}
	return lock
}

// snapshotRules returns the enabled-or-not rule set sorted by ascending
// priority with insertion-order tie-break.
func (e *Engine) snapshotRules() []models.RemediationRule {
	e.rulesMu.Lock()
	defer e.rulesMu.Unlock()
	out := make([]models.RemediationRule, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.rules[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// AddRule registers a new rule, effective on the next pass.
func (e *Engine) AddRule(rule models.RemediationRule) error {
	e.rulesMu.Lock()
	defer e.rulesMu.Unlock()
	if rule.ID == "" {
		return fmt.Errorf("remediation rule id must not be empty")
	}
	if _, exists := e.rules[rule.ID]; exists {
		return fmt.Errorf("remediation rule %q already exists", rule.ID)
	}
	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	e.rules[rule.ID] = rule
	e.order = append(e.order, rule.ID)
	return nil
}

// UpdateRule replaces an existing rule, effective on the next pass.
func (e *Engine) UpdateRule(rule models.RemediationRule) error {
	e.rulesMu.Lock()
	defer e.rulesMu.Unlock()
	existing, exists := e.rules[rule.ID]
	if !exists {
		return fmt.Errorf("remediation rule %q not found", rule.ID)
	}
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now().UTC()
	e.rules[rule.ID] = rule
	return nil
}

// DeleteRule removes a rule. Ledger history for the rule is retained.
func (e *Engine) DeleteRule(id string) error {
	e.rulesMu.Lock()
	defer e.rulesMu.Unlock()
	if _, exists := e.rules[id]; !exists {
		return fmt.Errorf("remediation rule %q not found", id)
	}
	delete(e.rules, id)
	for i, existing := range e.order {
		if existing == id {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	return nil
}

// SetRules replaces the whole rule set, e.g. after a rule-pack reload.
func (e *Engine) SetRules(rules []models.RemediationRule) {
	e.rulesMu.Lock()
	defer e.rulesMu.Unlock()
	e.rules = make(map[string]models.RemediationRule, len(rules))
	e.order = e.order[:0]
	for _, rule := range rules {
		if rule.ID == "" {
			continue
		}
		if _, exists := e.rules[rule.ID]; exists {
			continue
		}
		e.rules[rule.ID] = rule
		e.order = append(e.order, rule.ID)
	}
}

// Rules returns the rule set in stored order.
func (e *Engine) Rules() []models.RemediationRule {
	e.rulesMu.Lock()
	defer e.rulesMu.Unlock()
	out := make([]models.RemediationRule, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.rules[id])
	}
	return out
}

// Actions returns a copy of the action ledger, oldest first.
func (e *Engine) Actions() []models.RemediationAction {
	e.ledgerMu.Lock()
	defer e.ledgerMu.Unlock()
	out := make([]models.RemediationAction, len(e.ledger))
	copy(out, e.ledger)
	return out
}
