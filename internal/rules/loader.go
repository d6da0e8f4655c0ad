package rules

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/serpstack/aiops-engine/internal/models"
	"github.com/serpstack/aiops-engine/internal/utils"
)

// Pack is one loaded rule-pack file: suppression rules for the alert
// optimizer and remediation rules for the auto-remediation engine. Either
// section may be empty.
type Pack struct {
	Suppression []models.SuppressionRule
	Remediation []models.RemediationRule
}

type packDoc struct {
	SuppressionRules []models.SuppressionRule `yaml:"suppression_rules"`
	RemediationRules []remediationRuleDoc     `yaml:"remediation_rules"`
}

// remediationRuleDoc is the YAML wire shape; cooldown is expressed in
// minutes, matching the configuration surface.
type remediationRuleDoc struct {
	ID              string                       `yaml:"id"`
	Description     string                       `yaml:"description"`
	Conditions      models.RemediationConditions `yaml:"conditions"`
	Actions         []models.ActionSpec          `yaml:"actions"`
	Priority        int                          `yaml:"priority"`
	Enabled         bool                         `yaml:"enabled"`
	MaxExecutions   int                          `yaml:"max_executions"`
	CooldownMinutes int                          `yaml:"cooldown_minutes"`
}

func (d remediationRuleDoc) rule(now time.Time) models.RemediationRule {
	return models.RemediationRule{
		ID:            d.ID,
		Description:   d.Description,
		Conditions:    d.Conditions,
		Actions:       d.Actions,
		Priority:      d.Priority,
		Enabled:       d.Enabled,
		MaxExecutions: d.MaxExecutions,
		Cooldown:      time.Duration(d.CooldownMinutes) * time.Minute,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Loader reads a YAML rule-pack file and watches it for changes. A missing
// file is not an error: the loader reports an empty pack and callers fall
// back to their built-in defaults.
type Loader struct {
	path   string
	logger *slog.Logger

	mu       sync.RWMutex
	current  Pack
	onChange []func(Pack)
	watcher  *fsnotify.Watcher
}

// NewLoader creates a Loader and performs the initial load.
func NewLoader(path string, logger *slog.Logger) (*Loader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loader{path: path, logger: logger}
	pack, err := l.load()
	if err != nil {
		return nil, err
	}
	l.current = pack
	return l, nil
}

// Pack returns the current (latest) rule pack.
func (l *Loader) Pack() Pack {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// OnChange registers a callback invoked whenever the pack reloads.
func (l *Loader) OnChange(fn func(Pack)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Watch starts a background goroutine that hot-reloads the pack on file
// changes. Call the returned stop function to clean up.
func (l *Loader) Watch() (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("rules watcher: %w", err)
	}
	if err := w.Add(l.path); err != nil {
		w.Close()
		return nil, fmt.Errorf("rules watcher add %s: %w", l.path, err)
	}
	l.watcher = w

	done := make(chan struct{})
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					if _, err := l.Reload(); err != nil {
						l.logger.Warn("rule pack reload failed, keeping previous pack",
							"path", l.path, "error", err)
					}
				}
			case <-w.Errors:
				// Ignore watcher errors.
			case <-done:
				return
			}
		}
	}()

	return func() { close(done) }, nil
}

// Reload forces an immediate re-read of the rule pack and notifies the
// registered callbacks.
func (l *Loader) Reload() (Pack, error) {
	pack, err := l.load()
	if err != nil {
		return Pack{}, err
	}
	l.mu.Lock()
	l.current = pack
	callbacks := make([]func(Pack), len(l.onChange))
	copy(callbacks, l.onChange)
	l.mu.Unlock()
	for _, fn := range callbacks {
		fn(pack)
	}
	l.logger.Info("rule pack loaded",
		"path", l.path,
		"suppression_rules", len(pack.Suppression),
		"remediation_rules", len(pack.Remediation))
	return pack, nil
}

func (l *Loader) load() (Pack, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			l.logger.Info("rule pack file absent, using built-in defaults", "path", l.path)
			return Pack{}, nil
		}
		return Pack{}, utils.NewAppError("rules.load", "read rule pack "+l.path, err)
	}

	var doc packDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Pack{}, utils.NewAppError("rules.load", "parse rule pack "+l.path, err)
	}

	now := time.Now().UTC()
	pack := Pack{Suppression: doc.SuppressionRules}
	for i := range pack.Suppression {
		pack.Suppression[i].CreatedAt = now
		pack.Suppression[i].UpdatedAt = now
	}
	for _, rd := range doc.RemediationRules {
		if rd.ID == "" {
			l.logger.Warn("skipping remediation rule without id", "path", l.path)
			continue
		}
		pack.Remediation = append(pack.Remediation, rd.rule(now))
	}
	return pack, nil
}
