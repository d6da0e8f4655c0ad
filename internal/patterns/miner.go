package patterns

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/serpstack/aiops-engine/internal/models"
)

// Miner mines simple frequency-based failure patterns from the correlation
// stream. Causal correlations key on their cause/effect type pair; temporal
// correlations key on the set of distinct event types they span. State
// accumulates across batches behind a mutex.
type Miner struct {
	logger *slog.Logger

	mu    sync.Mutex
	total int
	aggs  map[string]*patternAggregate
}

type patternAggregate struct {
	method     models.CorrelationMethod
	causeType  models.EventType
	effectType models.EventType
	count      int
	deltaSum   float64
	firstSeen  time.Time
	lastSeen   time.Time
}

// NewMiner constructs a Miner.
func NewMiner(logger *slog.Logger) *Miner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Miner{logger: logger, aggs: make(map[string]*patternAggregate)}
}

// Observe folds one batch of correlations into the running aggregates. The
// event slice supplies type lookups for temporal correlations.
func (m *Miner) Observe(correlations []models.Correlation, events []models.Event) {
	if len(correlations) == 0 {
		return
	}

	types := make(map[string]models.EventType, len(events))
	for _, ev := range events {
		types[ev.ID] = ev.Type
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, corr := range correlations {
		key, causeType, effectType := signature(corr, types)
		if key == "" {
			continue
		}
		m.total++
		agg, ok := m.aggs[key]
		if !ok {
			agg = &patternAggregate{
				method:     corr.Method,
				causeType:  causeType,
				effectType: effectType,
				firstSeen:  corr.CreatedAt,
			}
			m.aggs[key] = agg
		}
		agg.count++
		agg.deltaSum += corr.DeltaSeconds
		if corr.CreatedAt.After(agg.lastSeen) {
			agg.lastSeen = corr.CreatedAt
		}
		if corr.CreatedAt.Before(agg.firstSeen) {
			agg.firstSeen = corr.CreatedAt
		}
	}
}

// Patterns returns the mined patterns, most prevalent first.
func (m *Miner) Patterns() []models.FailurePattern {
	m.mu.Lock()
	defer m.mu.Unlock()

	patterns := make([]models.FailurePattern, 0, len(m.aggs))
	for key, agg := range m.aggs {
		pattern := models.FailurePattern{
			ID:          "pattern-" + key,
			Method:      agg.method,
			Signature:   key,
			CauseType:   agg.causeType,
			EffectType:  agg.effectType,
			Occurrences: agg.count,
			Prevalence:  float64(agg.count) / float64(m.total),
			FirstSeen:   agg.firstSeen,
			LastSeen:    agg.lastSeen,
		}
		if agg.method == models.MethodCausal && agg.count > 0 {
			pattern.AvgDeltaSeconds = agg.deltaSum / float64(agg.count)
		}
		patterns = append(patterns, pattern)
	}

	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].Occurrences != patterns[j].Occurrences {
			return patterns[i].Occurrences > patterns[j].Occurrences
		}
		return patterns[i].Signature < patterns[j].Signature
	})
	return patterns
}

// signature derives the aggregation key for one correlation.
func signature(corr models.Correlation, types map[string]models.EventType) (string, models.EventType, models.EventType) {
	switch corr.Method {
	case models.MethodCausal:
		if corr.CauseType == "" || corr.EffectType == "" {
			return "", "", ""
		}
		return fmt.Sprintf("causal:%s->%s", corr.CauseType, corr.EffectType), corr.CauseType, corr.EffectType
	default:
		distinct := make(map[models.EventType]struct{})
		for _, id := range corr.EventIDs {
			if t, ok := types[id]; ok {
				distinct[t] = struct{}{}
			}
		}
		if len(distinct) == 0 {
			return "", "", ""
		}
		names := make([]string, 0, len(distinct))
		for t := range distinct {
			names = append(names, string(t))
		}
		sort.Strings(names)
		return string(corr.Method) + ":" + strings.Join(names, "+"), "", ""
	}
}
