package alerting

import (
	"time"

	"github.com/google/uuid"

	"github.com/serpstack/aiops-engine/internal/metrics"
	"github.com/serpstack/aiops-engine/internal/models"
	"github.com/serpstack/aiops-engine/internal/utils"
)

// runGroupingPasses applies the four strategies in fixed order. Each pass
// only considers ACTIVE alerts not claimed by an earlier pass, so strategies
// stay mutually exclusive per alert within a run.
func (o *Optimizer) runGroupingPasses(batch []*models.OptimizedAlert) []models.AlertGroup {
	var groups []models.AlertGroup
	groups = append(groups, o.groupByField(batch, models.GroupBySource)...)
	groups = append(groups, o.groupByField(batch, models.GroupByType)...)
	groups = append(groups, o.groupByTimeWindow(batch)...)
	groups = append(groups, o.groupByImpact(batch)...)
	return groups
}

// groupByField clusters ungrouped active alerts sharing a source or type.
// Only buckets with more than one member become groups.
func (o *Optimizer) groupByField(batch []*models.OptimizedAlert, strategy models.GroupStrategy) []models.AlertGroup {
	buckets := make(map[string][]*models.OptimizedAlert)
	order := make([]string, 0)
	for _, alert := range batch {
		if !groupable(alert) {
			continue
		}
		var key string
		if strategy == models.GroupBySource {
			key = alert.Original.Source
		} else {
			key = alert.Original.Type
		}
		if key == "" {
			continue
		}
		if _, ok := buckets[key]; !ok {
			order = append(order, key)
		}
		buckets[key] = append(buckets[key], alert)
	}

	var groups []models.AlertGroup
	for _, key := range order {
		members := buckets[key]
		if len(members) < 2 {
			continue
		}
		members = o.capMembers(members)
		group := models.AlertGroup{
			ID:        uuid.NewString(),
			Strategy:  strategy,
			Key:       key,
			CreatedAt: time.Now().UTC(),
		}
		for _, m := range members {
			group.AlertIDs = append(group.AlertIDs, m.ID)
			m.GroupID = group.ID
			m.UpdatedAt = group.CreatedAt
			metrics.ObserveGrouping(string(strategy))
		}
		group.Summary = o.summarize(strategy, members)
		groups = append(groups, group)
	}
	return groups
}

// groupByTimeWindow forms one group per anchor alert together with its
// similar neighbors inside the configured window. The anchor snapshot is
// taken before any group is formed, so later anchors can list members an
// earlier group already claimed: overlapping membership is intentional, and
// an alert's group id is only ever set once.
func (o *Optimizer) groupByTimeWindow(batch []*models.OptimizedAlert) []models.AlertGroup {
	window := time.Duration(o.cfg.TimeWindowMinutes) * time.Minute

	candidates := make([]*models.OptimizedAlert, 0, len(batch))
	for _, alert := range batch {
		if groupable(alert) {
			candidates = append(candidates, alert)
		}
	}

	var groups []models.AlertGroup
	for _, anchor := range candidates {
		members := []*models.OptimizedAlert{anchor}
		for _, other := range candidates {
			if other == anchor {
				continue
			}
			gap := alertTime(other).Sub(alertTime(anchor))
			if gap < 0 {
				gap = -gap
			}
			if gap > window {
				continue
			}
			if Similar(anchor.Original, other.Original) {
				members = append(members, other)
			}
		}
		if len(members) < 2 {
			continue
		}
		members = o.capMembers(members)
		group := models.AlertGroup{
			ID:        uuid.NewString(),
			Strategy:  models.GroupByTimeWindow,
			Key:       anchor.ID,
			CreatedAt: time.Now().UTC(),
		}
		for _, m := range members {
			group.AlertIDs = append(group.AlertIDs, m.ID)
			if m.GroupID == "" {
				m.GroupID = group.ID
				m.UpdatedAt = group.CreatedAt
				metrics.ObserveGrouping(string(models.GroupByTimeWindow))
			}
		}
		group.Summary = o.summarize(models.GroupByTimeWindow, members)
		groups = append(groups, group)
	}
	return groups
}

// groupByImpact buckets remaining ungrouped active alerts by impact band.
func (o *Optimizer) groupByImpact(batch []*models.OptimizedAlert) []models.AlertGroup {
	buckets := make(map[string][]*models.OptimizedAlert)
	order := []string{"critical", "high", "medium", "low"}
	for _, alert := range batch {
		if !groupable(alert) {
			continue
		}
		band := impactBand(alert.ImpactScore)
		buckets[band] = append(buckets[band], alert)
	}

	var groups []models.AlertGroup
	for _, band := range order {
		members := buckets[band]
		if len(members) < 2 {
			continue
		}
		members = o.capMembers(members)
		group := models.AlertGroup{
			ID:        uuid.NewString(),
			Strategy:  models.GroupByImpact,
			Key:       band,
			CreatedAt: time.Now().UTC(),
		}
		for _, m := range members {
			group.AlertIDs = append(group.AlertIDs, m.ID)
			m.GroupID = group.ID
			m.UpdatedAt = group.CreatedAt
			metrics.ObserveGrouping(string(models.GroupByImpact))
		}
		group.Summary = o.summarize(models.GroupByImpact, members)
		groups = append(groups, group)
	}
	return groups
}

func (o *Optimizer) summarize(strategy models.GroupStrategy, members []*models.OptimizedAlert) map[string]any {
	summary := map[string]any{"count": len(members)}
	switch strategy {
	case models.GroupBySource:
		severities := make([]models.Severity, 0, len(members))
		for _, m := range members {
			severities = append(severities, m.Original.Severity)
		}
		summary["dominant_severity"] = string(models.MaxSeverity(severities...))
	case models.GroupByType:
		sources := make(map[string]struct{})
		for _, m := range members {
			if m.Original.Source != "" {
				sources[m.Original.Source] = struct{}{}
			}
		}
		summary["distinct_sources"] = len(sources)
	case models.GroupByTimeWindow:
		earliest, latest := alertTime(members[0]), alertTime(members[0])
		for _, m := range members[1:] {
			at := alertTime(m)
			if at.Before(earliest) {
				earliest = at
			}
			if at.After(latest) {
				latest = at
			}
		}
		summary["span_minutes"] = utils.DurationMinutes(earliest, latest)
	case models.GroupByImpact:
		max := 0.0
		for _, m := range members {
			if m.ImpactScore > max {
				max = m.ImpactScore
			}
		}
		summary["max_impact"] = max
	}
	return summary
}

func (o *Optimizer) capMembers(members []*models.OptimizedAlert) []*models.OptimizedAlert {
	if o.cfg.MaxAlertsPerGroup > 0 && len(members) > o.cfg.MaxAlertsPerGroup {
		return members[:o.cfg.MaxAlertsPerGroup]
	}
	return members
}

func groupable(alert *models.OptimizedAlert) bool {
	return alert.Status == models.AlertActive && alert.GroupID == ""
}

func alertTime(alert *models.OptimizedAlert) time.Time {
	if !alert.Original.Timestamp.IsZero() {
		return alert.Original.Timestamp
	}
	return alert.CreatedAt
}
