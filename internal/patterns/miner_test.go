package patterns

import (
	"testing"
	"time"

	"github.com/serpstack/aiops-engine/internal/models"
)

func TestMinerAggregatesCausalPairs(t *testing.T) {
	miner := NewMiner(nil)

	now := time.Now().UTC()
	correlations := []models.Correlation{
		{
			ID: "c1", Method: models.MethodCausal,
			CauseType: models.EventTypeSystemMetric, EffectType: models.EventTypeError,
			DeltaSeconds: 30, CreatedAt: now,
		},
		{
			ID: "c2", Method: models.MethodCausal,
			CauseType: models.EventTypeSystemMetric, EffectType: models.EventTypeError,
			DeltaSeconds: 50, CreatedAt: now.Add(10 * time.Minute),
		},
		{
			ID: "c3", Method: models.MethodCausal,
			CauseType: models.EventTypeDatabaseQuery, EffectType: models.EventTypePerformance,
			DeltaSeconds: 5, CreatedAt: now,
		},
	}
	miner.Observe(correlations, nil)

	patterns := miner.Patterns()
	if len(patterns) != 2 {
		t.Fatalf("expected two patterns, got %d", len(patterns))
	}
	top := patterns[0]
	if top.Occurrences != 2 || top.CauseType != models.EventTypeSystemMetric {
		t.Fatalf("most frequent pair must sort first: %+v", top)
	}
	if top.AvgDeltaSeconds != 40 {
		t.Fatalf("expected average delta 40, got %f", top.AvgDeltaSeconds)
	}
	if top.Prevalence != 2.0/3.0 {
		t.Fatalf("unexpected prevalence %f", top.Prevalence)
	}
}

func TestMinerTemporalSignatureFromEventTypes(t *testing.T) {
	miner := NewMiner(nil)

	now := time.Now().UTC()
	events := []models.Event{
		{ID: "e1", Type: models.EventTypeSystemMetric},
		{ID: "e2", Type: models.EventTypeError},
	}
	miner.Observe([]models.Correlation{
		{ID: "c1", Method: models.MethodTemporal, EventIDs: []string{"e1", "e2"}, CreatedAt: now},
	}, events)

	patterns := miner.Patterns()
	if len(patterns) != 1 {
		t.Fatalf("expected one pattern, got %d", len(patterns))
	}
	if patterns[0].Signature != "temporal:error_event+system_metric" {
		t.Fatalf("unexpected signature %s", patterns[0].Signature)
	}
}

func TestMinerAccumulatesAcrossBatches(t *testing.T) {
	miner := NewMiner(nil)
	now := time.Now().UTC()
	corr := models.Correlation{
		ID: "c1", Method: models.MethodCausal,
		CauseType: models.EventTypeSystemMetric, EffectType: models.EventTypeError,
		DeltaSeconds: 30, CreatedAt: now,
	}
	miner.Observe([]models.Correlation{corr}, nil)
	corr.ID = "c2"
	corr.CreatedAt = now.Add(time.Hour)
	miner.Observe([]models.Correlation{corr}, nil)

	patterns := miner.Patterns()
	if len(patterns) != 1 || patterns[0].Occurrences != 2 {
		t.Fatalf("expected one pattern with two occurrences, got %+v", patterns)
	}
	if !patterns[0].LastSeen.After(patterns[0].FirstSeen) {
		t.Fatalf("last seen must advance across batches")
	}
}

func TestMinerEmptyBatchNoOp(t *testing.T) {
	miner := NewMiner(nil)
	miner.Observe(nil, nil)
	if got := miner.Patterns(); len(got) != 0 {
		t.Fatalf("expected no patterns, got %d", len(got))
	}
}
