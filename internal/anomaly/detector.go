package anomaly

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/serpstack/aiops-engine/internal/config"
	"github.com/serpstack/aiops-engine/internal/models"
	"github.com/serpstack/aiops-engine/internal/storage"
)

// ErrInsufficientData reports that a training batch was smaller than the
// configured minimum. It is a status, not a failure: nothing is trained and
// the previous state stays published.
var ErrInsufficientData = errors.New("anomaly: insufficient training samples")

// State is an immutable snapshot of fitted models plus the training report.
// Training produces a new State and publishes it with one atomic swap, so
// concurrent detection never observes a partially updated ensemble.
type State struct {
	Models    []Model               `json:"models"`
	Report    models.TrainingReport `json:"report"`
	TrainedAt time.Time             `json:"trained_at"`
}

// Detector scores events against the published ensemble snapshot.
type Detector struct {
	cfg    config.AnomalyConfig
	logger *slog.Logger
	store  storage.Provider
	state  atomic.Pointer[State]
}

// NewDetector constructs a detector. store may be a NoopProvider when state
// persistence is not wanted.
func NewDetector(cfg config.AnomalyConfig, logger *slog.Logger, store storage.Provider) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	if store == nil {
		store = storage.NoopProvider{}
	}
	return &Detector{cfg: cfg, logger: logger, store: store}
}

// Trained reports whether a model snapshot is published.
func (d *Detector) Trained() bool {
	return d.state.Load() != nil
}

// Train fits one model per configured algorithm on the batch, evaluates the
// held-out partition against an expected-rate baseline (no real labels exist;
// the metrics are an acknowledged approximation), publishes the new snapshot
// and persists it for restart survival.
func (d *Detector) Train(ctx context.Context, events []models.Event) (models.TrainingReport, error) {
	report := models.TrainingReport{
		Samples:    len(events),
		Algorithms: append([]string(nil), d.cfg.Algorithms...),
		Precision:  make(map[string]float64),
		Recall:     make(map[string]float64),
		F1:         make(map[string]float64),
	}
	if len(events) < d.cfg.MinSamples {
		d.logger.Warn("training skipped",
			slog.Int("samples", len(events)),
			slog.Int("min_samples", d.cfg.MinSamples))
		return report, ErrInsufficientData
	}

	features := make([][]float64, len(events))
	for i, ev := range events {
		features[i] = ExtractFeatures(ev)
	}

	split := len(features) * 8 / 10
	if split == len(features) {
		split = len(features) - 1
	}
	trainSet, heldOut := features[:split], features[split:]
	report.HeldOut = len(heldOut)

	fitted := make([]Model, 0, len(d.cfg.Algorithms))
	for _, algo := range d.cfg.Algorithms {
		model, err := FitModel(algo, trainSet, d.cfg.ExpectedAnomalyRate)
		if err != nil {
			return report, fmt.Errorf("fit %s: %w", algo, err)
		}
		precision, recall, f1 := d.evaluate(model, heldOut)
		report.Precision[algo] = precision
		report.Recall[algo] = recall
		report.F1[algo] = f1
		fitted = append(fitted, model)
	}

	report.Trained = true
	report.CompletedAt = time.Now().UTC()

	snapshot := &State{Models: fitted, Report: report, TrainedAt: report.CompletedAt}
	d.state.Store(snapshot)

	if err := d.saveState(ctx, snapshot); err != nil {
		d.logger.Warn("failed to persist detector state", slog.Any("error", err))
	}
	return report, nil
}

// evaluate approximates precision/recall/F1 on the held-out partition: the
// baseline labels the top expected-rate fraction by scaled deviation as
// anomalous, then the model's flags are compared against them.
func (d *Detector) evaluate(model Model, heldOut [][]float64) (precision, recall, f1 float64) {
	if len(heldOut) == 0 {
		return 0, 0, 0
	}

	deviations := make([]float64, len(heldOut))
	for i, sample := range heldOut {
		deviations[i] = meanAbs(model.Scaler.Transform(sample))
	}
	cut := baselineCut(deviations, d.cfg.ExpectedAnomalyRate)

	var tp, fp, fn float64
	for i, sample := range heldOut {
		actual := deviations[i] >= cut
		predicted := model.Flag(model.Score(sample))
		switch {
		case predicted && actual:
			tp++
		case predicted && !actual:
			fp++
		case !predicted && actual:
			fn++
		}
	}

	if tp+fp > 0 {
		precision = tp / (tp + fp)
	}
	if tp+fn > 0 {
		recall = tp / (tp + fn)
	}
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	return precision, recall, f1
}

// Detect scores every event against each fitted algorithm and returns the
// consolidated ensemble verdicts. Without a trained snapshot it warns and
// returns empty.
func (d *Detector) Detect(events []models.Event) []models.AnomalyResult {
	if len(events) == 0 {
		return nil
	}
	state := d.state.Load()
	if state == nil {
		d.logger.Warn("detection requested before training")
		return nil
	}

	now := time.Now().UTC()
	consolidated := make([]models.AnomalyResult, 0, len(events))
	for _, ev := range events {
		features := ExtractFeatures(ev)
		perAlgo := make([]models.AnomalyResult, 0, len(state.Models))
		for _, model := range state.Models {
			score := model.Score(features)
			perAlgo = append(perAlgo, models.AnomalyResult{
				EventID:    ev.ID,
				Algorithm:  model.Algorithm,
				IsAnomaly:  model.Flag(score),
				Score:      score,
				Confidence: model.Confidence(score),
				Category:   Categorize(ev),
				Features:   features,
				DetectedAt: now,
			})
		}
		consolidated = append(consolidated, Consolidate(perAlgo))
	}
	return consolidated
}

// Consolidate reduces per-algorithm results for one event to a single
// ensemble verdict: majority vote on the flag (a tie counts as anomaly only
// above half), averaged score and confidence, category and features from the
// highest-confidence member.
func Consolidate(results []models.AnomalyResult) models.AnomalyResult {
	if len(results) == 0 {
		return models.AnomalyResult{}
	}

	votes := 0
	scoreSum, confSum := 0.0, 0.0
	best := results[0]
	for _, r := range results {
		if r.IsAnomaly {
			votes++
		}
		scoreSum += r.Score
		confSum += r.Confidence
		if r.Confidence > best.Confidence {
			best = r
		}
	}

	n := len(results)
	return models.AnomalyResult{
		EventID:    best.EventID,
		Algorithm:  fmt.Sprintf("ensemble_%d", n),
		IsAnomaly:  votes*2 > n,
		Score:      scoreSum / float64(n),
		Confidence: confSum / float64(n),
		Category:   best.Category,
		Features:   best.Features,
		DetectedAt: best.DetectedAt,
	}
}

// LoadState restores a previously persisted snapshot, if one exists.
func (d *Detector) LoadState(ctx context.Context) error {
	data, err := d.store.Get(ctx, storage.KeyDetectorState)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load detector state: %w", err)
	}
	var snapshot State
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("decode detector state: %w", err)
	}
	if len(snapshot.Models) == 0 {
		return nil
	}
	d.state.Store(&snapshot)
	d.logger.Info("restored detector state",
		slog.Time("trained_at", snapshot.TrainedAt),
		slog.Int("models", len(snapshot.Models)))
	return nil
}

// stateLockTTL bounds how long a replica holds the publish lock; a crashed
// writer frees it on expiry.
const stateLockTTL = 5 * time.Second

func (d *Detector) saveState(ctx context.Context, snapshot *State) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	// Replicas sharing a store train on the same batches; only the first
	// writer per lock window persists its snapshot.
	ok, err := d.store.SetNX(ctx, storage.KeyDetectorStateLock,
		[]byte(snapshot.TrainedAt.Format(time.RFC3339Nano)), stateLockTTL)
	if err != nil {
		return err
	}
	if !ok {
		d.logger.Debug("detector state publish skipped, another writer holds the lock")
		return nil
	}
	return d.store.Set(ctx, storage.KeyDetectorState, data, 0)
}

func baselineCut(deviations []float64, rate float64) float64 {
	sorted := append([]float64(nil), deviations...)
	sort.Float64s(sorted)
	idx := int(float64(len(sorted)) * (1 - rate))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}
