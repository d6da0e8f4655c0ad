package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/serpstack/aiops-engine/internal/alerting"
	"github.com/serpstack/aiops-engine/internal/anomaly"
	"github.com/serpstack/aiops-engine/internal/config"
	"github.com/serpstack/aiops-engine/internal/correlation"
	"github.com/serpstack/aiops-engine/internal/metrics"
	"github.com/serpstack/aiops-engine/internal/models"
	"github.com/serpstack/aiops-engine/internal/patterns"
	"github.com/serpstack/aiops-engine/internal/remediation"
	"github.com/serpstack/aiops-engine/internal/storage"
	"github.com/serpstack/aiops-engine/internal/utils"
)

// Result is the outcome of one batch pass through every enabled stage.
type Result struct {
	Events            int                        `json:"events"`
	Skipped           int                        `json:"skipped"`
	Correlations      []models.Correlation       `json:"correlations,omitempty"`
	CorrelationAlerts []models.CorrelationAlert  `json:"correlation_alerts,omitempty"`
	Anomalies         []models.AnomalyResult     `json:"anomalies,omitempty"`
	OptimizedAlerts   []models.OptimizedAlert    `json:"optimized_alerts,omitempty"`
	Actions           []models.RemediationAction `json:"actions,omitempty"`
}

// Pipeline fans an event batch through correlation and anomaly detection in
// parallel, then feeds alert optimization and auto-remediation with the
// combined evidence. Safe for concurrent invocation across independent
// batches; per-ledger serialization lives inside the downstream engines.
type Pipeline struct {
	logger     *slog.Logger
	cfg        *config.Config
	correlator *correlation.Engine
	detector   *anomaly.Detector
	optimizer  *alerting.Optimizer
	remediator *remediation.Engine
	store      storage.Provider
	miner      *patterns.Miner
	latencies  *utils.LatencyTracker
}

// NewPipeline wires the processing stages together.
func NewPipeline(
	cfg *config.Config,
	logger *slog.Logger,
	correlator *correlation.Engine,
	detector *anomaly.Detector,
	optimizer *alerting.Optimizer,
	remediator *remediation.Engine,
	store storage.Provider,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if store == nil {
		store = storage.NoopProvider{}
	}
	return &Pipeline{
		logger:     logger,
		cfg:        cfg,
		correlator: correlator,
		detector:   detector,
		optimizer:  optimizer,
		remediator: remediator,
		store:      store,
		miner:      patterns.NewMiner(logger),
		latencies:  utils.NewLatencyTracker(1024),
	}
}

// ProcessBatch runs one batch through every enabled stage. Malformed events
// are skipped with a log line; partial failures (storage writes, individual
// actions) never fail the batch.
func (p *Pipeline) ProcessBatch(ctx context.Context, events []models.Event, rawAlerts []models.RawAlert) Result {
	valid := make([]models.Event, 0, len(events))
	skipped := 0
	for _, ev := range events {
		if !ev.Valid() {
			skipped++
			p.logger.Warn("skipping malformed event", "event_id", ev.ID, "type", ev.Type)
			continue
		}
		valid = append(valid, ev)
	}

	result := Result{Events: len(valid), Skipped: skipped}
	if len(valid) == 0 && len(rawAlerts) == 0 {
		return result
	}

	start := time.Now()

	var wg sync.WaitGroup
	if p.cfg.Correlation.Enabled && p.correlator != nil && len(valid) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result.Correlations = p.correlator.Correlate(valid)
			result.CorrelationAlerts = p.correlator.GenerateAlerts(result.Correlations, valid)
		}()
	}
	if p.cfg.Anomaly.Enabled && p.detector != nil && len(valid) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result.Anomalies = p.detector.Detect(valid)
		}()
	}
	wg.Wait()

	if p.optimizer != nil {
		result.OptimizedAlerts = p.optimizer.OptimizeAlerts(rawAlerts, valid, result.Anomalies)
	}
	if p.remediator != nil {
		result.Actions = p.remediator.ProcessEvents(ctx, valid, result.Anomalies, result.Correlations)
	}

	p.miner.Observe(result.Correlations, valid)

	persistErrs := p.persist(ctx, valid, result)
	duration := time.Since(start)
	p.observe(result, duration, persistErrs)

	p.latencies.Observe(duration)
	if count := p.latencies.Count(); count >= 20 && count%20 == 0 {
		p95 := p.latencies.Percentile(95)
		p.logger.Info("batch latency", slog.Duration("p95", p95), slog.Int("samples", count))
	}

	return result
}

// Patterns returns the failure patterns mined from the correlation stream
// so far, most prevalent first.
func (p *Pipeline) Patterns() []models.FailurePattern {
	return p.miner.Patterns()
}

// persist writes batch outputs to the storage collaborator, best-effort.
func (p *Pipeline) persist(ctx context.Context, events []models.Event, result Result) int {
	failures := 0
	write := func(key string, value any, ttl time.Duration) {
		data, err := json.Marshal(value)
		if err != nil {
			failures++
			p.logger.Warn("marshal for storage failed", "key", key, "error", err)
			return
		}
		if err := p.store.Set(ctx, key, data, ttl); err != nil {
			failures++
			p.logger.Warn("storage write failed", "key", key, "error", err)
		}
	}

	st := p.cfg.Storage
	for _, ev := range events {
		write(storage.KeyPrefixEvent+ev.ID, ev, st.EventTTL)
	}
	for _, corr := range result.Correlations {
		write(storage.KeyPrefixCorrelation+corr.ID, corr, st.CorrelationTTL)
	}
	for _, a := range result.Anomalies {
		if a.IsAnomaly {
			write(storage.KeyPrefixAnomalyAlert+a.EventID, a, st.AnomalyAlertTTL)
		}
	}
	return failures
}

func (p *Pipeline) observe(result Result, duration time.Duration, persistErrs int) {
	metrics.ObserveEvents(result.Events)
	for _, corr := range result.Correlations {
		metrics.ObserveCorrelation(string(corr.Method))
	}
	flagged := 0
	for _, a := range result.Anomalies {
		if a.IsAnomaly {
			flagged++
		}
	}
	metrics.ObserveAnomalies(flagged)
	for _, alert := range result.OptimizedAlerts {
		if alert.Status == models.AlertSuppressed {
			metrics.ObserveSuppression(alert.SuppressionReason)
		}
	}
	for _, action := range result.Actions {
		metrics.ObserveAction(string(action.Type), string(action.Status))
	}

	outcome := metrics.OutcomeSuccess
	if persistErrs > 0 {
		outcome = metrics.OutcomeError
	}
	metrics.ObserveBatch(duration, outcome)
}
