package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels batches that completed without pipeline errors.
	OutcomeSuccess = "success"
	// OutcomeError labels batches that hit a pipeline or dependency issue.
	OutcomeError = "error"
)

var (
	eventsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "aiops",
			Name:      "events_total",
			Help:      "Total number of events ingested.",
		},
	)

	correlationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aiops",
			Name:      "correlations_total",
			Help:      "Total number of correlations detected, partitioned by method.",
		},
		[]string{"method"},
	)

	anomaliesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "aiops",
			Name:      "anomalies_total",
			Help:      "Total number of events flagged anomalous by the ensemble.",
		},
	)

	suppressionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aiops",
			Name:      "alert_suppressions_total",
			Help:      "Total number of alerts suppressed, partitioned by reason.",
		},
		[]string{"reason"},
	)

	groupingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aiops",
			Name:      "alert_groupings_total",
			Help:      "Total number of alerts placed into groups, partitioned by strategy.",
		},
		[]string{"strategy"},
	)

	actionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aiops",
			Name:      "remediation_actions_total",
			Help:      "Total number of remediation actions executed, partitioned by type and terminal status.",
		},
		[]string{"type", "status"},
	)

	batchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aiops",
			Name:      "batches_total",
			Help:      "Total number of batches processed, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	batchDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "aiops",
			Name:      "batch_seconds",
			Help:      "End-to-end batch processing latency in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)
)

// Register attaches the engine's collectors to the supplied Prometheus
// registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		eventsTotal,
		correlationsTotal,
		anomaliesTotal,
		suppressionsTotal,
		groupingsTotal,
		actionsTotal,
		batchesTotal,
		batchDurationSeconds,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveEvents counts ingested events.
func ObserveEvents(n int) {
	if n > 0 {
		eventsTotal.Add(float64(n))
	}
}

// ObserveCorrelation counts one detected correlation by method.
func ObserveCorrelation(method string) {
	correlationsTotal.WithLabelValues(method).Inc()
}

// ObserveAnomalies counts flagged anomalies.
func ObserveAnomalies(n int) {
	if n > 0 {
		anomaliesTotal.Add(float64(n))
	}
}

// ObserveSuppression counts one suppressed alert by reason.
func ObserveSuppression(reason string) {
	suppressionsTotal.WithLabelValues(reason).Inc()
}

// ObserveGrouping counts one grouped alert by strategy.
func ObserveGrouping(strategy string) {
	groupingsTotal.WithLabelValues(strategy).Inc()
}

// ObserveAction counts one terminal remediation action.
func ObserveAction(actionType, status string) {
	actionsTotal.WithLabelValues(actionType, status).Inc()
}

// ObserveBatch records a batch duration and outcome label.
func ObserveBatch(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	batchesTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	batchDurationSeconds.Observe(duration.Seconds())
}
