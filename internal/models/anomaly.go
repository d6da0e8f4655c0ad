package models

import "time"

// AnomalyCategory classifies the shape of a detected anomaly.
type AnomalyCategory string

const (
	AnomalyPoint      AnomalyCategory = "point"
	AnomalyContextual AnomalyCategory = "contextual"
	AnomalyCollective AnomalyCategory = "collective"
	AnomalyTrend      AnomalyCategory = "trend"
)

// AnomalyResult is the per-event verdict of the detector. Before
// consolidation one result exists per (event, algorithm); afterwards a single
// ensemble result remains per event.
type AnomalyResult struct {
	EventID    string          `json:"event_id"`
	Algorithm  string          `json:"algorithm"`
	IsAnomaly  bool            `json:"is_anomaly"`
	Score      float64         `json:"score"`
	Confidence float64         `json:"confidence"`
	Category   AnomalyCategory `json:"category"`
	Features   []float64       `json:"features,omitempty"`
	DetectedAt time.Time       `json:"detected_at"`
}

// TrainingReport summarises a training run, including the held-out metrics
// approximated against an expected-rate baseline.
type TrainingReport struct {
	Trained     bool               `json:"trained"`
	Samples     int                `json:"samples"`
	HeldOut     int                `json:"held_out"`
	Algorithms  []string           `json:"algorithms"`
	Precision   map[string]float64 `json:"precision"`
	Recall      map[string]float64 `json:"recall"`
	F1          map[string]float64 `json:"f1"`
	CompletedAt time.Time          `json:"completed_at"`
}
