package anomaly

import (
	"fmt"
	"math"
	"sort"
)

// Algorithm names accepted in configuration.
const (
	AlgoIsolationForest    = "isolation_forest"
	AlgoLocalOutlierFactor = "local_outlier_factor"
)

// Scaler standardizes feature vectors to zero mean and unit variance.
type Scaler struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// FitScaler computes per-feature mean and standard deviation.
func FitScaler(samples [][]float64) Scaler {
	s := Scaler{
		Mean: make([]float64, FeatureCount),
		Std:  make([]float64, FeatureCount),
	}
	if len(samples) == 0 {
		for i := range s.Std {
			s.Std[i] = 1
		}
		return s
	}

	for _, sample := range samples {
		for i, v := range sample {
			s.Mean[i] += v
		}
	}
	for i := range s.Mean {
		s.Mean[i] /= float64(len(samples))
	}
	for _, sample := range samples {
		for i, v := range sample {
			d := v - s.Mean[i]
			s.Std[i] += d * d
		}
	}
	for i := range s.Std {
		s.Std[i] = math.Sqrt(s.Std[i] / float64(len(samples)))
		if s.Std[i] == 0 {
			s.Std[i] = 1
		}
	}
	return s
}

// Transform scales one vector.
func (s Scaler) Transform(sample []float64) []float64 {
	out := make([]float64, len(sample))
	for i, v := range sample {
		out[i] = (v - s.Mean[i]) / s.Std[i]
	}
	return out
}

// Model is one fitted outlier detector: Score returns the algorithm-native
// continuous score for a scaled vector, Flag the binary verdict for a score.
type Model struct {
	Algorithm string  `json:"algorithm"`
	Scaler    Scaler  `json:"scaler"`
	Threshold float64 `json:"threshold"`
	// MaxDeviation calibrates density scores onto [0,1].
	MaxDeviation float64 `json:"max_deviation"`
}

// FitModel trains one algorithm on raw feature vectors, calibrating the
// decision threshold so roughly expectedRate of the training data is flagged.
// A deliberate stand-in for the library estimators the scores mimic: the
// isolation-style member maps deviation onto [-0.5, 0.5] (lower = more
// anomalous), the density-style member onto [0, 1] (higher = more anomalous).
func FitModel(algorithm string, samples [][]float64, expectedRate float64) (Model, error) {
	m := Model{Algorithm: algorithm, Scaler: FitScaler(samples)}

	scaled := make([][]float64, len(samples))
	for i, s := range samples {
		scaled[i] = m.Scaler.Transform(s)
	}

	deviations := make([]float64, len(scaled))
	maxDev := 0.0
	for i, s := range scaled {
		deviations[i] = meanAbs(s)
		if deviations[i] > maxDev {
			maxDev = deviations[i]
		}
	}
	if maxDev == 0 {
		maxDev = 1
	}
	m.MaxDeviation = maxDev

	scores := make([]float64, len(scaled))
	for i := range scaled {
		scores[i] = m.scoreDeviation(deviations[i])
	}

	switch algorithm {
	case AlgoIsolationForest:
		// Flag below the low quantile: small scores are anomalous.
		m.Threshold = quantile(scores, expectedRate)
	case AlgoLocalOutlierFactor:
		// Flag above the high quantile: large scores are anomalous.
		m.Threshold = quantile(scores, 1-expectedRate)
	default:
		return Model{}, fmt.Errorf("unknown algorithm %q", algorithm)
	}
	return m, nil
}

// Score computes the algorithm-native score for a raw feature vector.
func (m Model) Score(sample []float64) float64 {
	return m.scoreDeviation(meanAbs(m.Scaler.Transform(sample)))
}

func (m Model) scoreDeviation(dev float64) float64 {
	norm := dev / m.MaxDeviation
	if norm > 1 {
		norm = 1
	}
	switch m.Algorithm {
	case AlgoIsolationForest:
		return 0.5 - norm
	default:
		return norm
	}
}

// Flag reports whether a score crosses the fitted decision threshold.
func (m Model) Flag(score float64) bool {
	if m.Algorithm == AlgoIsolationForest {
		return score <= m.Threshold
	}
	return score >= m.Threshold
}

// Confidence normalizes an algorithm score onto [0,1].
func (m Model) Confidence(score float64) float64 {
	var c float64
	switch m.Algorithm {
	case AlgoIsolationForest:
		c = 1 - (score + 0.5)
	default:
		c = 1 - score
	}
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

func meanAbs(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += math.Abs(v)
	}
	return sum / float64(len(values))
}

func quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	idx := int(q * float64(len(sorted)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
