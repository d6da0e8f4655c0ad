package alerting

import (
	"strings"

	"github.com/serpstack/aiops-engine/internal/models"
)

// similarityGate is the boolean-similarity threshold two alerts must reach to
// count as structurally similar.
const similarityGate = 0.7

// Pairwise duplicate detection collapses the boolean similarity verdict onto
// a coarse two-level score. The 0.7 gate above is the contract; these two
// levels are its encoding.
const (
	pairScoreSimilar    = 0.9
	pairScoreDissimilar = 0.3
)

// Similar reports whether two raw alerts are structurally similar: the mean
// of per-field matches (type, severity, source, message-token overlap),
// computed over the fields both alerts actually carry, reaches the gate.
func Similar(a, b models.RawAlert) bool {
	var sum float64
	var fields int

	if a.Type != "" || b.Type != "" {
		fields++
		if a.Type == b.Type {
			sum++
		}
	}
	if a.Severity != "" || b.Severity != "" {
		fields++
		if a.Severity == b.Severity {
			sum++
		}
	}
	if a.Source != "" || b.Source != "" {
		fields++
		if a.Source == b.Source {
			sum++
		}
	}
	if a.Message != "" || b.Message != "" {
		fields++
		sum += tokenJaccard(a.Message, b.Message)
	}

	if fields == 0 {
		return false
	}
	return sum/float64(fields) >= similarityGate
}

// PairScore is the two-level duplicate-detection similarity.
func PairScore(a, b models.RawAlert) float64 {
	if Similar(a, b) {
		return pairScoreSimilar
	}
	return pairScoreDissimilar
}

// tokenJaccard computes token-set overlap between two messages.
func tokenJaccard(a, b string) float64 {
	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 0
	}

	intersection := 0
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			intersection++
		}
	}
	union := len(ta) + len(tb) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		set[tok] = struct{}{}
	}
	return set
}
