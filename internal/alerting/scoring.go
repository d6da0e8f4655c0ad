package alerting

import (
	"strings"

	"github.com/serpstack/aiops-engine/internal/models"
)

// criticalDomains are source keywords that raise alert priority.
var criticalDomains = []string{"database", "auth", "payment", "security"}

// PriorityScore ranks an alert for triage in [0,1]: a 0.5 base plus severity,
// critical-domain source, declared user impact and a referencing anomaly.
func PriorityScore(alert models.RawAlert, anomalies []models.AnomalyResult) float64 {
	score := 0.5

	switch alert.Severity {
	case models.SeverityCritical:
		score += 0.4
	case models.SeverityHigh:
		score += 0.3
	case models.SeverityMedium:
		score += 0.2
	case models.SeverityLow:
		score += 0.1
	}

	source := strings.ToLower(alert.Source)
	for _, domain := range criticalDomains {
		if strings.Contains(source, domain) {
			score += 0.2
			break
		}
	}

	if alert.UserImpact {
		score += 0.2
	}

	for _, a := range anomalies {
		if a.EventID == alert.ID {
			score += 0.1
			break
		}
	}

	if score > 1 {
		score = 1
	}
	return score
}

// ImpactScore estimates blast radius in [0,1] from impact type, affected-user
// band and duration band.
func ImpactScore(alert models.RawAlert) float64 {
	score := 0.3

	switch alert.ImpactType {
	case "security_breach":
		score += 0.5
	case "outage", "data_loss":
		score += 0.4
	case "degradation":
		score += 0.3
	}

	switch {
	case alert.AffectedUsers > 1000:
		score += 0.3
	case alert.AffectedUsers > 100:
		score += 0.2
	case alert.AffectedUsers > 10:
		score += 0.1
	}

	switch {
	case alert.DurationMinutes > 60:
		score += 0.2
	case alert.DurationMinutes > 30:
		score += 0.1
	}

	if score > 1 {
		score = 1
	}
	return score
}

// impactBand buckets an impact score for the by-impact grouping pass.
func impactBand(score float64) string {
	switch {
	case score >= 0.8:
		return "critical"
	case score >= 0.6:
		return "high"
	case score >= 0.4:
		return "medium"
	default:
		return "low"
	}
}
