package utils

import (
	"fmt"
	"time"
)

// ParseRFC3339 parses an RFC3339 timestamp, such as the since filter on the
// actions endpoint.
func ParseRFC3339(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time: %w", err)
	}
	return t, nil
}

// DurationMinutes reports the span between two timestamps in minutes, as
// used in alert-group summaries. Arguments may arrive in either order.
func DurationMinutes(start, end time.Time) float64 {
	if end.Before(start) {
		start, end = end, start
	}
	return end.Sub(start).Minutes()
}
