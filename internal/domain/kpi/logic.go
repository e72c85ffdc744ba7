package kpi

import (
	"math"
	"time"
)

// ProgressPercent returns completion as a whole percentage, clamped to [0,100].
// A zero or negative target yields 0: with no target there is nothing to
// measure against.
func ProgressPercent(current, target float64) int {
	if target <= 0 {
		return 0
	}
	if current <= 0 {
		return 0
	}
	percent := int(math.Round(current / target * 100))
	if percent > 100 {
		return 100
	}
	return percent
}

// IsOverdue reports whether a KPI has slipped past its end date without being
// finished. KPIs with no end date never go overdue.
func IsOverdue(endDate *time.Time, progress int, status string, now time.Time) bool {
	if endDate == nil || endDate.IsZero() {
		return false
	}
	if status == StatusCompleted {
		return false
	}
	return endDate.Before(now) && progress < 100
}

// Derive fills the computed fields on a KPI and its metrics.
func Derive(k *KPI, now time.Time) {
	k.Progress = ProgressPercent(k.CurrentValue, k.TargetValue)
	k.IsOverdue = IsOverdue(k.EndDate, k.Progress, k.Status, now)
	for i := range k.Metrics {
		k.Metrics[i].Progress = ProgressPercent(k.Metrics[i].CurrentValue, k.Metrics[i].TargetValue)
	}
}

// ValidWeight bounds KPI weight to the 0–5 scale.
func ValidWeight(weight float64) bool {
	return weight >= 0 && weight <= 5
}
