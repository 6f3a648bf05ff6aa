package types

import "sort"

// ProgressTier buckets an activity's progress for display.
type ProgressTier string

const (
	TierInProgress ProgressTier = "in_progress"
	TierNear       ProgressTier = "near"
	TierComplete   ProgressTier = "complete"
)

// Thresholds for ProgressTier, in percent.
const (
	CompleteThreshold = 100
	NearThreshold     = 70
)

// ActualCount returns the number of recorded achievements.
func (a Activity) ActualCount() int {
	return len(a.Actual)
}

// RawPercent returns actual/target*100 without capping. A zero target yields 0.
func (a Activity) RawPercent() float64 {
	if a.Target <= 0 {
		return 0
	}
	return float64(len(a.Actual)*100) / float64(a.Target)
}

// ProgressPercent is RawPercent capped at 100, for progress bars.
func (a Activity) ProgressPercent() float64 {
	p := a.RawPercent()
	if p > 100 {
		return 100
	}
	return p
}

// ProgressTier classifies the capped progress percentage.
func (a Activity) ProgressTier() ProgressTier {
	p := a.ProgressPercent()
	switch {
	case p >= CompleteThreshold:
		return TierComplete
	case p >= NearThreshold:
		return TierNear
	default:
		return TierInProgress
	}
}

// SortedActual returns a copy of the achievements ordered by date.
// Records sharing a date keep their stored order.
func (a Activity) SortedActual(ascending bool) []Achievement {
	out := make([]Achievement, len(a.Actual))
	copy(out, a.Actual)
	sort.SliceStable(out, func(i, j int) bool {
		if ascending {
			return out[i].Date < out[j].Date
		}
		return out[i].Date > out[j].Date
	})
	return out
}
