package engine

import "time"

// AssignTier implements the fixed nine-level hierarchy. The first
// trigger that matches wins; category-based tiers fall through to tier 9
// for any category not explicitly listed (home, admin, ideas, unknown).
//
// manual_priority_locked freezes the tier at task.PriorTier rather than
// recomputing it; AI-excluded tasks are expected to have already been
// filtered upstream of inference but tier assignment itself still runs for
// them using only user-supplied/default attributes.
func AssignTier(task Task, now time.Time, cfg Config) (tier int, reasons []string) {
	if task.ManualPriorityLocked && task.PriorTier > 0 {
		return task.PriorTier, []string{"manual_priority_locked"}
	}

	if task.Deadline != nil && task.Deadline.Sub(now) <= 24*time.Hour && !task.Deadline.Before(now) {
		return 1, []string{"deadline_within_24h"}
	}
	// A deadline already in the past is still maximally urgent.
	if task.Deadline != nil && task.Deadline.Before(now) {
		return 1, []string{"deadline_within_24h"}
	}

	if task.RiskScore >= cfg.Tier2RiskThreshold {
		return 2, []string{"risk_of_negative_consequence"}
	}

	if task.ImpactScore >= cfg.Tier3ImpactThreshold || task.UnlocksCount >= 1 {
		return 3, []string{"downstream_impact"}
	}

	switch task.Category {
	case CategoryChild:
		return 4, []string{"child_category"}
	case CategoryHealth:
		return 5, []string{"health_category"}
	case CategoryWork:
		return 6, []string{"work_category"}
	case CategoryPersonal:
		return 7, []string{"personal_category"}
	case CategoryFamily:
		return 8, []string{"family_category"}
	default: // home, admin, ideas, unknown
		return 9, []string{"home_category_default"}
	}
}

// TierChanged reports whether a freshly computed tier differs from the
// previously recorded one, and whether the change should be staged pending
// user confirmation rather than applied automatically — true when the
// change was driven by an inference result below the confirm threshold.
func TierChanged(priorTier, newTier int, inferenceConfidence float64, cfg Config) (changed bool, stagePendingConfirm bool) {
	if priorTier == newTier {
		return false, false
	}
	if priorTier == 0 {
		// First assignment is not a "change".
		return false, false
	}
	return true, inferenceConfidence > 0 && inferenceConfidence < cfg.TierChangeConfirmThreshold
}
