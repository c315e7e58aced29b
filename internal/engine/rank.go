package engine

import (
	"sort"
	"time"
)

// farFuture stands in for "+∞" in the deadline/due_by ordering keys.
var farFuture = time.Unix(1<<62, 0)

// RankWithinTier orders tasks of a single tier ascending by the tuple:
// deadline (else +∞), due_by end-of-day (else +∞), -impact_score,
// -risk_score, created_at, task id. Sorting is stable so contextual
// adjustments applied by the caller between calls never reorder ties.
func RankWithinTier(tasks []Task) []Task {
	ranked := make([]Task, len(tasks))
	copy(ranked, tasks)

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]

		ad, bd := deadlineKey(a), deadlineKey(b)
		if !ad.Equal(bd) {
			return ad.Before(bd)
		}

		ab, bb := dueByKey(a), dueByKey(b)
		if !ab.Equal(bb) {
			return ab.Before(bb)
		}

		if a.ImpactScore != b.ImpactScore {
			return a.ImpactScore > b.ImpactScore // higher first
		}

		if a.RiskScore != b.RiskScore {
			return a.RiskScore > b.RiskScore
		}

		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}

		return a.ID.String() < b.ID.String()
	})

	return ranked
}

func deadlineKey(t Task) time.Time {
	if t.Deadline == nil {
		return farFuture
	}
	return *t.Deadline
}

func dueByKey(t Task) time.Time {
	if t.DueBy == nil {
		return farFuture
	}
	return *t.DueBy
}

// SwapIfBetterFit allows a bounded contextual adjustment (duration fit to an
// upcoming slot, recent reschedule count) to swap two adjacent same-tier
// tasks without ever moving a task out of its tier. The caller is
// responsible for only ever passing adjacent indices from the same
// RankWithinTier output.
func SwapIfBetterFit(tasks []Task, i, j int, betterFit bool) {
	if !betterFit || i == j || i < 0 || j < 0 || i >= len(tasks) || j >= len(tasks) {
		return
	}
	tasks[i], tasks[j] = tasks[j], tasks[i]
}
