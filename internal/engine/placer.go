package engine

import (
	"time"

	"github.com/google/uuid"
)

// Place implements the placer. Tasks must already be in final
// schedule order (tier, then intra-tier rank); dependencies are expected to
// precede their dependents in that order, but Place tolerates a dependency
// that sits outside the current rebuild's task set by treating it as
// already satisfied. free is consumed as tasks are placed: later tasks in
// the slice never see time already claimed by earlier ones.
func Place(ordered []Task, horizon Interval, free []Interval, now time.Time, cfg Config) []PlacementResult {
	results := make([]PlacementResult, 0, len(ordered))
	placedEnd := make(map[uuid.UUID]time.Time, len(ordered))
	overflowed := make(map[uuid.UUID]bool, len(ordered))
	remaining := append([]Interval(nil), free...)

	for _, t := range ordered {
		earliest := now
		if t.StartAfter != nil && t.StartAfter.After(earliest) {
			earliest = *t.StartAfter
		}

		depUnplaced := false
		for _, dep := range t.Dependencies {
			if overflowed[dep] {
				depUnplaced = true
				break
			}
			if end, ok := placedEnd[dep]; ok && end.After(earliest) {
				earliest = end
			}
		}
		if depUnplaced {
			overflowed[t.ID] = true
			results = append(results, PlacementResult{
				TaskID:   t.ID,
				Overflow: OverflowDepUnplaced,
				Reasons:  []string{"dep_unplaced"},
			})
			continue
		}

		latest := horizon.End
		if t.Deadline != nil {
			latest = *t.Deadline
		}
		if t.FlexibilityWindow != nil {
			if t.FlexibilityWindow.EarliestStart.After(earliest) {
				earliest = t.FlexibilityWindow.EarliestStart
			}
			if t.FlexibilityWindow.LatestEnd.Before(latest) {
				latest = t.FlexibilityWindow.LatestEnd
			}
		}

		if !earliest.Before(latest) {
			reason := OverflowFlexWindowEmpty
			if t.FlexibilityWindow == nil {
				reason = OverflowDeadlineUnreachable
			}
			overflowed[t.ID] = true
			results = append(results, PlacementResult{TaskID: t.ID, Overflow: reason, Reasons: []string{string(reason)}})
			continue
		}

		blocks, ok := findFit(remaining, earliest, latest, t.EstimatedDuration, cfg.SchedulingGranularity)
		if !ok {
			reason := OverflowNoCapacity
			if t.Deadline != nil && !horizon.End.After(*t.Deadline) {
				reason = OverflowDeadlineUnreachable
			}
			overflowed[t.ID] = true
			results = append(results, PlacementResult{TaskID: t.ID, Overflow: reason, Reasons: []string{string(reason)}})
			continue
		}

		scheduled := make([]ScheduledBlock, 0, len(blocks))
		end := blocks[0].End
		for _, b := range blocks {
			scheduled = append(scheduled, ScheduledBlock{TaskID: t.ID, Start: b.Start, End: b.End, ScheduledBy: "system"})
			if b.End.After(end) {
				end = b.End
			}
		}
		placedEnd[t.ID] = end
		remaining = subtractFromFree(remaining, blocks)

		reasons := append(append([]string{}, t.TierReasons...), "earliest_fit")
		if len(blocks) > 1 {
			reasons = append(reasons, "split_placement")
		}
		results = append(results, PlacementResult{TaskID: t.ID, Blocks: scheduled, Reasons: reasons})
	}

	return results
}

// findFit looks for the earliest placement of durationMin minutes within
// [earliest, latest]. It prefers a single contiguous interval; failing
// that, it splits across consecutive free intervals where every chunk is
// at least one scheduling granularity wide.
func findFit(free []Interval, earliest, latest time.Time, durationMin int, granularity time.Duration) ([]Interval, bool) {
	clipped := clip(free, earliest, latest)
	if durationMin <= 0 {
		return nil, false
	}
	want := time.Duration(durationMin) * time.Minute

	for _, iv := range clipped {
		if iv.Duration() >= want {
			return []Interval{{Start: iv.Start, End: iv.Start.Add(want)}}, true
		}
	}

	remaining := want
	var chunks []Interval
	for _, iv := range clipped {
		if remaining <= 0 {
			break
		}
		take := iv.Duration()
		if take > remaining {
			take = remaining
		}
		if take < granularity {
			continue
		}
		chunks = append(chunks, Interval{Start: iv.Start, End: iv.Start.Add(take)})
		remaining -= take
	}
	if remaining == 0 && len(chunks) > 0 {
		return chunks, true
	}
	return nil, false
}

// clip restricts free intervals to [lo, hi), dropping any that collapse to
// nothing, and preserves ascending order.
func clip(free []Interval, lo, hi time.Time) []Interval {
	var out []Interval
	for _, iv := range free {
		s, e := iv.Start, iv.End
		if s.Before(lo) {
			s = lo
		}
		if e.After(hi) {
			e = hi
		}
		if s.Before(e) {
			out = append(out, Interval{Start: s, End: e})
		}
	}
	return out
}

// subtractFromFree removes placed (already-clipped) blocks from a free
// list whose entries may be wider than the blocks that consumed them.
func subtractFromFree(free []Interval, placed []Interval) []Interval {
	var out []Interval
	for _, f := range free {
		out = append(out, SubtractIntervals(f, placed)...)
	}
	return out
}
