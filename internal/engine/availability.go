package engine

import "sort"

// MergeIntervals sorts and merges overlapping or adjacent intervals into a
// minimal ordered, non-overlapping set. Adapted from the union-of-events
// algorithm used to collapse overlapping calendar events into billable
// ranges; here it collapses reserved time instead of billable time.
func MergeIntervals(intervals []Interval) []Interval {
	if len(intervals) == 0 {
		return nil
	}

	sorted := make([]Interval, len(intervals))
	copy(sorted, intervals)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	merged := []Interval{sorted[0]}
	for _, iv := range sorted[1:] {
		last := &merged[len(merged)-1]
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}

	return merged
}

// SubtractIntervals returns the portions of base not covered by any
// interval in busy (busy need not be pre-merged or sorted). The result is
// half-open, ordered, and non-overlapping.
func SubtractIntervals(base Interval, busy []Interval) []Interval {
	merged := MergeIntervals(busy)

	var free []Interval
	cursor := base.Start

	for _, b := range merged {
		if b.End.Before(base.Start) || !b.Start.Before(base.End) {
			continue // outside base entirely
		}
		start := b.Start
		if start.Before(cursor) {
			start = cursor
		}
		if start.After(cursor) {
			free = append(free, Interval{Start: cursor, End: start})
		}
		if b.End.After(cursor) {
			cursor = b.End
		}
	}

	if cursor.Before(base.End) {
		free = append(free, Interval{Start: cursor, End: base.End})
	}

	return free
}

// BuildAvailability implements the availability builder: begin with
// the horizon, subtract every locked scheduled block and every external
// calendar interval that is not engine-managed.
func BuildAvailability(horizon Interval, lockedBlocks []Interval, unmanagedExternal []Interval) []Interval {
	busy := make([]Interval, 0, len(lockedBlocks)+len(unmanagedExternal))
	busy = append(busy, lockedBlocks...)
	busy = append(busy, unmanagedExternal...)
	return SubtractIntervals(horizon, busy)
}
