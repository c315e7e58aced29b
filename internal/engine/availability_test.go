package engine

import (
	"testing"
	"time"
)

func day(hour, min int) time.Time {
	return time.Date(2026, 7, 1, hour, min, 0, 0, time.UTC)
}

func TestMergeIntervals_OverlappingAndAdjacent(t *testing.T) {
	in := []Interval{
		{Start: day(10, 0), End: day(11, 0)},
		{Start: day(9, 0), End: day(10, 0)}, // adjacent to the previous, out of order
		{Start: day(13, 0), End: day(14, 0)},
		{Start: day(13, 30), End: day(15, 0)}, // overlaps the previous
	}
	merged := MergeIntervals(in)
	if len(merged) != 2 {
		t.Fatalf("expected 2 merged intervals, got %d: %+v", len(merged), merged)
	}
	if !merged[0].Start.Equal(day(9, 0)) || !merged[0].End.Equal(day(11, 0)) {
		t.Fatalf("expected first merged interval 09:00-11:00, got %+v", merged[0])
	}
	if !merged[1].Start.Equal(day(13, 0)) || !merged[1].End.Equal(day(15, 0)) {
		t.Fatalf("expected second merged interval 13:00-15:00, got %+v", merged[1])
	}
}

func TestMergeIntervals_Empty(t *testing.T) {
	if MergeIntervals(nil) != nil {
		t.Fatalf("expected nil for empty input")
	}
}

func TestSubtractIntervals_NoOverlap(t *testing.T) {
	base := Interval{Start: day(9, 0), End: day(17, 0)}
	free := SubtractIntervals(base, nil)
	if len(free) != 1 || !free[0].Start.Equal(base.Start) || !free[0].End.Equal(base.End) {
		t.Fatalf("expected the entire base interval free, got %+v", free)
	}
}

func TestSubtractIntervals_MiddleBite(t *testing.T) {
	base := Interval{Start: day(9, 0), End: day(17, 0)}
	busy := []Interval{{Start: day(12, 0), End: day(13, 0)}}
	free := SubtractIntervals(base, busy)
	if len(free) != 2 {
		t.Fatalf("expected 2 free gaps, got %d: %+v", len(free), free)
	}
	if !free[0].Start.Equal(day(9, 0)) || !free[0].End.Equal(day(12, 0)) {
		t.Fatalf("expected first gap 09:00-12:00, got %+v", free[0])
	}
	if !free[1].Start.Equal(day(13, 0)) || !free[1].End.Equal(day(17, 0)) {
		t.Fatalf("expected second gap 13:00-17:00, got %+v", free[1])
	}
}

func TestSubtractIntervals_FullyCovered(t *testing.T) {
	base := Interval{Start: day(9, 0), End: day(10, 0)}
	busy := []Interval{{Start: day(8, 0), End: day(11, 0)}}
	free := SubtractIntervals(base, busy)
	if len(free) != 0 {
		t.Fatalf("expected no free time, got %+v", free)
	}
}

func TestSubtractIntervals_OverlappingBusyIntervalsMergeFirst(t *testing.T) {
	base := Interval{Start: day(9, 0), End: day(17, 0)}
	busy := []Interval{
		{Start: day(10, 0), End: day(12, 0)},
		{Start: day(11, 0), End: day(13, 0)}, // overlaps the previous
	}
	free := SubtractIntervals(base, busy)
	if len(free) != 2 {
		t.Fatalf("expected 2 gaps around the merged 10:00-13:00 busy block, got %+v", free)
	}
	if !free[0].End.Equal(day(10, 0)) || !free[1].Start.Equal(day(13, 0)) {
		t.Fatalf("expected gaps ending/starting at the merged busy boundary, got %+v", free)
	}
}

func TestSubtractIntervals_HalfOpenBoundaryAbuts(t *testing.T) {
	base := Interval{Start: day(9, 0), End: day(17, 0)}
	busy := []Interval{{Start: day(9, 0), End: day(10, 0)}, {Start: day(16, 0), End: day(17, 0)}}
	free := SubtractIntervals(base, busy)
	if len(free) != 1 {
		t.Fatalf("expected a single middle gap, got %+v", free)
	}
	if !free[0].Start.Equal(day(10, 0)) || !free[0].End.Equal(day(16, 0)) {
		t.Fatalf("expected gap 10:00-16:00, got %+v", free[0])
	}
}

func TestBuildAvailability_SubtractsLockedAndExternal(t *testing.T) {
	horizon := Interval{Start: day(0, 0), End: day(23, 59)}
	locked := []Interval{{Start: day(9, 0), End: day(10, 0)}}
	external := []Interval{{Start: day(14, 0), End: day(15, 0)}}

	free := BuildAvailability(horizon, locked, external)
	if len(free) != 3 {
		t.Fatalf("expected 3 free gaps, got %d: %+v", len(free), free)
	}
	if !free[1].Start.Equal(day(10, 0)) || !free[1].End.Equal(day(14, 0)) {
		t.Fatalf("expected the middle gap to be 10:00-14:00, got %+v", free[1])
	}
}
