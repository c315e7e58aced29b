package engine

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func mustPlacement(t *testing.T, results []PlacementResult, taskID uuid.UUID) PlacementResult {
	t.Helper()
	for _, r := range results {
		if r.TaskID == taskID {
			return r
		}
	}
	t.Fatalf("no placement result for task %s", taskID)
	return PlacementResult{}
}

// TestPlace_DeadlinePreemption covers a higher-tier, near-deadline task
// (B: tier 1, 30min, deadline in 2h) placing before a lower-tier task
// (A: tier 6, 60min, no deadline) because Place receives tasks already in
// final tier+rank order.
func TestPlace_DeadlinePreemption(t *testing.T) {
	now := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	deadlineB := now.Add(2 * time.Hour)

	taskA := Task{ID: uuid.New(), EstimatedDuration: 60, Tier: 6}
	taskB := Task{ID: uuid.New(), EstimatedDuration: 30, Tier: 1, Deadline: &deadlineB}

	horizon := Interval{Start: now, End: now.AddDate(0, 0, 7)}
	free := []Interval{{Start: now.Add(30 * time.Minute), End: now.Add(5 * time.Hour)}}

	// ordered: B (tier 1) before A (tier 6), as orderForPlacement would hand it.
	results := Place([]Task{taskB, taskA}, horizon, free, now, DefaultConfig())

	rb := mustPlacement(t, results, taskB.ID)
	if rb.IsOverflow() || len(rb.Blocks) != 1 {
		t.Fatalf("expected B scheduled, got %+v", rb)
	}
	wantBStart := now.Add(30 * time.Minute)
	wantBEnd := wantBStart.Add(30 * time.Minute)
	if !rb.Blocks[0].Start.Equal(wantBStart) || !rb.Blocks[0].End.Equal(wantBEnd) {
		t.Fatalf("expected B at [%v,%v), got [%v,%v)", wantBStart, wantBEnd, rb.Blocks[0].Start, rb.Blocks[0].End)
	}

	ra := mustPlacement(t, results, taskA.ID)
	if ra.IsOverflow() || len(ra.Blocks) != 1 {
		t.Fatalf("expected A scheduled, got %+v", ra)
	}
	wantAStart := wantBEnd
	wantAEnd := wantAStart.Add(60 * time.Minute)
	if !ra.Blocks[0].Start.Equal(wantAStart) || !ra.Blocks[0].End.Equal(wantAEnd) {
		t.Fatalf("expected A at [%v,%v), got [%v,%v)", wantAStart, wantAEnd, ra.Blocks[0].Start, ra.Blocks[0].End)
	}
}

// TestPlace_OverflowNoCapacity covers five 180-minute tasks competing for
// a single 120-minute free interval: all five overflow with no_capacity.
func TestPlace_OverflowNoCapacity(t *testing.T) {
	now := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	horizon := Interval{Start: now, End: now.AddDate(0, 0, 7)}
	free := []Interval{{Start: now, End: now.Add(120 * time.Minute)}}

	var tasks []Task
	for i := 0; i < 5; i++ {
		tasks = append(tasks, Task{ID: uuid.New(), EstimatedDuration: 180})
	}

	results := Place(tasks, horizon, free, now, DefaultConfig())
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	for _, r := range results {
		if !r.IsOverflow() {
			t.Fatalf("expected task %s to overflow, got %+v", r.TaskID, r)
		}
		if r.Overflow != OverflowNoCapacity {
			t.Fatalf("expected no_capacity, got %s", r.Overflow)
		}
	}
}

// TestPlace_DependencyOrdering covers Q depending on P: P takes the
// earlier interval, and Q, which cannot start before P ends, lands in the
// later one.
func TestPlace_DependencyOrdering(t *testing.T) {
	day := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	p := Task{ID: uuid.New(), EstimatedDuration: 30}
	q := Task{ID: uuid.New(), EstimatedDuration: 30, Dependencies: []uuid.UUID{p.ID}}

	horizon := Interval{Start: day, End: day.AddDate(0, 0, 1)}
	// Each interval is exactly one task wide, so P fully consumes the first
	// one and Q is forced into the second rather than sharing P's interval.
	free := []Interval{
		{Start: day.Add(9 * time.Hour), End: day.Add(9*time.Hour + 30*time.Minute)},
		{Start: day.Add(11 * time.Hour), End: day.Add(11*time.Hour + 30*time.Minute)},
	}

	results := Place([]Task{p, q}, horizon, free, day, DefaultConfig())

	rp := mustPlacement(t, results, p.ID)
	wantPStart := day.Add(9 * time.Hour)
	if rp.IsOverflow() || !rp.Blocks[0].Start.Equal(wantPStart) || !rp.Blocks[0].End.Equal(wantPStart.Add(30*time.Minute)) {
		t.Fatalf("expected P at 09:00-09:30, got %+v", rp)
	}

	rq := mustPlacement(t, results, q.ID)
	wantQStart := day.Add(11 * time.Hour)
	if rq.IsOverflow() || !rq.Blocks[0].Start.Equal(wantQStart) {
		t.Fatalf("expected Q at 11:00 (after P's dependency end leaves no room in the first interval), got %+v", rq)
	}
}

func TestPlace_DependencyUnplacedPropagates(t *testing.T) {
	now := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	horizon := Interval{Start: now, End: now.AddDate(0, 0, 1)}
	// No free time at all: P overflows, so Q must overflow as dep_unplaced.
	p := Task{ID: uuid.New(), EstimatedDuration: 30}
	q := Task{ID: uuid.New(), EstimatedDuration: 30, Dependencies: []uuid.UUID{p.ID}}

	results := Place([]Task{p, q}, horizon, nil, now, DefaultConfig())

	rq := mustPlacement(t, results, q.ID)
	if !rq.IsOverflow() || rq.Overflow != OverflowDepUnplaced {
		t.Fatalf("expected Q to overflow with dep_unplaced, got %+v", rq)
	}
}

func TestPlace_SplitAcrossIntervals(t *testing.T) {
	now := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	horizon := Interval{Start: now, End: now.AddDate(0, 0, 1)}
	free := []Interval{
		{Start: now, End: now.Add(30 * time.Minute)},
		{Start: now.Add(time.Hour), End: now.Add(time.Hour + 30*time.Minute)},
	}
	task := Task{ID: uuid.New(), EstimatedDuration: 60}

	results := Place([]Task{task}, horizon, free, now, DefaultConfig())
	r := mustPlacement(t, results, task.ID)
	if r.IsOverflow() {
		t.Fatalf("expected the task to split across both intervals, got overflow %s", r.Overflow)
	}
	if len(r.Blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(r.Blocks))
	}
	total := time.Duration(0)
	for _, b := range r.Blocks {
		total += b.Duration()
	}
	if total != 60*time.Minute {
		t.Fatalf("expected total placed duration of 60m, got %v", total)
	}
}

func TestPlace_ShortDurationConsumesOnlyItsOwnTime(t *testing.T) {
	now := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	horizon := Interval{Start: now, End: now.AddDate(0, 0, 1)}
	free := []Interval{{Start: now, End: now.Add(time.Hour)}}
	task := Task{ID: uuid.New(), EstimatedDuration: 15}

	results := Place([]Task{task}, horizon, free, now, DefaultConfig())
	r := mustPlacement(t, results, task.ID)
	if r.IsOverflow() || len(r.Blocks) != 1 {
		t.Fatalf("expected the 15-minute task scheduled, got %+v", r)
	}
	if r.Blocks[0].Duration() != 15*time.Minute {
		t.Fatalf("a sub-granularity task should consume only its own duration, got %v", r.Blocks[0].Duration())
	}
}
