package engine

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

// TestMaterialize_HabitRecurrenceNonAccumulation covers the non-accumulation
// guarantee: yesterday's open occurrence flips to missed, exactly one new
// occurrence materializes for today, and running it again is a no-op.
func TestMaterialize_HabitRecurrenceNonAccumulation(t *testing.T) {
	series := Series{ID: uuid.New(), Cadence: CadenceDaily, Active: true}
	now := time.Date(2026, 7, 2, 8, 0, 0, 0, time.UTC)
	yesterdayTask := uuid.New()
	existing := []Occurrence{
		{SeriesID: series.ID, TaskID: yesterdayTask, WindowStart: localMidnight(now.AddDate(0, 0, -1)), Status: StatusOpen},
	}

	plan := Materialize(series, now, existing)

	if len(plan.ToMiss) != 1 || plan.ToMiss[0] != yesterdayTask {
		t.Fatalf("expected yesterday's occurrence to be marked missed, got %+v", plan.ToMiss)
	}
	if plan.NewWindow == nil || !plan.NewWindow.Equal(localMidnight(now)) {
		t.Fatalf("expected exactly one new occurrence for today, got %+v", plan.NewWindow)
	}
	if plan.AlreadyOpen {
		t.Fatalf("today's occurrence did not previously exist")
	}

	// Re-running against the state the first plan would have produced
	// (today's occurrence now open, nothing else) must be a no-op.
	todayTask := uuid.New()
	second := Materialize(series, now, []Occurrence{
		{SeriesID: series.ID, TaskID: todayTask, WindowStart: localMidnight(now), Status: StatusOpen},
	})
	if len(second.ToMiss) != 0 {
		t.Fatalf("expected no occurrences to miss on the idempotent re-run, got %+v", second.ToMiss)
	}
	if second.NewWindow != nil {
		t.Fatalf("expected no new occurrence on the idempotent re-run, got %+v", second.NewWindow)
	}
	if !second.AlreadyOpen {
		t.Fatalf("expected today's existing open occurrence to be recognized")
	}
}

func TestMaterialize_InactiveSeriesNoOp(t *testing.T) {
	series := Series{ID: uuid.New(), Cadence: CadenceDaily, Active: false}
	now := time.Date(2026, 7, 2, 8, 0, 0, 0, time.UTC)
	plan := Materialize(series, now, nil)
	if plan.NewWindow != nil || len(plan.ToMiss) != 0 {
		t.Fatalf("expected an inactive series to produce no occurrences, got %+v", plan)
	}
}

func TestMaterialize_WeeklyOnlyFiresOnConfiguredWeekday(t *testing.T) {
	series := Series{ID: uuid.New(), Cadence: CadenceWeekly, Weekdays: []time.Weekday{time.Monday}, Active: true}

	tuesday := time.Date(2026, 7, 7, 8, 0, 0, 0, time.UTC) // a Tuesday
	if plan := Materialize(series, tuesday, nil); plan.NewWindow != nil {
		t.Fatalf("expected no occurrence on a non-configured weekday, got %+v", plan)
	}

	monday := time.Date(2026, 7, 6, 8, 0, 0, 0, time.UTC) // a Monday
	plan := Materialize(series, monday, nil)
	if plan.NewWindow == nil || !plan.NewWindow.Equal(localMidnight(monday)) {
		t.Fatalf("expected an occurrence on the configured Monday, got %+v", plan)
	}
}

func TestMaterialize_MonthlyFiresOnConfiguredDay(t *testing.T) {
	series := Series{ID: uuid.New(), Cadence: CadenceMonthly, DayOfMonth: 15, Active: true}

	notTheDay := time.Date(2026, 7, 10, 8, 0, 0, 0, time.UTC)
	if plan := Materialize(series, notTheDay, nil); plan.NewWindow != nil {
		t.Fatalf("expected no occurrence before the configured day, got %+v", plan)
	}

	theDay := time.Date(2026, 7, 15, 8, 0, 0, 0, time.UTC)
	plan := Materialize(series, theDay, nil)
	if plan.NewWindow == nil {
		t.Fatalf("expected an occurrence on the configured day of month")
	}
}

func TestMaterialize_MultipleStaleOccurrencesAllMissed(t *testing.T) {
	series := Series{ID: uuid.New(), Cadence: CadenceDaily, Active: true}
	now := time.Date(2026, 7, 5, 8, 0, 0, 0, time.UTC)
	stale1, stale2 := uuid.New(), uuid.New()
	existing := []Occurrence{
		{SeriesID: series.ID, TaskID: stale1, WindowStart: localMidnight(now.AddDate(0, 0, -3)), Status: StatusOpen},
		{SeriesID: series.ID, TaskID: stale2, WindowStart: localMidnight(now.AddDate(0, 0, -1)), Status: StatusOpen},
	}

	plan := Materialize(series, now, existing)
	if len(plan.ToMiss) != 2 {
		t.Fatalf("expected both stale occurrences to miss, got %+v", plan.ToMiss)
	}
	if plan.NewWindow == nil {
		t.Fatalf("expected a new occurrence for today")
	}
}

func TestMaterialize_CompletedOccurrenceNeverMissed(t *testing.T) {
	series := Series{ID: uuid.New(), Cadence: CadenceDaily, Active: true}
	now := time.Date(2026, 7, 5, 8, 0, 0, 0, time.UTC)
	completedTask := uuid.New()
	existing := []Occurrence{
		{SeriesID: series.ID, TaskID: completedTask, WindowStart: localMidnight(now.AddDate(0, 0, -1)), Status: StatusCompleted},
	}

	plan := Materialize(series, now, existing)
	if len(plan.ToMiss) != 0 {
		t.Fatalf("a completed occurrence must never be marked missed, got %+v", plan.ToMiss)
	}
}
