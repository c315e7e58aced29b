package engine

import (
	"time"

	"github.com/google/uuid"
)

// RecurrenceCadence enumerates the supported series cadences.
type RecurrenceCadence string

const (
	CadenceDaily   RecurrenceCadence = "daily"
	CadenceWeekly  RecurrenceCadence = "weekly"
	CadenceMonthly RecurrenceCadence = "monthly"
)

// Series is the pure, computation-facing view of a recurring task series.
// Series are non-accumulating: at most one open occurrence exists at a
// time, and a missed occurrence is recorded as missed rather than carried
// forward or piled up alongside the next one.
type Series struct {
	ID       uuid.UUID
	Cadence  RecurrenceCadence
	Weekdays []time.Weekday // only meaningful for CadenceWeekly
	DayOfMonth int          // only meaningful for CadenceMonthly
	Active   bool
}

// Occurrence is a single materialized instance of a series.
type Occurrence struct {
	SeriesID    uuid.UUID
	TaskID      uuid.UUID
	WindowStart time.Time // local midnight of the day the occurrence belongs to
	Status      TaskStatus
}

// MaterializationPlan is the materializer's output for one series: the
// occurrence(s) to mark missed and the occurrence, if any, newly due.
type MaterializationPlan struct {
	SeriesID    uuid.UUID
	ToMiss      []uuid.UUID // open occurrence task ids whose window has passed
	NewWindow   *time.Time  // local midnight of the occurrence to materialize, nil if none due
	AlreadyOpen bool        // an occurrence for NewWindow's day already exists and needs no new task
}

// Materialize implements the recurring series materializer. now is
// the instant of the rebuild, already converted by the caller into a
// time.Time carrying the owning user's IANA location — localMidnight
// relies on now.Location() to find the series' local day boundary.
// existing holds every occurrence currently known for this series that has
// not been completed, most recent first is not required — order is
// irrelevant, every open occurrence past its window is missed.
func Materialize(series Series, now time.Time, existing []Occurrence) MaterializationPlan {
	plan := MaterializationPlan{SeriesID: series.ID}
	if !series.Active {
		return plan
	}

	today := localMidnight(now)

	for _, occ := range existing {
		if occ.Status != StatusOpen {
			continue
		}
		if occ.WindowStart.Before(today) {
			plan.ToMiss = append(plan.ToMiss, occ.TaskID)
			continue
		}
		if occ.WindowStart.Equal(today) {
			plan.AlreadyOpen = true
		}
	}

	if !isDue(series, today) {
		return plan
	}

	if !plan.AlreadyOpen {
		window := today
		plan.NewWindow = &window
	}

	return plan
}

func localMidnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// isDue reports whether a series fires on the given local day.
func isDue(series Series, day time.Time) bool {
	switch series.Cadence {
	case CadenceDaily:
		return true
	case CadenceWeekly:
		for _, wd := range series.Weekdays {
			if wd == day.Weekday() {
				return true
			}
		}
		return false
	case CadenceMonthly:
		return day.Day() == series.DayOfMonth
	default:
		return false
	}
}
