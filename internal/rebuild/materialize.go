package rebuild

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/qzwhatnext/engine/internal/engine"
	"github.com/qzwhatnext/engine/internal/store"
)

// materialize runs the recurring series materializer for every active
// series a user owns, marking passed occurrences missed and creating the
// fresh task for whatever window is newly due. occurrence_missed and
// task_imported audit records are emitted directly by the store calls
// below (MarkMissed, Create), not batched here.
func (s *Service) materialize(ctx context.Context, userID uuid.UUID, now time.Time) error {
	all, err := s.series.ListActiveForUser(ctx, userID)
	if err != nil {
		return err
	}

	openTasks, err := s.tasks.ListOpenForUser(ctx, userID)
	if err != nil {
		return err
	}
	bySeriesID := make(map[uuid.UUID][]*store.Task)
	for _, t := range openTasks {
		if t.RecurrenceSeriesID != nil {
			bySeriesID[*t.RecurrenceSeriesID] = append(bySeriesID[*t.RecurrenceSeriesID], t)
		}
	}

	for _, series := range all {
		existing := make([]engine.Occurrence, 0, len(bySeriesID[series.ID]))
		for _, t := range bySeriesID[series.ID] {
			if t.RecurrenceOccurrenceStart == nil {
				continue
			}
			existing = append(existing, engine.Occurrence{
				SeriesID: series.ID, TaskID: t.ID,
				WindowStart: *t.RecurrenceOccurrenceStart, Status: t.Status,
			})
		}

		plan := engine.Materialize(toEngineSeries(series), now, existing)

		for _, taskID := range plan.ToMiss {
			if err := s.tasks.MarkMissed(ctx, userID, taskID); err != nil {
				return err
			}
		}

		if plan.NewWindow == nil || plan.AlreadyOpen {
			continue
		}

		deps, err := s.tasks.DependencyGraph(ctx, userID)
		if err != nil {
			return err
		}
		dueBy := plan.NewWindow.AddDate(0, 0, 1)
		_, err = s.tasks.Create(ctx, &store.Task{
			UserID: userID, Title: series.Title, Status: engine.StatusOpen,
			DueBy:                     &dueBy,
			EstimatedDuration:         series.EstimatedDuration,
			Category:                  series.Category,
			EnergyIntensity:           series.EnergyIntensity,
			AIExcluded:                series.AIExcluded,
			SourceType:                store.SourceRecurring,
			RecurrenceSeriesID:        &series.ID,
			RecurrenceOccurrenceStart: plan.NewWindow,
		}, deps)
		if err != nil {
			return err
		}
	}

	return nil
}

func toEngineSeries(series *store.RecurringSeries) engine.Series {
	weekdays := make([]time.Weekday, 0, len(series.Weekdays))
	for _, wd := range series.Weekdays {
		weekdays = append(weekdays, time.Weekday(wd))
	}
	return engine.Series{
		ID: series.ID, Cadence: series.Cadence, Weekdays: weekdays,
		DayOfMonth: series.DayOfMonth, Active: series.Active,
	}
}
