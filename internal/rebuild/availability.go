package rebuild

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/qzwhatnext/engine/internal/engine"
)

// ErrAvailabilityUnavailable is returned when every one of a user's
// connected calendars has gone stale beyond the configured snapshot
// tolerance: the rebuild aborts rather than schedule over time that might
// already be busy, and the last good schedule is left in place.
var ErrAvailabilityUnavailable = errors.New("availability snapshot is stale beyond tolerance")

// buildAvailability assembles the placer's free-time input: the horizon
// minus every locked scheduled block, every active recurring time block
// occurrence, and every busy calendar event that isn't itself one of this
// engine's own managed blocks (those are already covered by the locked
// scheduled block list, and double-subtracting them would just shrink
// availability for no reason).
//
// If the user has at least one selected calendar but none of them have
// synced within AvailabilitySnapshotMaxAge, the cached event feed can no
// longer be trusted as "external calendar read" per Boundary 1, so the
// rebuild aborts with ErrAvailabilityUnavailable instead of scheduling
// against a possibly-stale busy list. A user with no connected calendar at
// all has nothing to go stale — availability is just the open horizon.
func (s *Service) buildAvailability(ctx context.Context, userID uuid.UUID, horizon engine.Interval) ([]engine.Interval, error) {
	if s.calendars != nil {
		cals, err := s.calendars.ListSelectedForUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		if len(cals) > 0 {
			fresh := false
			for _, c := range cals {
				if c.LastSyncedAt != nil && time.Since(*c.LastSyncedAt) <= s.cfg.AvailabilitySnapshotMaxAge {
					fresh = true
					break
				}
			}
			if !fresh {
				return nil, ErrAvailabilityUnavailable
			}
		}
	}

	blocks, err := s.blocks.ListForUser(ctx, userID, horizon.Start, horizon.End)
	if err != nil {
		return nil, err
	}
	var locked []engine.Interval
	for _, b := range blocks {
		if b.Locked {
			locked = append(locked, engine.Interval{Start: b.Start, End: b.End})
		}
	}

	timeBlocks, err := s.timeBlocks.ListActiveForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, tb := range timeBlocks {
		for _, occ := range tb.Occurrences(horizon.Start, horizon.End) {
			locked = append(locked, engine.Interval{Start: occ.Start, End: occ.End})
		}
	}

	calEvents, err := s.events.ListInRange(ctx, userID, horizon.Start, horizon.End)
	if err != nil {
		return nil, err
	}
	var external []engine.Interval
	for _, e := range calEvents {
		if e.QZBlockID != nil {
			continue
		}
		if !e.Busy() {
			continue
		}
		external = append(external, engine.Interval{Start: e.StartTime, End: e.EndTime})
	}

	return engine.BuildAvailability(horizon, locked, external), nil
}
