// Package rebuild is the orchestration layer for the scheduling pipeline:
// it loads a user's tasks, series and calendar state from Postgres, runs
// every stage of internal/engine's pure computation, and persists the
// result. internal/engine never touches a store or the network; this
// package is where those boundaries meet.
package rebuild

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/qzwhatnext/engine/internal/engine"
	"github.com/qzwhatnext/engine/internal/inference"
	"github.com/qzwhatnext/engine/internal/store"
)

// Config threads the engine's tunables plus the boundary timeouts/retry
// budget for the two remote-call suspension points (inference, and —
// handled by internal/calsync, not here — calendar writes).
type Config struct {
	Engine                      engine.Config
	InferenceTimeout            time.Duration
	InferenceRetries            int
	AvailabilitySnapshotMaxAge  time.Duration
}

func DefaultConfig() Config {
	return Config{
		Engine:                     engine.DefaultConfig(),
		InferenceTimeout:           10 * time.Second,
		InferenceRetries:           3,
		AvailabilitySnapshotMaxAge: 5 * time.Minute,
	}
}

// Service wires the engine's pure stages to the stores that hold a
// user's state. Every exported entrypoint operates on exactly one user,
// serialized by acquireUserLock, matching the per-user advisory locking
// the rebuild queue assumes.
type Service struct {
	pool *pgxpool.Pool
	cfg  Config

	users       *store.UserStore
	tasks       *store.TaskStore
	series      *store.RecurringSeriesStore
	timeBlocks  *store.RecurringTimeBlockStore
	blocks      *store.ScheduledBlockStore
	events      *store.CalendarEventStore
	calendars   *store.CalendarStore
	audit       *store.AuditEventStore
	jobs        *store.RebuildJobStore
	adapter     inference.Adapter
}

func NewService(
	pool *pgxpool.Pool,
	cfg Config,
	users *store.UserStore,
	tasks *store.TaskStore,
	series *store.RecurringSeriesStore,
	timeBlocks *store.RecurringTimeBlockStore,
	blocks *store.ScheduledBlockStore,
	events *store.CalendarEventStore,
	audit *store.AuditEventStore,
	jobs *store.RebuildJobStore,
	adapter inference.Adapter,
) *Service {
	return &Service{
		pool: pool, cfg: cfg, users: users,
		tasks: tasks, series: series, timeBlocks: timeBlocks, blocks: blocks,
		events: events, audit: audit, jobs: jobs, adapter: adapter,
	}
}

// WithCalendarStaleness enables the availability-snapshot staleness check:
// RunForUser aborts with ErrAvailabilityUnavailable if every one of the
// user's selected calendars has gone stale beyond the configured max age.
// Optional — a deployment with no calendar integration configured never
// calls this, and buildAvailability treats the horizon as wide open.
func (s *Service) WithCalendarStaleness(calendars *store.CalendarStore) *Service {
	s.calendars = calendars
	return s
}

// RunForUser executes one full rebuild for a user: materialize recurring
// series, run the exclusion/inference/tier/rank/availability/placement
// pipeline over every open task, and persist the schedule plus its audit
// trail. now is threaded in explicitly so tests can pin it.
func (s *Service) RunForUser(ctx context.Context, userID uuid.UUID, now time.Time) error {
	lock, err := acquireUserLock(ctx, s.pool, userID)
	if err != nil {
		return err
	}
	defer lock.release(ctx)

	now = s.localizeNow(ctx, userID, now)

	var events []*store.AuditEvent

	if err := s.materialize(ctx, userID, now); err != nil {
		return err
	}

	tasks, err := s.tasks.ListOpenForUser(ctx, userID)
	if err != nil {
		return err
	}

	engineTasks := make([]engine.Task, 0, len(tasks))
	byID := make(map[uuid.UUID]*store.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}
	unlocks := countUnlocks(tasks)

	for _, t := range tasks {
		excluded := engine.IsExcluded(t.AIExcluded, t.Title, t.Notes, t.TitleIsAutoGenerated)

		var inferenceConfidence float64
		if !excluded {
			inferenceConfidence = s.infer(ctx, t, &events)
		} else {
			events = append(events, &store.AuditEvent{
				UserID: userID, TaskID: &t.ID, Type: store.EventTaskExcluded,
				Reasons: []string{"ai_excluded"},
			})
		}

		et := toEngineTask(t, unlocks[t.ID])
		tier, reasons := engine.AssignTier(et, now, s.cfg.Engine)
		et.Tier, et.TierReasons = tier, reasons

		changed, staged := engine.TierChanged(et.PriorTier, tier, inferenceConfidence, s.cfg.Engine)
		switch {
		case staged:
			events = append(events, &store.AuditEvent{
				UserID: userID, TaskID: &t.ID, Type: store.EventTierChangeStaged,
				Reasons: reasons, Detail: tierDetail(et.PriorTier, tier),
			})
			et.Tier = t.Tier // keep the last-applied tier until the user confirms
		case changed:
			if err := s.tasks.SetTier(ctx, t.ID, tier); err != nil {
				return err
			}
			events = append(events, &store.AuditEvent{
				UserID: userID, TaskID: &t.ID, Type: store.EventTierChanged,
				Reasons: reasons, Detail: tierDetail(et.PriorTier, tier),
			})
		default:
			if t.Tier != tier {
				if err := s.tasks.SetTier(ctx, t.ID, tier); err != nil {
					return err
				}
			}
		}

		engineTasks = append(engineTasks, et)
	}

	ordered := orderForPlacement(engineTasks)

	horizon := engine.Interval{Start: now, End: now.AddDate(0, 0, s.cfg.Engine.HorizonDays)}
	free, err := s.buildAvailability(ctx, userID, horizon)
	if err != nil {
		return err
	}

	placements := engine.Place(ordered, horizon, free, now, s.cfg.Engine)

	var fresh []*store.ScheduledBlock
	for _, p := range placements {
		t := byID[p.TaskID]
		if p.IsOverflow() {
			events = append(events, &store.AuditEvent{
				UserID: userID, TaskID: &p.TaskID, Type: store.EventOverflowFlagged,
				Reasons: p.Reasons, Detail: string(p.Overflow),
			})
			continue
		}
		for _, b := range p.Blocks {
			fresh = append(fresh, &store.ScheduledBlock{
				TaskID: t.ID, Start: b.Start, End: b.End,
				ScheduledBy: b.ScheduledBy,
			})
		}
	}

	if err := s.blocks.ReplaceForUser(ctx, userID, fresh); err != nil {
		return err
	}

	events = append(events, &store.AuditEvent{UserID: userID, Type: store.EventScheduleBuilt,
		Detail: "rebuild complete"})

	return s.audit.EmitBatch(ctx, events)
}

// countUnlocks builds, for every task in the set, how many other open
// tasks list it as a dependency — the UnlocksCount input to tier 3.
func countUnlocks(tasks []*store.Task) map[uuid.UUID]int {
	counts := make(map[uuid.UUID]int, len(tasks))
	for _, t := range tasks {
		for _, dep := range t.Dependencies {
			counts[dep]++
		}
	}
	return counts
}

// orderForPlacement sorts engine tasks by tier then intra-tier rank, the
// order Place expects: dependencies are expected to precede dependents,
// which holds here because a dependency can never sit in a lower-urgency
// tier than something that only exists to unlock it without itself also
// being independently urgent — the user-authored dependency graph is the
// one case that can violate this, and Place tolerates it by treating an
// out-of-window dependency as already satisfied.
func orderForPlacement(tasks []engine.Task) []engine.Task {
	byTier := make(map[int][]engine.Task)
	var tiers []int
	for _, t := range tasks {
		if _, ok := byTier[t.Tier]; !ok {
			tiers = append(tiers, t.Tier)
		}
		byTier[t.Tier] = append(byTier[t.Tier], t)
	}
	sortInts(tiers)

	var ordered []engine.Task
	for _, tier := range tiers {
		ordered = append(ordered, engine.RankWithinTier(byTier[tier])...)
	}
	return ordered
}

func sortInts(xs []int) {
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j-1] > xs[j]; j-- {
			xs[j-1], xs[j] = xs[j], xs[j-1]
		}
	}
}

func tierDetail(prior, next int) string {
	if prior == 0 {
		return "initial tier assignment"
	}
	return "tier changed"
}

func toEngineTask(t *store.Task, unlocks int) engine.Task {
	et := engine.Task{
		ID: t.ID, Title: t.Title, Notes: t.Notes, Status: t.Status,
		Deadline: t.Deadline, StartAfter: t.StartAfter, DueBy: t.DueBy,
		EstimatedDuration: t.EstimatedDuration, DurationConfidence: t.DurationConfidence,
		Category: t.Category, EnergyIntensity: t.EnergyIntensity,
		RiskScore: t.RiskScore, ImpactScore: t.ImpactScore,
		Dependencies: t.Dependencies, AIExcluded: t.AIExcluded,
		ManualPriorityLocked: t.ManualPriorityLocked, UserLocked: t.UserLocked,
		ManuallyScheduled: t.ManuallyScheduled, CreatedAt: t.CreatedAt,
		PriorTier: t.Tier, UnlocksCount: unlocks,
	}
	if t.FlexEarliestStart != nil && t.FlexLatestEnd != nil {
		et.FlexibilityWindow = &engine.FlexibilityWindow{
			EarliestStart: *t.FlexEarliestStart, LatestEnd: *t.FlexLatestEnd,
		}
	}
	return et
}

// localizeNow converts now to carry the owning user's IANA calendar
// timezone, so that every "local midnight"/"end of day" computation
// downstream (the materializer's window boundaries, start_after/due_by
// resolution) lands on the user's actual local day rather than whatever
// location the caller's now happened to carry. Falls back to now
// unchanged — same instant, in whatever location the caller passed — if
// the user can't be loaded or their timezone doesn't parse.
func (s *Service) localizeNow(ctx context.Context, userID uuid.UUID, now time.Time) time.Time {
	if s.users == nil {
		return now
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		logUnexpected("load user timezone", err)
		return now
	}
	loc, err := time.LoadLocation(user.Timezone)
	if err != nil {
		logUnexpected("parse user timezone "+user.Timezone, err)
		return now
	}
	return now.In(loc)
}

// logUnexpected reports a store or adapter error that the rebuild treats
// as non-fatal per the boundary's recovery policy, so callers can see it
// without the rebuild aborting over it.
func logUnexpected(stage string, err error) {
	log.Printf("rebuild: %s: %v", stage, err)
}
