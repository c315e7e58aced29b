package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/qzwhatnext/engine/internal/engine"
)

var (
	ErrTaskNotFound    = errors.New("task not found")
	ErrTaskLocked      = errors.New("task is user-locked against pipeline writes")
	ErrDependencyCycle = errors.New("adding this dependency would create a cycle")
)

// validateTaskConstraints runs constraint validation at write time: cycle
// detection over the full dependency graph plus the duration/flex-window/
// start-before-deadline invariants. Any violation here is surfaced to the
// caller, never swallowed.
func validateTaskConstraints(t *Task, existingDeps map[uuid.UUID][]uuid.UUID) error {
	if err := engine.ValidateAcyclic(t.ID, t.Dependencies, existingDeps); err != nil {
		return ErrDependencyCycle
	}
	if err := engine.ValidateDuration(t.EstimatedDuration); err != nil {
		return err
	}
	if err := engine.ValidateStartBeforeDeadline(t.StartAfter, t.Deadline); err != nil {
		return err
	}
	var window *engine.FlexibilityWindow
	if t.FlexEarliestStart != nil && t.FlexLatestEnd != nil {
		window = &engine.FlexibilityWindow{EarliestStart: *t.FlexEarliestStart, LatestEnd: *t.FlexLatestEnd}
	}
	if err := engine.ValidateFlexWindow(t.StartAfter, t.Deadline, window); err != nil {
		return err
	}
	return nil
}

// SourceType records how a task entered the system, for dedupe and for
// distinguishing user-authored tasks from habit/series materializations.
type SourceType string

const (
	SourceManual    SourceType = "manual"
	SourceSmartAdd  SourceType = "smart_add"
	SourceRecurring SourceType = "recurring_series"
)

// Task is the persisted form of a task. FlexibilityWindow and Dependencies
// are stored as columns but handed to internal/engine as the pure Task
// shape by the orchestration layer, never here.
type Task struct {
	ID     uuid.UUID
	UserID uuid.UUID

	Title  string
	Notes  string
	Status engine.TaskStatus

	Deadline   *time.Time
	StartAfter *time.Time
	DueBy      *time.Time

	EstimatedDuration  int
	DurationConfidence float64

	Category        engine.Category
	EnergyIntensity engine.EnergyIntensity
	RiskScore       float64
	ImpactScore     float64

	Dependencies []uuid.UUID

	FlexEarliestStart *time.Time
	FlexLatestEnd     *time.Time

	AIExcluded           bool
	ManualPriorityLocked bool
	UserLocked           bool
	ManuallyScheduled    bool

	Tier      int
	PriorTier int

	SourceType                 SourceType
	SourceID                   *string
	RecurrenceSeriesID         *uuid.UUID
	RecurrenceOccurrenceStart  *time.Time

	TitleIsAutoGenerated bool

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// TaskStore provides PostgreSQL-backed task storage.
type TaskStore struct {
	pool  *pgxpool.Pool
	audit *AuditEventStore
}

func NewTaskStore(pool *pgxpool.Pool, audit *AuditEventStore) *TaskStore {
	return &TaskStore{pool: pool, audit: audit}
}

// emitAudit appends one audit record for a task write. Best-effort by
// design of the caller is not acceptable here: a write whose audit record
// fails to persist returns that error to the caller, same as any other
// write-path failure, so a rebuild never has to guess whether a schedule-
// relevant change went undocumented.
func (s *TaskStore) emitAudit(ctx context.Context, userID, taskID uuid.UUID, eventType AuditEventType, reasons []string, detail string) error {
	if s.audit == nil {
		return nil
	}
	return s.audit.Emit(ctx, &AuditEvent{
		UserID: userID, TaskID: &taskID, Type: eventType, Reasons: reasons, Detail: detail,
	})
}

// Create inserts a new task. Dependencies are validated against the
// caller-supplied dependency graph for the user before the row is
// written — the store never silently drops a cycle.
func (s *TaskStore) Create(ctx context.Context, t *Task, existingDeps map[uuid.UUID][]uuid.UUID) (*Task, error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = engine.StatusOpen
	}
	if t.EstimatedDuration == 0 {
		t.EstimatedDuration = 30
	}
	if err := validateTaskConstraints(t, existingDeps); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO tasks (
			id, user_id, title, notes, status, deadline, start_after, due_by,
			estimated_duration_minutes, duration_confidence, category, energy_intensity,
			risk_score, impact_score, dependencies, flex_earliest_start, flex_latest_end,
			ai_excluded, manual_priority_locked, user_locked, manually_scheduled,
			tier, prior_tier, source_type, source_id, recurrence_series_id,
			recurrence_occurrence_start, title_is_auto_generated, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12,
			$13, $14, $15, $16, $17,
			$18, $19, $20, $21,
			$22, $23, $24, $25, $26,
			$27, $28, $29, $29
		)
		ON CONFLICT (user_id, source_type, source_id, recurrence_series_id, recurrence_occurrence_start)
		WHERE deleted_at IS NULL
		DO NOTHING
	`,
		t.ID, t.UserID, t.Title, t.Notes, t.Status, t.Deadline, t.StartAfter, t.DueBy,
		t.EstimatedDuration, t.DurationConfidence, t.Category, t.EnergyIntensity,
		t.RiskScore, t.ImpactScore, t.Dependencies, t.FlexEarliestStart, t.FlexLatestEnd,
		t.AIExcluded, t.ManualPriorityLocked, t.UserLocked, t.ManuallyScheduled,
		t.Tier, t.PriorTier, t.SourceType, t.SourceID, t.RecurrenceSeriesID,
		t.RecurrenceOccurrenceStart, t.TitleIsAutoGenerated, now,
	)
	if err != nil {
		return nil, err
	}

	created, err := s.GetByID(ctx, t.UserID, t.ID)
	if err != nil {
		return nil, err
	}

	if tag.RowsAffected() > 0 {
		if err := s.emitAudit(ctx, t.UserID, t.ID, EventTaskImported, []string{string(t.SourceType)}, "task created"); err != nil {
			return nil, err
		}
	}

	return created, nil
}

func (s *TaskStore) GetByID(ctx context.Context, userID, taskID uuid.UUID) (*Task, error) {
	t := &Task{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, title, notes, status, deadline, start_after, due_by,
		       estimated_duration_minutes, duration_confidence, category, energy_intensity,
		       risk_score, impact_score, dependencies, flex_earliest_start, flex_latest_end,
		       ai_excluded, manual_priority_locked, user_locked, manually_scheduled,
		       tier, prior_tier, source_type, source_id, recurrence_series_id,
		       recurrence_occurrence_start, title_is_auto_generated, created_at, updated_at
		FROM tasks WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL
	`, taskID, userID).Scan(
		&t.ID, &t.UserID, &t.Title, &t.Notes, &t.Status, &t.Deadline, &t.StartAfter, &t.DueBy,
		&t.EstimatedDuration, &t.DurationConfidence, &t.Category, &t.EnergyIntensity,
		&t.RiskScore, &t.ImpactScore, &t.Dependencies, &t.FlexEarliestStart, &t.FlexLatestEnd,
		&t.AIExcluded, &t.ManualPriorityLocked, &t.UserLocked, &t.ManuallyScheduled,
		&t.Tier, &t.PriorTier, &t.SourceType, &t.SourceID, &t.RecurrenceSeriesID,
		&t.RecurrenceOccurrenceStart, &t.TitleIsAutoGenerated, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	return t, nil
}

// ListOpenForUser returns every non-deleted task a rebuild needs to
// consider: open tasks, plus recently completed ones the caller may want
// for audit context is left to a separate query.
func (s *TaskStore) ListOpenForUser(ctx context.Context, userID uuid.UUID) ([]*Task, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, title, notes, status, deadline, start_after, due_by,
		       estimated_duration_minutes, duration_confidence, category, energy_intensity,
		       risk_score, impact_score, dependencies, flex_earliest_start, flex_latest_end,
		       ai_excluded, manual_priority_locked, user_locked, manually_scheduled,
		       tier, prior_tier, source_type, source_id, recurrence_series_id,
		       recurrence_occurrence_start, title_is_auto_generated, created_at, updated_at
		FROM tasks
		WHERE user_id = $1 AND status = 'open' AND deleted_at IS NULL
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t := &Task{}
		if err := rows.Scan(
			&t.ID, &t.UserID, &t.Title, &t.Notes, &t.Status, &t.Deadline, &t.StartAfter, &t.DueBy,
			&t.EstimatedDuration, &t.DurationConfidence, &t.Category, &t.EnergyIntensity,
			&t.RiskScore, &t.ImpactScore, &t.Dependencies, &t.FlexEarliestStart, &t.FlexLatestEnd,
			&t.AIExcluded, &t.ManualPriorityLocked, &t.UserLocked, &t.ManuallyScheduled,
			&t.Tier, &t.PriorTier, &t.SourceType, &t.SourceID, &t.RecurrenceSeriesID,
			&t.RecurrenceOccurrenceStart, &t.TitleIsAutoGenerated, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// UpdateAttributes applies a user or inference edit to the mutable
// attribute surface. It refuses to write over a user_locked task unless
// the caller is the user themself (checked by the handler layer before
// calling this with allowLocked=true).
func (s *TaskStore) UpdateAttributes(ctx context.Context, userID, taskID uuid.UUID, t *Task, allowLocked bool) error {
	existing, err := s.GetByID(ctx, userID, taskID)
	if err != nil {
		return err
	}
	if existing.UserLocked && !allowLocked {
		return ErrTaskLocked
	}

	graph, err := s.DependencyGraph(ctx, userID)
	if err != nil {
		return err
	}
	delete(graph, taskID)
	validated := *t
	validated.ID = taskID
	if err := validateTaskConstraints(&validated, graph); err != nil {
		return err
	}

	now := time.Now().UTC()
	result, err := s.pool.Exec(ctx, `
		UPDATE tasks SET
			title = $3, notes = $4, deadline = $5, start_after = $6, due_by = $7,
			estimated_duration_minutes = $8, duration_confidence = $9, category = $10,
			energy_intensity = $11, risk_score = $12, impact_score = $13, dependencies = $14,
			flex_earliest_start = $15, flex_latest_end = $16, ai_excluded = $17,
			manual_priority_locked = $18, manually_scheduled = $19, updated_at = $20
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL
	`,
		taskID, userID, t.Title, t.Notes, t.Deadline, t.StartAfter, t.DueBy,
		t.EstimatedDuration, t.DurationConfidence, t.Category, t.EnergyIntensity,
		t.RiskScore, t.ImpactScore, t.Dependencies, t.FlexEarliestStart, t.FlexLatestEnd,
		t.AIExcluded, t.ManualPriorityLocked, t.ManuallyScheduled, now,
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return s.emitAudit(ctx, userID, taskID, EventTaskUpdated, nil, "attributes updated")
}

// SetTier records the pipeline's latest tier assignment without touching
// any other field, keeping PriorTier as the hand-off for the next rebuild.
func (s *TaskStore) SetTier(ctx context.Context, taskID uuid.UUID, tier int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE tasks SET prior_tier = tier, tier = $2, updated_at = $3 WHERE id = $1
	`, taskID, tier, time.Now().UTC())
	return err
}

// ApplyInferredAttributes writes the inference adapter's accepted
// proposals. Only non-nil fields are touched, so a partial proposal (say,
// category but not duration) never clobbers a user-supplied value in the
// fields it didn't have an opinion on.
func (s *TaskStore) ApplyInferredAttributes(ctx context.Context, taskID uuid.UUID, category *engine.Category, durationMinutes *int, durationConfidence *float64, energy *engine.EnergyIntensity, risk, impact *float64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE tasks SET
			category = COALESCE($2, category),
			estimated_duration_minutes = COALESCE($3, estimated_duration_minutes),
			duration_confidence = COALESCE($4, duration_confidence),
			energy_intensity = COALESCE($5, energy_intensity),
			risk_score = COALESCE($6, risk_score),
			impact_score = COALESCE($7, impact_score),
			updated_at = $8
		WHERE id = $1
	`, taskID, category, durationMinutes, durationConfidence, energy, risk, impact, time.Now().UTC())
	return err
}

// SetTitleFromCalendar imports a title edited directly on the managed
// calendar event back onto the task, the inbound half of the
// UserEditedTitle transition — the rebuild's own title changes always go
// through UpdateAttributes instead, so this is calsync's alone to call.
func (s *TaskStore) SetTitleFromCalendar(ctx context.Context, taskID uuid.UUID, title string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE tasks SET title = $2, title_is_auto_generated = false, updated_at = $3 WHERE id = $1
	`, taskID, title, time.Now().UTC())
	return err
}

// MarkCompleted/MarkMissed transition status; both are terminal for the
// occurrence (a recurring series materializes a fresh occurrence instead
// of reopening one that was missed).
func (s *TaskStore) MarkCompleted(ctx context.Context, userID, taskID uuid.UUID) error {
	if err := s.setStatus(ctx, userID, taskID, engine.StatusCompleted); err != nil {
		return err
	}
	return s.emitAudit(ctx, userID, taskID, EventCompleted, nil, "")
}

func (s *TaskStore) MarkMissed(ctx context.Context, userID, taskID uuid.UUID) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE tasks SET status = $3, updated_at = $4 WHERE id = $1 AND user_id = $2
	`, taskID, userID, engine.StatusMissed, time.Now().UTC())
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return s.emitAudit(ctx, userID, taskID, EventOccurrenceMissed, nil, "recurring occurrence window passed unclosed")
}

func (s *TaskStore) setStatus(ctx context.Context, userID, taskID uuid.UUID, status engine.TaskStatus) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE tasks SET status = $3, updated_at = $4 WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL
	`, taskID, userID, status, time.Now().UTC())
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// SoftDelete marks a task deleted; it stays in place for audit history but
// drops out of every rebuild-facing query.
func (s *TaskStore) SoftDelete(ctx context.Context, userID, taskID uuid.UUID) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE tasks SET deleted_at = $3, updated_at = $3 WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL
	`, taskID, userID, time.Now().UTC())
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// Restore clears a soft-delete marker, making the task visible to reads
// and rebuilds again. It is a no-op error if the task was never deleted.
func (s *TaskStore) Restore(ctx context.Context, userID, taskID uuid.UUID) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE tasks SET deleted_at = NULL, updated_at = $3 WHERE id = $1 AND user_id = $2 AND deleted_at IS NOT NULL
	`, taskID, userID, time.Now().UTC())
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// Purge irreversibly removes a task row. Referencing scheduled blocks are
// removed by the foreign key's ON DELETE CASCADE.
func (s *TaskStore) Purge(ctx context.Context, userID, taskID uuid.UUID) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1 AND user_id = $2`, taskID, userID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// GetByIDIncludingDeleted is the include_deleted=true read path callers
// must opt into explicitly.
func (s *TaskStore) GetByIDIncludingDeleted(ctx context.Context, userID, taskID uuid.UUID) (*Task, error) {
	t := &Task{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, title, notes, status, deadline, start_after, due_by,
		       estimated_duration_minutes, duration_confidence, category, energy_intensity,
		       risk_score, impact_score, dependencies, flex_earliest_start, flex_latest_end,
		       ai_excluded, manual_priority_locked, user_locked, manually_scheduled,
		       tier, prior_tier, source_type, source_id, recurrence_series_id,
		       recurrence_occurrence_start, title_is_auto_generated, created_at, updated_at
		FROM tasks WHERE id = $1 AND user_id = $2
	`, taskID, userID).Scan(
		&t.ID, &t.UserID, &t.Title, &t.Notes, &t.Status, &t.Deadline, &t.StartAfter, &t.DueBy,
		&t.EstimatedDuration, &t.DurationConfidence, &t.Category, &t.EnergyIntensity,
		&t.RiskScore, &t.ImpactScore, &t.Dependencies, &t.FlexEarliestStart, &t.FlexLatestEnd,
		&t.AIExcluded, &t.ManualPriorityLocked, &t.UserLocked, &t.ManuallyScheduled,
		&t.Tier, &t.PriorTier, &t.SourceType, &t.SourceID, &t.RecurrenceSeriesID,
		&t.RecurrenceOccurrenceStart, &t.TitleIsAutoGenerated, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	return t, nil
}

// DependencyGraph loads every task's current dependency list for a user,
// for cycle validation ahead of a write.
func (s *TaskStore) DependencyGraph(ctx context.Context, userID uuid.UUID) (map[uuid.UUID][]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, dependencies FROM tasks WHERE user_id = $1 AND deleted_at IS NULL
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	graph := make(map[uuid.UUID][]uuid.UUID)
	for rows.Next() {
		var id uuid.UUID
		var deps []uuid.UUID
		if err := rows.Scan(&id, &deps); err != nil {
			return nil, err
		}
		graph[id] = deps
	}
	return graph, rows.Err()
}
