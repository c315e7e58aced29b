// Package engine implements the pure, side-effect-free scheduling pipeline:
// exclusion, constraint validation, tier assignment, ranking, availability
// and placement. Every function here takes values and returns values; I/O,
// persistence and remote calls live in internal/rebuild.
package engine

import (
	"time"

	"github.com/google/uuid"
)

// Category enumerates the closed set of task categories. "unknown" is a
// sentinel value, never absence-of-field.
type Category string

const (
	CategoryWork     Category = "work"
	CategoryChild    Category = "child"
	CategoryFamily   Category = "family"
	CategoryHealth   Category = "health"
	CategoryPersonal Category = "personal"
	CategoryIdeas    Category = "ideas"
	CategoryHome     Category = "home"
	CategoryAdmin    Category = "admin"
	CategoryUnknown  Category = "unknown"
)

type EnergyIntensity string

const (
	EnergyLow    EnergyIntensity = "low"
	EnergyMedium EnergyIntensity = "medium"
	EnergyHigh   EnergyIntensity = "high"
)

type TaskStatus string

const (
	StatusOpen      TaskStatus = "open"
	StatusCompleted TaskStatus = "completed"
	StatusMissed    TaskStatus = "missed"
)

// FlexibilityWindow is the optional [earliest_start, latest_end] a task must
// be fully contained within.
type FlexibilityWindow struct {
	EarliestStart time.Time
	LatestEnd     time.Time
}

// Task is the pure, computation-facing view of a task record: everything
// the pipeline needs, nothing about how it is stored.
type Task struct {
	ID                  uuid.UUID
	Title               string
	Notes               string
	Status              TaskStatus
	Deadline            *time.Time
	StartAfter          *time.Time // resolved to local midnight instant
	DueBy               *time.Time // resolved to end-of-day instant
	EstimatedDuration   int        // minutes
	DurationConfidence  float64
	Category            Category
	EnergyIntensity     EnergyIntensity
	RiskScore           float64
	ImpactScore         float64
	Dependencies        []uuid.UUID
	FlexibilityWindow   *FlexibilityWindow
	AIExcluded          bool
	ManualPriorityLocked bool
	UserLocked          bool
	ManuallyScheduled   bool
	CreatedAt           time.Time

	// Pipeline-assigned, not user input.
	Tier         int      // 0 = not yet assigned
	TierReasons  []string // structured reason tokens from the tier assigner
	PriorTier    int      // tier recorded from the previous rebuild, 0 if none
	UnlocksCount int      // number of other open tasks depending on this one
}

// Interval is a half-open [Start, End) time range.
type Interval struct {
	Start time.Time
	End   time.Time
}

func (iv Interval) Duration() time.Duration { return iv.End.Sub(iv.Start) }

func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// ScheduledBlock is the pure placer output: one contiguous piece of a task
// placed into free time.
type ScheduledBlock struct {
	TaskID    uuid.UUID
	Start     time.Time
	End       time.Time
	Locked    bool
	ScheduledBy string // "system" or "user"
}

// OverflowReason enumerates why a task could not be placed.
type OverflowReason string

const (
	OverflowNoCapacity         OverflowReason = "no_capacity"
	OverflowDeadlineUnreachable OverflowReason = "deadline_unreachable"
	OverflowFlexWindowEmpty     OverflowReason = "flex_window_empty"
	OverflowDepUnplaced         OverflowReason = "dep_unplaced"
)

// PlacementResult is the per-task outcome of the placer: a task ends a
// rebuild in exactly one of {scheduled, overflow}.
type PlacementResult struct {
	TaskID    uuid.UUID
	Blocks    []ScheduledBlock
	Overflow  OverflowReason // empty if scheduled
	Reasons   []string       // structured audit reason tokens
}

func (r PlacementResult) IsOverflow() bool { return r.Overflow != "" }

// Config is the engine's immutable, construction-time configuration:
// tunables are threaded in explicitly rather than hard-coded.
type Config struct {
	HorizonDays                int           // 7, 14, or 30
	SchedulingGranularity      time.Duration // default 30m
	DurationDefault            int           // minutes, default 30
	ConfidenceThreshold        float64       // default 0.6
	TierChangeConfirmThreshold float64       // default 0.8
	Tier3ImpactThreshold       float64       // default 0.7
	Tier2RiskThreshold         float64       // default 0.7
}

func DefaultConfig() Config {
	return Config{
		HorizonDays:                14,
		SchedulingGranularity:      30 * time.Minute,
		DurationDefault:            30,
		ConfidenceThreshold:        0.6,
		TierChangeConfirmThreshold: 0.8,
		Tier3ImpactThreshold:       0.7,
		Tier2RiskThreshold:         0.7,
	}
}
