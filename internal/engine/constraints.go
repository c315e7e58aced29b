package engine

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrDependencyCycle is returned when a task's dependency set would create a
// cycle in the user's dependency graph. Detected on write, not during
// scheduling, per the design note that a topological check at write time is
// cheaper and safer than discovering cycles mid-placement.
var ErrDependencyCycle = errors.New("dependency graph would contain a cycle")

// ErrInvalidDuration is returned when estimated_duration falls outside [5, 600].
var ErrInvalidDuration = errors.New("estimated_duration must be between 5 and 600 minutes")

// ErrFlexWindowInconsistent is returned when a flexibility window does not
// contain [start_after, deadline], and by ValidateStartBeforeDeadline when
// start_after is later than deadline.
var ErrFlexWindowInconsistent = errors.New("flexibility_window must contain start_after and deadline")

// ValidateAcyclic performs a topological check over a user's full dependency
// graph after a hypothetical write: taskID depending on newDeps, with the
// rest of the graph given by existingDeps (taskID -> its current
// dependencies, for every other task owned by the same user). Returns
// ErrDependencyCycle if the resulting graph contains a cycle.
func ValidateAcyclic(taskID uuid.UUID, newDeps []uuid.UUID, existingDeps map[uuid.UUID][]uuid.UUID) error {
	graph := make(map[uuid.UUID][]uuid.UUID, len(existingDeps)+1)
	for id, deps := range existingDeps {
		graph[id] = deps
	}
	graph[taskID] = newDeps

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[uuid.UUID]int, len(graph))

	var visit func(uuid.UUID) bool
	visit = func(n uuid.UUID) bool {
		color[n] = gray
		for _, dep := range graph[n] {
			switch color[dep] {
			case gray:
				return true // back edge: cycle
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		color[n] = black
		return false
	}

	for n := range graph {
		if color[n] == white {
			if visit(n) {
				return ErrDependencyCycle
			}
		}
	}
	return nil
}

// ValidateDuration enforces the [5, 600] minute bound.
func ValidateDuration(minutes int) error {
	if minutes < 5 || minutes > 600 {
		return ErrInvalidDuration
	}
	return nil
}

// ValidateFlexWindow checks flexibility_window ⊇ [start_after, deadline]
// when all three are set.
func ValidateFlexWindow(startAfter, deadline *time.Time, window *FlexibilityWindow) error {
	if window == nil {
		return nil
	}
	if startAfter != nil && window.EarliestStart.After(*startAfter) {
		return ErrFlexWindowInconsistent
	}
	if deadline != nil && window.LatestEnd.Before(*deadline) {
		return ErrFlexWindowInconsistent
	}
	return nil
}

// ValidateStartBeforeDeadline enforces start_after <= deadline when both set.
func ValidateStartBeforeDeadline(startAfter, deadline *time.Time) error {
	if startAfter != nil && deadline != nil && startAfter.After(*deadline) {
		return ErrFlexWindowInconsistent
	}
	return nil
}
