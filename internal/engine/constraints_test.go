package engine

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestValidateAcyclic_DirectCycleRejected(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	existing := map[uuid.UUID][]uuid.UUID{
		a: {},
		b: {a},
	}
	// Hypothetically making a depend on b would close a->b->a.
	if err := ValidateAcyclic(a, []uuid.UUID{b}, existing); err != ErrDependencyCycle {
		t.Fatalf("expected ErrDependencyCycle, got %v", err)
	}
}

func TestValidateAcyclic_TransitiveCycleRejected(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	existing := map[uuid.UUID][]uuid.UUID{
		a: {b},
		b: {c},
	}
	if err := ValidateAcyclic(c, []uuid.UUID{a}, existing); err != ErrDependencyCycle {
		t.Fatalf("expected ErrDependencyCycle for a->b->c->a, got %v", err)
	}
}

func TestValidateAcyclic_AcyclicGraphAccepted(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	existing := map[uuid.UUID][]uuid.UUID{
		a: {},
		b: {a},
	}
	if err := ValidateAcyclic(c, []uuid.UUID{a, b}, existing); err != nil {
		t.Fatalf("expected no error for a valid DAG, got %v", err)
	}
}

func TestValidateDuration_Bounds(t *testing.T) {
	if err := ValidateDuration(4); err == nil {
		t.Fatalf("4 minutes should be rejected (< 5)")
	}
	if err := ValidateDuration(601); err == nil {
		t.Fatalf("601 minutes should be rejected (> 600)")
	}
	if err := ValidateDuration(30); err != nil {
		t.Fatalf("30 minutes should be valid, got %v", err)
	}
	if err := ValidateDuration(5); err != nil {
		t.Fatalf("5 minutes (lower bound) should be valid, got %v", err)
	}
	if err := ValidateDuration(600); err != nil {
		t.Fatalf("600 minutes (upper bound) should be valid, got %v", err)
	}
}

func TestValidateStartBeforeDeadline(t *testing.T) {
	now := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	later := now.Add(24 * time.Hour)

	if err := ValidateStartBeforeDeadline(&later, &now); err == nil {
		t.Fatalf("start_after after deadline should be rejected")
	}
	if err := ValidateStartBeforeDeadline(&now, &later); err != nil {
		t.Fatalf("start_after before deadline should be valid, got %v", err)
	}
	if err := ValidateStartBeforeDeadline(nil, nil); err != nil {
		t.Fatalf("unset fields should be valid, got %v", err)
	}
}

func TestValidateFlexWindow_MustContainStartAndDeadline(t *testing.T) {
	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	deadline := start.Add(48 * time.Hour)

	tooNarrow := &FlexibilityWindow{EarliestStart: start.Add(time.Hour), LatestEnd: deadline}
	if err := ValidateFlexWindow(&start, &deadline, tooNarrow); err == nil {
		t.Fatalf("a window starting after start_after should be rejected")
	}

	tooShort := &FlexibilityWindow{EarliestStart: start, LatestEnd: deadline.Add(-time.Hour)}
	if err := ValidateFlexWindow(&start, &deadline, tooShort); err == nil {
		t.Fatalf("a window ending before deadline should be rejected")
	}

	ok := &FlexibilityWindow{EarliestStart: start, LatestEnd: deadline}
	if err := ValidateFlexWindow(&start, &deadline, ok); err != nil {
		t.Fatalf("an exactly-containing window should be valid, got %v", err)
	}

	if err := ValidateFlexWindow(&start, &deadline, nil); err != nil {
		t.Fatalf("no window at all should be valid, got %v", err)
	}
}
