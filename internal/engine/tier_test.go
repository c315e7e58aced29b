package engine

import (
	"testing"
	"time"
)

func TestAssignTier_DeadlineWithin24h(t *testing.T) {
	now := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	deadline := now.Add(2 * time.Hour)
	task := Task{Category: CategoryHome, Deadline: &deadline}

	tier, reasons := AssignTier(task, now, DefaultConfig())
	if tier != 1 {
		t.Fatalf("expected tier 1, got %d", tier)
	}
	if len(reasons) == 0 || reasons[0] != "deadline_within_24h" {
		t.Fatalf("expected deadline_within_24h reason, got %v", reasons)
	}
}

func TestAssignTier_RiskBeatsCategory(t *testing.T) {
	now := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	task := Task{Category: CategoryWork, RiskScore: 0.9}

	tier, _ := AssignTier(task, now, DefaultConfig())
	if tier != 2 {
		t.Fatalf("expected tier 2 (risk), got %d", tier)
	}
}

func TestAssignTier_ImpactOrUnlocks(t *testing.T) {
	now := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	cfg := DefaultConfig()

	byImpact := Task{Category: CategoryHome, ImpactScore: 0.8}
	if tier, _ := AssignTier(byImpact, now, cfg); tier != 3 {
		t.Fatalf("expected tier 3 by impact, got %d", tier)
	}

	byUnlock := Task{Category: CategoryHome, UnlocksCount: 1}
	if tier, _ := AssignTier(byUnlock, now, cfg); tier != 3 {
		t.Fatalf("expected tier 3 by unlocks, got %d", tier)
	}
}

func TestAssignTier_CategoryFallthrough(t *testing.T) {
	now := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	cfg := DefaultConfig()

	cases := []struct {
		category Category
		want     int
	}{
		{CategoryChild, 4},
		{CategoryHealth, 5},
		{CategoryWork, 6},
		{CategoryPersonal, 7},
		{CategoryFamily, 8},
		{CategoryHome, 9},
		{CategoryAdmin, 9},
		{CategoryIdeas, 9},
		{CategoryUnknown, 9},
	}
	for _, c := range cases {
		task := Task{Category: c.category}
		if tier, _ := AssignTier(task, now, cfg); tier != c.want {
			t.Errorf("category %s: expected tier %d, got %d", c.category, c.want, tier)
		}
	}
}

func TestAssignTier_ManualPriorityLockFreezesTier(t *testing.T) {
	now := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	deadline := now.Add(time.Hour) // would otherwise be tier 1
	task := Task{
		Category: CategoryHome, Deadline: &deadline,
		ManualPriorityLocked: true, PriorTier: 7,
	}

	tier, reasons := AssignTier(task, now, DefaultConfig())
	if tier != 7 {
		t.Fatalf("expected frozen tier 7, got %d", tier)
	}
	if reasons[0] != "manual_priority_locked" {
		t.Fatalf("expected manual_priority_locked reason, got %v", reasons)
	}
}

func TestTierChanged_InitialAssignmentIsNotAChange(t *testing.T) {
	changed, staged := TierChanged(0, 6, 0, DefaultConfig())
	if changed || staged {
		t.Fatalf("first assignment should never be reported as a change")
	}
}

func TestTierChanged_LowConfidenceInferenceStages(t *testing.T) {
	cfg := DefaultConfig()
	changed, staged := TierChanged(6, 2, 0.7, cfg)
	if !changed {
		t.Fatalf("expected a reported change")
	}
	if !staged {
		t.Fatalf("confidence 0.7 is below the 0.8 confirm threshold; expected staged=true")
	}
}

func TestTierChanged_HighConfidenceInferenceApplies(t *testing.T) {
	cfg := DefaultConfig()
	changed, staged := TierChanged(6, 2, 0.95, cfg)
	if !changed || staged {
		t.Fatalf("expected an applied (non-staged) change, got changed=%v staged=%v", changed, staged)
	}
}

func TestTierChanged_NonInferenceDrivenChangeNeverStages(t *testing.T) {
	// confidence 0 means "not inference-driven" (e.g. a user edit or a
	// deadline crossing the 24h boundary); it must never be staged.
	changed, staged := TierChanged(6, 1, 0, DefaultConfig())
	if !changed || staged {
		t.Fatalf("expected an applied change with no staging, got changed=%v staged=%v", changed, staged)
	}
}
