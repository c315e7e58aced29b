package rebuild

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/qzwhatnext/engine/internal/engine"
	"github.com/qzwhatnext/engine/internal/store"
)

func TestCountUnlocks(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	tasks := []*store.Task{
		{ID: a},
		{ID: b, Dependencies: []uuid.UUID{a}},
		{ID: c, Dependencies: []uuid.UUID{a}},
	}

	counts := countUnlocks(tasks)
	if counts[a] != 2 {
		t.Fatalf("expected a to unlock 2 tasks, got %d", counts[a])
	}
	if counts[b] != 0 || counts[c] != 0 {
		t.Fatalf("leaf tasks should unlock nothing, got b=%d c=%d", counts[b], counts[c])
	}
}

func TestToEngineTask(t *testing.T) {
	now := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	earliest := now.Add(time.Hour)
	latest := now.Add(5 * time.Hour)

	st := &store.Task{
		ID: uuid.New(), Title: "write report", Status: engine.StatusOpen,
		EstimatedDuration: 45, Category: engine.CategoryWork,
		RiskScore: 0.5, ImpactScore: 0.9, CreatedAt: now,
		Tier:              3,
		FlexEarliestStart: &earliest, FlexLatestEnd: &latest,
	}

	et := toEngineTask(st, 2)

	if et.ID != st.ID || et.Title != st.Title {
		t.Fatalf("identity fields not copied")
	}
	if et.PriorTier != 3 {
		t.Fatalf("expected PriorTier to carry the task's current tier, got %d", et.PriorTier)
	}
	if et.UnlocksCount != 2 {
		t.Fatalf("expected UnlocksCount 2, got %d", et.UnlocksCount)
	}
	if et.FlexibilityWindow == nil {
		t.Fatalf("expected a flexibility window to be built")
	}
	if !et.FlexibilityWindow.EarliestStart.Equal(earliest) || !et.FlexibilityWindow.LatestEnd.Equal(latest) {
		t.Fatalf("flexibility window bounds did not round-trip")
	}
}

func TestToEngineTask_NoFlexWindowWhenOnlyOneBoundSet(t *testing.T) {
	earliest := time.Now()
	st := &store.Task{ID: uuid.New(), FlexEarliestStart: &earliest}

	et := toEngineTask(st, 0)
	if et.FlexibilityWindow != nil {
		t.Fatalf("a flexibility window needs both bounds, got %+v", et.FlexibilityWindow)
	}
}

func TestOrderForPlacement_GroupsByTierThenRank(t *testing.T) {
	now := time.Now()
	tier1Later := uuid.New()
	tier1Earlier := uuid.New()
	tier2 := uuid.New()

	d1 := now.Add(48 * time.Hour)
	d2 := now.Add(24 * time.Hour)

	tasks := []engine.Task{
		{ID: tier1Later, Tier: 1, Deadline: &d1, CreatedAt: now},
		{ID: tier2, Tier: 2, CreatedAt: now},
		{ID: tier1Earlier, Tier: 1, Deadline: &d2, CreatedAt: now},
	}

	ordered := orderForPlacement(tasks)
	if len(ordered) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(ordered))
	}
	if ordered[0].ID != tier1Earlier || ordered[1].ID != tier1Later {
		t.Fatalf("expected tier 1 tasks first, ranked by nearer deadline; got order %v", ids(ordered))
	}
	if ordered[2].ID != tier2 {
		t.Fatalf("expected tier 2 task last")
	}
}

func ids(tasks []engine.Task) []uuid.UUID {
	out := make([]uuid.UUID, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func TestAdvisoryKey_Deterministic(t *testing.T) {
	id := uuid.New()
	if advisoryKey(id) != advisoryKey(id) {
		t.Fatalf("advisoryKey must be deterministic for the same UUID")
	}
}

func TestAdvisoryKey_DiffersAcrossUsers(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	if advisoryKey(a) == advisoryKey(b) {
		t.Skip("extremely unlikely fnv collision between two random UUIDs")
	}
}

func TestTierDetail(t *testing.T) {
	if tierDetail(0, 3) != "initial tier assignment" {
		t.Fatalf("a zero prior tier should read as an initial assignment")
	}
	if tierDetail(2, 3) != "tier changed" {
		t.Fatalf("a nonzero prior tier should read as a change")
	}
}
