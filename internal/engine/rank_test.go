package engine

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestRankWithinTier_DeadlineFirst(t *testing.T) {
	now := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	soonDeadline := now.Add(2 * time.Hour)
	laterDeadline := now.Add(10 * time.Hour)

	a := Task{ID: uuid.New(), Deadline: &laterDeadline, CreatedAt: now}
	b := Task{ID: uuid.New(), Deadline: &soonDeadline, CreatedAt: now}
	c := Task{ID: uuid.New(), CreatedAt: now} // no deadline, sorts last

	ranked := RankWithinTier([]Task{a, b, c})
	if ranked[0].ID != b.ID || ranked[1].ID != a.ID || ranked[2].ID != c.ID {
		t.Fatalf("expected nearer deadline first, got order %v", idsOf(ranked))
	}
}

func TestRankWithinTier_ImpactThenRiskThenCreatedAt(t *testing.T) {
	now := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	older := now.Add(-time.Hour)

	highImpact := Task{ID: uuid.New(), ImpactScore: 0.9, CreatedAt: now}
	lowImpact := Task{ID: uuid.New(), ImpactScore: 0.1, CreatedAt: now}
	tiedImpactHighRisk := Task{ID: uuid.New(), ImpactScore: 0.9, RiskScore: 0.8, CreatedAt: now}
	tiedImpactOlder := Task{ID: uuid.New(), ImpactScore: 0.9, RiskScore: 0.8, CreatedAt: older}

	ranked := RankWithinTier([]Task{lowImpact, highImpact, tiedImpactHighRisk, tiedImpactOlder})

	if ranked[3].ID != lowImpact.ID {
		t.Fatalf("lowest impact task should rank last, got order %v", idsOf(ranked))
	}
	if ranked[0].ID != tiedImpactOlder.ID {
		t.Fatalf("among equal impact+risk, the older task should rank first, got order %v", idsOf(ranked))
	}
}

func TestRankWithinTier_StableOnFullTie(t *testing.T) {
	now := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	a := Task{ID: uuid.MustParse("00000000-0000-0000-0000-000000000001"), CreatedAt: now}
	b := Task{ID: uuid.MustParse("00000000-0000-0000-0000-000000000002"), CreatedAt: now}

	ranked := RankWithinTier([]Task{a, b})
	if ranked[0].ID != a.ID || ranked[1].ID != b.ID {
		t.Fatalf("identical tuples should tiebreak by task id ascending, got order %v", idsOf(ranked))
	}
}

func idsOf(tasks []Task) []uuid.UUID {
	out := make([]uuid.UUID, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}
