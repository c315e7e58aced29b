package rebuild

import (
	"context"
	"time"

	"github.com/qzwhatnext/engine/internal/engine"
	"github.com/qzwhatnext/engine/internal/inference"
	"github.com/qzwhatnext/engine/internal/store"
)

// maxInferenceBackoff caps the exponential backoff between retried
// adapter calls, so a misconfigured large retry budget can't stall a
// rebuild for minutes.
const maxInferenceBackoff = 2 * time.Second

// callAdapter wraps the inference adapter call with the per-call timeout
// and capped-exponential-backoff retry budget from Config: each attempt
// gets its own context deadline, and at most cfg.InferenceRetries attempts
// in total (at least one) are made before giving up.
func (s *Service) callAdapter(ctx context.Context, input inference.TaskInput) (inference.Proposals, error) {
	attempts := s.cfg.InferenceRetries
	if attempts < 1 {
		attempts = 1
	}

	backoff := 200 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.InferenceTimeout)
		proposals, err := s.adapter.Infer(callCtx, input)
		cancel()
		if err == nil {
			return proposals, nil
		}
		lastErr = err

		if attempt < attempts-1 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoff *= 2
			if backoff > maxInferenceBackoff {
				backoff = maxInferenceBackoff
			}
		}
	}
	return nil, lastErr
}

// infer calls the attribute inference adapter for one non-excluded task,
// persists every proposal that clears the confidence threshold for an
// attribute the task doesn't already have set, and returns the confidence
// behind any risk/impact proposal actually applied — the only proposals
// that feed tier assignment, and so the only ones TierChanged needs to
// decide whether a resulting tier change should be staged.
func (s *Service) infer(ctx context.Context, t *store.Task, events *[]*store.AuditEvent) float64 {
	input := inference.TaskInput{
		ID:    t.ID.String(),
		Title: t.Title,
		Notes: t.Notes,

		HasCategory: t.Category != "",
		HasDuration: t.EstimatedDuration > 0,
		HasEnergy:   t.EnergyIntensity != "",
		HasRisk:     t.RiskScore != 0,
		HasImpact:   t.ImpactScore != 0,
	}

	proposals, err := s.callAdapter(ctx, input)
	if err != nil {
		logUnexpected("infer", err)
		*events = append(*events, &store.AuditEvent{
			UserID: t.UserID, TaskID: &t.ID, Type: store.EventInferenceFailed,
			Reasons: []string{"adapter_error"}, Detail: err.Error(),
		})
		return 0
	}

	threshold := s.cfg.Engine.ConfidenceThreshold

	var category *engine.Category
	var duration *int
	var durationConfidence *float64
	var energy *engine.EnergyIntensity
	var risk, impact *float64
	var applied []string
	var tierConfidence float64

	if p, ok := proposals["category"]; ok && !input.HasCategory && p.Confidence >= threshold {
		if v, ok := p.Value.(string); ok {
			c := engine.Category(v)
			category = &c
			applied = append(applied, "category")
		}
	}
	if p, ok := proposals["estimated_duration"]; ok && !input.HasDuration && p.Confidence >= threshold {
		if v, ok := p.Value.(int); ok {
			rounded := roundAndClampDuration(v)
			duration = &rounded
			conf := p.Confidence
			durationConfidence = &conf
			applied = append(applied, "estimated_duration")
		}
	}
	if p, ok := proposals["energy_intensity"]; ok && !input.HasEnergy && p.Confidence >= threshold {
		if v, ok := p.Value.(string); ok {
			e := engine.EnergyIntensity(v)
			energy = &e
			applied = append(applied, "energy_intensity")
		}
	}
	if p, ok := proposals["risk_score"]; ok && !input.HasRisk && p.Confidence >= threshold {
		if v, ok := p.Value.(float64); ok {
			risk = &v
			applied = append(applied, "risk_score")
			tierConfidence = maxFloat(tierConfidence, p.Confidence)
		}
	}
	if p, ok := proposals["impact_score"]; ok && !input.HasImpact && p.Confidence >= threshold {
		if v, ok := p.Value.(float64); ok {
			impact = &v
			applied = append(applied, "impact_score")
			tierConfidence = maxFloat(tierConfidence, p.Confidence)
		}
	}

	if len(applied) == 0 {
		*events = append(*events, &store.AuditEvent{
			UserID: t.UserID, TaskID: &t.ID, Type: store.EventInferenceFailed,
			Reasons: []string{"no_high_confidence_proposals"}, Detail: "defaults applied",
		})
		return 0
	}

	if err := s.tasks.ApplyInferredAttributes(ctx, t.ID, category, duration, durationConfidence, energy, risk, impact); err != nil {
		logUnexpected("apply inferred attributes", err)
		return 0
	}

	if category != nil {
		t.Category = *category
	}
	if duration != nil {
		t.EstimatedDuration = *duration
	}
	if durationConfidence != nil {
		t.DurationConfidence = *durationConfidence
	}
	if energy != nil {
		t.EnergyIntensity = *energy
	}
	if risk != nil {
		t.RiskScore = *risk
	}
	if impact != nil {
		t.ImpactScore = *impact
	}

	*events = append(*events, &store.AuditEvent{
		UserID: t.UserID, TaskID: &t.ID, Type: store.EventInferenceApplied,
		Reasons: applied, Detail: "attribute inference adapter",
	})

	return tierConfidence
}

// roundAndClampDuration applies §4.4's apply policy to a raw duration
// proposal: round to the nearest 15-minute increment, then clamp to the
// [5, 600] minute range the task record allows.
func roundAndClampDuration(minutes int) int {
	rounded := ((minutes + 7) / 15) * 15
	switch {
	case rounded < 5:
		return 5
	case rounded > 600:
		return 600
	default:
		return rounded
	}
}

func maxFloat(a, b float64) float64 {
	if b > a {
		return b
	}
	return a
}
