package inference

import (
	"context"
	"testing"
)

func TestRuleBasedAdapter_SingleRuleMatch(t *testing.T) {
	rules := []AttributeRule{
		{ID: "r1", Query: "title:doctor", Attribute: "category", Value: "health", Weight: 1.0},
	}
	adapter := NewRuleBasedAdapter(rules)

	proposals, err := adapter.Infer(context.Background(), TaskInput{Title: "Doctor appointment"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p, ok := proposals["category"]
	if !ok {
		t.Fatalf("expected a category proposal")
	}
	if p.Value != "health" {
		t.Errorf("expected value health, got %v", p.Value)
	}
	if p.Confidence != 1.0 {
		t.Errorf("expected confidence 1.0 with a single matching rule, got %f", p.Confidence)
	}
}

func TestRuleBasedAdapter_NoMatchLeavesAttributeAbsent(t *testing.T) {
	rules := []AttributeRule{
		{ID: "r1", Query: "title:doctor", Attribute: "category", Value: "health", Weight: 1.0},
	}
	adapter := NewRuleBasedAdapter(rules)

	proposals, err := adapter.Infer(context.Background(), TaskInput{Title: "Buy milk"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := proposals["category"]; ok {
		t.Fatalf("expected no category proposal for a non-matching title")
	}
}

func TestRuleBasedAdapter_CompetingRulesSplitConfidence(t *testing.T) {
	rules := []AttributeRule{
		{ID: "r1", Query: "title:review", Attribute: "category", Value: "work", Weight: 2.0},
		{ID: "r2", Query: "text:client", Attribute: "category", Value: "personal", Weight: 1.0},
	}
	adapter := NewRuleBasedAdapter(rules)

	proposals, err := adapter.Infer(context.Background(), TaskInput{Title: "Review", Notes: "client feedback"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p := proposals["category"]
	if p.Value != "work" {
		t.Errorf("expected the heavier-weighted rule to win, got %v", p.Value)
	}
	want := 2.0 / 3.0
	if diff := p.Confidence - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected confidence %.4f, got %.4f", want, p.Confidence)
	}
}

func TestRuleBasedAdapter_DefaultRulesParseCleanly(t *testing.T) {
	adapter := NewRuleBasedAdapter(DefaultRules())
	proposals, err := adapter.Infer(context.Background(), TaskInput{Title: "Call the dentist", Notes: "reschedule checkup"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(proposals) == 0 {
		t.Fatalf("expected the default rule table to propose something for a clear health keyword match")
	}
	if proposals["category"].Value != "health" {
		t.Errorf("expected category health, got %v", proposals["category"].Value)
	}
}

func TestRuleBasedAdapter_InvalidRuleQuerySkipped(t *testing.T) {
	rules := []AttributeRule{
		{ID: "bad", Query: "title:(unterminated", Attribute: "category", Value: "work", Weight: 1.0},
	}
	adapter := NewRuleBasedAdapter(rules)

	proposals, err := adapter.Infer(context.Background(), TaskInput{Title: "unterminated thing"})
	if err != nil {
		t.Fatalf("a malformed rule must not fail the whole inference call: %v", err)
	}
	if _, ok := proposals["category"]; ok {
		t.Fatalf("a rule with an unparseable query should never vote")
	}
}
