package inference

import "context"

// TaskInput is the subset of a task the adapter is allowed to see. Per the
// exclusion gate, an AI-excluded task must never reach this boundary —
// the caller in internal/rebuild enforces that, not this package.
type TaskInput struct {
	ID    string
	Title string
	Notes string

	// Existing, already set by the user; the caller only asks for
	// attributes that are still at their zero value.
	HasCategory   bool
	HasDuration   bool
	HasEnergy     bool
	HasRisk       bool
	HasImpact     bool
}

// Proposal is one attribute's proposed value plus the adapter's
// confidence in it, in [0,1].
type Proposal struct {
	Value      any
	Confidence float64
}

// Proposals is keyed by attribute name: "category", "estimated_duration",
// "energy_intensity", "risk_score", "impact_score". A missing key means
// the adapter had nothing to propose for that attribute.
type Proposals map[string]Proposal

// Adapter is the Attribute Inference Adapter boundary. Implementations
// must be side-effect-free from the pipeline's perspective — network
// calls are allowed internally, but Infer must not write to any store.
type Adapter interface {
	Infer(ctx context.Context, task TaskInput) (Proposals, error)
}

// AttributeRule is one rule in the rule-based adapter's table: if Query
// matches a task's title/notes, it votes Weight for Value on Attribute.
type AttributeRule struct {
	ID        string
	Query     string
	Attribute string
	Value     any
	Weight    float64
}

// RuleBasedAdapter is the production default implementation of Adapter:
// a fixed table of keyword/phrase rules, scored the same way the
// classifier scores project rules — votes accumulate per candidate
// value, confidence is the winner's share of total matched weight.
type RuleBasedAdapter struct {
	rules []AttributeRule
}

// NewRuleBasedAdapter builds an adapter from a rule table. Callers
// normally pass DefaultRules(), but tests can supply a smaller,
// deterministic table.
func NewRuleBasedAdapter(rules []AttributeRule) *RuleBasedAdapter {
	return &RuleBasedAdapter{rules: rules}
}

var _ Adapter = (*RuleBasedAdapter)(nil)

func (a *RuleBasedAdapter) Infer(ctx context.Context, task TaskInput) (Proposals, error) {
	props := &TaskProperties{Title: task.Title, Notes: task.Notes}

	scores := make(map[string]map[any]float64)  // attribute -> value -> score
	totals := make(map[string]float64)           // attribute -> total matched weight

	for _, rule := range a.rules {
		ast, err := Parse(rule.Query)
		if err != nil {
			continue
		}
		if !Evaluate(ast, props) {
			continue
		}
		if scores[rule.Attribute] == nil {
			scores[rule.Attribute] = make(map[any]float64)
		}
		scores[rule.Attribute][rule.Value] += rule.Weight
		totals[rule.Attribute] += rule.Weight
	}

	out := make(Proposals)
	for attr, byValue := range scores {
		var winner any
		var winnerScore float64
		for value, score := range byValue {
			if score > winnerScore {
				winner = value
				winnerScore = score
			}
		}
		confidence := winnerScore / totals[attr]
		if confidence > 1.0 {
			confidence = 1.0
		}
		out[attr] = Proposal{Value: winner, Confidence: confidence}
	}

	return out, nil
}

// DefaultRules returns the built-in keyword table covering the common
// recurring task shapes: medical/family care, chores, admin paperwork,
// and deep-focus work. Durations are in minutes.
func DefaultRules() []AttributeRule {
	return []AttributeRule{
		{ID: "cat:health:1", Query: "title:doctor OR title:dentist OR title:appointment OR title:meds OR title:medication", Attribute: "category", Value: "health", Weight: 1.0},
		{ID: "cat:health:2", Query: "text:prescription OR text:checkup OR text:therapy", Attribute: "category", Value: "health", Weight: 1.0},
		{ID: "cat:child:1", Query: "title:daycare OR title:pickup OR title:school OR text:homework", Attribute: "category", Value: "child", Weight: 1.0},
		{ID: "cat:family:1", Query: "text:birthday OR text:anniversary OR title:family", Attribute: "category", Value: "family", Weight: 1.0},
		{ID: "cat:home:1", Query: "title:laundry OR title:dishes OR title:clean OR title:groceries OR title:repair", Attribute: "category", Value: "home", Weight: 1.0},
		{ID: "cat:admin:1", Query: "title:invoice OR title:taxes OR title:renew OR title:paperwork OR text:insurance", Attribute: "category", Value: "admin", Weight: 1.0},
		{ID: "cat:ideas:1", Query: "title:idea OR text:brainstorm OR title:someday", Attribute: "category", Value: "ideas", Weight: 1.0},
		{ID: "cat:work:1", Query: "title:meeting OR title:review OR title:report OR text:deadline OR text:client", Attribute: "category", Value: "work", Weight: 1.0},
		{ID: "cat:personal:1", Query: "title:workout OR title:gym OR title:read OR title:journal", Attribute: "category", Value: "personal", Weight: 1.0},

		{ID: "dur:quick:1", Query: "title:call OR title:email OR title:text OR title:quick", Attribute: "estimated_duration", Value: 15, Weight: 1.0},
		{ID: "dur:standard:1", Query: "title:meeting OR title:review OR title:appointment", Attribute: "estimated_duration", Value: 30, Weight: 1.0},
		{ID: "dur:long:1", Query: "title:write OR title:draft OR title:plan OR text:deep", Attribute: "estimated_duration", Value: 90, Weight: 1.0},
		{ID: "dur:long:2", Query: "title:project OR title:build OR title:design", Attribute: "estimated_duration", Value: 120, Weight: 1.0},

		{ID: "energy:high:1", Query: "title:write OR title:design OR title:build OR title:plan OR text:deep", Attribute: "energy_intensity", Value: "high", Weight: 1.0},
		{ID: "energy:low:1", Query: "title:call OR title:email OR title:laundry OR title:groceries", Attribute: "energy_intensity", Value: "low", Weight: 1.0},

		{ID: "risk:high:1", Query: "text:deadline OR text:urgent OR text:overdue", Attribute: "risk_score", Value: 0.8, Weight: 1.0},
		{ID: "risk:low:1", Query: "title:someday OR title:idea", Attribute: "risk_score", Value: 0.1, Weight: 1.0},

		{ID: "impact:high:1", Query: "text:client OR text:launch OR title:review", Attribute: "impact_score", Value: 0.8, Weight: 1.0},
		{ID: "impact:low:1", Query: "title:someday OR title:idea OR title:laundry", Attribute: "impact_score", Value: 0.2, Weight: 1.0},
	}
}
