package emailpipeline

import (
	"github.com/expr-lang/expr"
)

// Classification is the AI classification step's output.
type Classification struct {
	Workstream   string
	Priority     string
	Sentiment    string
	Entities     []string
	UrgencyScore float64
}

// RoutingRule is one workstream-routing-table entry: When is an
// expr-lang/expr boolean expression evaluated against the classification,
// and To is the destination inbox when it matches.
//
// This replaces the teacher workflow engine's simple "key == value"
// condition matcher (internal/workflow/engine.go matchCondition), which
// carries an explicit comment that richer conditions should use
// expr-lang/expr — this is that integration, applied to routing-table
// rule matching instead of workflow branch conditions.
type RoutingRule struct {
	When string
	To   string
}

// Router evaluates a RoutingRule table in order and returns the first
// destination whose expression matches.
type Router struct {
	rules []RoutingRule
	fallback string
}

// NewRouter builds a Router with a documented fallback inbox.
func NewRouter(rules []RoutingRule, fallback string) *Router {
	return &Router{rules: rules, fallback: fallback}
}

// Route picks the destination inbox for a classification.
func (r *Router) Route(c Classification) (string, error) {
	env := map[string]interface{}{
		"workstream": c.Workstream,
		"priority":   c.Priority,
		"urgency":    c.UrgencyScore,
	}
	for _, rule := range r.rules {
		out, err := expr.Eval(rule.When, env)
		if err != nil {
			continue
		}
		if matched, ok := out.(bool); ok && matched {
			return rule.To, nil
		}
	}
	return r.fallback, nil
}

// DefaultRules is the documented (workstream, priority) address-rewrite
// table.
func DefaultRules() []RoutingRule {
	return []RoutingRule{
		{When: `workstream == "litigation" && (priority == "critical" || priority == "high")`, To: "litigation-urgent@chitty.cc"},
		{When: `workstream == "litigation"`, To: "litigation@chitty.cc"},
		{When: `workstream == "finance" && priority == "critical"`, To: "finance-urgent@chitty.cc"},
		{When: `workstream == "finance"`, To: "finance@chitty.cc"},
		{When: `workstream == "compliance"`, To: "compliance@chitty.cc"},
		{When: `workstream == "operations"`, To: "operations@chitty.cc"},
	}
}
