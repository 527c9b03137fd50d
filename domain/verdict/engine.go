package verdict

import (
	"fmt"
	"time"
)

// Evaluate applies the rule table to a score set and derives the verdict.
// Escalation and guardrail determinations are independent: a metric can carry
// different rules per role only by appearing once, but whether its failure
// flips each boolean depends solely on the roles its rule grants.
//
// An empty score set (total oracle failure upstream) resolves per fallback:
// FailClosed marks both booleans true, FailOpen marks both false. Either way
// the verdict is flagged Degraded so callers can tell it apart from a real
// evaluation.
func Evaluate(scores ScoreSet, rules RuleTable, fallback FallbackMode) Verdict {
	now := time.Now().UTC()

	if len(scores) == 0 {
		closed := fallback == FailClosed
		return Verdict{
			Scores:          ScoreSet{},
			ShouldGuardrail: closed,
			ShouldEscalate:  closed,
			FailingMetrics:  []string{},
			Degraded:        true,
			EvaluatedAt:     now,
		}
	}

	failing := make(map[string]bool)
	var escalate, guardrail bool

	for name, score := range scores {
		rule, ok := rules[name]
		if !ok {
			continue
		}
		if !triggered(score.Value, rule) {
			continue
		}
		failing[name] = true
		if rule.HasRole(RoleEscalation) {
			escalate = true
		}
		if rule.HasRole(RoleGuardrail) {
			guardrail = true
		}
	}

	return Verdict{
		Scores:          scores,
		ShouldGuardrail: guardrail,
		ShouldEscalate:  escalate,
		FailingMetrics:  sortedNames(failing),
		EvaluatedAt:     now,
	}
}

func triggered(value float64, rule Rule) bool {
	switch rule.Direction {
	case DirectionBelow:
		return value < rule.Threshold
	case DirectionAbove:
		return value > rule.Threshold
	default:
		return false
	}
}

// ValidateRules rejects malformed rule tables at startup rather than per request
func ValidateRules(rules RuleTable) error {
	if len(rules) == 0 {
		return fmt.Errorf("rule table is empty")
	}
	for name, rule := range rules {
		if name == "" {
			return fmt.Errorf("rule with empty metric name")
		}
		if rule.Direction != DirectionBelow && rule.Direction != DirectionAbove {
			return fmt.Errorf("metric %q: invalid direction %q", name, rule.Direction)
		}
		if rule.Threshold < 0 || rule.Threshold > 1 {
			return fmt.Errorf("metric %q: threshold %.3f outside [0,1]", name, rule.Threshold)
		}
		if len(rule.Roles) == 0 {
			return fmt.Errorf("metric %q: no roles assigned", name)
		}
		for _, role := range rule.Roles {
			if role != RoleGuardrail && role != RoleEscalation {
				return fmt.Errorf("metric %q: unknown role %q", name, role)
			}
		}
	}
	return nil
}
