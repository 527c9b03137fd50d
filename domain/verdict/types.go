package verdict

import (
	"sort"
	"time"
)

// Direction declares which side of the threshold counts as a failure
type Direction string

const (
	// DirectionBelow fails a metric when score < threshold
	DirectionBelow Direction = "below"
	// DirectionAbove fails a metric when score > threshold
	DirectionAbove Direction = "above"
)

// Role names a downstream action a metric is allowed to trigger
type Role string

const (
	RoleGuardrail  Role = "guardrail"
	RoleEscalation Role = "escalation"
)

// Well-known metric names emitted by the scoring oracle
const (
	MetricTrustworthiness      = "trustworthiness"
	MetricResponseHelpfulness  = "response_helpfulness"
	MetricContextSufficiency   = "context_sufficiency"
	MetricQueryEase            = "query_ease"
	MetricResponseGroundedness = "response_groundedness"
)

// Score is a single oracle measurement in [0,1] with an optional explanation
type Score struct {
	Value       float64 `json:"value"`
	Explanation string  `json:"explanation,omitempty"`
}

// ScoreSet maps metric name to its score
type ScoreSet map[string]Score

// Rule is the threshold policy for one metric
type Rule struct {
	Threshold float64   `json:"threshold"`
	Direction Direction `json:"direction"`
	Roles     []Role    `json:"roles"`
}

// HasRole reports whether the rule grants the given role
func (r Rule) HasRole(role Role) bool {
	for _, have := range r.Roles {
		if have == role {
			return true
		}
	}
	return false
}

// RuleTable maps metric name to its rule. Metrics without a rule are ignored
// during evaluation; there is no implicit default threshold.
type RuleTable map[string]Rule

// FallbackMode decides the verdict when the oracle returns zero usable scores
type FallbackMode string

const (
	// FailOpen treats an unevaluated response as passing
	FailOpen FallbackMode = "open"
	// FailClosed treats an unevaluated response as failing both roles
	FailClosed FallbackMode = "closed"
)

// Verdict is the immutable per-call result of threshold evaluation
type Verdict struct {
	Scores          ScoreSet  `json:"scores"`
	ShouldGuardrail bool      `json:"should_guardrail"`
	ShouldEscalate  bool      `json:"should_escalate"`
	FailingMetrics  []string  `json:"failing_metrics"`
	Degraded        bool      `json:"degraded"`
	EvaluatedAt     time.Time `json:"evaluated_at"`
}

// sortedNames returns map keys in deterministic order
func sortedNames(set map[string]bool) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
