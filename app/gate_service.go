package app

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"answergate/domain/gate"
	"answergate/domain/verdict"
	"answergate/internal/errors"
	"answergate/internal/sanitize"
	"answergate/ports"
)

// GateService runs the answer quality gate: score, judge, remediate.
// A quality-gate failure must never become a user-facing outage, so oracle
// and store errors degrade the verdict per the configured fail mode instead
// of propagating.
type GateService struct {
	oracle   ports.ScoringOracle
	store    ports.RemediationStore // nil disables the remediation path
	rules    verdict.RuleTable
	failMode verdict.FallbackMode
	metrics  []string
}

// GateOptions configure a gate service
type GateOptions struct {
	Rules    verdict.RuleTable
	FailMode verdict.FallbackMode
	// Metrics lists score dimensions to request from the oracle; empty
	// requests the oracle default set. Metrics without a rule are scored
	// but never affect the verdict.
	Metrics []string
}

// NewGateService creates the orchestration service. The store may be nil for
// detect-only deployments.
func NewGateService(oracle ports.ScoringOracle, store ports.RemediationStore, opts GateOptions) (*GateService, error) {
	if oracle == nil {
		return nil, errors.ConfigInvalid("gate requires a scoring oracle")
	}
	if err := verdict.ValidateRules(opts.Rules); err != nil {
		return nil, errors.WithCode(errors.CodeConfigInvalid, err)
	}
	if opts.FailMode != verdict.FailOpen && opts.FailMode != verdict.FailClosed {
		return nil, errors.ConfigInvalid("fail mode must be open or closed")
	}

	return &GateService{
		oracle:   oracle,
		store:    store,
		rules:    opts.Rules,
		failMode: opts.FailMode,
		metrics:  opts.Metrics,
	}, nil
}

// Detect scores the input and applies thresholds, with zero store
// interaction. It exists so a deployment can tune thresholds against live
// traffic before switching on escalation side effects.
func (s *GateService) Detect(ctx context.Context, in gate.EvalInput) (verdict.Verdict, error) {
	if err := validateInput(in); err != nil {
		return verdict.Verdict{}, err
	}

	scores, err := s.oracle.ScoreResponse(ctx, s.buildEvalRequest(in))
	if err != nil {
		log.Printf("[Gate] Oracle failure (%s), resolving %s: %v", errors.GetCode(err), s.failMode, err)
		return verdict.Evaluate(nil, s.rules, s.failMode), nil
	}

	return verdict.Evaluate(scores, s.rules, s.failMode), nil
}

// Validate runs the full gate: Detect, then on escalation consult the
// remediation store. A lookup hit returns the expert answer without
// re-logging the question; a miss records it for SME review.
func (s *GateService) Validate(ctx context.Context, in gate.EvalInput) (gate.Result, error) {
	v, err := s.Detect(ctx, in)
	if err != nil {
		return gate.Result{}, err
	}

	result := gate.Result{Verdict: v}
	if !v.ShouldEscalate || s.store == nil {
		return result, nil
	}

	match, err := s.store.Lookup(ctx, in.Query, ports.LookupOptions{})
	if err != nil {
		// No expert answer is better than no answer at all.
		log.Printf("[Gate] Store lookup failed, degrading to no expert answer: %v", err)
		return result, nil
	}

	if match != nil {
		log.Printf("[Gate] Expert answer found (similarity %.2f) for query %q", match.Similarity, in.Query)
		answer := match.Entry.Answer
		result.ExpertAnswer = &answer
		return result, nil
	}

	if err := s.store.Escalate(ctx, in.Query, s.escalationMetadata(in, v)); err != nil {
		log.Printf("[Gate] Escalation logging failed: %v", err)
		return result, nil
	}

	log.Printf("[Gate] Query escalated for SME review: %q", in.Query)
	return result, nil
}

// buildEvalRequest renders the evaluation input into oracle wire form
func (s *GateService) buildEvalRequest(in gate.EvalInput) ports.EvalRequest {
	clean := sanitize.Passages(in.Context)
	joined := gate.EvalInput{Context: clean}.JoinedContext()

	return ports.EvalRequest{
		Query:    in.Query,
		Context:  joined,
		Prompt:   renderPrompt(in.Prompt),
		Response: in.Response,
		Metrics:  s.metrics,
	}
}

// escalationMetadata captures what the SME needs to answer the question:
// the rejected response, the scores that rejected it, and whatever the
// caller attached.
func (s *GateService) escalationMetadata(in gate.EvalInput, v verdict.Verdict) map[string]string {
	meta := make(map[string]string, len(in.Metadata)+3)
	for k, val := range in.Metadata {
		meta[k] = val
	}
	meta["response"] = in.Response
	meta["failing_metrics"] = strings.Join(v.FailingMetrics, ",")

	names := make([]string, 0, len(v.Scores))
	for name := range v.Scores {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%.3f", name, v.Scores[name].Value))
	}
	meta["scores"] = strings.Join(parts, " ")

	if v.Degraded {
		meta["degraded"] = "true"
	}
	return meta
}

// renderPrompt flattens role-tagged messages into the text form the oracle
// accepts. Identical prompts always render identically.
func renderPrompt(messages []gate.Message) string {
	if len(messages) == 0 {
		return ""
	}
	parts := make([]string, 0, len(messages))
	for _, msg := range messages {
		parts = append(parts, msg.Role+": "+msg.Content)
	}
	return strings.Join(parts, "\n\n")
}

func validateInput(in gate.EvalInput) error {
	if strings.TrimSpace(in.Query) == "" {
		return errors.InvalidInput("query must not be empty")
	}
	if strings.TrimSpace(in.Response) == "" {
		return errors.InvalidInput("response must not be empty")
	}
	return nil
}
