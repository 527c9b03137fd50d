package app

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"answergate/domain/gate"
	"answergate/domain/remediation"
	"answergate/domain/verdict"
	"answergate/internal/errors"
	"answergate/internal/policy"
	"answergate/ports"
)

// stubOracle returns canned scores keyed by query, or a fixed error.
type stubOracle struct {
	mu      sync.Mutex
	scores  map[string]verdict.ScoreSet
	err     error
	calls   int
	lastReq ports.EvalRequest
}

func (o *stubOracle) ScoreResponse(ctx context.Context, req ports.EvalRequest) (verdict.ScoreSet, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	o.lastReq = req
	if o.err != nil {
		return nil, o.err
	}
	return o.scores[req.Query], nil
}

// recordingStore counts mutations so tests can prove which paths touch it.
type recordingStore struct {
	mu        sync.Mutex
	match     *remediation.Match
	lookupErr error
	escErr    error
	lookups   int
	escalates []string
	escMeta   map[string]string
}

func (s *recordingStore) Lookup(ctx context.Context, query string, opts ports.LookupOptions) (*remediation.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	return s.match, nil
}

func (s *recordingStore) Escalate(ctx context.Context, query string, metadata map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.escErr != nil {
		return s.escErr
	}
	s.escalates = append(s.escalates, query)
	s.escMeta = metadata
	return nil
}

func (s *recordingStore) ListEntries(ctx context.Context, filters ports.EntryFilters) ([]remediation.Entry, error) {
	return nil, nil
}

func (s *recordingStore) AnswerEntry(ctx context.Context, id uuid.UUID, answer string) error {
	return nil
}

func newGate(t *testing.T, oracle ports.ScoringOracle, store ports.RemediationStore, failMode verdict.FallbackMode) *GateService {
	t.Helper()
	svc, err := NewGateService(oracle, store, GateOptions{
		Rules:    policy.DefaultRules(),
		FailMode: failMode,
	})
	require.NoError(t, err)
	return svc
}

func goodScores() verdict.ScoreSet {
	return verdict.ScoreSet{
		verdict.MetricTrustworthiness:     {Value: 0.95},
		verdict.MetricResponseHelpfulness: {Value: 0.9},
	}
}

func lowTrustScores() verdict.ScoreSet {
	return verdict.ScoreSet{
		verdict.MetricTrustworthiness:     {Value: 0.3},
		verdict.MetricResponseHelpfulness: {Value: 0.9},
	}
}

func TestNewGateServiceValidation(t *testing.T) {
	oracle := &stubOracle{}

	_, err := NewGateService(nil, nil, GateOptions{Rules: policy.DefaultRules(), FailMode: verdict.FailOpen})
	assert.True(t, errors.HasCode(err, errors.CodeConfigInvalid))

	_, err = NewGateService(oracle, nil, GateOptions{Rules: verdict.RuleTable{}, FailMode: verdict.FailOpen})
	assert.True(t, errors.HasCode(err, errors.CodeConfigInvalid))

	_, err = NewGateService(oracle, nil, GateOptions{Rules: policy.DefaultRules(), FailMode: "sometimes"})
	assert.True(t, errors.HasCode(err, errors.CodeConfigInvalid))
}

func TestDetectRejectsEmptyInput(t *testing.T) {
	svc := newGate(t, &stubOracle{}, nil, verdict.FailOpen)

	_, err := svc.Detect(context.Background(), gate.EvalInput{Response: "an answer"})
	assert.True(t, errors.HasCode(err, errors.CodeInvalidInput))

	_, err = svc.Detect(context.Background(), gate.EvalInput{Query: "a question"})
	assert.True(t, errors.HasCode(err, errors.CodeInvalidInput))
}

func TestDetectPassingResponse(t *testing.T) {
	oracle := &stubOracle{scores: map[string]verdict.ScoreSet{"How many ounces?": goodScores()}}
	store := &recordingStore{}
	svc := newGate(t, oracle, store, verdict.FailOpen)

	v, err := svc.Detect(context.Background(), gate.EvalInput{
		Query:    "How many ounces?",
		Context:  []string{"The bottle holds 24oz."},
		Response: "It holds 24 ounces.",
	})
	require.NoError(t, err)

	assert.False(t, v.ShouldGuardrail)
	assert.False(t, v.ShouldEscalate)
	assert.Empty(t, v.FailingMetrics)
	assert.False(t, v.Degraded)

	assert.Equal(t, 0, store.lookups, "Detect must never touch the store")
	assert.Empty(t, store.escalates)
}

func TestDetectSanitizesContextForOracle(t *testing.T) {
	oracle := &stubOracle{scores: map[string]verdict.ScoreSet{"q": goodScores()}}
	svc := newGate(t, oracle, nil, verdict.FailOpen)

	_, err := svc.Detect(context.Background(), gate.EvalInput{
		Query:    "q",
		Context:  []string{"<p>The bottle <b>holds</b> 24oz.</p><script>alert(1)</script>"},
		Prompt:   []gate.Message{{Role: gate.RoleSystem, Content: "be helpful"}, {Role: gate.RoleUser, Content: "q"}},
		Response: "r",
	})
	require.NoError(t, err)

	assert.Equal(t, "The bottle holds 24oz.", oracle.lastReq.Context)
	assert.Equal(t, "system: be helpful\n\nuser: q", oracle.lastReq.Prompt)
}

func TestDetectOracleFailureFailOpen(t *testing.T) {
	oracle := &stubOracle{err: errors.OracleTimeout(context.DeadlineExceeded)}
	svc := newGate(t, oracle, nil, verdict.FailOpen)

	v, err := svc.Detect(context.Background(), gate.EvalInput{Query: "q", Response: "r"})
	require.NoError(t, err, "oracle failure must not surface to the caller")

	assert.False(t, v.ShouldGuardrail)
	assert.False(t, v.ShouldEscalate)
	assert.True(t, v.Degraded)
}

func TestDetectOracleFailureFailClosed(t *testing.T) {
	oracle := &stubOracle{err: errors.OracleUnavailable(fmt.Errorf("connection refused"))}
	svc := newGate(t, oracle, nil, verdict.FailClosed)

	v, err := svc.Detect(context.Background(), gate.EvalInput{Query: "q", Response: "r"})
	require.NoError(t, err)

	assert.True(t, v.ShouldGuardrail)
	assert.True(t, v.ShouldEscalate)
	assert.True(t, v.Degraded)
}

func TestValidatePassingLeavesStoreUntouched(t *testing.T) {
	oracle := &stubOracle{scores: map[string]verdict.ScoreSet{"q": goodScores()}}
	store := &recordingStore{}
	svc := newGate(t, oracle, store, verdict.FailOpen)

	result, err := svc.Validate(context.Background(), gate.EvalInput{Query: "q", Response: "r"})
	require.NoError(t, err)

	assert.Nil(t, result.ExpertAnswer)
	assert.Equal(t, 0, store.lookups)
	assert.Empty(t, store.escalates)
}

func TestValidateEscalationWithExpertAnswer(t *testing.T) {
	answer := "Per the spec sheet, the bottle holds 24 ounces."
	oracle := &stubOracle{scores: map[string]verdict.ScoreSet{"How many ounces?": lowTrustScores()}}
	store := &recordingStore{match: &remediation.Match{
		Entry:      remediation.Entry{Answer: answer, State: remediation.StateAnswered},
		Similarity: 0.88,
	}}
	svc := newGate(t, oracle, store, verdict.FailOpen)

	result, err := svc.Validate(context.Background(), gate.EvalInput{
		Query:    "How many ounces?",
		Response: "Probably around a liter.",
	})
	require.NoError(t, err)

	assert.True(t, result.Verdict.ShouldEscalate)
	require.NotNil(t, result.ExpertAnswer)
	assert.Equal(t, answer, *result.ExpertAnswer)
	assert.Empty(t, store.escalates, "a lookup hit must not re-log the question")
}

func TestValidateEscalationMissLogsQuestion(t *testing.T) {
	oracle := &stubOracle{scores: map[string]verdict.ScoreSet{"How many ounces?": lowTrustScores()}}
	store := &recordingStore{}
	svc := newGate(t, oracle, store, verdict.FailOpen)

	result, err := svc.Validate(context.Background(), gate.EvalInput{
		Query:    "How many ounces?",
		Response: "Probably around a liter.",
		Metadata: map[string]string{"session": "abc"},
	})
	require.NoError(t, err)

	assert.Nil(t, result.ExpertAnswer)
	require.Equal(t, []string{"How many ounces?"}, store.escalates)

	assert.Equal(t, "Probably around a liter.", store.escMeta["response"])
	assert.Equal(t, "trustworthiness", store.escMeta["failing_metrics"])
	assert.Equal(t, "abc", store.escMeta["session"])
	assert.Contains(t, store.escMeta["scores"], "trustworthiness=0.300")
}

func TestValidateStoreFailuresDegradeQuietly(t *testing.T) {
	oracle := &stubOracle{scores: map[string]verdict.ScoreSet{"q": lowTrustScores()}}

	lookupDown := &recordingStore{lookupErr: errors.StoreUnavailable(fmt.Errorf("dns failure"))}
	svc := newGate(t, oracle, lookupDown, verdict.FailOpen)
	result, err := svc.Validate(context.Background(), gate.EvalInput{Query: "q", Response: "r"})
	require.NoError(t, err, "store failure must not surface to the caller")
	assert.Nil(t, result.ExpertAnswer)
	assert.True(t, result.Verdict.ShouldEscalate, "verdict survives the store outage")

	escalateDown := &recordingStore{escErr: errors.StoreUnavailable(fmt.Errorf("dns failure"))}
	svc = newGate(t, oracle, escalateDown, verdict.FailOpen)
	result, err = svc.Validate(context.Background(), gate.EvalInput{Query: "q", Response: "r"})
	require.NoError(t, err)
	assert.Nil(t, result.ExpertAnswer)
}

func TestValidateWithoutStoreSkipsRemediation(t *testing.T) {
	oracle := &stubOracle{scores: map[string]verdict.ScoreSet{"q": lowTrustScores()}}
	svc := newGate(t, oracle, nil, verdict.FailOpen)

	result, err := svc.Validate(context.Background(), gate.EvalInput{Query: "q", Response: "r"})
	require.NoError(t, err)
	assert.True(t, result.Verdict.ShouldEscalate)
	assert.Nil(t, result.ExpertAnswer)
}

func TestValidateIsDeterministicForIdenticalInput(t *testing.T) {
	oracle := &stubOracle{scores: map[string]verdict.ScoreSet{"q": lowTrustScores()}}
	store := &recordingStore{}
	svc := newGate(t, oracle, store, verdict.FailOpen)

	in := gate.EvalInput{Query: "q", Context: []string{"ctx"}, Response: "r"}

	first, err := svc.Validate(context.Background(), in)
	require.NoError(t, err)
	second, err := svc.Validate(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, first.Verdict.ShouldEscalate, second.Verdict.ShouldEscalate)
	assert.Equal(t, first.Verdict.ShouldGuardrail, second.Verdict.ShouldGuardrail)
	assert.Equal(t, first.Verdict.FailingMetrics, second.Verdict.FailingMetrics)
}
