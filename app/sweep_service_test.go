package app

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"answergate/domain/gate"
	"answergate/domain/verdict"
	"answergate/internal/errors"
)

func TestSweepRunAggregates(t *testing.T) {
	scores := make(map[string]verdict.ScoreSet)
	var cases []gate.EvalInput
	// Ten cases with trustworthiness 0.05..0.95; default rules fail the
	// seven below 0.7 for both roles.
	for i := 0; i < 10; i++ {
		q := fmt.Sprintf("case-%d", i)
		scores[q] = verdict.ScoreSet{
			verdict.MetricTrustworthiness:     {Value: 0.05 + 0.1*float64(i)},
			verdict.MetricResponseHelpfulness: {Value: 0.8},
		}
		cases = append(cases, gate.EvalInput{Query: q, Response: "r"})
	}

	oracle := &stubOracle{scores: scores}
	svc, err := NewSweepService(newGate(t, oracle, nil, verdict.FailOpen), 3)
	require.NoError(t, err)

	report, err := svc.Run(context.Background(), cases)
	require.NoError(t, err)

	assert.Equal(t, 10, report.Cases)
	assert.Equal(t, 0, report.Degraded)
	assert.InDelta(t, 0.7, report.EscalateRate, 1e-9)
	assert.InDelta(t, 0.7, report.GuardrailRate, 1e-9)
	assert.Equal(t, 10, oracle.calls)

	trust, ok := report.PerMetric[verdict.MetricTrustworthiness]
	require.True(t, ok)
	assert.Equal(t, 10, trust.Count)
	assert.InDelta(t, 0.5, trust.Mean, 1e-9)
	assert.InDelta(t, 0.05, trust.Min, 1e-9)
	assert.InDelta(t, 0.95, trust.Max, 1e-9)
	assert.Greater(t, trust.SuggestedThreshold, 0.0)
	assert.Less(t, trust.SuggestedThreshold, trust.Median)

	helpful := report.PerMetric[verdict.MetricResponseHelpfulness]
	assert.InDelta(t, 0.8, helpful.Mean, 1e-9)
}

func TestSweepRunCountsDegradedCases(t *testing.T) {
	oracle := &stubOracle{err: errors.OracleUnavailable(fmt.Errorf("down"))}
	svc, err := NewSweepService(newGate(t, oracle, nil, verdict.FailOpen), 2)
	require.NoError(t, err)

	report, err := svc.Run(context.Background(), []gate.EvalInput{
		{Query: "a", Response: "r"},
		{Query: "b", Response: "r"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Cases)
	assert.Equal(t, 2, report.Degraded)
	assert.Empty(t, report.PerMetric)
}

func TestSweepRunSkipsInvalidCases(t *testing.T) {
	oracle := &stubOracle{scores: map[string]verdict.ScoreSet{"ok": goodScores()}}
	svc, err := NewSweepService(newGate(t, oracle, nil, verdict.FailOpen), 2)
	require.NoError(t, err)

	report, err := svc.Run(context.Background(), []gate.EvalInput{
		{Query: "ok", Response: "r"},
		{Query: "", Response: "missing query"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Cases)
}

func TestSweepRunRejectsEmptyInput(t *testing.T) {
	svc, err := NewSweepService(newGate(t, &stubOracle{}, nil, verdict.FailOpen), 1)
	require.NoError(t, err)

	_, err = svc.Run(context.Background(), nil)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidInput))
}
