package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"answergate/domain/verdict"
)

func TestJoinedContext(t *testing.T) {
	in := EvalInput{Context: []string{"  first passage ", "", "second passage", "   "}}
	assert.Equal(t, "first passage\n\nsecond passage", in.JoinedContext())

	assert.Equal(t, "", EvalInput{}.JoinedContext())
}

func TestFinalAnswer(t *testing.T) {
	expert := "Expert says 24 ounces."

	tests := []struct {
		name   string
		result Result
		want   string
	}{
		{
			name:   "passes original through when nothing triggered",
			result: Result{},
			want:   "original answer",
		},
		{
			name:   "expert answer wins over everything",
			result: Result{Verdict: verdict.Verdict{ShouldGuardrail: true}, ExpertAnswer: &expert},
			want:   expert,
		},
		{
			name:   "guardrail substitutes the fallback",
			result: Result{Verdict: verdict.Verdict{ShouldGuardrail: true}},
			want:   FallbackAnswer,
		},
		{
			name:   "escalation alone does not rewrite the answer",
			result: Result{Verdict: verdict.Verdict{ShouldEscalate: true}},
			want:   "original answer",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.result.FinalAnswer("original answer", ""))
		})
	}

	custom := Result{Verdict: verdict.Verdict{ShouldGuardrail: true}}
	assert.Equal(t, "custom fallback", custom.FinalAnswer("original", "custom fallback"))
}

func TestFormPrompt(t *testing.T) {
	got := FormPrompt("How many ounces?", "The bottle holds 24oz.")
	assert.Equal(t, "Context:\nThe bottle holds 24oz.\n\nUser Question:\nHow many ounces?", got)
}
