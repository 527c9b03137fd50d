package app

import (
	"context"
	"log"

	"answergate/domain/gate"
	"answergate/internal/errors"
	"answergate/internal/sanitize"
	"answergate/ports"
)

// ragSystemPrompt instructs the generator to answer strictly from context
// and fall back to the canonical refusal otherwise.
const ragSystemPrompt = `Answer the user's Question based on the following possibly relevant Context. Follow these rules:
1. Never use phrases like "according to the context," "as the context states," etc. Treat the Context as your own knowledge, not something you are referencing.
2. Give a clear, short, and accurate answer. Explain complex terms if needed.
3. If the Context doesn't adequately address the Question, say: "` + gate.FallbackAnswer + `" only, nothing else.

Remember, your purpose is to provide information based on the Context, not to offer original advice.`

// RAGService is the convenience wrapper that also performs generation: the
// caller supplies a query and retrieved context, the service produces an
// answer, gates it, and composes the final response. Deployments with their
// own pipeline use GateService directly.
type RAGService struct {
	generator      ports.ResponseGenerator
	gate           *GateService
	fallbackAnswer string
}

// RAGAnswer is the outcome of a generate-then-validate turn
type RAGAnswer struct {
	// Response is the raw generated answer that was evaluated.
	Response string `json:"response"`
	// Result carries the verdict and any expert answer.
	Result gate.Result `json:"result"`
	// FinalAnswer is what the end user should see.
	FinalAnswer string `json:"final_answer"`
}

// NewRAGService creates the generation wrapper
func NewRAGService(generator ports.ResponseGenerator, gateService *GateService, fallbackAnswer string) (*RAGService, error) {
	if generator == nil {
		return nil, errors.ConfigInvalid("rag service requires a response generator")
	}
	if gateService == nil {
		return nil, errors.ConfigInvalid("rag service requires a gate service")
	}
	if fallbackAnswer == "" {
		fallbackAnswer = gate.FallbackAnswer
	}
	return &RAGService{
		generator:      generator,
		gate:           gateService,
		fallbackAnswer: fallbackAnswer,
	}, nil
}

// Answer generates a response for the query over the retrieved context,
// validates it, and composes the user-facing answer: expert answer first,
// guardrail fallback second, original response otherwise.
func (s *RAGService) Answer(ctx context.Context, query string, contextPassages []string) (*RAGAnswer, error) {
	clean := sanitize.Passages(contextPassages)
	joined := gate.EvalInput{Context: clean}.JoinedContext()

	prompt := []gate.Message{
		{Role: gate.RoleSystem, Content: ragSystemPrompt},
		{Role: gate.RoleUser, Content: gate.FormPrompt(query, joined)},
	}

	response, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		// Generation failures are the caller's outage, not the gate's.
		return nil, errors.Wrap(err, "response generation failed")
	}

	result, err := s.gate.Validate(ctx, gate.EvalInput{
		Query:    query,
		Context:  clean,
		Prompt:   prompt,
		Response: response,
	})
	if err != nil {
		return nil, err
	}

	final := result.FinalAnswer(response, s.fallbackAnswer)
	if final != response {
		log.Printf("[RAG] Response replaced (escalate=%v guardrail=%v) for query %q",
			result.Verdict.ShouldEscalate, result.Verdict.ShouldGuardrail, query)
	}

	return &RAGAnswer{
		Response:    response,
		Result:      result,
		FinalAnswer: final,
	}, nil
}
