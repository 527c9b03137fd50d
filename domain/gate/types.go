package gate

import (
	"strings"

	"answergate/domain/verdict"
)

// Message is one role-tagged turn of the prompt shown to the generator
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// EvalInput carries everything the gate needs to judge one generated answer.
// Context holds the retrieved passages exactly as the caller's retrieval step
// produced them; Prompt holds the messages the generator actually saw.
type EvalInput struct {
	Query    string            `json:"query"`
	Context  []string          `json:"context,omitempty"`
	Prompt   []Message         `json:"prompt,omitempty"`
	Response string            `json:"response"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// JoinedContext renders the passages as a single blob with a deterministic
// separator, so identical inputs always produce identical oracle requests.
func (in EvalInput) JoinedContext() string {
	parts := make([]string, 0, len(in.Context))
	for _, p := range in.Context {
		p = strings.TrimSpace(p)
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Result is what Validate hands back to the caller
type Result struct {
	Verdict      verdict.Verdict `json:"verdict"`
	ExpertAnswer *string         `json:"expert_answer,omitempty"`
}

// FallbackAnswer is the canonical safe response substituted when the verdict
// says guardrail and no expert answer exists.
const FallbackAnswer = "Based on the available information, I cannot provide a complete answer to this question."

// FinalAnswer composes the user-facing response: expert answer when present,
// the fallback when guardrailed, else the original response unchanged. The
// gate recommends this policy but callers are free to compose their own.
func (r Result) FinalAnswer(original, fallback string) string {
	if r.ExpertAnswer != nil && *r.ExpertAnswer != "" {
		return *r.ExpertAnswer
	}
	if r.Verdict.ShouldGuardrail {
		if fallback == "" {
			fallback = FallbackAnswer
		}
		return fallback
	}
	return original
}

// FormPrompt assembles the RAG prompt the way the generation wrapper feeds it
// to the model: retrieved context first, then the user question.
func FormPrompt(question, context string) string {
	return "Context:\n" + context + "\n\nUser Question:\n" + question
}
