package ports

import (
	"context"

	"answergate/domain/gate"
)

// ResponseGenerator produces an answer for a query given retrieved context.
// Only the optional generation wrapper uses it; the core gate treats the
// generation pipeline as an external collaborator.
type ResponseGenerator interface {
	Generate(ctx context.Context, prompt []gate.Message) (string, error)
}
