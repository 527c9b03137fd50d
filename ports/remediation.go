package ports

import (
	"context"

	"answergate/domain/remediation"

	"github.com/google/uuid"
)

// LookupOptions tune a single lookup call
type LookupOptions struct {
	// SimilarityThreshold overrides the store's matching threshold when > 0.
	SimilarityThreshold float64
}

// EntryFilters narrow admin listings
type EntryFilters struct {
	State *remediation.State
	Limit int
}

// RemediationStore is the gate's handle on the per-deployment knowledge base.
// Lookup and Escalate are the hot path; the rest serve the SME workflow.
type RemediationStore interface {
	// Lookup returns the best answered match above the similarity threshold,
	// or nil when nothing qualifies. It never mutates the entry set beyond
	// store-side bookkeeping (seen counters).
	Lookup(ctx context.Context, query string, opts LookupOptions) (*remediation.Match, error)

	// Escalate records the query as an unanswered entry. Repeated escalations
	// of semantically equivalent queries must not create duplicates.
	Escalate(ctx context.Context, query string, metadata map[string]string) error

	// ListEntries returns entries for SME review
	ListEntries(ctx context.Context, filters EntryFilters) ([]remediation.Entry, error)

	// AnswerEntry supplies or replaces an SME answer (latest-wins)
	AnswerEntry(ctx context.Context, id uuid.UUID, answer string) error
}

// EntryImporter bulk-loads pre-authored Q&A pairs into a store
type EntryImporter interface {
	Import(ctx context.Context, entries []remediation.Entry) (int, error)
}
