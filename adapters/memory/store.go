package memory

import (
	"context"
	"sync"
	"time"

	"answergate/domain/remediation"
	"answergate/internal/errors"
	"answergate/ports"

	"github.com/google/uuid"
)

var _ ports.RemediationStore = (*Store)(nil)
var _ ports.EntryImporter = (*Store)(nil)

// Store is an in-memory remediation store. It backs tests and local demos;
// entries do not survive the process.
type Store struct {
	mu                  sync.RWMutex
	entries             map[uuid.UUID]*remediation.Entry
	byHash              map[string]uuid.UUID // normalized question -> entry
	similarityThreshold float64
}

// NewStore creates an empty in-memory store. threshold <= 0 uses 0.6.
func NewStore(threshold float64) *Store {
	if threshold <= 0 {
		threshold = 0.6
	}
	return &Store{
		entries:             make(map[uuid.UUID]*remediation.Entry),
		byHash:              make(map[string]uuid.UUID),
		similarityThreshold: threshold,
	}
}

// Lookup returns the most similar answered entry above the threshold
func (s *Store) Lookup(ctx context.Context, query string, opts ports.LookupOptions) (*remediation.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.StoreUnavailable(err)
	}

	threshold := s.similarityThreshold
	if opts.SimilarityThreshold > 0 {
		threshold = opts.SimilarityThreshold
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var best *remediation.Entry
	var bestSim float64
	for _, entry := range s.entries {
		if entry.State != remediation.StateAnswered {
			continue
		}
		sim := remediation.Similarity(query, entry.Question)
		if sim >= threshold && sim > bestSim {
			best = entry
			bestSim = sim
		}
	}

	if best == nil {
		return nil, nil
	}

	best.SeenCount++
	return &remediation.Match{Entry: *best, Similarity: bestSim}, nil
}

// Escalate records an unanswered entry, bumping the seen counter instead of
// duplicating when the normalized question already exists.
func (s *Store) Escalate(ctx context.Context, query string, metadata map[string]string) error {
	if err := ctx.Err(); err != nil {
		return errors.StoreUnavailable(err)
	}

	hash := remediation.QuestionHash(query)

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byHash[hash]; ok {
		s.entries[id].SeenCount++
		return nil
	}

	entry := &remediation.Entry{
		ID:        uuid.New(),
		Question:  query,
		State:     remediation.StateUnanswered,
		Metadata:  cloneMetadata(metadata),
		SeenCount: 1,
		CreatedAt: time.Now().UTC(),
	}
	s.entries[entry.ID] = entry
	s.byHash[hash] = entry.ID
	return nil
}

// ListEntries returns entries, optionally filtered by state
func (s *Store) ListEntries(ctx context.Context, filters ports.EntryFilters) ([]remediation.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.StoreUnavailable(err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]remediation.Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		if filters.State != nil && entry.State != *filters.State {
			continue
		}
		out = append(out, *entry)
		if filters.Limit > 0 && len(out) >= filters.Limit {
			break
		}
	}
	return out, nil
}

// AnswerEntry supplies or replaces an answer (latest-wins)
func (s *Store) AnswerEntry(ctx context.Context, id uuid.UUID, answer string) error {
	if err := ctx.Err(); err != nil {
		return errors.StoreUnavailable(err)
	}
	if answer == "" {
		return errors.InvalidInput("answer must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return errors.NotFound("remediation entry")
	}

	now := time.Now().UTC()
	entry.Answer = answer
	entry.State = remediation.StateAnswered
	entry.AnsweredAt = &now
	return nil
}

// Import bulk-loads pre-authored entries, answered when an answer is present
func (s *Store) Import(ctx context.Context, entries []remediation.Entry) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, errors.StoreUnavailable(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	imported := 0
	for _, in := range entries {
		hash := remediation.QuestionHash(in.Question)
		if _, ok := s.byHash[hash]; ok {
			continue
		}

		entry := in
		if entry.ID == uuid.Nil {
			entry.ID = uuid.New()
		}
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = time.Now().UTC()
		}
		if entry.Answer != "" {
			entry.State = remediation.StateAnswered
			if entry.AnsweredAt == nil {
				now := time.Now().UTC()
				entry.AnsweredAt = &now
			}
		} else {
			entry.State = remediation.StateUnanswered
		}

		s.entries[entry.ID] = &entry
		s.byHash[hash] = entry.ID
		imported++
	}
	return imported, nil
}

// Len reports the number of stored entries
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func cloneMetadata(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
