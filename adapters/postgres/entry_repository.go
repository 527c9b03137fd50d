package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"answergate/domain/remediation"
	"answergate/internal/errors"
	"answergate/ports"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var _ ports.RemediationStore = (*EntryRepository)(nil)
var _ ports.EntryImporter = (*EntryRepository)(nil)

// candidateLimit bounds how many answered entries one lookup scans
const candidateLimit = 500

// EntryRepository implements the remediation store on PostgreSQL
type EntryRepository struct {
	db                  *sqlx.DB
	similarityThreshold float64
}

// NewEntryRepository creates a PostgreSQL remediation store.
// threshold <= 0 uses 0.6.
func NewEntryRepository(db *sqlx.DB, threshold float64) *EntryRepository {
	if threshold <= 0 {
		threshold = 0.6
	}
	return &EntryRepository{db: db, similarityThreshold: threshold}
}

// Schema returns the DDL for the entry table
func Schema() string {
	return `
CREATE TABLE IF NOT EXISTS remediation_entries (
	id UUID PRIMARY KEY,
	question TEXT NOT NULL,
	question_hash TEXT NOT NULL UNIQUE,
	answer TEXT NOT NULL DEFAULT '',
	state TEXT NOT NULL DEFAULT 'unanswered',
	metadata JSONB NOT NULL DEFAULT '{}',
	seen_count INT NOT NULL DEFAULT 1,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	answered_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_remediation_entries_state ON remediation_entries (state);`
}

type entryRow struct {
	ID         uuid.UUID    `db:"id"`
	Question   string       `db:"question"`
	Answer     string       `db:"answer"`
	State      string       `db:"state"`
	Metadata   []byte       `db:"metadata"`
	SeenCount  int          `db:"seen_count"`
	CreatedAt  time.Time    `db:"created_at"`
	AnsweredAt sql.NullTime `db:"answered_at"`
}

func (r entryRow) toEntry() remediation.Entry {
	entry := remediation.Entry{
		ID:        r.ID,
		Question:  r.Question,
		Answer:    r.Answer,
		State:     remediation.State(r.State),
		SeenCount: r.SeenCount,
		CreatedAt: r.CreatedAt,
	}
	if r.AnsweredAt.Valid {
		t := r.AnsweredAt.Time
		entry.AnsweredAt = &t
	}
	if len(r.Metadata) > 0 {
		// Metadata is display-only; a corrupt blob should not fail a lookup.
		_ = json.Unmarshal(r.Metadata, &entry.Metadata)
	}
	return entry
}

// Lookup scans answered entries and returns the best match above the
// threshold. Similarity is computed in-process over a bounded candidate set;
// the winning entry's seen counter is bumped.
func (r *EntryRepository) Lookup(ctx context.Context, query string, opts ports.LookupOptions) (*remediation.Match, error) {
	threshold := r.similarityThreshold
	if opts.SimilarityThreshold > 0 {
		threshold = opts.SimilarityThreshold
	}

	var rows []entryRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, question, answer, state, metadata, seen_count, created_at, answered_at
		FROM remediation_entries
		WHERE state = $1
		ORDER BY answered_at DESC NULLS LAST
		LIMIT $2`, string(remediation.StateAnswered), candidateLimit)
	if err != nil {
		return nil, errors.StoreUnavailable(err)
	}

	var best *entryRow
	var bestSim float64
	for i := range rows {
		sim := remediation.Similarity(query, rows[i].Question)
		if sim >= threshold && sim > bestSim {
			best = &rows[i]
			bestSim = sim
		}
	}

	if best == nil {
		return nil, nil
	}

	if _, err := r.db.ExecContext(ctx, `
		UPDATE remediation_entries SET seen_count = seen_count + 1 WHERE id = $1`, best.ID); err != nil {
		return nil, errors.StoreUnavailable(err)
	}

	entry := best.toEntry()
	entry.SeenCount++
	return &remediation.Match{Entry: entry, Similarity: bestSim}, nil
}

// Escalate upserts an unanswered entry keyed by the question's normal form.
// Re-escalating the same question bumps seen_count instead of inserting, so
// retries of a failed turn cannot flood the queue.
func (r *EntryRepository) Escalate(ctx context.Context, query string, metadata map[string]string) error {
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return errors.Wrap(err, "failed to marshal entry metadata")
	}
	if metadata == nil {
		metadataJSON = []byte("{}")
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO remediation_entries (id, question, question_hash, state, metadata, seen_count, created_at)
		VALUES ($1, $2, $3, $4, $5, 1, NOW())
		ON CONFLICT (question_hash) DO UPDATE SET
			seen_count = remediation_entries.seen_count + 1`,
		uuid.New(), query, remediation.QuestionHash(query), string(remediation.StateUnanswered), metadataJSON)
	if err != nil {
		return errors.StoreUnavailable(err)
	}
	return nil
}

// ListEntries returns entries for SME review, newest first
func (r *EntryRepository) ListEntries(ctx context.Context, filters ports.EntryFilters) ([]remediation.Entry, error) {
	limit := filters.Limit
	if limit <= 0 {
		limit = 100
	}

	var rows []entryRow
	var err error
	if filters.State != nil {
		err = r.db.SelectContext(ctx, &rows, `
			SELECT id, question, answer, state, metadata, seen_count, created_at, answered_at
			FROM remediation_entries WHERE state = $1
			ORDER BY created_at DESC LIMIT $2`, string(*filters.State), limit)
	} else {
		err = r.db.SelectContext(ctx, &rows, `
			SELECT id, question, answer, state, metadata, seen_count, created_at, answered_at
			FROM remediation_entries
			ORDER BY created_at DESC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, errors.StoreUnavailable(err)
	}

	entries := make([]remediation.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, row.toEntry())
	}
	return entries, nil
}

// AnswerEntry supplies or replaces an SME answer (latest-wins)
func (r *EntryRepository) AnswerEntry(ctx context.Context, id uuid.UUID, answer string) error {
	if answer == "" {
		return errors.InvalidInput("answer must not be empty")
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE remediation_entries
		SET answer = $2, state = $3, answered_at = NOW()
		WHERE id = $1`, id, answer, string(remediation.StateAnswered))
	if err != nil {
		return errors.StoreUnavailable(err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return errors.StoreUnavailable(err)
	}
	if affected == 0 {
		return errors.NotFound("remediation entry")
	}
	return nil
}

// Import bulk-loads pre-authored Q&A pairs, skipping questions already present
func (r *EntryRepository) Import(ctx context.Context, entries []remediation.Entry) (int, error) {
	imported := 0
	for _, entry := range entries {
		state := remediation.StateUnanswered
		var answeredAt interface{}
		if entry.Answer != "" {
			state = remediation.StateAnswered
			answeredAt = time.Now().UTC()
		}

		metadataJSON, err := json.Marshal(entry.Metadata)
		if err != nil {
			return imported, errors.Wrap(err, "failed to marshal entry metadata")
		}
		if entry.Metadata == nil {
			metadataJSON = []byte("{}")
		}

		id := entry.ID
		if id == uuid.Nil {
			id = uuid.New()
		}

		res, err := r.db.ExecContext(ctx, `
			INSERT INTO remediation_entries (id, question, question_hash, answer, state, metadata, seen_count, created_at, answered_at)
			VALUES ($1, $2, $3, $4, $5, $6, 1, NOW(), $7)
			ON CONFLICT (question_hash) DO NOTHING`,
			id, entry.Question, remediation.QuestionHash(entry.Question), entry.Answer, string(state), metadataJSON, answeredAt)
		if err != nil {
			return imported, errors.StoreUnavailable(err)
		}
		if affected, err := res.RowsAffected(); err == nil && affected > 0 {
			imported++
		}
	}
	return imported, nil
}
