package sqlite

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
	_ "github.com/mattn/go-sqlite3"
)

var _ ports.RemediationStore = (*EntryRepository)(nil)
var _ ports.EntryImporter = (*EntryRepository)(nil)

const candidateLimit = 500

// EntryRepository implements the remediation store on a local SQLite file.
// It serves the CLI and single-node deployments that have no postgres.
type EntryRepository struct {
	db                  *sqlx.DB
	similarityThreshold float64
}

// Open opens (and initializes) a SQLite-backed store at path
func Open(path string, threshold float64) (*EntryRepository, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open sqlite store")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to initialize sqlite store")
	}
	if threshold <= 0 {
		threshold = 0.6
	}
	return &EntryRepository{db: db, similarityThreshold: threshold}, nil
}

// Close releases the underlying database handle
func (r *EntryRepository) Close() error {
	return r.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS remediation_entries (
	id TEXT PRIMARY KEY,
	question TEXT NOT NULL,
	question_hash TEXT NOT NULL UNIQUE,
	answer TEXT NOT NULL DEFAULT '',
	state TEXT NOT NULL DEFAULT 'unanswered',
	metadata TEXT NOT NULL DEFAULT '{}',
	seen_count INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL,
	answered_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_remediation_entries_state ON remediation_entries (state);`

type entryRow struct {
	ID         string       `db:"id"`
	Question   string       `db:"question"`
	Answer     string       `db:"answer"`
	State      string       `db:"state"`
	Metadata   string       `db:"metadata"`
	SeenCount  int          `db:"seen_count"`
	CreatedAt  time.Time    `db:"created_at"`
	AnsweredAt sql.NullTime `db:"answered_at"`
}

func (r entryRow) toEntry() remediation.Entry {
	entry := remediation.Entry{
		Question:  r.Question,
		Answer:    r.Answer,
		State:     remediation.State(r.State),
		SeenCount: r.SeenCount,
		CreatedAt: r.CreatedAt,
	}
	if id, err := uuid.Parse(r.ID); err == nil {
		entry.ID = id
	}
	if r.AnsweredAt.Valid {
		t := r.AnsweredAt.Time
		entry.AnsweredAt = &t
	}
	if r.Metadata != "" && r.Metadata != "{}" {
		_ = json.Unmarshal([]byte(r.Metadata), &entry.Metadata)
	}
	return entry
}

// Lookup returns the best answered match above the similarity threshold
func (r *EntryRepository) Lookup(ctx context.Context, query string, opts ports.LookupOptions) (*remediation.Match, error) {
	threshold := r.similarityThreshold
	if opts.SimilarityThreshold > 0 {
		threshold = opts.SimilarityThreshold
	}

	var rows []entryRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, question, answer, state, metadata, seen_count, created_at, answered_at
		FROM remediation_entries
		WHERE state = ?
		LIMIT ?`, string(remediation.StateAnswered), candidateLimit)
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
		UPDATE remediation_entries SET seen_count = seen_count + 1 WHERE id = ?`, best.ID); err != nil {
		return nil, errors.StoreUnavailable(err)
	}

	entry := best.toEntry()
	entry.SeenCount++
	return &remediation.Match{Entry: entry, Similarity: bestSim}, nil
}

// Escalate upserts an unanswered entry keyed by the question's normal form
func (r *EntryRepository) Escalate(ctx context.Context, query string, metadata map[string]string) error {
	metadataJSON := []byte("{}")
	if len(metadata) > 0 {
		var err error
		metadataJSON, err = json.Marshal(metadata)
		if err != nil {
			return errors.Wrap(err, "failed to marshal entry metadata")
		}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO remediation_entries (id, question, question_hash, state, metadata, seen_count, created_at)
		VALUES (?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT (question_hash) DO UPDATE SET
			seen_count = seen_count + 1`,
		uuid.New().String(), query, remediation.QuestionHash(query),
		string(remediation.StateUnanswered), string(metadataJSON), time.Now().UTC())
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
			FROM remediation_entries WHERE state = ?
			ORDER BY created_at DESC LIMIT ?`, string(*filters.State), limit)
	} else {
		err = r.db.SelectContext(ctx, &rows, `
			SELECT id, question, answer, state, metadata, seen_count, created_at, answered_at
			FROM remediation_entries
			ORDER BY created_at DESC LIMIT ?`, limit)
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
		SET answer = ?, state = ?, answered_at = ?
		WHERE id = ?`, answer, string(remediation.StateAnswered), time.Now().UTC(), id.String())
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

		metadataJSON := []byte("{}")
		if len(entry.Metadata) > 0 {
			var err error
			metadataJSON, err = json.Marshal(entry.Metadata)
			if err != nil {
				return imported, errors.Wrap(err, "failed to marshal entry metadata")
			}
		}

		id := entry.ID
		if id == uuid.Nil {
			id = uuid.New()
		}

		res, err := r.db.ExecContext(ctx, `
			INSERT INTO remediation_entries (id, question, question_hash, answer, state, metadata, seen_count, created_at, answered_at)
			VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)
			ON CONFLICT (question_hash) DO NOTHING`,
			id.String(), entry.Question, remediation.QuestionHash(entry.Question), entry.Answer,
			string(state), string(metadataJSON), time.Now().UTC(), answeredAt)
		if err != nil {
			return imported, errors.StoreUnavailable(err)
		}
		if affected, err := res.RowsAffected(); err == nil && affected > 0 {
			imported++
		}
	}
	return imported, nil
}
