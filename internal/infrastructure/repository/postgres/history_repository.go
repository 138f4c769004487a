package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/pdfqa-gateway/internal/core/domain"
)

// HistoryRepository stores the question/answer history of one gateway
// session. Several gateways may share a database; rows are keyed by session.
type HistoryRepository struct {
	db      *sql.DB
	session string
}

func NewHistoryRepository(db *sql.DB, session string) *HistoryRepository {
	if session == "" {
		session = "default"
	}
	return &HistoryRepository{db: db, session: session}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *HistoryRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/mcp startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101801)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS qa_history (
	id TEXT PRIMARY KEY,
	session TEXT NOT NULL,
	question TEXT NOT NULL,
	answer TEXT NOT NULL,
	sources JSONB NOT NULL DEFAULT '[]'::jsonb,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	asked_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_qa_history_session_asked_at ON qa_history (session, asked_at);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *HistoryRepository) Append(ctx context.Context, entry domain.QAEntry) error {
	if entry.AskedAt.IsZero() {
		entry.AskedAt = time.Now().UTC()
	}
	sources := entry.Sources
	if sources == nil {
		sources = []string{}
	}
	rawSources, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("marshal sources: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO qa_history (id, session, question, answer, sources, confidence, asked_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`, entry.ID, r.session, entry.Question, entry.Answer, rawSources, entry.Confidence, entry.AskedAt)
	if err != nil {
		return domain.WrapError(domain.ErrIO, "append history", err)
	}
	return nil
}

func (r *HistoryRepository) List(ctx context.Context) ([]domain.QAEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, question, answer, sources, confidence, asked_at
FROM qa_history
WHERE session = $1
ORDER BY asked_at ASC, id ASC
`, r.session)
	if err != nil {
		return nil, domain.WrapError(domain.ErrIO, "list history", err)
	}
	defer rows.Close()

	out := make([]domain.QAEntry, 0)
	for rows.Next() {
		var (
			entry      domain.QAEntry
			rawSources []byte
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.Question,
			&entry.Answer,
			&rawSources,
			&entry.Confidence,
			&entry.AskedAt,
		); err != nil {
			return nil, domain.WrapError(domain.ErrIO, "scan history entry", err)
		}
		if len(rawSources) > 0 {
			if err := json.Unmarshal(rawSources, &entry.Sources); err != nil {
				return nil, domain.WrapError(domain.ErrIO, "decode history sources", err)
			}
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrIO, "iterate history", err)
	}
	return out, nil
}

func (r *HistoryRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM qa_history WHERE session = $1`, r.session); err != nil {
		return domain.WrapError(domain.ErrIO, "clear history", err)
	}
	return nil
}
