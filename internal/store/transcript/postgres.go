package transcript

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zhouzirui/fluent-tutor/backend/internal/model/chat"
)

// PostgresArchive stores turns in PostgreSQL.
type PostgresArchive struct {
	pool *pgxpool.Pool
}

var _ Archive = (*PostgresArchive)(nil)

// NewPostgresArchive connects a pgx pool and creates the table when missing.
func NewPostgresArchive(ctx context.Context, databaseURL string) (*PostgresArchive, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("postgres archive: empty dsn")
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresArchive{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS transcript_turns (
			session_id TEXT NOT NULL,
			sequence INTEGER NOT NULL,
			role TEXT NOT NULL,
			text TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (session_id, sequence)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_transcript_turns_created ON transcript_turns (created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

// Append inserts entries in one batch, ignoring duplicates.
func (p *PostgresArchive) Append(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(
			`INSERT INTO transcript_turns (session_id, sequence, role, text, created_at)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (session_id, sequence) DO NOTHING`,
			e.SessionID, e.Sequence, string(e.Role), e.Text, e.CreatedAt,
		)
	}

	if err := p.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("append turns: %w", err)
	}
	return nil
}

// Load returns the session entries ordered by sequence.
func (p *PostgresArchive) Load(ctx context.Context, sessionID string) ([]Entry, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT sequence, role, text, created_at
		 FROM transcript_turns WHERE session_id=$1 ORDER BY sequence ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e    Entry
			role string
		)
		if err := rows.Scan(&e.Sequence, &role, &e.Text, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transcript row: %w", err)
		}
		e.SessionID = sessionID
		e.Role = chat.Role(role)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transcript rows: %w", err)
	}
	return out, nil
}

// Close releases the pool.
func (p *PostgresArchive) Close() error {
	p.pool.Close()
	return nil
}
