package transcript

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/zhouzirui/fluent-tutor/backend/internal/model/chat"
)

// SQLiteArchive stores turns in a single SQLite table.
type SQLiteArchive struct {
	db *sql.DB
}

var _ Archive = (*SQLiteArchive)(nil)

// NewSQLiteArchive opens the database at dsn and applies the schema.
func NewSQLiteArchive(dsn string) (*SQLiteArchive, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sqlite archive: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite archive: open")
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	a := &SQLiteArchive{db: db}
	if err := a.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

func (a *SQLiteArchive) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS transcript_turns (
			session_id TEXT NOT NULL,
			sequence INTEGER NOT NULL,
			role TEXT NOT NULL,
			text TEXT NOT NULL,
			created_at_ms INTEGER NOT NULL,
			PRIMARY KEY (session_id, sequence)
		);`,
		`CREATE INDEX IF NOT EXISTS transcript_turns_by_created ON transcript_turns(created_at_ms);`,
	}
	for _, st := range stmts {
		if _, err := a.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite archive: migrate")
		}
	}
	return nil
}

// Append inserts entries in one transaction, ignoring duplicates.
func (a *SQLiteArchive) Append(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "sqlite archive: begin")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO transcript_turns (session_id, sequence, role, text, created_at_ms) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "sqlite archive: prepare insert")
	}
	defer func() { _ = stmt.Close() }()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.SessionID, e.Sequence, string(e.Role), e.Text, e.CreatedAt.UnixMilli()); err != nil {
			return errors.Wrapf(err, "sqlite archive: insert %s#%d", e.SessionID, e.Sequence)
		}
	}

	return errors.Wrap(tx.Commit(), "sqlite archive: commit")
}

// Load returns the session entries ordered by sequence.
func (a *SQLiteArchive) Load(ctx context.Context, sessionID string) ([]Entry, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT sequence, role, text, created_at_ms FROM transcript_turns WHERE session_id = ? ORDER BY sequence ASC`,
		sessionID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite archive: query")
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var (
			e         Entry
			role      string
			createdMs int64
		)
		if err := rows.Scan(&e.Sequence, &role, &e.Text, &createdMs); err != nil {
			return nil, errors.Wrap(err, "sqlite archive: scan")
		}
		e.SessionID = sessionID
		e.Role = chat.Role(role)
		e.CreatedAt = time.UnixMilli(createdMs).UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "sqlite archive: iterate")
	}
	return out, nil
}

// Close closes the database handle.
func (a *SQLiteArchive) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}
