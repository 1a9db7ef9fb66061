// Package journal keeps a SQLite record of per-index batch outcomes.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/Aman-CERP/searchgate/internal/ingest"
)

// Entry is one stored index outcome.
type Entry struct {
	ID        int64
	BatchID   string
	Index     string
	Items     int
	Added     int
	Deleted   int
	Malformed int
	Status    string
	Stage     string
	Error     string
	CreatedAt time.Time
}

// Journal appends batch outcomes to a SQLite database.
type Journal struct {
	db *sql.DB
}

// Open opens or creates the journal database at path.
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	// Single writer to prevent lock contention
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS batch_outcomes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		batch_id TEXT NOT NULL,
		index_name TEXT NOT NULL,
		items INTEGER NOT NULL DEFAULT 0,
		added INTEGER NOT NULL DEFAULT 0,
		deleted INTEGER NOT NULL DEFAULT 0,
		malformed INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		stage TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_batch_outcomes_index ON batch_outcomes(index_name, id DESC);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create journal schema: %w", err)
	}
	return nil
}

// Record stores every index outcome of r in one transaction.
func (j *Journal) Record(ctx context.Context, r ingest.Report) error {
	if len(r.Indexes) == 0 {
		return nil
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO batch_outcomes
			(batch_id, index_name, items, added, deleted, malformed, status, stage, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	created := r.StartedAt.UnixMilli()
	for _, o := range r.Indexes {
		if _, err := stmt.ExecContext(ctx, r.BatchID, o.Index, o.Items, o.Added, o.Deleted,
			o.Malformed, string(o.Status), string(o.Stage), o.Error, created); err != nil {
			return fmt.Errorf("insert outcome: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Recent returns up to limit outcomes, newest first. A non-empty index
// restricts the result to that index.
func (j *Journal) Recent(ctx context.Context, index string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	q := `SELECT id, batch_id, index_name, items, added, deleted, malformed, status, stage, error, created_at
		FROM batch_outcomes`
	args := []any{}
	if index != "" {
		q += ` WHERE index_name = ?`
		args = append(args, index)
	}
	q += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var created int64
		if err := rows.Scan(&e.ID, &e.BatchID, &e.Index, &e.Items, &e.Added, &e.Deleted,
			&e.Malformed, &e.Status, &e.Stage, &e.Error, &created); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		e.CreatedAt = time.UnixMilli(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}
