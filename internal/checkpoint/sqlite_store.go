package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS checkpoints (
	step TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	completed_at TEXT NOT NULL,
	fingerprint TEXT NOT NULL DEFAULT '',
	run_id TEXT NOT NULL DEFAULT ''
)`

// SQLiteStore keeps checkpoint records in a single SQLite table. Every write
// is one statement or one transaction, so readers never see partial records.
type SQLiteStore struct {
	db       *sql.DB
	order    stepOrder
	readOnly bool
}

// NewSQLiteStore opens or creates the database at path.
func NewSQLiteStore(path string, order []string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("checkpoint: ensure directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("checkpoint: apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("checkpoint: create schema: %w", err)
	}
	return &SQLiteStore{db: db, order: newStepOrder(order)}, nil
}

// openSQLiteReader opens an existing database for queries, leaving its
// schema and pragmas alone. Reads take normal locks; a run may be writing
// through the WAL. A missing database is replaced by an empty in-memory one
// so nothing is created on disk.
func openSQLiteReader(path string, order []string) (*SQLiteStore, error) {
	dsn := path
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		dsn = ":memory:"
	} else if err != nil {
		return nil, fmt.Errorf("checkpoint: stat sqlite db: %w", err)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if dsn == ":memory:" {
		if _, err := db.Exec(sqliteSchema); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("checkpoint: create schema: %w", err)
		}
	}
	return &SQLiteStore{db: db, order: newStepOrder(order), readOnly: true}, nil
}

func (s *SQLiteStore) IsDone(ctx context.Context, step, fingerprint string) (bool, error) {
	record, ok, err := s.Get(ctx, step)
	if err != nil || !ok {
		return false, err
	}
	return record.Done(fingerprint), nil
}

func (s *SQLiteStore) MarkDone(ctx context.Context, step, fingerprint string) error {
	if s.readOnly {
		return ErrReadOnly
	}
	if err := validStepName(step); err != nil {
		return err
	}
	record := newRecord(ctx, step, fingerprint)
	_, err := s.db.ExecContext(ctx, `INSERT INTO checkpoints (step, status, completed_at, fingerprint, run_id)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(step) DO UPDATE SET
	status = excluded.status,
	completed_at = excluded.completed_at,
	fingerprint = excluded.fingerprint,
	run_id = excluded.run_id`,
		record.Step, record.Status, record.CompletedAt.Format(time.RFC3339Nano), record.Fingerprint, record.RunID)
	if err != nil {
		return fmt.Errorf("checkpoint: write %s: %w", step, err)
	}
	return nil
}

func (s *SQLiteStore) InvalidateFrom(ctx context.Context, step string) error {
	if s.readOnly {
		return ErrReadOnly
	}
	names, err := s.order.from(step)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("checkpoint: begin invalidate tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(names)), ",")
	args := make([]any, len(names))
	for i, name := range names {
		args[i] = name
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM checkpoints WHERE step IN ("+placeholders+")", args...); err != nil {
		return fmt.Errorf("checkpoint: invalidate from %s: %w", step, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("checkpoint: commit invalidate: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ClearAll(ctx context.Context) error {
	if s.readOnly {
		return ErrReadOnly
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM checkpoints"); err != nil {
		return fmt.Errorf("checkpoint: clear: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, step string) (Record, bool, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT step, status, completed_at, fingerprint, run_id FROM checkpoints WHERE step = ?", step)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("checkpoint: read %s: %w", step, err)
	}
	if record.Status != StatusDone {
		return Record{}, false, nil
	}
	return record, true, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT step, status, completed_at, fingerprint, run_id FROM checkpoints WHERE status = ?", StatusDone)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: list: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("checkpoint: scan: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("checkpoint: list: %w", err)
	}
	s.order.sort(records)
	return records, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		record    Record
		completed string
	)
	if err := row.Scan(&record.Step, &record.Status, &completed, &record.Fingerprint, &record.RunID); err != nil {
		return Record{}, err
	}
	if ts, err := time.Parse(time.RFC3339Nano, completed); err == nil {
		record.CompletedAt = ts
	}
	return record, nil
}
