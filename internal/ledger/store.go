package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema
// changes; the ledger holds history only, so users can delete the database.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database was created by a different
// release.
var ErrSchemaMismatch = errors.New("ledger schema version mismatch")

// Store persists scan history backed by SQLite. It is an audit trail for the
// status and history commands; pipeline decisions never read it.
type Store struct {
	db   *sql.DB
	path string
}

// Cycle is one account's completed scan pass.
type Cycle struct {
	ID         int64
	RunID      string
	Account    string
	StartedAt  time.Time
	FinishedAt time.Time
	Uploaded   int
	Duplicates int
	Failed     int
	Extracted  int
	Error      string
}

// Outcome is the terminal result for one file within a cycle.
type Outcome struct {
	ID         int64
	CycleID    int64
	Path       string
	Outcome    string
	Detail     string
	RecordedAt time.Time
}

// Open initializes or connects to the ledger database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to reset)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}

// RecordCycle inserts one completed cycle and returns its row id for outcome
// rows to reference.
func (s *Store) RecordCycle(ctx context.Context, cycle Cycle) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO cycles (run_id, account, started_at, finished_at,
            uploaded, duplicates, failed, extracted, error)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cycle.RunID,
		cycle.Account,
		cycle.StartedAt.UTC().Format(time.RFC3339Nano),
		cycle.FinishedAt.UTC().Format(time.RFC3339Nano),
		cycle.Uploaded,
		cycle.Duplicates,
		cycle.Failed,
		cycle.Extracted,
		cycle.Error,
	)
	if err != nil {
		return 0, fmt.Errorf("insert cycle: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// RecordOutcome inserts one per-file outcome under a recorded cycle.
func (s *Store) RecordOutcome(ctx context.Context, outcome Outcome) error {
	recordedAt := outcome.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO outcomes (cycle_id, path, outcome, detail, recorded_at)
         VALUES (?, ?, ?, ?, ?)`,
		outcome.CycleID,
		outcome.Path,
		outcome.Outcome,
		outcome.Detail,
		recordedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}

// RecentCycles returns the newest cycles first, up to limit.
func (s *Store) RecentCycles(ctx context.Context, limit int) ([]Cycle, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, account, started_at, finished_at,
            uploaded, duplicates, failed, extracted, error
         FROM cycles ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query cycles: %w", err)
	}
	defer rows.Close()

	var cycles []Cycle
	for rows.Next() {
		var cycle Cycle
		var started, finished string
		if err := rows.Scan(&cycle.ID, &cycle.RunID, &cycle.Account, &started, &finished,
			&cycle.Uploaded, &cycle.Duplicates, &cycle.Failed, &cycle.Extracted, &cycle.Error); err != nil {
			return nil, fmt.Errorf("scan cycle row: %w", err)
		}
		cycle.StartedAt = parseTimestamp(started)
		cycle.FinishedAt = parseTimestamp(finished)
		cycles = append(cycles, cycle)
	}
	return cycles, rows.Err()
}

// RecentOutcomes returns the newest per-file outcomes first, up to limit,
// with the owning cycle's account attached.
func (s *Store) RecentOutcomes(ctx context.Context, limit int) ([]OutcomeWithAccount, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT o.id, o.cycle_id, c.account, o.path, o.outcome, o.detail, o.recorded_at
         FROM outcomes o JOIN cycles c ON c.id = o.cycle_id
         ORDER BY o.id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []OutcomeWithAccount
	for rows.Next() {
		var row OutcomeWithAccount
		var recorded string
		if err := rows.Scan(&row.ID, &row.CycleID, &row.Account, &row.Path,
			&row.Outcome, &row.Detail, &recorded); err != nil {
			return nil, fmt.Errorf("scan outcome row: %w", err)
		}
		row.RecordedAt = parseTimestamp(recorded)
		outcomes = append(outcomes, row)
	}
	return outcomes, rows.Err()
}

// OutcomeWithAccount is an outcome row joined with its cycle's account.
type OutcomeWithAccount struct {
	ID         int64
	CycleID    int64
	Account    string
	Path       string
	Outcome    string
	Detail     string
	RecordedAt time.Time
}

func parseTimestamp(value string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return parsed
}
