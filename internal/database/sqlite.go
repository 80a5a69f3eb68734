package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"hard-sync/internal/database/migrations"
	"hard-sync/internal/hs"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteHistory implements hs.HistoryStore on SQLite.
type SQLiteHistory struct {
	db   *sql.DB
	path string
}

// NewSQLiteHistory opens the database at path and brings its schema up to date.
// path can be a file path or ":memory:" for an in-memory database.
func NewSQLiteHistory(path string) (*SQLiteHistory, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating history database: %w", err)
	}

	return &SQLiteHistory{db: db, path: path}, nil
}

// OpenConnection opens and configures a SQLite database connection.
// In-memory databases are limited to one connection, since every
// connection would otherwise see its own empty database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// CheckMigrations verifies the schema is at the version this binary expects.
func (s *SQLiteHistory) CheckMigrations() error {
	return migrations.CheckStatus(s.db)
}

func (s *SQLiteHistory) CreateSyncRun(run *hs.SyncRun) (int64, error) {
	if run.Status == "" {
		run.Status = hs.RunStatusRunning
	}
	res, err := s.db.Exec(
		`INSERT INTO sync_runs (run_id, base, target, dry_run, started_at, status)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Base, run.Target, run.DryRun, run.StartedAt.UTC(), run.Status,
	)
	if err != nil {
		return 0, fmt.Errorf("creating sync run: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading sync run id: %w", err)
	}
	run.ID = id
	return id, nil
}

func (s *SQLiteHistory) FinishSyncRun(id int64, status string, copied, failed, ignored int, finishedAt time.Time) error {
	res, err := s.db.Exec(
		`UPDATE sync_runs
		 SET status = ?, copied = ?, failed = ?, ignored = ?, finished_at = ?
		 WHERE id = ?`,
		status, copied, failed, ignored, finishedAt.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("finishing sync run %d: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finishing sync run %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("finishing sync run %d: %w", id, sql.ErrNoRows)
	}
	return nil
}

func (s *SQLiteHistory) ListSyncRuns(limit int) ([]*hs.SyncRun, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := s.db.Query(
		`SELECT id, run_id, base, target, dry_run, started_at, finished_at, status, copied, failed, ignored
		 FROM sync_runs
		 ORDER BY started_at DESC, id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing sync runs: %w", err)
	}
	defer rows.Close()

	var runs []*hs.SyncRun
	for rows.Next() {
		r := &hs.SyncRun{}
		if err := rows.Scan(&r.ID, &r.RunID, &r.Base, &r.Target, &r.DryRun, &r.StartedAt, &r.FinishedAt, &r.Status, &r.Copied, &r.Failed, &r.Ignored); err != nil {
			return nil, fmt.Errorf("scanning sync run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing sync runs: %w", err)
	}
	return runs, nil
}

// GetSyncRun returns the run with the given run ID, or nil if there is none.
func (s *SQLiteHistory) GetSyncRun(runID string) (*hs.SyncRun, error) {
	r := &hs.SyncRun{}
	err := s.db.QueryRow(
		`SELECT id, run_id, base, target, dry_run, started_at, finished_at, status, copied, failed, ignored
		 FROM sync_runs WHERE run_id = ?`,
		runID,
	).Scan(&r.ID, &r.RunID, &r.Base, &r.Target, &r.DryRun, &r.StartedAt, &r.FinishedAt, &r.Status, &r.Copied, &r.Failed, &r.Ignored)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting sync run %s: %w", runID, err)
	}
	return r, nil
}

func (s *SQLiteHistory) Close() error {
	return s.db.Close()
}

var _ hs.HistoryStore = (*SQLiteHistory)(nil)
