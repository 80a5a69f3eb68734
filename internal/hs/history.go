package hs

import (
	"database/sql"
	"time"
)

// Sync run statuses recorded in the history store.
const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusPartial = "partial" // finished, but at least one copy group failed
	RunStatusError   = "error"
)

// SyncRun is one recorded invocation of a sync between two roots.
type SyncRun struct {
	ID         int64
	RunID      string
	Base       string
	Target     string
	DryRun     bool
	StartedAt  time.Time
	FinishedAt sql.NullTime
	Status     string
	Copied     int
	Failed     int
	Ignored    int
}

// HistoryStore persists sync run records. It never stores file state;
// the journals remain the only record of tree contents.
type HistoryStore interface {
	// CreateSyncRun inserts a run in the running state and returns its row ID.
	CreateSyncRun(run *SyncRun) (int64, error)

	// FinishSyncRun records the outcome of a run and when it ended.
	FinishSyncRun(id int64, status string, copied, failed, ignored int, finishedAt time.Time) error

	// ListSyncRuns returns the most recent runs, newest first.
	ListSyncRuns(limit int) ([]*SyncRun, error)

	// GetSyncRun returns the run with the given run ID, or nil if there is none.
	GetSyncRun(runID string) (*SyncRun, error)

	// Close closes the underlying connection.
	Close() error
}
