package app

import (
	"time"

	"hard-sync/internal/hs"
	"hard-sync/internal/transaction"
)

// SyncOperation tracks one sync invocation in the history store.
// Operations are created in memory with ID=0. Persisting gives them the
// auto-increment ID from the database.
type SyncOperation struct {
	hs.SyncRun
}

// NewSyncOperation creates a new in-memory sync operation in the running state.
func NewSyncOperation(runID, base, target string, dryRun bool, startedAt time.Time) *SyncOperation {
	return &SyncOperation{SyncRun: hs.SyncRun{
		RunID:     runID,
		Base:      base,
		Target:    target,
		DryRun:    dryRun,
		StartedAt: startedAt,
		Status:    hs.RunStatusRunning,
	}}
}

// Persisted returns true if this operation has been saved to the database.
func (op *SyncOperation) Persisted() bool {
	return op.ID != 0
}

// Finish copies the counters and status of a sync result onto the operation.
func (op *SyncOperation) Finish(result *transaction.Result) {
	op.Status = result.Status()
	op.Copied = result.Copied
	op.Failed = result.Failed
	op.Ignored = result.Ignored
}

// Fail marks the operation as errored. Counters from a partial result are kept.
func (op *SyncOperation) Fail(result *transaction.Result) {
	if result != nil {
		op.Finish(result)
	}
	op.Status = hs.RunStatusError
}
