package app

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"hard-sync/internal/config"
	"hard-sync/internal/database"
	"hard-sync/internal/fs"
	"hard-sync/internal/hs"
	"hard-sync/internal/tracker"
	"hard-sync/internal/transaction"
)

// HSApp is the application layer between the CLI and the sync engine.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw string paths, and manages the history DB lifecycle on Close.
type HSApp struct {
	cfg      *config.Config
	fsys     afero.Fs
	history  hs.HistoryStore
	logger   hs.Logger
	logFile  *os.File
	clock    hs.Clock
	ids      hs.IDGenerator
	progress hs.ProgressFunc
	workDir  string
}

// SyncFlags mirror the sync command's flags.
type SyncFlags struct {
	Init    bool     // adopt roots that lack the marker
	Reverse bool     // copy from target into base
	DryRun  bool     // plan and report only
	Exclude []string // ignore patterns added for this run
}

// SyncReport is the outcome of one sync as shown to the user.
type SyncReport struct {
	RunID  string
	Base   string
	Target string
	Result *transaction.Result
	// WouldInitialize lists the roots a dry run with --init left unadopted.
	WouldInitialize []string
}

// DiffReport lists the base files the target lacks or holds different content for.
type DiffReport struct {
	Base    string
	Target  string
	Entries []tracker.DiffEntry
	Ignored int
}

// NewHSApp creates a fully wired HSApp from the given config.
// The caller must call Close when done.
func NewHSApp(cfg *config.Config) (*HSApp, error) {
	history, err := database.NewHistoryFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating history database: %w", err)
	}

	if err := history.CheckMigrations(); err != nil {
		history.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	ids := hs.UUIDGenerator{}
	logger, logFile, err := newLogger(cfg.LogDir, ids.New(), cfg.LogLevel)
	if err != nil {
		history.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	workDir, err := os.Getwd()
	if err != nil {
		history.Close()
		logFile.Close()
		return nil, fmt.Errorf("determining working directory: %w", err)
	}

	a := newHSApp(cfg, afero.NewOsFs(), history, &slogAdapter{l: logger}, hs.RealClock{}, ids,
		NewConsoleProgress(os.Stderr).Report, workDir)
	a.logFile = logFile
	return a, nil
}

func newHSApp(cfg *config.Config, fsys afero.Fs, history hs.HistoryStore, logger hs.Logger,
	clock hs.Clock, ids hs.IDGenerator, progress hs.ProgressFunc, workDir string) *HSApp {
	return &HSApp{
		cfg:      cfg,
		fsys:     fsys,
		history:  history,
		logger:   logger,
		clock:    clock,
		ids:      ids,
		progress: progress,
		workDir:  workDir,
	}
}

// abs resolves a raw CLI path against the caller's working directory.
func (a *HSApp) abs(rawPath string) string {
	if rawPath == "" || filepath.IsAbs(rawPath) {
		return rawPath
	}
	return filepath.Join(a.workDir, rawPath)
}

// newSnapshot creates a snapshot of root carrying the root's ignore file and
// the configured ignore patterns.
func (a *HSApp) newSnapshot(root string) (*tracker.Snapshot, error) {
	s, err := tracker.NewSnapshot(a.fsys, root)
	if err != nil {
		return nil, err
	}
	if err := s.LoadIgnoreFile(); err != nil {
		return nil, err
	}
	for _, p := range a.cfg.Filesystem.Ignore {
		if err := s.AddIgnore(p); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Init adopts a directory: it scans the tree and writes the marker.
// Returns the number of files recorded.
func (a *HSApp) Init(rawDir string) (int, error) {
	root, err := fs.ResolveRoot(a.fsys, a.abs(rawDir))
	if err != nil {
		return 0, err
	}
	s, err := a.newSnapshot(root)
	if err != nil {
		return 0, err
	}
	return a.adopt(s)
}

func (a *HSApp) adopt(s *tracker.Snapshot) (int, error) {
	if err := s.SetupConfig(); err != nil {
		return 0, err
	}
	a.logger.Info("initialized", "root", s.Root(), "files", s.Len(), "ignored", s.Ignored())
	return s.Len(), nil
}

// ensureInitialized checks root for the marker and adopts it when init is set.
// In a dry run nothing is written; it reports whether root would be adopted.
func (a *HSApp) ensureInitialized(root string, init, dryRun bool) (bool, error) {
	s, err := a.newSnapshot(root)
	if err != nil {
		return false, err
	}
	err = s.Initialized()
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, hs.ErrNotInitialized) {
		return false, err
	}
	if !init {
		return false, fmt.Errorf("%w (run with --init to adopt it)", err)
	}
	if dryRun {
		a.logger.Info("would initialize", "root", root)
		return true, nil
	}
	_, err = a.adopt(s)
	return false, err
}

// Sync copies every file of base that target is missing or holds an older
// version of. With Reverse set the roots swap roles. Every run is recorded
// in the history store, including failed ones once the roots validate.
func (a *HSApp) Sync(rawBase, rawTarget string, flags SyncFlags) (*SyncReport, error) {
	base, target, err := fs.ValidateRoots(a.fsys, a.abs(rawBase), a.abs(rawTarget))
	if err != nil {
		return nil, err
	}
	if flags.Reverse {
		base, target = target, base
	}

	var wouldInit []string
	for _, root := range []string{base, target} {
		pending, err := a.ensureInitialized(root, flags.Init, flags.DryRun)
		if err != nil {
			return nil, err
		}
		if pending {
			wouldInit = append(wouldInit, root)
		}
	}

	op := NewSyncOperation(a.ids.New(), base, target, flags.DryRun, a.clock.Now())
	if _, err := a.history.CreateSyncRun(&op.SyncRun); err != nil {
		return nil, fmt.Errorf("recording sync run: %w", err)
	}

	report := &SyncReport{RunID: op.RunID, Base: base, Target: target, WouldInitialize: wouldInit}

	patterns := append(append([]string{}, a.cfg.Filesystem.Ignore...), flags.Exclude...)
	tx, err := transaction.New(a.fsys, base, target,
		transaction.WithLogger(a.logger),
		transaction.WithClock(a.clock),
		transaction.WithTTL(a.cfg.JournalTTL()),
		transaction.WithIgnorePatterns(patterns...),
		transaction.WithDryRun(flags.DryRun),
		transaction.WithProgress(a.progress),
		transaction.WithBufferSize(a.cfg.Sync.CopyBufferSize),
		transaction.WithWorkingDir(a.workDir),
	)
	if err != nil {
		op.Fail(nil)
		return nil, a.finishOperation(op, fmt.Errorf("preparing sync: %w", err))
	}

	result, err := tx.Sync()
	report.Result = result
	if err != nil {
		op.Fail(result)
		return report, a.finishOperation(op, fmt.Errorf("syncing: %w", err))
	}

	op.Finish(result)
	return report, a.finishOperation(op, nil)
}

// finishOperation records the operation's outcome. The sync error, if any,
// takes precedence over a failure to record it.
func (a *HSApp) finishOperation(op *SyncOperation, syncErr error) error {
	if !op.Persisted() {
		return syncErr
	}
	op.FinishedAt = sql.NullTime{Time: a.clock.Now(), Valid: true}
	err := a.history.FinishSyncRun(op.ID, op.Status, op.Copied, op.Failed, op.Ignored, op.FinishedAt.Time)
	if syncErr != nil {
		if err != nil {
			a.logger.Error("finishing sync run", "error", err)
		}
		return syncErr
	}
	if err != nil {
		return fmt.Errorf("finishing sync run: %w", err)
	}
	return nil
}

// Diff compares the content hashes of two trees. Roots that are initialized
// get their tracker.json refreshed after a recursive scan.
func (a *HSApp) Diff(rawBase, rawTarget string, recursive bool) (*DiffReport, error) {
	base, target, err := fs.ValidateRoots(a.fsys, a.abs(rawBase), a.abs(rawTarget))
	if err != nil {
		return nil, err
	}

	snapshots := make([]*tracker.Snapshot, 0, 2)
	for _, root := range []string{base, target} {
		s, err := a.newSnapshot(root)
		if err != nil {
			return nil, err
		}
		if err := s.Import(recursive); err != nil {
			return nil, err
		}
		snapshots = append(snapshots, s)
	}

	entries := snapshots[0].Diff(snapshots[1])
	a.logger.Info("diff computed", "base", base, "target", target, "differences", len(entries))

	if recursive {
		for _, s := range snapshots {
			if s.Initialized() != nil {
				continue
			}
			if err := s.UpdateTracker(); err != nil {
				return nil, err
			}
			a.logger.Debug("tracker updated", "root", s.Root(), "files", s.Len())
		}
	}

	return &DiffReport{Base: base, Target: target, Entries: entries, Ignored: snapshots[0].Ignored()}, nil
}

// History returns the most recent sync runs, newest first.
func (a *HSApp) History(limit int) ([]*hs.SyncRun, error) {
	return a.history.ListSyncRuns(limit)
}

// Run returns one recorded sync run by its run ID.
func (a *HSApp) Run(runID string) (*hs.SyncRun, error) {
	run, err := a.history.GetSyncRun(runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("no sync run with id %s", runID)
	}
	return run, nil
}

// Close closes the history database and the log file.
func (a *HSApp) Close() error {
	var firstErr error
	if err := a.history.Close(); err != nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
