// Package transaction runs one sync between a base and a target root:
// journal preparation, staleness planning, grouped copy and journal refresh.
package transaction

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/afero"

	"hard-sync/internal/copier"
	"hard-sync/internal/fs"
	"hard-sync/internal/hs"
	"hard-sync/internal/journal"
	"hard-sync/internal/mapper"
)

// DefaultTTL is how long a loaded journal is served from memory before it is re-read.
const DefaultTTL = 5 * time.Second

// Option configures a Transaction.
type Option func(*Transaction)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger hs.Logger) Option {
	return func(t *Transaction) { t.logger = logger }
}

// WithClock sets the clock used for cache staleness.
func WithClock(clock hs.Clock) Option {
	return func(t *Transaction) { t.clock = clock }
}

// WithTTL sets the journal cache lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(t *Transaction) { t.ttl = ttl }
}

// WithIgnorePatterns adds regular expressions on top of the base root's ignore file.
func WithIgnorePatterns(patterns ...string) Option {
	return func(t *Transaction) { t.patterns = append(t.patterns, patterns...) }
}

// WithDryRun makes Sync plan and report without copying or rewriting journals.
func WithDryRun(dryRun bool) Option {
	return func(t *Transaction) { t.dryRun = dryRun }
}

// WithProgress sets the handler called after every copied chunk.
func WithProgress(progress hs.ProgressFunc) Option {
	return func(t *Transaction) { t.progress = progress }
}

// WithBufferSize sets the copy chunk size.
func WithBufferSize(size int) Option {
	return func(t *Transaction) { t.bufferSize = size }
}

// WithWorkingDir shortens logged paths that fall under dir.
func WithWorkingDir(dir string) Option {
	return func(t *Transaction) { t.workDir = dir }
}

// Transaction is a single sync session between two roots. It is not safe for
// concurrent use, and callers must not run two transactions on the same root at once.
type Transaction struct {
	fsys   afero.Fs
	base   string
	target string

	logger     hs.Logger
	clock      hs.Clock
	ttl        time.Duration
	patterns   []string
	ignore     *fs.IgnoreMatcher
	dryRun     bool
	progress   hs.ProgressFunc
	bufferSize int
	workDir    string
	copier     *copier.Copier

	baseData        []journal.Record
	targetData      []journal.Record
	baseRefreshed   time.Time
	targetRefreshed time.Time
}

// Plan is the outcome of comparing the two journals.
type Plan struct {
	// Copy lists base-relative paths that must be copied, sorted.
	Copy []string
	// Ignored lists copy candidates dropped by an ignore pattern, sorted.
	Ignored []string
	// Conflicts counts base files whose target path is a directory.
	Conflicts int
	// Bytes is the journaled size of every file in Copy.
	Bytes int64
}

// Result summarizes a finished Sync.
type Result struct {
	DryRun       bool
	Planned      int
	PlannedBytes int64
	Copied       int
	Failed       int
	Ignored      int
	Conflicts    int
	Groups       []mapper.Group
	Errors       []*hs.CopyError
}

// Status maps the result onto a history run status.
func (r *Result) Status() string {
	switch {
	case r.Failed == 0:
		return hs.RunStatusSuccess
	case r.Copied > 0:
		return hs.RunStatusPartial
	default:
		return hs.RunStatusError
	}
}

// New validates both roots and prepares the transaction. Invalid roots fail
// with *hs.PathError before anything is written.
func New(fsys afero.Fs, base, target string, opts ...Option) (*Transaction, error) {
	base, target, err := fs.ValidateRoots(fsys, base, target)
	if err != nil {
		return nil, err
	}

	t := &Transaction{
		fsys:       fsys,
		base:       base,
		target:     target,
		logger:     hs.NewNopLogger(),
		clock:      hs.RealClock{},
		ttl:        DefaultTTL,
		progress:   hs.ContinueAlways,
		bufferSize: copier.DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(t)
	}

	filePatterns, err := fs.ParseIgnoreFile(fsys, filepath.Join(base, fs.IgnoreFileName))
	if err != nil {
		return nil, err
	}
	t.ignore, err = fs.NewIgnoreMatcher(append(filePatterns, t.patterns...))
	if err != nil {
		return nil, err
	}
	t.copier = copier.New(fsys, t.bufferSize)

	if err := t.Prepare(); err != nil {
		return nil, err
	}
	return t, nil
}

// Base returns the resolved base root.
func (t *Transaction) Base() string { return t.base }

// Target returns the resolved target root.
func (t *Transaction) Target() string { return t.target }

// Prepare regenerates and saves the base journal, then loads both journals.
func (t *Transaction) Prepare() error {
	records, err := journal.Generate(t.fsys, t.base)
	if err != nil {
		return err
	}
	if err := journal.Save(t.fsys, t.base, records); err != nil {
		return err
	}
	t.logger.Debug("base journal saved", "root", t.base, "entries", len(records))

	if err := t.loadBase(); err != nil {
		return err
	}
	return t.loadTarget()
}

func (t *Transaction) loadBase() error {
	records, err := journal.Load(t.fsys, t.base, t.logger)
	if err != nil {
		return fmt.Errorf("loading base journal: %w", err)
	}
	t.baseData = records
	t.baseRefreshed = t.clock.Now()
	return nil
}

func (t *Transaction) loadTarget() error {
	records, err := journal.Load(t.fsys, t.target, t.logger)
	if err != nil {
		return fmt.Errorf("loading target journal: %w", err)
	}
	t.targetData = records
	t.targetRefreshed = t.clock.Now()
	return nil
}

func (t *Transaction) stale(refreshed time.Time) bool {
	return t.clock.Now().Sub(refreshed) >= t.ttl
}

// BaseData returns the base journal, re-reading it from disk once the cache
// has reached its TTL.
func (t *Transaction) BaseData() ([]journal.Record, error) {
	if t.stale(t.baseRefreshed) {
		if err := t.loadBase(); err != nil {
			return nil, err
		}
	}
	return t.baseData, nil
}

// TargetData returns the target journal, re-reading it from disk once the
// cache has reached its TTL.
func (t *Transaction) TargetData() ([]journal.Record, error) {
	if t.stale(t.targetRefreshed) {
		if err := t.loadTarget(); err != nil {
			return nil, err
		}
	}
	return t.targetData, nil
}

// Plan decides which base files the target is missing or holds an older
// version of. Directories are never copied, and a base file whose target
// path is a directory is left alone.
func (t *Transaction) Plan() (*Plan, error) {
	baseData, err := t.BaseData()
	if err != nil {
		return nil, err
	}
	targetData, err := t.TargetData()
	if err != nil {
		return nil, err
	}

	baseMap := make(map[string]journal.Record, len(baseData))
	for _, r := range baseData {
		baseMap[r.Path] = r
	}
	targetMap := make(map[string]journal.Record, len(targetData))
	for _, r := range targetData {
		targetMap[r.Path] = r
	}

	plan := &Plan{}
	for path, b := range baseMap {
		if b.IsDir {
			continue
		}
		if tr, ok := targetMap[path]; ok {
			if tr.IsDir {
				plan.Conflicts++
				t.logger.Warn("target path is a directory, skipping", "path", path)
				continue
			}
			if !b.IsNewerThan(tr) {
				continue
			}
		}
		if t.ignore.Match(path) {
			plan.Ignored = append(plan.Ignored, path)
			continue
		}
		plan.Copy = append(plan.Copy, path)
		plan.Bytes += b.SizeBytes()
	}

	sort.Strings(plan.Copy)
	sort.Strings(plan.Ignored)
	return plan, nil
}

// Sync copies every planned file into the target, grouped by destination
// directory. A failing group is logged and counted, and the remaining groups
// still run. Both journals are then regenerated from disk; failing to save
// them is the only error that aborts a non-dry run.
func (t *Transaction) Sync() (*Result, error) {
	plan, err := t.Plan()
	if err != nil {
		return nil, err
	}

	result := &Result{
		DryRun:       t.dryRun,
		Planned:      len(plan.Copy),
		PlannedBytes: plan.Bytes,
		Ignored:      len(plan.Ignored),
		Conflicts:    plan.Conflicts,
	}
	t.logger.Info("diff computed", "base", t.base, "target", t.target, "to_copy", len(plan.Copy), "bytes", plan.Bytes, "ignored", len(plan.Ignored))

	sources := make([]string, len(plan.Copy))
	for i, rel := range plan.Copy {
		sources[i] = filepath.Join(t.base, rel)
		t.logger.Debug("copy candidate", "path", t.display(sources[i]))
	}
	for _, rel := range plan.Ignored {
		t.logger.Debug("ignored by pattern", "path", rel)
	}

	result.Groups = mapper.Map(sources, t.target, t.base)
	if t.dryRun {
		return result, nil
	}

	opts := copier.Options{Overwrite: true, SkipExisting: false}
	for _, g := range result.Groups {
		if err := t.copier.CopyItems(g.Files, g.Dest, opts, t.progress); err != nil {
			cerr := &hs.CopyError{Dest: g.Dest, Files: t.displayAll(g.Files), Err: err}
			t.logger.Error("copy failed", "error", cerr)
			result.Failed += len(g.Files)
			result.Errors = append(result.Errors, cerr)
			continue
		}
		result.Copied += len(g.Files)
	}

	if err := t.persist(); err != nil {
		return result, err
	}

	t.logger.Info("sync finished", "copied", result.Copied, "failed", result.Failed, "ignored", result.Ignored)
	return result, nil
}

// persist regenerates and saves both journals and refreshes the caches.
func (t *Transaction) persist() error {
	for _, root := range []string{t.base, t.target} {
		records, err := journal.Generate(t.fsys, root)
		if err != nil {
			return err
		}
		if err := journal.Save(t.fsys, root, records); err != nil {
			return err
		}
	}
	if err := t.loadBase(); err != nil {
		return err
	}
	return t.loadTarget()
}

func (t *Transaction) display(path string) string {
	if t.workDir == "" {
		return path
	}
	if rel, ok := fs.RelativeTo(t.workDir, path); ok {
		return rel
	}
	return path
}

func (t *Transaction) displayAll(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = t.display(p)
	}
	return out
}
