package transaction

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hard-sync/internal/fs"
	"hard-sync/internal/hs"
	"hard-sync/internal/journal"
	"hard-sync/internal/testutil"
)

var oldTime = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// newTree writes files under root and backdates them so fresh copies are newer.
func newTree(t *testing.T, fsys afero.Fs, root string, files map[string]string) {
	t.Helper()
	testutil.WriteTree(t, fsys, root, files)
	for rel := range files {
		testutil.SetModTime(t, fsys, filepath.Join(root, filepath.FromSlash(rel)), oldTime)
	}
}

func TestNew_ValidatesRoots(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("/ws", 0755))
	require.NoError(t, fsys.MkdirAll("/ws/inner", 0755))

	for _, tc := range []struct{ name, base, target string }{
		{"same directory", "/ws", "/ws"},
		{"missing target", "/ws", "/missing"},
		{"nested target", "/ws", "/ws/inner"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(fsys, tc.base, tc.target)
			var pathErr *hs.PathError
			require.True(t, errors.As(err, &pathErr), "got %v", err)
			assert.False(t, testutil.Exists(t, fsys, journal.Path("/ws")), "no journal written on validation failure")
		})
	}
}

func TestNew_PreparesJournals(t *testing.T) {
	fsys := afero.NewMemMapFs()
	newTree(t, fsys, "/ws", map[string]string{"a.txt": "a", "code/b.js": "b"})
	require.NoError(t, fsys.MkdirAll("/ws2", 0755))

	tx, err := New(fsys, "/ws", "/ws2")
	require.NoError(t, err)

	assert.True(t, testutil.Exists(t, fsys, journal.Path("/ws")))
	assert.False(t, testutil.Exists(t, fsys, journal.Path("/ws2")), "target journal is only written by Sync")

	baseData, err := tx.BaseData()
	require.NoError(t, err)
	assert.Len(t, baseData, 3, "two files and one directory")

	targetData, err := tx.TargetData()
	require.NoError(t, err)
	assert.Empty(t, targetData)
}

func TestBaseData_Staleness(t *testing.T) {
	fsys := afero.NewMemMapFs()
	newTree(t, fsys, "/ws", map[string]string{"a.txt": "a"})
	require.NoError(t, fsys.MkdirAll("/ws2", 0755))
	clock := testutil.FixedClock()

	tx, err := New(fsys, "/ws", "/ws2", WithClock(clock))
	require.NoError(t, err)

	first, err := tx.BaseData()
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Rewrite the journal behind the transaction's back.
	replaced := []journal.Record{{Path: "x.txt", Size: "1"}, {Path: "y.txt", Size: "1"}}
	require.NoError(t, journal.Save(fsys, "/ws", replaced))

	clock.Advance(4*time.Second + 999*time.Millisecond)
	cached, err := tx.BaseData()
	require.NoError(t, err)
	assert.Equal(t, first, cached, "fresh cache must not touch the journal")

	clock.Advance(time.Millisecond)
	reloaded, err := tx.BaseData()
	require.NoError(t, err)
	assert.Equal(t, replaced, reloaded)

	// The reload restarts the window.
	require.NoError(t, journal.Save(fsys, "/ws", nil))
	clock.Advance(time.Second)
	again, err := tx.BaseData()
	require.NoError(t, err)
	assert.Equal(t, replaced, again)
}

func TestTargetData_Staleness(t *testing.T) {
	fsys := afero.NewMemMapFs()
	newTree(t, fsys, "/ws", map[string]string{"a.txt": "a"})
	require.NoError(t, fsys.MkdirAll("/ws2", 0755))
	clock := testutil.FixedClock()

	tx, err := New(fsys, "/ws", "/ws2", WithClock(clock), WithTTL(time.Minute))
	require.NoError(t, err)

	require.NoError(t, journal.Save(fsys, "/ws2", []journal.Record{{Path: "t.txt", Size: "0"}}))

	clock.Advance(30 * time.Second)
	data, err := tx.TargetData()
	require.NoError(t, err)
	assert.Empty(t, data)

	clock.Advance(30 * time.Second)
	data, err = tx.TargetData()
	require.NoError(t, err)
	assert.Len(t, data, 1)
}

func TestPlan_TieBreak(t *testing.T) {
	fsys := afero.NewMemMapFs()
	files := map[string]string{
		"missing.txt":       "m",
		"older-mtime.txt":   "o",
		"newer-mtime.txt":   "n",
		"older-atime.txt":   "a",
		"older-created.txt": "c",
		"identical.txt":     "i",
	}
	newTree(t, fsys, "/ws", files)
	require.NoError(t, fsys.MkdirAll("/ws2", 0755))

	// Base records carry oldTime for all three timestamps on an in-memory tree.
	ts := oldTime.Unix()
	require.NoError(t, journal.Save(fsys, "/ws2", []journal.Record{
		{Path: "older-mtime.txt", LastModified: ts - 1, LastAccessed: ts + 100, Created: ts + 100, Size: "1"},
		{Path: "newer-mtime.txt", LastModified: ts + 1, LastAccessed: ts - 100, Created: ts - 100, Size: "1"},
		{Path: "older-atime.txt", LastModified: ts, LastAccessed: ts - 1, Created: ts + 100, Size: "1"},
		{Path: "older-created.txt", LastModified: ts, LastAccessed: ts, Created: ts - 1, Size: "1"},
		{Path: "identical.txt", LastModified: ts, LastAccessed: ts, Created: ts, Size: "1"},
	}))

	tx, err := New(fsys, "/ws", "/ws2")
	require.NoError(t, err)

	plan, err := tx.Plan()
	require.NoError(t, err)
	assert.Equal(t, []string{"missing.txt", "older-atime.txt", "older-created.txt", "older-mtime.txt"}, plan.Copy)
	assert.Empty(t, plan.Ignored)
}

func TestPlan_DirectoryHandling(t *testing.T) {
	fsys := afero.NewMemMapFs()
	newTree(t, fsys, "/ws", map[string]string{
		"x":           "base has a file here",
		"dir/file.go": "package dir",
	})
	require.NoError(t, fsys.MkdirAll("/ws2/x", 0755))
	records, err := journal.Generate(fsys, "/ws2")
	require.NoError(t, err)
	require.NoError(t, journal.Save(fsys, "/ws2", records))

	tx, err := New(fsys, "/ws", "/ws2")
	require.NoError(t, err)

	plan, err := tx.Plan()
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join("dir", "file.go")}, plan.Copy, "directories are never copied and a target directory blocks the file")
	assert.Equal(t, 1, plan.Conflicts)
}

func TestPlan_IgnorePatterns(t *testing.T) {
	fsys := afero.NewMemMapFs()
	newTree(t, fsys, "/ws", map[string]string{
		fs.IgnoreFileName: `\.log$`,
		"app.go":          "package main",
		"debug.log":       "log",
		"tmp/cache.bin":   "bin",
	})
	require.NoError(t, fsys.MkdirAll("/ws2", 0755))

	tx, err := New(fsys, "/ws", "/ws2", WithIgnorePatterns("^tmp/"))
	require.NoError(t, err)

	plan, err := tx.Plan()
	require.NoError(t, err)
	assert.Equal(t, []string{"app.go", fs.IgnoreFileName}, plan.Copy)
	assert.Equal(t, []string{"debug.log", filepath.Join("tmp", "cache.bin")}, plan.Ignored)
}

func TestNew_InvalidIgnorePattern(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("/ws", 0755))
	require.NoError(t, fsys.MkdirAll("/ws2", 0755))

	_, err := New(fsys, "/ws", "/ws2", WithIgnorePatterns("("))
	assert.Error(t, err)
}

func TestSync(t *testing.T) {
	fsys := afero.NewMemMapFs()
	newTree(t, fsys, "/ws", map[string]string{
		"README.md":          "readme",
		"code/index.js":      "js",
		"code/test/index.js": "test",
		"debug.log":          "log",
	})
	require.NoError(t, fsys.MkdirAll("/ws2", 0755))

	logger := testutil.NewRecordingLogger()
	var progressed []string
	tx, err := New(fsys, "/ws", "/ws2",
		WithLogger(logger),
		WithIgnorePatterns(`\.log$`),
		WithProgress(func(p hs.CopyProgress) hs.CopyDecision {
			progressed = append(progressed, p.FileName)
			return hs.CopyContinue
		}),
	)
	require.NoError(t, err)

	result, err := tx.Sync()
	require.NoError(t, err)

	assert.Equal(t, 3, result.Planned)
	assert.Equal(t, 3, result.Copied)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 1, result.Ignored)
	assert.Equal(t, hs.RunStatusSuccess, result.Status())
	assert.Len(t, result.Groups, 3)
	assert.ElementsMatch(t, []string{"README.md", "index.js", "index.js"}, progressed)

	assert.Equal(t, "readme", testutil.ReadFile(t, fsys, "/ws2/README.md"))
	assert.Equal(t, "js", testutil.ReadFile(t, fsys, "/ws2/code/index.js"))
	assert.Equal(t, "test", testutil.ReadFile(t, fsys, "/ws2/code/test/index.js"))
	assert.False(t, testutil.Exists(t, fsys, "/ws2/debug.log"))

	assert.True(t, testutil.Exists(t, fsys, journal.Path("/ws2")), "target journal refreshed")
	targetData, err := tx.TargetData()
	require.NoError(t, err)
	paths := make([]string, 0, len(targetData))
	for _, r := range targetData {
		paths = append(paths, r.Path)
	}
	assert.ElementsMatch(t, []string{"README.md", "code", filepath.Join("code", "index.js"), filepath.Join("code", "test"), filepath.Join("code", "test", "index.js")}, paths)
	assert.True(t, logger.Contains("diff computed"))

	t.Run("second run is incremental", func(t *testing.T) {
		again, err := New(fsys, "/ws", "/ws2", WithIgnorePatterns(`\.log$`))
		require.NoError(t, err)
		result, err := again.Sync()
		require.NoError(t, err)
		assert.Equal(t, 0, result.Planned)
		assert.Equal(t, 0, result.Copied)
	})

	t.Run("modified base file is copied again", func(t *testing.T) {
		require.NoError(t, afero.WriteFile(fsys, "/ws/code/index.js", []byte("js v2"), 0644))
		testutil.SetModTime(t, fsys, "/ws/code/index.js", time.Now().Add(time.Hour))

		again, err := New(fsys, "/ws", "/ws2", WithIgnorePatterns(`\.log$`))
		require.NoError(t, err)
		result, err := again.Sync()
		require.NoError(t, err)
		assert.Equal(t, 1, result.Copied)
		assert.Equal(t, "js v2", testutil.ReadFile(t, fsys, "/ws2/code/index.js"))
	})
}

func TestSync_CopyFailureIsolation(t *testing.T) {
	mem := afero.NewMemMapFs()
	newTree(t, mem, "/ws", map[string]string{
		"bad/a.txt":  "a",
		"good/b.txt": "b",
	})
	require.NoError(t, mem.MkdirAll("/ws2", 0755))
	fsys := testutil.NewFailingFs(mem, "/ws2/bad")

	logger := testutil.NewRecordingLogger()
	tx, err := New(fsys, "/ws", "/ws2", WithLogger(logger))
	require.NoError(t, err)

	result, err := tx.Sync()
	require.NoError(t, err)

	assert.Equal(t, 1, result.Copied)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, hs.RunStatusPartial, result.Status())
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "/ws2/bad", result.Errors[0].Dest)
	assert.ErrorIs(t, result.Errors[0], testutil.ErrInjected)
	assert.Equal(t, 1, logger.Count("ERROR"))

	assert.Equal(t, "b", testutil.ReadFile(t, mem, "/ws2/good/b.txt"))

	records, err := journal.Load(mem, "/ws2", nil)
	require.NoError(t, err)
	var found bool
	for _, r := range records {
		if r.Path == filepath.Join("good", "b.txt") {
			found = true
		}
	}
	assert.True(t, found, "journal reflects the partial copy")
}

func TestSync_AbortIsCopyError(t *testing.T) {
	fsys := afero.NewMemMapFs()
	newTree(t, fsys, "/ws", map[string]string{"a.txt": "a"})
	require.NoError(t, fsys.MkdirAll("/ws2", 0755))

	tx, err := New(fsys, "/ws", "/ws2", WithProgress(func(hs.CopyProgress) hs.CopyDecision { return hs.CopyAbort }))
	require.NoError(t, err)

	result, err := tx.Sync()
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, hs.RunStatusError, result.Status())
	require.Len(t, result.Errors, 1)
	assert.ErrorIs(t, result.Errors[0], hs.ErrCopyAborted)
}

func TestSync_DryRun(t *testing.T) {
	fsys := afero.NewMemMapFs()
	newTree(t, fsys, "/ws", map[string]string{"a.txt": "a", "sub/b.txt": "b"})
	require.NoError(t, fsys.MkdirAll("/ws2", 0755))

	tx, err := New(fsys, "/ws", "/ws2", WithDryRun(true))
	require.NoError(t, err)

	result, err := tx.Sync()
	require.NoError(t, err)
	assert.True(t, result.DryRun)
	assert.Equal(t, 2, result.Planned)
	assert.Equal(t, int64(2), result.PlannedBytes)
	assert.Equal(t, 0, result.Copied)
	assert.Len(t, result.Groups, 2)
	assert.False(t, testutil.Exists(t, fsys, "/ws2/a.txt"))
	assert.False(t, testutil.Exists(t, fsys, journal.Path("/ws2")))
}

func TestSync_JournalWriteFailure(t *testing.T) {
	mem := afero.NewMemMapFs()
	newTree(t, mem, "/ws", map[string]string{"a.txt": "a"})
	require.NoError(t, mem.MkdirAll("/ws2", 0755))
	fsys := testutil.NewFailingFs(mem, "/ws2/.hard-sync")

	tx, err := New(fsys, "/ws", "/ws2")
	require.NoError(t, err)

	result, err := tx.Sync()
	var serr *hs.SerializationError
	require.True(t, errors.As(err, &serr), "got %v", err)
	require.NotNil(t, result)
	assert.Equal(t, 1, result.Copied, "copy outcome is still reported")
}

func TestDisplay(t *testing.T) {
	tx := &Transaction{workDir: "/home/me"}
	assert.Equal(t, filepath.Join("ws", "a.txt"), tx.display("/home/me/ws/a.txt"))
	assert.Equal(t, "/srv/a.txt", tx.display("/srv/a.txt"))
	assert.Equal(t, "/x", (&Transaction{}).display("/x"))
}

func TestSync_SkipsSymlinks(t *testing.T) {
	base := filepath.Join(t.TempDir(), "base")
	target := filepath.Join(t.TempDir(), "target")
	require.NoError(t, os.MkdirAll(filepath.Join(base, "docs"), 0755))
	require.NoError(t, os.MkdirAll(target, 0755))
	for rel, content := range map[string]string{"docs/a.txt": "a", "b.txt": "b"} {
		path := filepath.Join(base, filepath.FromSlash(rel))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		require.NoError(t, os.Chtimes(path, oldTime, oldTime))
	}
	require.NoError(t, os.Symlink(filepath.Join(base, "missing"), filepath.Join(base, "docs", ".#lock")))
	require.NoError(t, os.Symlink(filepath.Join(base, "docs"), filepath.Join(base, "dirlink")))

	fsys := afero.NewOsFs()
	for run := 1; run <= 2; run++ {
		tx, err := New(fsys, base, target)
		require.NoError(t, err)

		result, err := tx.Sync()
		require.NoError(t, err)
		assert.Equal(t, 0, result.Failed, "run %d: %v", run, result.Errors)
		assert.Empty(t, result.Errors, "run %d", run)
		if run == 1 {
			assert.Equal(t, 2, result.Planned)
			assert.Equal(t, 2, result.Copied)
		} else {
			assert.Equal(t, 0, result.Planned, "second run is incremental")
		}
	}

	data, err := os.ReadFile(filepath.Join(target, "docs", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "a", string(data))
	data, err = os.ReadFile(filepath.Join(target, "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "b", string(data))

	for _, rel := range []string{"dirlink", filepath.Join("docs", ".#lock")} {
		_, err := os.Lstat(filepath.Join(target, rel))
		assert.True(t, os.IsNotExist(err), "%s must not reach the target", rel)
	}

	records, err := journal.Load(fsys, base, nil)
	require.NoError(t, err)
	for _, r := range records {
		assert.NotEqual(t, "dirlink", r.Path)
		assert.NotEqual(t, filepath.Join("docs", ".#lock"), r.Path)
	}
}
