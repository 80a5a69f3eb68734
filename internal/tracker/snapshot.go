package tracker

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"

	"hard-sync/internal/fs"
	"hard-sync/internal/hs"
)

// MarkerFileName is the serialized snapshot written inside the marker directory.
const MarkerFileName = "tracker.json"

// DiffKind classifies an entry returned by Snapshot.Diff.
type DiffKind string

const (
	DiffNew     DiffKind = "new"
	DiffChanged DiffKind = "changed"
)

// DiffEntry is one file of the source snapshot that the other snapshot lacks or holds different content for.
type DiffEntry struct {
	RelativePath string
	Kind         DiffKind
	Record       *FileRecord
}

// Snapshot is the in-memory view of one directory tree: a map from
// root-relative path to FileRecord plus the ignore patterns applied while importing.
type Snapshot struct {
	fsys         afero.Fs
	root         string
	size         int64
	lastModified int64
	created      int64
	ignore       *fs.IgnoreMatcher
	files        map[string]*FileRecord
	ignored      int
}

// snapshotFile is the on-disk form of a Snapshot in tracker.json.
type snapshotFile struct {
	Path         string                 `json:"path"`
	Size         int64                  `json:"size"`
	LastModified int64                  `json:"last_modified"`
	Created      int64                  `json:"created"`
	Ignore       []string               `json:"ignore"`
	Files        map[string]*FileRecord `json:"files"`
}

// NewSnapshot creates an empty snapshot of root. The root must be an existing directory.
func NewSnapshot(fsys afero.Fs, root string) (*Snapshot, error) {
	root = filepath.Clean(root)
	info, err := fsys.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &hs.PathError{Path: root, Reason: "directory does not exist"}
		}
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, &hs.PathError{Path: root, Reason: "not a directory"}
	}

	ts := fs.ReadTimestamps(root, info)
	ignore, _ := fs.NewIgnoreMatcher(nil)

	return &Snapshot{
		fsys:         fsys,
		root:         root,
		size:         info.Size(),
		lastModified: ts.Modified,
		created:      ts.Created,
		ignore:       ignore,
		files:        make(map[string]*FileRecord),
	}, nil
}

// Root returns the snapshot's root directory.
func (s *Snapshot) Root() string { return s.root }

// Files returns the relative-path map. Callers must not modify it.
func (s *Snapshot) Files() map[string]*FileRecord { return s.files }

// Len returns the number of tracked files.
func (s *Snapshot) Len() int { return len(s.files) }

// Get returns the record stored at a relative path, or nil.
func (s *Snapshot) Get(relativePath string) *FileRecord { return s.files[relativePath] }

// Ignored returns how many files the last Import skipped because of ignore patterns.
func (s *Snapshot) Ignored() int { return s.ignored }

// AddIgnore appends a regular expression to the ignore list.
func (s *Snapshot) AddIgnore(pattern string) error {
	return s.ignore.Add(pattern)
}

// IgnorePatterns returns the ignore patterns in the order they were added.
func (s *Snapshot) IgnorePatterns() []string { return s.ignore.Patterns() }

// IsIgnored reports whether any ignore pattern matches within relativePath.
func (s *Snapshot) IsIgnored(relativePath string) bool {
	return s.ignore.Match(relativePath)
}

// LoadIgnoreFile adds the patterns of the root's optional ignore file.
func (s *Snapshot) LoadIgnoreFile() error {
	patterns, err := fs.ParseIgnoreFile(s.fsys, filepath.Join(s.root, fs.IgnoreFileName))
	if err != nil {
		return err
	}
	for _, p := range patterns {
		if err := s.ignore.Add(p); err != nil {
			return err
		}
	}
	return nil
}

// Import scans the tree and replaces the file map. When recursive is false
// only direct children of the root are read. Directories, hard-sync's state
// directories and ignored files never enter the map.
func (s *Snapshot) Import(recursive bool) error {
	files := make(map[string]*FileRecord)
	ignored := 0

	err := afero.Walk(s.fsys, s.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == s.root {
			return nil
		}
		rel, ok := fs.RelativeTo(s.root, path)
		if !ok {
			return nil
		}

		if info.IsDir() {
			if !recursive || fs.IsStatePath(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		if s.IsIgnored(rel) {
			ignored++
			return nil
		}

		record, err := NewFileRecord(s.fsys, path)
		if err != nil {
			return err
		}
		files[rel] = record
		return nil
	})
	if err != nil {
		return fmt.Errorf("importing %s: %w", s.root, err)
	}

	s.files = files
	s.ignored = ignored
	return nil
}

// Diff returns the files of s that are missing from other or whose content
// hash differs. Paths present only in other are not reported, and timestamps
// play no part. Entries are sorted by relative path.
func (s *Snapshot) Diff(other *Snapshot) []DiffEntry {
	var diff []DiffEntry
	for rel, record := range s.files {
		theirs, ok := other.files[rel]
		switch {
		case !ok:
			diff = append(diff, DiffEntry{RelativePath: rel, Kind: DiffNew, Record: record})
		case theirs.CurrentFileHash != record.CurrentFileHash:
			diff = append(diff, DiffEntry{RelativePath: rel, Kind: DiffChanged, Record: record})
		}
	}

	sort.Slice(diff, func(i, j int) bool { return diff[i].RelativePath < diff[j].RelativePath })
	return diff
}

func (s *Snapshot) markerDir() string  { return filepath.Join(s.root, fs.MarkerDirName) }
func (s *Snapshot) markerFile() string { return filepath.Join(s.markerDir(), MarkerFileName) }

// Initialized returns nil when the root carries the marker directory,
// and an error wrapping hs.ErrNotInitialized otherwise.
func (s *Snapshot) Initialized() error {
	info, err := s.fsys.Stat(s.markerDir())
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", hs.ErrNotInitialized, s.root)
		}
		return fmt.Errorf("checking marker: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", hs.ErrNotInitialized, s.markerDir())
	}
	return nil
}

// SetupConfig adopts the root: a full recursive import, then the marker
// directory and tracker.json are created. It fails on an already adopted root
// without touching the existing marker.
func (s *Snapshot) SetupConfig() error {
	err := s.Initialized()
	if err == nil {
		return fmt.Errorf("%w: %s", hs.ErrAlreadyInitialized, s.root)
	}
	if !errors.Is(err, hs.ErrNotInitialized) {
		return err
	}

	if err := s.Import(true); err != nil {
		return err
	}
	if err := s.fsys.MkdirAll(s.markerDir(), 0755); err != nil {
		return &hs.SerializationError{Path: s.markerDir(), Err: err}
	}
	return s.writeTracker(os.O_WRONLY | os.O_CREATE | os.O_EXCL)
}

// UpdateTracker rewrites tracker.json with the current in-memory snapshot.
// The file must already exist; it is truncated, never appended to.
func (s *Snapshot) UpdateTracker() error {
	if _, err := s.fsys.Stat(s.markerFile()); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s does not exist", hs.ErrNotInitialized, s.markerFile())
		}
		return fmt.Errorf("checking tracker: %w", err)
	}
	return s.writeTracker(os.O_WRONLY | os.O_TRUNC)
}

func (s *Snapshot) writeTracker(flag int) error {
	data, err := json.MarshalIndent(snapshotFile{
		Path:         s.root,
		Size:         s.size,
		LastModified: s.lastModified,
		Created:      s.created,
		Ignore:       s.ignore.Patterns(),
		Files:        s.files,
	}, "", "  ")
	if err != nil {
		return &hs.SerializationError{Path: s.markerFile(), Err: err}
	}

	f, err := s.fsys.OpenFile(s.markerFile(), flag, 0644)
	if err != nil {
		return &hs.SerializationError{Path: s.markerFile(), Err: err}
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return &hs.SerializationError{Path: s.markerFile(), Err: err}
	}
	if err := f.Close(); err != nil {
		return &hs.SerializationError{Path: s.markerFile(), Err: err}
	}
	return nil
}

// ReadTracker decodes the tracker.json of root. The returned snapshot carries
// the recorded hashes and ignore list but no file content.
func ReadTracker(fsys afero.Fs, root string) (*Snapshot, error) {
	s, err := NewSnapshot(fsys, root)
	if err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(fsys, s.markerFile())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", hs.ErrNotInitialized, root)
		}
		return nil, fmt.Errorf("reading tracker: %w", err)
	}

	var sf snapshotFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("decoding tracker %s: %w", s.markerFile(), err)
	}

	for _, p := range sf.Ignore {
		if err := s.ignore.Add(p); err != nil {
			return nil, err
		}
	}
	if sf.Files != nil {
		s.files = sf.Files
	}
	return s, nil
}
