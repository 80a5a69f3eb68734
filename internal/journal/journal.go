// Package journal reads and writes the per-root lock file that records the
// state of every entry in a tree between runs.
package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"hard-sync/internal/fs"
	"hard-sync/internal/hs"
)

// FileName is the journal file inside the root's journal directory.
const FileName = "hard-sync.lock"

// maxLineSize bounds a single journal line. Paths longer than this are not supported.
const maxLineSize = 1024 * 1024

var errMissingPath = errors.New("record has no path")

// Record is one journal line: the state of a file or directory at the time
// the journal was generated. Path is relative to the journal's root.
type Record struct {
	Path         string `json:"path"`
	LastModified int64  `json:"last_modified"`
	LastAccessed int64  `json:"last_accessed"`
	Created      int64  `json:"created"`
	Size         string `json:"size"`
	IsDir        bool   `json:"is_dir"`
}

// SizeBytes parses the decimal size. Unparseable sizes read as zero.
func (r Record) SizeBytes() int64 {
	n, err := strconv.ParseInt(r.Size, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// IsNewerThan reports whether r should replace other. Timestamps are
// compared in order: modification, access, creation. A later field only
// decides when every earlier one is equal.
func (r Record) IsNewerThan(other Record) bool {
	if other.LastModified != r.LastModified {
		return other.LastModified < r.LastModified
	}
	if other.LastAccessed != r.LastAccessed {
		return other.LastAccessed < r.LastAccessed
	}
	return other.Created < r.Created
}

// Path returns the journal file location for root.
func Path(root string) string {
	return filepath.Join(root, fs.JournalDirName, FileName)
}

// Generate walks root and returns a record for every regular file and
// directory below it. The root itself, the state directories and other entry
// types such as symlinks are not recorded. Symlinks are not followed.
func Generate(fsys afero.Fs, root string) ([]Record, error) {
	root = filepath.Clean(root)
	var records []Record

	err := afero.Walk(fsys, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, ok := fs.RelativeTo(root, path)
		if !ok {
			return nil
		}
		if fs.IsStatePath(rel) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		// Symlinks, sockets and devices are never copied, so they are not journaled.
		if !info.IsDir() && !info.Mode().IsRegular() {
			return nil
		}

		ts := fs.ReadTimestamps(path, info)
		records = append(records, Record{
			Path:         rel,
			LastModified: ts.Modified,
			LastAccessed: ts.Accessed,
			Created:      ts.Created,
			Size:         strconv.FormatInt(info.Size(), 10),
			IsDir:        info.IsDir(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("generating journal for %s: %w", root, err)
	}
	return records, nil
}

// Save truncates the journal of root and writes one JSON object per record.
func Save(fsys afero.Fs, root string, records []Record) error {
	path := Path(root)
	if err := fsys.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return &hs.SerializationError{Path: path, Err: err}
	}

	f, err := fsys.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return &hs.SerializationError{Path: path, Err: err}
	}

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			f.Close()
			return &hs.SerializationError{Path: path, Err: err}
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return &hs.SerializationError{Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &hs.SerializationError{Path: path, Err: err}
	}
	return nil
}

// Load reads the journal of root. A missing journal loads as empty. Lines
// that are not valid records are logged and skipped.
func Load(fsys afero.Fs, root string, logger hs.Logger) ([]Record, error) {
	if logger == nil {
		logger = hs.NewNopLogger()
	}
	path := Path(root)

	f, err := fsys.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Record{}, nil
		}
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	defer f.Close()

	records := []Record{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var r Record
		if err := json.Unmarshal([]byte(text), &r); err != nil {
			logger.Warn("skipping journal line", "error", &hs.JournalCorruptionError{Path: path, Line: line, Err: err})
			continue
		}
		if r.Path == "" {
			logger.Warn("skipping journal line", "error", &hs.JournalCorruptionError{Path: path, Line: line, Err: errMissingPath})
			continue
		}
		records = append(records, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading journal: %w", err)
	}
	return records, nil
}
