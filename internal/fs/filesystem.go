package fs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"hard-sync/internal/hs"
)

// Timestamps holds the three times the journal compares, in whole seconds since the epoch.
type Timestamps struct {
	Modified int64
	Accessed int64
	Created  int64
}

// fallbackTimestamps is used when the platform stat data is unavailable
// (for example on in-memory filesystems). All three fields collapse to mtime.
func fallbackTimestamps(info os.FileInfo) Timestamps {
	mtime := info.ModTime().Unix()
	return Timestamps{Modified: mtime, Accessed: mtime, Created: mtime}
}

// ResolveRoot converts a raw path into a cleaned absolute path and validates
// that it exists and is a directory. Relative paths, including ".", resolve
// against the current working directory.
func ResolveRoot(fsys afero.Fs, rawPath string) (string, error) {
	if strings.TrimSpace(rawPath) == "" {
		return "", &hs.PathError{Path: rawPath, Reason: "empty path"}
	}

	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return "", fmt.Errorf("resolving absolute path: %w", err)
	}

	// Only the real filesystem has symlinks worth resolving.
	if _, ok := fsys.(*afero.OsFs); ok {
		if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
			absPath = resolved
		}
	}

	info, err := fsys.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", &hs.PathError{Path: absPath, Reason: "directory does not exist"}
		}
		return "", fmt.Errorf("stat path: %w", err)
	}
	if !info.IsDir() {
		return "", &hs.PathError{Path: absPath, Reason: "not a directory"}
	}

	return absPath, nil
}

// ValidateRoots resolves both sync roots and rejects pairs that are the same
// directory or nested inside one another.
func ValidateRoots(fsys afero.Fs, rawBase, rawTarget string) (string, string, error) {
	base, err := ResolveRoot(fsys, rawBase)
	if err != nil {
		return "", "", fmt.Errorf("base: %w", err)
	}
	target, err := ResolveRoot(fsys, rawTarget)
	if err != nil {
		return "", "", fmt.Errorf("target: %w", err)
	}

	if base == target {
		return "", "", &hs.PathError{Path: target, Reason: "base and target are the same directory"}
	}
	if _, ok := RelativeTo(base, target); ok {
		return "", "", &hs.PathError{Path: target, Reason: "target is inside base"}
	}
	if _, ok := RelativeTo(target, base); ok {
		return "", "", &hs.PathError{Path: base, Reason: "base is inside target"}
	}

	return base, target, nil
}

// RelativeTo returns path relative to base and reports whether path lies
// strictly under base. Paths that escape base with ".." are not under it.
func RelativeTo(base, path string) (string, bool) {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return "", false
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return rel, true
}
