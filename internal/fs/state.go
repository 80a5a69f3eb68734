package fs

import (
	"path/filepath"
	"strings"
)

const (
	// JournalDirName holds the per-root journal (lock) file.
	JournalDirName = ".hard-sync"

	// MarkerDirName is the adoption marker directory; its presence means the root is initialized.
	MarkerDirName = ".hard_sync_cli"
)

// IsStatePath reports whether a root-relative path belongs to hard-sync's own
// state directories. Such paths are never scanned, journaled or copied.
func IsStatePath(relativePath string) bool {
	first, _, _ := strings.Cut(filepath.ToSlash(relativePath), "/")
	return first == JournalDirName || first == MarkerDirName
}
