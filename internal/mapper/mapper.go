// Package mapper batches files by the target directory they must be copied into.
package mapper

import (
	"path/filepath"
	"strings"

	"hard-sync/internal/fs"
)

// Group is a set of source files that share one destination directory.
type Group struct {
	Files []string
	Dest  string
}

// Map groups files by destination directory under targetRoot. Each file's
// parent directories relative to baseRoot are recreated below targetRoot; a
// file that is not under baseRoot is placed by its own path instead. Files
// directly under baseRoot map to targetRoot itself. Groups are returned in the
// order their destination was first seen, and Files keeps the input paths.
func Map(files []string, targetRoot, baseRoot string) []Group {
	var groups []Group
	index := make(map[string]int)

	for _, file := range files {
		dest := destination(file, targetRoot, baseRoot)
		if i, ok := index[dest]; ok {
			groups[i].Files = append(groups[i].Files, file)
			continue
		}
		index[dest] = len(groups)
		groups = append(groups, Group{Files: []string{file}, Dest: dest})
	}
	return groups
}

func destination(file, targetRoot, baseRoot string) string {
	rel, ok := fs.RelativeTo(baseRoot, file)
	if !ok {
		rel = file
	}

	parts := strings.Split(rel, string(filepath.Separator))
	dirs := make([]string, 0, len(parts))
	for _, p := range parts[:len(parts)-1] {
		switch p {
		case "", ".", "..":
			continue
		}
		dirs = append(dirs, p)
	}

	if len(dirs) == 0 {
		return filepath.Clean(targetRoot)
	}
	return filepath.Join(append([]string{targetRoot}, dirs...)...)
}
