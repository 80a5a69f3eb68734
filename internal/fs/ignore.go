package fs

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/afero"
)

// IgnoreFileName is the optional per-root file listing ignore patterns, one per line.
const IgnoreFileName = "hard_sync.ignore"

// IgnoreMatcher checks relative paths against an ordered list of regular expressions.
// A path is ignored when any pattern matches anywhere within it; patterns are not
// anchored unless they anchor themselves with ^ or $.
type IgnoreMatcher struct {
	patterns []*regexp.Regexp
}

// NewIgnoreMatcher compiles raw pattern strings.
// Blank lines and lines starting with '#' are skipped.
func NewIgnoreMatcher(rawPatterns []string) (*IgnoreMatcher, error) {
	m := &IgnoreMatcher{}
	for _, raw := range rawPatterns {
		if err := m.Add(raw); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Add compiles and appends a single pattern.
func (m *IgnoreMatcher) Add(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") {
		return nil
	}
	re, err := regexp.Compile(raw)
	if err != nil {
		return fmt.Errorf("compiling ignore pattern %q: %w", raw, err)
	}
	m.patterns = append(m.patterns, re)
	return nil
}

// Patterns returns the source text of every compiled pattern, in order.
func (m *IgnoreMatcher) Patterns() []string {
	out := make([]string, len(m.patterns))
	for i, re := range m.patterns {
		out[i] = re.String()
	}
	return out
}

// Len returns the number of compiled patterns.
func (m *IgnoreMatcher) Len() int { return len(m.patterns) }

// Match reports whether the given relative path should be ignored.
// Separators are normalized to '/' so patterns are portable across platforms.
func (m *IgnoreMatcher) Match(relativePath string) bool {
	if m == nil || len(m.patterns) == 0 || relativePath == "" {
		return false
	}

	normalized := filepath.ToSlash(relativePath)
	for _, re := range m.patterns {
		if re.MatchString(normalized) {
			return true
		}
	}
	return false
}

// ParseIgnoreFile reads an ignore file and returns the raw pattern lines.
// Returns nil and no error if the file does not exist.
func ParseIgnoreFile(fsys afero.Fs, path string) ([]string, error) {
	f, err := fsys.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		patterns = append(patterns, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return patterns, nil
}
