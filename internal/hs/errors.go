package hs

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotInitialized is returned when a root lacks the adoption marker.
// Re-running with the initialize flag adopts the root.
var ErrNotInitialized = errors.New("root is not initialized")

// ErrAlreadyInitialized is returned when adoption is attempted on a root that is already marked.
var ErrAlreadyInitialized = errors.New("root is already initialized")

// ErrCopyAborted is returned when a progress callback aborts a copy operation.
var ErrCopyAborted = errors.New("copy aborted by progress handler")

// PathError reports an invalid sync root: missing, not a directory, or clashing with the other root.
// It is always raised before any filesystem mutation.
type PathError struct {
	Path   string
	Reason string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("invalid path %s: %s", e.Path, e.Reason)
}

// JournalCorruptionError describes a journal line that could not be parsed.
// Loading recovers from it by skipping the line.
type JournalCorruptionError struct {
	Path string
	Line int
	Err  error
}

func (e *JournalCorruptionError) Error() string {
	return fmt.Sprintf("corrupt journal line %d in %s: %v", e.Line, e.Path, e.Err)
}

func (e *JournalCorruptionError) Unwrap() error { return e.Err }

// CopyError reports a failed bulk copy of one destination group.
type CopyError struct {
	Dest  string
	Files []string
	Err   error
}

func (e *CopyError) Error() string {
	return fmt.Sprintf("copying %d file(s) to %s [%s]: %v", len(e.Files), e.Dest, strings.Join(e.Files, ", "), e.Err)
}

func (e *CopyError) Unwrap() error { return e.Err }

// SerializationError reports a failed write of a journal or marker file.
type SerializationError struct {
	Path string
	Err  error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("writing %s: %v", e.Path, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }
