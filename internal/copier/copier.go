// Package copier copies groups of files into a destination directory with
// per-chunk progress reporting.
package copier

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"hard-sync/internal/hs"
)

// DefaultBufferSize is the chunk size used when none is configured.
const DefaultBufferSize = 64 * 1024

const tempPattern = ".hard-sync-*.tmp"

// Options control how existing files in the destination are treated.
type Options struct {
	// Overwrite replaces files that already exist in the destination.
	Overwrite bool
	// SkipExisting leaves existing destination files alone. It takes precedence over Overwrite.
	SkipExisting bool
}

// Copier copies files on one filesystem.
type Copier struct {
	fsys afero.Fs
	buf  []byte
}

// New creates a Copier that moves data in chunks of bufferSize bytes.
func New(fsys afero.Fs, bufferSize int) *Copier {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Copier{fsys: fsys, buf: make([]byte, bufferSize)}
}

// CopyItems copies every source file into dest, keeping base names. dest is
// created if needed. progress is called after each chunk; returning
// hs.CopyAbort stops the operation with hs.ErrCopyAborted. The first failing
// file ends the operation and files copied before it stay in place.
func (c *Copier) CopyItems(sources []string, dest string, opts Options, progress hs.ProgressFunc) error {
	if progress == nil {
		progress = hs.ContinueAlways
	}

	var total int64
	infos := make([]os.FileInfo, len(sources))
	for i, src := range sources {
		info, err := c.fsys.Stat(src)
		if err != nil {
			return fmt.Errorf("stat source: %w", err)
		}
		if !info.Mode().IsRegular() {
			return fmt.Errorf("source is not a regular file: %s", src)
		}
		infos[i] = info
		total += info.Size()
	}

	if err := c.fsys.MkdirAll(dest, 0755); err != nil {
		return fmt.Errorf("creating destination %s: %w", dest, err)
	}

	state := hs.CopyProgress{TotalBytes: total}
	for i, src := range sources {
		trg := filepath.Join(dest, filepath.Base(src))

		exists, err := afero.Exists(c.fsys, trg)
		if err != nil {
			return fmt.Errorf("checking %s: %w", trg, err)
		}
		if exists {
			if opts.SkipExisting {
				state.CopiedBytes += infos[i].Size()
				continue
			}
			if !opts.Overwrite {
				return fmt.Errorf("destination file already exists: %s", trg)
			}
		}

		state.FileName = filepath.Base(src)
		state.FileTotalBytes = infos[i].Size()
		state.FileBytesCopied = 0
		if err := c.copyFile(src, trg, infos[i].Mode(), &state, progress); err != nil {
			return err
		}
	}
	return nil
}

// copyFile writes src to a temporary file next to trg and renames it into place.
func (c *Copier) copyFile(src, trg string, mode os.FileMode, state *hs.CopyProgress, progress hs.ProgressFunc) error {
	in, err := c.fsys.Open(src)
	if err != nil {
		return fmt.Errorf("opening source %s: %w", src, err)
	}
	defer in.Close()

	out, err := afero.TempFile(c.fsys, filepath.Dir(trg), tempPattern)
	if err != nil {
		return fmt.Errorf("creating temporary file in %s: %w", filepath.Dir(trg), err)
	}
	tempPath := out.Name()
	defer func() {
		if tempPath != "" {
			c.fsys.Remove(tempPath)
		}
	}()

	for {
		n, readErr := in.Read(c.buf)
		if n > 0 {
			if _, err := out.Write(c.buf[:n]); err != nil {
				out.Close()
				return fmt.Errorf("writing %s: %w", tempPath, err)
			}
			state.FileBytesCopied += int64(n)
			state.CopiedBytes += int64(n)
			if progress(*state) == hs.CopyAbort {
				out.Close()
				return fmt.Errorf("copying %s: %w", src, hs.ErrCopyAborted)
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			out.Close()
			return fmt.Errorf("reading %s: %w", src, readErr)
		}
	}

	// Empty files produce no chunk; report them once so handlers see every file.
	if state.FileTotalBytes == 0 {
		if progress(*state) == hs.CopyAbort {
			out.Close()
			return fmt.Errorf("copying %s: %w", src, hs.ErrCopyAborted)
		}
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tempPath, err)
	}
	if err := c.fsys.Chmod(tempPath, mode.Perm()); err != nil {
		return fmt.Errorf("setting permissions on %s: %w", tempPath, err)
	}
	if err := c.fsys.Rename(tempPath, trg); err != nil {
		return fmt.Errorf("moving %s into place: %w", trg, err)
	}
	tempPath = ""
	return nil
}
