package app

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	"hard-sync/internal/hs"
)

// ConsoleProgress prints copy progress. On a terminal the current file is
// redrawn in place; otherwise one line is printed per completed file.
type ConsoleProgress struct {
	w   io.Writer
	tty bool
}

// NewConsoleProgress writes to f, redrawing in place when f is a terminal.
func NewConsoleProgress(f *os.File) *ConsoleProgress {
	return &ConsoleProgress{w: f, tty: term.IsTerminal(int(f.Fd()))}
}

// Report satisfies hs.ProgressFunc. It never aborts.
func (p *ConsoleProgress) Report(cp hs.CopyProgress) hs.CopyDecision {
	done := cp.FileBytesCopied >= cp.FileTotalBytes

	if p.tty {
		fmt.Fprintf(p.w, "\r\033[K%s %3d%% (%s / %s)",
			cp.FileName, cp.Percent(), humanize.Bytes(uint64(cp.CopiedBytes)), humanize.Bytes(uint64(cp.TotalBytes)))
		if done {
			fmt.Fprintln(p.w)
		}
		return hs.CopyContinue
	}

	if done {
		fmt.Fprintf(p.w, "copied %s (%s)\n", cp.FileName, humanize.Bytes(uint64(cp.FileTotalBytes)))
	}
	return hs.CopyContinue
}
