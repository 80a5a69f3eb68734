package hs

// CopyProgress is reported once per chunk written during a bulk copy.
type CopyProgress struct {
	FileName        string // base name of the file being copied
	FileBytesCopied int64
	FileTotalBytes  int64
	CopiedBytes     int64 // across the whole copy operation
	TotalBytes      int64
}

// Percent returns the completion of the current file in the range [0, 100].
func (p CopyProgress) Percent() int {
	if p.FileTotalBytes <= 0 {
		return 100
	}
	return int(p.FileBytesCopied * 100 / p.FileTotalBytes)
}

// CopyDecision tells the copier whether to keep going after a chunk.
type CopyDecision int

const (
	CopyContinue CopyDecision = iota
	CopyAbort
)

// ProgressFunc is invoked synchronously on the copying goroutine after every chunk.
// Returning CopyAbort stops the current copy operation before its next chunk.
type ProgressFunc func(CopyProgress) CopyDecision

// ContinueAlways is a ProgressFunc that never aborts.
func ContinueAlways(CopyProgress) CopyDecision { return CopyContinue }
