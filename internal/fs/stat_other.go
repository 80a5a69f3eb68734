//go:build !linux

package fs

import "os"

// ReadTimestamps extracts timestamps for path. Outside Linux only the
// modification time is portable, so all three fields carry it.
func ReadTimestamps(path string, info os.FileInfo) Timestamps {
	return fallbackTimestamps(info)
}
