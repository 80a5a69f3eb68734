//go:build linux

package fs

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// ReadTimestamps extracts mtime, atime and creation time for path.
// Creation time is the statx birth time when the filesystem records one,
// otherwise the inode change time.
func ReadTimestamps(path string, info os.FileInfo) Timestamps {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return fallbackTimestamps(info)
	}

	ts := Timestamps{
		Modified: info.ModTime().Unix(),
		Accessed: int64(stat.Atim.Sec),
		Created:  int64(stat.Ctim.Sec),
	}

	var stx unix.Statx_t
	err := unix.Statx(unix.AT_FDCWD, path, unix.AT_SYMLINK_NOFOLLOW, unix.STATX_BTIME, &stx)
	if err == nil && stx.Mask&unix.STATX_BTIME != 0 {
		ts.Created = stx.Btime.Sec
	}

	return ts
}
