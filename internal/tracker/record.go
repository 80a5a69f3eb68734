package tracker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"hard-sync/internal/fs"
)

// FileRecord is the identity of one tracked file: its path, size, timestamps and content hash.
// The whole file is held in memory so the hash can be recomputed without touching disk.
type FileRecord struct {
	Path            string `json:"path"`
	Size            int64  `json:"size"`
	LastModified    int64  `json:"last_modified"`
	Created         int64  `json:"created"`
	LastAccessed    int64  `json:"last_accessed"`
	Extension       string `json:"extension"`
	LastFileHash    string `json:"last_file_hash"`
	CurrentFileHash string `json:"current_file_hash"`

	content []byte
}

// NewFileRecord stats and reads the file at path and hashes its content.
// The previous hash equals the current one on first observation.
func NewFileRecord(fsys afero.Fs, path string) (*FileRecord, error) {
	info, err := fsys.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", path)
	}

	content, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	ts := fs.ReadTimestamps(path, info)
	hash := hashContent(content)

	return &FileRecord{
		Path:            path,
		Size:            int64(len(content)),
		LastModified:    ts.Modified,
		Created:         ts.Created,
		LastAccessed:    ts.Accessed,
		Extension:       extensionOf(path),
		LastFileHash:    hash,
		CurrentFileHash: hash,
		content:         content,
	}, nil
}

// UpdateHash moves the current hash into the previous slot and rehashes
// the in-memory content. It does not re-read the file.
func (r *FileRecord) UpdateHash() {
	r.LastFileHash = r.CurrentFileHash
	r.CurrentFileHash = hashContent(r.content)
}

// RelativePath returns the record's path relative to base.
func (r *FileRecord) RelativePath(base string) (string, error) {
	rel, ok := fs.RelativeTo(base, r.Path)
	if !ok {
		return "", fmt.Errorf("%s is not under %s", r.Path, base)
	}
	return rel, nil
}

// hashContent returns the SHA-256 of data as lowercase hex.
func hashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// extensionOf returns the file extension without the leading dot.
func extensionOf(path string) string {
	ext := filepath.Ext(path)
	if ext == "" {
		return ""
	}
	return ext[1:]
}
