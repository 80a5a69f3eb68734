package testutil

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
)

// ErrInjected is returned by FailingFs for every write it is told to refuse.
var ErrInjected = errors.New("injected write failure")

// WriteTree creates files under root. Keys are slash-separated paths relative
// to root; parent directories are created as needed.
func WriteTree(t *testing.T, fsys afero.Fs, root string, files map[string]string) {
	t.Helper()

	if err := fsys.MkdirAll(root, 0755); err != nil {
		t.Fatalf("MkdirAll(%s) error = %v", root, err)
	}
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := fsys.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("MkdirAll(%s) error = %v", filepath.Dir(path), err)
		}
		if err := afero.WriteFile(fsys, path, []byte(content), 0644); err != nil {
			t.Fatalf("WriteFile(%s) error = %v", path, err)
		}
	}
}

// SetModTime sets both access and modification time of path.
func SetModTime(t *testing.T, fsys afero.Fs, path string, mtime time.Time) {
	t.Helper()
	if err := fsys.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("Chtimes(%s) error = %v", path, err)
	}
}

// ReadFile returns the content of path as a string.
func ReadFile(t *testing.T, fsys afero.Fs, path string) string {
	t.Helper()
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		t.Fatalf("ReadFile(%s) error = %v", path, err)
	}
	return string(data)
}

// Exists reports whether path exists on fsys.
func Exists(t *testing.T, fsys afero.Fs, path string) bool {
	t.Helper()
	ok, err := afero.Exists(fsys, path)
	if err != nil {
		t.Fatalf("Exists(%s) error = %v", path, err)
	}
	return ok
}

// FailingFs wraps an afero.Fs and refuses file creation under any of the
// listed path prefixes.
type FailingFs struct {
	afero.Fs
	FailUnder []string
}

// NewFailingFs returns a FailingFs that rejects writes below each prefix.
func NewFailingFs(base afero.Fs, prefixes ...string) *FailingFs {
	return &FailingFs{Fs: base, FailUnder: prefixes}
}

func (f *FailingFs) refuses(name string) bool {
	name = filepath.Clean(name)
	for _, prefix := range f.FailUnder {
		prefix = filepath.Clean(prefix)
		if name == prefix || strings.HasPrefix(name, prefix+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (f *FailingFs) Create(name string) (afero.File, error) {
	if f.refuses(name) {
		return nil, &os.PathError{Op: "create", Path: name, Err: ErrInjected}
	}
	return f.Fs.Create(name)
}

func (f *FailingFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE) != 0 && f.refuses(name) {
		return nil, &os.PathError{Op: "open", Path: name, Err: ErrInjected}
	}
	return f.Fs.OpenFile(name, flag, perm)
}

func (f *FailingFs) Name() string { return "FailingFs" }
