// Package sagatest provides filesystem fakes for exercising rollback paths.
package sagatest

import (
	"errors"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v5"
)

// ErrInjected is returned by operations a FailFS was told to fail.
var ErrInjected = errors.New("injected failure")

// FailFS wraps a filesystem and fails writes or removals of chosen paths.
// Paths are matched after cleaning; a pattern ending in "/" matches every
// path under that directory.
type FailFS struct {
	billy.Filesystem

	mu          sync.Mutex
	failWrites  []string
	failRemoves []string
}

// New wraps fs.
func New(fs billy.Filesystem) *FailFS {
	return &FailFS{Filesystem: fs}
}

// FailWrite makes every later write to name fail.
func (f *FailFS) FailWrite(name string) *FailFS {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWrites = append(f.failWrites, name)
	return f
}

// FailRemove makes every later removal of name fail.
func (f *FailFS) FailRemove(name string) *FailFS {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failRemoves = append(f.failRemoves, name)
	return f
}

// Reset clears every injected failure.
func (f *FailFS) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWrites = nil
	f.failRemoves = nil
}

func (f *FailFS) Create(filename string) (billy.File, error) {
	if f.matches(f.failWrites, filename) {
		return nil, &os.PathError{Op: "create", Path: filename, Err: ErrInjected}
	}
	return f.Filesystem.Create(filename)
}

func (f *FailFS) OpenFile(filename string, flag int, perm os.FileMode) (billy.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_TRUNC) != 0 && f.matches(f.failWrites, filename) {
		return nil, &os.PathError{Op: "open", Path: filename, Err: ErrInjected}
	}
	return f.Filesystem.OpenFile(filename, flag, perm)
}

func (f *FailFS) Remove(filename string) error {
	if f.matches(f.failRemoves, filename) {
		return &os.PathError{Op: "remove", Path: filename, Err: ErrInjected}
	}
	return f.Filesystem.Remove(filename)
}

func (f *FailFS) matches(patterns []string, name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	name = path.Clean(name)
	for _, p := range patterns {
		if strings.HasSuffix(p, "/") {
			if strings.HasPrefix(name+"/", p) {
				return true
			}
			continue
		}
		if path.Clean(p) == name {
			return true
		}
	}
	return false
}
