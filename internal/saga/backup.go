package saga

import (
	"errors"
	"fmt"
	"os"
	"path"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// BackupSuffix is appended to a file's path to name its backup.
const BackupSuffix = ".bak"

const filePerm = 0o644

// FileGuard protects one file that is about to be rewritten.
type FileGuard struct {
	fs       billy.Filesystem
	path     string
	existed  bool
	original []byte
}

// GuardFile prepares name for mutation and registers its compensation on rb.
//
// An existing file is copied to <name>.bak and snapshotted in memory; the
// registered action restores it, preferring the backup, and removes the
// backup. A missing file gets an action that deletes whatever is written in
// its place.
func GuardFile(fs billy.Filesystem, name string, rb *Rollback) (*FileGuard, error) {
	g := &FileGuard{fs: fs, path: name}

	data, err := util.ReadFile(fs, name)
	switch {
	case errors.Is(err, os.ErrNotExist):
		rb.Add("remove "+name, func() error {
			return removeIfExists(fs, name)
		})
		return g, nil
	case err != nil:
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}

	g.existed = true
	g.original = data
	if err := util.WriteFile(fs, g.BackupPath(), data, filePerm); err != nil {
		// a partial backup must not outlive this call
		_ = removeIfExists(fs, g.BackupPath())
		return nil, fmt.Errorf("backing up %s: %w", name, err)
	}
	rb.Add("restore "+name, g.restore)
	return g, nil
}

// Existed reports whether the file was present when guarded.
func (g *FileGuard) Existed() bool { return g.existed }

// Original returns the content the file had when guarded, or nil.
func (g *FileGuard) Original() []byte { return g.original }

// BackupPath returns the path of the backup sibling.
func (g *FileGuard) BackupPath() string { return g.path + BackupSuffix }

// Write stores data at the guarded path, creating parent directories.
func (g *FileGuard) Write(data []byte) error {
	if err := g.fs.MkdirAll(path.Dir(g.path), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", g.path, err)
	}
	if err := util.WriteFile(g.fs, g.path, data, filePerm); err != nil {
		return fmt.Errorf("writing %s: %w", g.path, err)
	}
	return nil
}

// Commit deletes the backup after a successful write. The in-memory snapshot
// keeps the registered restore usable if a later stage fails.
func (g *FileGuard) Commit() error {
	if !g.existed {
		return nil
	}
	if err := removeIfExists(g.fs, g.BackupPath()); err != nil {
		return fmt.Errorf("removing backup of %s: %w", g.path, err)
	}
	return nil
}

func (g *FileGuard) restore() error {
	content := g.original
	backup, err := util.ReadFile(g.fs, g.BackupPath())
	switch {
	case err == nil:
		content = backup
	case !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("reading backup of %s: %w", g.path, err)
	}
	if err := util.WriteFile(g.fs, g.path, content, filePerm); err != nil {
		return fmt.Errorf("restoring %s: %w", g.path, err)
	}
	return removeIfExists(g.fs, g.BackupPath())
}

// Snapshot registers an in-memory restore of name's current content without
// writing a backup file. Missing files are not registered; ok reports whether
// the file was present.
func Snapshot(fs billy.Filesystem, name string, rb *Rollback) (content []byte, ok bool, err error) {
	data, err := util.ReadFile(fs, name)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading %s: %w", name, err)
	}
	rb.Add("restore "+name, func() error {
		return util.WriteFile(fs, name, data, filePerm)
	})
	return data, true, nil
}

// RemoveTree registers deletion of the directory tree at dir.
func RemoveTree(fs billy.Filesystem, dir string, rb *Rollback) {
	rb.Add("remove tree "+dir, func() error {
		return util.RemoveAll(fs, dir)
	})
}

func removeIfExists(fs billy.Filesystem, name string) error {
	if err := fs.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
