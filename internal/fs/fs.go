package fs

import (
	"io"
	"os"
	"path/filepath"
)

// File is an open tree file. Saves write and sync it; loads read it
// sequentially and Stat it to size mirror uploads.
type File interface {
	io.ReadWriteCloser
	Sync() error
	Stat() (os.FileInfo, error)
}

// FileSystem is the set of file operations persistence and restore use.
type FileSystem interface {
	// OpenFile opens name with os.OpenFile semantics.
	OpenFile(name string, flag int, perm os.FileMode) (File, error)
	// Remove deletes a leftover "-saving.dat" or "-restoring.dat" file.
	Remove(name string) error
	// Rename publishes a finished file under its final name. Implementations
	// must make the rename durable before returning.
	Rename(oldpath, newpath string) error
	Stat(name string) (os.FileInfo, error)
	MkdirAll(path string, perm os.FileMode) error
}

// LocalFS implements FileSystem on the local disk.
type LocalFS struct{}

// OpenFile implements FileSystem.
func (LocalFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	return os.OpenFile(name, flag, perm)
}

// Remove implements FileSystem.
func (LocalFS) Remove(name string) error { return os.Remove(name) }

// Rename implements FileSystem. The parent directory of newpath is synced
// so the new name survives a crash.
func (LocalFS) Rename(oldpath, newpath string) error {
	if err := os.Rename(oldpath, newpath); err != nil {
		return err
	}
	syncDir(filepath.Dir(newpath))
	return nil
}

// Stat implements FileSystem.
func (LocalFS) Stat(name string) (os.FileInfo, error) { return os.Stat(name) }

// MkdirAll implements FileSystem.
func (LocalFS) MkdirAll(path string, perm os.FileMode) error { return os.MkdirAll(path, perm) }

// syncDir flushes directory metadata. Some platforms cannot open or sync a
// directory; the rename itself has already succeeded there.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

// Default is the local file system.
var Default FileSystem = LocalFS{}

// Exists reports whether name exists on fsys.
func Exists(fsys FileSystem, name string) bool {
	_, err := fsys.Stat(name)
	return err == nil
}
