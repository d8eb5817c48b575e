package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
)

// ErrNotFound is returned when a file or pointer does not exist.
var ErrNotFound = os.ErrNotExist

// ErrInvalidName is returned for names that would escape the store's root.
var ErrInvalidName = errors.New("blobstore: invalid name")

// Store holds whole files by name.
type Store interface {
	// Put stores the contents of r under name, replacing any previous file.
	// size is the number of bytes r yields, or -1 if unknown.
	Put(ctx context.Context, name string, r io.Reader, size int64) error

	// Get opens the named file for reading. The caller must close it.
	Get(ctx context.Context, name string) (io.ReadCloser, error)

	// Delete removes the named file. Deleting a missing file is not an error.
	Delete(ctx context.Context, name string) error

	// List returns the names that start with prefix, in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Committer is implemented by stores that track which upload of a file is current.
type Committer interface {
	// Commit points pointer at the already uploaded file name.
	Commit(ctx context.Context, pointer, name string) error

	// Current returns the file name pointer refers to.
	Current(ctx context.Context, pointer string) (string, error)
}

// PutBytes stores data under name.
func PutBytes(ctx context.Context, s Store, name string, data []byte) error {
	return s.Put(ctx, name, bytes.NewReader(data), int64(len(data)))
}

// GetBytes reads the whole named file.
func GetBytes(ctx context.Context, s Store, name string) ([]byte, error) {
	rc, err := s.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return io.ReadAll(rc)
}
