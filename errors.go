package rectree

import (
	"errors"
	"fmt"

	"github.com/hupe1980/rectree/internal/tree"
)

// Errors returned by Tree methods. Internal errors wrap these, so test
// with errors.Is.
var (
	ErrNotConfigured       = tree.ErrNotConfigured
	ErrTreeFull            = tree.ErrTreeFull
	ErrMemoryLimitExceeded = tree.ErrMemoryLimitExceeded
	ErrNotFound            = tree.ErrNotFound
	ErrUnknownNamespace    = tree.ErrUnknownNamespace
	ErrInvalidKey          = tree.ErrInvalidKey
	ErrInvalidData         = tree.ErrInvalidData
	ErrLogicalUse          = tree.ErrLogicalUse
	ErrDoubleDelete        = tree.ErrDoubleDelete
	ErrCorrupt             = tree.ErrCorrupt
	ErrRepairFailed        = tree.ErrRepairFailed
	ErrSaveInProgress      = tree.ErrSaveInProgress
	ErrNothingToSave       = tree.ErrNothingToSave
	ErrIncompatibleFormat  = tree.ErrIncompatibleFormat
)

var (
	// ErrNoBlobStore is returned by Restore when no blob store is configured.
	ErrNoBlobStore = errors.New("rectree: no blob store configured")
	// ErrMirrorFailed wraps failures to copy a saved file to the blob store.
	// The local save succeeded when this is reported.
	ErrMirrorFailed = errors.New("rectree: mirror failed")
)

// CorruptionError describes the first integrity violation Check found.
type CorruptionError = tree.CorruptionError

// FatalError is handed to the fatal handler for errors that mean the caller
// or the tree itself is broken beyond recovery.
type FatalError struct {
	Op    string
	cause error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("rectree: fatal error in %s: %v", e.Op, e.cause)
}

func (e *FatalError) Unwrap() error { return e.cause }

func isFatal(err error) bool {
	return errors.Is(err, ErrLogicalUse) || errors.Is(err, ErrRepairFailed)
}
