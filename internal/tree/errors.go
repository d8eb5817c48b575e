package tree

import (
	"errors"
	"fmt"

	"github.com/hupe1980/rectree/internal/resource"
)

var (
	// ErrNotConfigured is returned by operations on a tree that was Reset and not Set again.
	ErrNotConfigured = errors.New("tree: not configured")
	// ErrTreeFull is returned when no slot is available for an insert.
	ErrTreeFull = errors.New("tree: full")
	// ErrMemoryLimitExceeded is returned when an operation would cross the memory ceiling.
	ErrMemoryLimitExceeded = resource.ErrMemoryLimitExceeded
	// ErrNotFound is returned when a key is not in the tree.
	ErrNotFound = errors.New("tree: key not found")
	// ErrUnknownNamespace is returned for a namespace the registry does not recognize.
	ErrUnknownNamespace = errors.New("tree: unknown namespace")
	// ErrInvalidKey is returned for a key of the wrong width.
	ErrInvalidKey = errors.New("tree: invalid key")
	// ErrInvalidData is returned for a payload that does not fit the data mode.
	ErrInvalidData = errors.New("tree: invalid data")
	// ErrLogicalUse marks programming errors that must not be continued past.
	ErrLogicalUse = errors.New("tree: logical use error")
	// ErrDoubleDelete is returned when deleting a slot that is already free.
	ErrDoubleDelete = errors.New("tree: slot already free")
	// ErrCorrupt is returned when a structural invariant does not hold.
	ErrCorrupt = errors.New("tree: corruption detected")
	// ErrRepairFailed is returned when a rebuilt tree still fails its check.
	ErrRepairFailed = errors.New("tree: repair failed")
	// ErrSaveInProgress is returned when a save is requested while one is running.
	ErrSaveInProgress = errors.New("tree: save already in progress")
	// ErrNothingToSave is returned when a save is requested for a clean tree.
	ErrNothingToSave = errors.New("tree: nothing to save")
	// ErrIncompatibleFormat is returned when a saved file does not match the tree's configuration.
	ErrIncompatibleFormat = errors.New("tree: incompatible file format")
)

// CorruptionError describes one failed integrity check.
type CorruptionError struct {
	Slot   int32 // Nil for tree-wide findings
	Reason string
	Err    error // underlying validation error, if any
}

func (e *CorruptionError) Error() string {
	if e.Slot < 0 {
		return fmt.Sprintf("tree: corrupt: %s", e.Reason)
	}
	return fmt.Sprintf("tree: corrupt slot %d: %s", e.Slot, e.Reason)
}

func (e *CorruptionError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrCorrupt, e.Err}
	}
	return []error{ErrCorrupt}
}

func corruptf(slot int32, format string, args ...any) error {
	return &CorruptionError{Slot: slot, Reason: fmt.Sprintf(format, args...)}
}
