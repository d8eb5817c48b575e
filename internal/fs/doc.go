// Package fs provides the file-system seam used by tree persistence.
//
//   - [LocalFS]: production implementation on top of package os
//   - [FaultyFS]: test wrapper that fails opens, writes, syncs, closes or
//     renames of files whose name matches a pattern
//
// Saves write "<name>-saving.dat" and rename it to "<name>-saved.dat", so the
// interface only needs open, rename, remove, stat and mkdir.
//
// This package intentionally does NOT take context.Context parameters: local
// file operations are not interruptible at the syscall level.
package fs
