// Package tree implements an arena-backed AVL tree of fixed-width keys
// grouped by namespace.
//
// Records live in the parallel slot arrays of an arena.Arena and link to one
// another by slot index. Keys carry a delete bit in the lowest bit of their
// last byte: a record whose bit is clear is a tombstone. A live record and
// its tombstone share one position, so inserting either replaces the other.
//
// The package also owns the on-disk format (Save, Load, ReadHeader) and the
// integrity checker and repairer (Check, Repair).
package tree
