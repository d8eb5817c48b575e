// Package arena provides the slot arena behind a tree.
//
// Slots are addressed by int32 index into a set of parallel arrays (key,
// namespace id, left/right/parent index, depth, state and optional payload)
// instead of by pointer, so a tree of millions of records costs a handful of
// allocations and can be written to disk array by array.
//
// # Slot states
//
// Every slot is in exactly one [SlotState]: virgin (never handed out), used,
// or free. Freed slots are pushed on a free-list stack and handed out again
// before any virgin slot. Because the state is explicit, a stale index to a
// free slot can never be mistaken for a live record.
//
// # Memory
//
// Grow reserves memory for each array from a [MemoryAcquirer] before it
// allocates. A failed reservation rolls back the ones already made and leaves
// the arena untouched at its old capacity.
//
// # Concurrency
//
// Arena is not safe for concurrent use; the owning tree serializes access.
package arena
