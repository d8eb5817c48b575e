// Package rectree provides the in-memory sorted tree that fronts a record
// store: an arena-backed, self-balancing tree of fixed-width keys grouped
// into namespaces, with optional payloads, tombstones, bounded range
// extraction, block-compressed persistence and integrity repair.
//
// # Quick Start
//
//	t, _ := rectree.New(rectree.Config{
//	    Name:     "posdb",
//	    KeySize:  16,
//	    DataSize: rectree.VariableData,
//	    Capacity: 1 << 16,
//	    OwnsData: true,
//	})
//	defer t.Close()
//
//	t.Add(ns, key, payload)
//	list, _ := t.GetList(ns, start, end, rectree.ListOptions{MaxBytes: 1 << 20})
//
// # Keys and Tombstones
//
// Keys compare as big-endian byte strings. The lowest bit of a key's last
// byte is the delete bit: set for a live record, clear for a tombstone.
// Ordering ignores it, so a tombstone replaces the live record with the
// same key in place, and vice versa. Use Live, Tombstone and IsTombstone.
//
// # Persistence
//
// Save copies the slot arrays under the tree's lock and writes
// "<name>-saving.dat" in the background, renaming it to "<name>-saved.dat"
// once complete. With a blob store configured the saved file is mirrored
// after every save, and Restore pulls it back on another node:
//
//	store := s3.NewStore(client, "bucket", "trees/")
//	t, _ := rectree.New(cfg, rectree.WithBlobStore(store))
//	t.Save(ctx, dir, nil)
//	...
//	t.Restore(ctx, dir)
//
// # Integrity
//
// Load rebuilds the free list and all counters from the slots and runs
// Check. With WithAutoRepair a damaged tree is rebuilt from every record
// that still validates; a repair that cannot produce a valid tree is fatal.
package rectree
