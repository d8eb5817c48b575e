// Package namespace defines the namespace registry a tree consults.
//
// Many logical namespaces (collections) share one physical tree; records are
// ordered by (namespace id, key). The registry answers two questions for the
// tree: does namespace N still exist, and which counters track its live and
// tombstone records.
package namespace

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"
)

// ID identifies a namespace.
type ID uint16

// MaxID is the largest representable namespace id.
const MaxID = ID(^uint16(0))

// Counters tracks live and tombstone records of one namespace.
// Fields are atomic so readers need not take the tree lock.
type Counters struct {
	Live       atomic.Int64
	Tombstones atomic.Int64
}

// Add applies deltas to both counters.
func (c *Counters) Add(live, tombstones int64) {
	if live != 0 {
		c.Live.Add(live)
	}
	if tombstones != 0 {
		c.Tombstones.Add(tombstones)
	}
}

// Registry is the collaborator a tree uses to validate namespaces and
// publish per-namespace counts.
type Registry interface {
	// Exists reports whether the namespace is still recognized.
	Exists(id ID) bool
	// Counters returns the counters for id, or nil if id lies outside the
	// registry's range. Counters of a dropped namespace remain addressable.
	Counters(id ID) *Counters
}

// Set is an in-memory Registry with a fixed id range.
type Set struct {
	mu       sync.RWMutex
	live     *roaring.Bitmap
	counters []Counters
}

var _ Registry = (*Set)(nil)

// NewSet creates a registry accepting ids in [0, size).
func NewSet(size int) *Set {
	if size <= 0 || size > int(MaxID)+1 {
		size = int(MaxID) + 1
	}
	return &Set{
		live:     roaring.New(),
		counters: make([]Counters, size),
	}
}

// NewOpenSet creates a registry in which every id exists.
func NewOpenSet() *Set {
	s := NewSet(0)
	s.live.AddRange(0, uint64(MaxID)+1)
	return s
}

// Add registers namespace id.
func (s *Set) Add(id ID) error {
	if int(id) >= len(s.counters) {
		return fmt.Errorf("namespace: id %d outside registry range %d", id, len(s.counters))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live.Add(uint32(id))
	return nil
}

// Remove drops namespace id. Its counters stay addressable.
func (s *Set) Remove(id ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live.Remove(uint32(id))
}

// Exists implements Registry.
func (s *Set) Exists(id ID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live.Contains(uint32(id))
}

// Counters implements Registry.
func (s *Set) Counters(id ID) *Counters {
	if int(id) >= len(s.counters) {
		return nil
	}
	return &s.counters[id]
}

// IDs returns a copy of the registered ids as a bitmap.
func (s *Set) IDs() *roaring.Bitmap {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live.Clone()
}

// Len returns the number of registered namespaces.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int(s.live.GetCardinality())
}
