package tree

import (
	"errors"
	"fmt"

	"github.com/hupe1980/rectree/internal/arena"
	"github.com/hupe1980/rectree/namespace"
)

// Insert adds (ns, key) → data, or replaces the record already stored under
// (ns, key). The delete bit of key decides whether the record is live or a
// tombstone; tombstones never carry data. It returns the record's slot and
// whether an existing record was replaced.
func (t *Tree) Insert(ns namespace.ID, key, data []byte) (int32, bool, error) {
	if err := t.checkKey(key); err != nil {
		return Nil, false, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.a == nil {
		return Nil, false, ErrNotConfigured
	}
	return t.insert(ns, key, data)
}

func (t *Tree) insert(ns namespace.ID, key, data []byte) (int32, bool, error) {
	tomb := IsTombstone(key)
	if tomb {
		data = nil
	}
	if err := t.checkData(data, tomb); err != nil {
		return Nil, false, err
	}
	if !t.registry.Exists(ns) {
		return Nil, false, fmt.Errorf("%w: %d", ErrUnknownNamespace, ns)
	}

	parent, c := Nil, 0
	for i := t.root; i != Nil; {
		c = t.compare(ns, key, i)
		if c == 0 {
			return i, true, t.replace(i, key, data)
		}
		parent = i
		if c < 0 {
			i = t.a.Left[i]
		} else {
			i = t.a.Right[i]
		}
	}

	payload, err := t.keepPayload(data)
	if err != nil {
		return Nil, false, err
	}
	slot, err := t.a.Claim()
	if err != nil {
		t.dropPayload(payload)
		if errors.Is(err, arena.ErrCorruptFreeList) {
			t.corrupt = true
			t.logger.Error("free list corrupt", "name", t.cfg.Name, "error", err)
		}
		return Nil, false, translateArenaErr(err)
	}

	a := t.a
	a.NS[slot] = uint16(ns)
	a.SetKey(slot, key)
	if a.Data != nil {
		a.Data[slot] = payload
	}

	a.Parent[slot] = parent
	switch {
	case parent == Nil:
		t.root = slot
	case c < 0:
		a.Left[parent] = slot
	default:
		a.Right[parent] = slot
	}
	t.rebalance(parent)

	t.count(ns, tomb, 1)
	t.dirty = true
	return slot, false, nil
}

// replace overwrites slot i in place. Key bytes are equal apart from the
// delete bit, so only the tombstone state and the payload change.
func (t *Tree) replace(i int32, key, data []byte) error {
	payload, err := t.keepPayload(data)
	if err != nil {
		return err
	}

	a := t.a
	ns := namespace.ID(a.NS[i])
	wasTomb := IsTombstone(a.Key(i))
	if a.Data != nil {
		t.dropPayload(a.Data[i])
		a.Data[i] = payload
	}
	a.SetKey(i, key)

	t.count(ns, wasTomb, -1)
	t.count(ns, IsTombstone(key), 1)
	t.dirty = true
	return nil
}

// count moves the global, per-tree and registry counters by delta.
func (t *Tree) count(ns namespace.ID, tomb bool, delta int64) {
	tl := t.tallies[ns]
	if tl == nil {
		tl = &tally{}
		t.tallies[ns] = tl
	}
	c := t.registry.Counters(ns)

	if tomb {
		t.tombstones += delta
		tl.tombstones += delta
		if c != nil {
			c.Add(0, delta)
		}
	} else {
		t.live += delta
		tl.live += delta
		if c != nil {
			c.Add(delta, 0)
		}
	}

	if tl.live == 0 && tl.tombstones == 0 {
		delete(t.tallies, ns)
	}
}
