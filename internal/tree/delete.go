package tree

import (
	"fmt"

	"github.com/hupe1980/rectree/namespace"
)

// Delete removes the record stored under (ns, key), live or tombstone.
func (t *Tree) Delete(ns namespace.ID, key []byte) error {
	if err := t.checkKey(key); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.a == nil {
		return ErrNotConfigured
	}

	i := t.find(ns, key)
	if i == Nil {
		return ErrNotFound
	}
	return t.deleteSlot(i)
}

// DeleteSlot removes the record in slot i. Deleting a free slot is a
// logical-use error and changes nothing.
func (t *Tree) DeleteSlot(i int32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.a == nil {
		return ErrNotConfigured
	}
	if !t.occupied(i) {
		return fmt.Errorf("%w: slot %d: %w", ErrDoubleDelete, i, ErrLogicalUse)
	}
	return t.deleteSlot(i)
}

// DeleteRange removes every record of ns with start <= key <= end and
// returns how many were removed.
func (t *Tree) DeleteRange(ns namespace.ID, start, end []byte) (int, error) {
	if err := t.checkKey(start); err != nil {
		return 0, err
	}
	if err := t.checkKey(end); err != nil {
		return 0, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.a == nil {
		return 0, ErrNotConfigured
	}

	n := 0
	for i := t.lowerBound(ns, start); t.inRange(i, ns, end); {
		// Deletion relinks slots but never moves a record, so the
		// successor's slot stays valid.
		next := t.successor(i)
		if err := t.deleteSlot(i); err != nil {
			return n, err
		}
		n++
		i = next
	}
	return n, nil
}

// DeleteNamespace removes every record of ns and returns how many were removed.
func (t *Tree) DeleteNamespace(ns namespace.ID) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.a == nil {
		return 0, ErrNotConfigured
	}

	minKey := make([]byte, t.cfg.KeySize)
	n := 0
	for {
		i := t.lowerBound(ns, minKey)
		if i == Nil || namespace.ID(t.a.NS[i]) != ns {
			return n, nil
		}
		if err := t.deleteSlot(i); err != nil {
			return n, err
		}
		n++
	}
}

func (t *Tree) inRange(i int32, ns namespace.ID, end []byte) bool {
	return i != Nil && namespace.ID(t.a.NS[i]) == ns && CompareKeys(t.a.Key(i), end) <= 0
}

// deleteSlot unlinks slot i, splicing in its in-order neighbor when it has
// children, rebalances and releases the slot.
func (t *Tree) deleteSlot(i int32) error {
	a := t.a
	l, r, p := a.Left[i], a.Right[i], a.Parent[i]

	var start int32
	switch {
	case r != Nil:
		repl := t.leftmost(r)
		if repl == r {
			start = r
		} else {
			rp := a.Parent[repl]
			a.Left[rp] = a.Right[repl]
			if a.Right[repl] != Nil {
				a.Parent[a.Right[repl]] = rp
			}
			a.Right[repl] = r
			a.Parent[r] = repl
			start = rp
		}
		a.Left[repl] = l
		if l != Nil {
			a.Parent[l] = repl
		}
		t.replaceChild(p, i, repl)
		a.Depth[repl] = a.Depth[i]
	case l != Nil:
		// No right subtree: the left child is a single leaf under AVL, but
		// unbalanced trees need the general splice.
		repl := t.rightmost(l)
		if repl == l {
			start = l
		} else {
			rp := a.Parent[repl]
			a.Right[rp] = a.Left[repl]
			if a.Left[repl] != Nil {
				a.Parent[a.Left[repl]] = rp
			}
			a.Left[repl] = l
			a.Parent[l] = repl
			start = rp
		}
		a.Right[repl] = Nil
		t.replaceChild(p, i, repl)
		a.Depth[repl] = a.Depth[i]
	default:
		t.replaceChild(p, i, Nil)
		start = p
	}

	ns := namespace.ID(a.NS[i])
	tomb := IsTombstone(a.Key(i))
	if a.Data != nil {
		t.dropPayload(a.Data[i])
	}
	if err := a.Release(i); err != nil {
		return translateArenaErr(err)
	}

	t.rebalance(start)
	t.count(ns, tomb, -1)
	t.dirty = true
	return nil
}
