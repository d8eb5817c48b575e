package tree

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
	"github.com/hupe1980/rectree/internal/arena"
	"github.com/hupe1980/rectree/namespace"
)

// Check verifies every structural invariant and returns the first
// violation as a *CorruptionError.
func (t *Tree) Check() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.a == nil {
		return ErrNotConfigured
	}
	return t.check()
}

func (t *Tree) check() error {
	if err := t.checkFreeList(); err != nil {
		return err
	}
	if err := t.checkStructure(); err != nil {
		return err
	}
	return t.checkCounts()
}

func (t *Tree) checkFreeList() error {
	a := t.a
	hw := a.HighWater()
	listed := bitset.New(uint(hw))

	for _, i := range a.FreeList() {
		switch {
		case i < 0 || i >= hw:
			return corruptf(i, "free list entry beyond high water %d", hw)
		case a.State[i] != arena.SlotFree:
			return corruptf(i, "free list entry is %s", a.State[i])
		case listed.Test(uint(i)):
			return corruptf(i, "listed twice on the free list")
		}
		listed.Set(uint(i))
	}

	for i := int32(0); i < hw; i++ {
		switch a.State[i] {
		case arena.SlotFree:
			if !listed.Test(uint(i)) {
				return corruptf(i, "free slot missing from the free list")
			}
		case arena.SlotVirgin:
			return corruptf(i, "virgin slot below high water %d", hw)
		}
	}
	return nil
}

func (t *Tree) checkStructure() error {
	a := t.a
	reached := bitset.New(uint(a.HighWater()))

	if t.root != Nil {
		if !t.occupied(t.root) {
			return corruptf(t.root, "root is not occupied")
		}
		if p := a.Parent[t.root]; p != Nil {
			return corruptf(t.root, "root has parent %d", p)
		}

		stack := []int32{t.root}
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			if reached.Test(uint(i)) {
				return corruptf(i, "reached twice from the root")
			}
			reached.Set(uint(i))
			if err := t.checkSlot(i); err != nil {
				return err
			}

			for side, c := range [2]int32{a.Left[i], a.Right[i]} {
				if c == Nil {
					continue
				}
				if !t.occupied(c) {
					return corruptf(i, "child %d is not occupied", c)
				}
				if p := a.Parent[c]; p != i {
					return corruptf(c, "parent is %d, want %d", p, i)
				}
				cmp := t.compareSlots(c, i)
				if (side == 0 && cmp >= 0) || (side == 1 && cmp <= 0) {
					return corruptf(c, "out of order under parent %d", i)
				}
				stack = append(stack, c)
			}
		}
	}

	if n := reached.Count(); n != uint(a.Used()) {
		return corruptf(Nil, "%d of %d occupied slots reachable from the root", n, a.Used())
	}

	// In-order walk catches misordering deeper than one level.
	if t.root != Nil {
		prev := t.leftmost(t.root)
		for i := t.successor(prev); i != Nil; prev, i = i, t.successor(i) {
			if t.compareSlots(prev, i) >= 0 {
				return corruptf(i, "in-order sequence broken after slot %d", prev)
			}
		}
	}
	return nil
}

func (t *Tree) checkSlot(i int32) error {
	a := t.a
	if want := t.subtreeDepth(i); a.Depth[i] != want {
		return corruptf(i, "depth %d, want %d", a.Depth[i], want)
	}
	if !t.cfg.DisableBalancing {
		l, r := t.height(a.Left[i]), t.height(a.Right[i])
		if l-r > 1 || r-l > 1 {
			return corruptf(i, "unbalanced: left height %d, right height %d", l, r)
		}
	}
	if err := t.validSlot(i); err != nil {
		return &CorruptionError{Slot: i, Reason: "invalid record", Err: err}
	}
	return nil
}

// validSlot checks a record on its own merits: namespace, payload shape and
// the validator hook. It reads no links, so it is safe on a broken tree.
func (t *Tree) validSlot(i int32) error {
	a := t.a
	ns := namespace.ID(a.NS[i])
	if !t.registry.Exists(ns) {
		return fmt.Errorf("%w: %d", ErrUnknownNamespace, ns)
	}

	key := a.Key(i)
	data := t.data(i)
	if err := t.checkData(data, IsTombstone(key)); err != nil {
		return err
	}
	if t.validator != nil {
		if err := t.validator(ns, key, data); err != nil {
			return fmt.Errorf("tree: validator: %w", err)
		}
	}
	return nil
}

func (t *Tree) checkCounts() error {
	used := int64(t.a.Used())
	if t.live+t.tombstones != used {
		return corruptf(Nil, "live %d + tombstones %d != occupied %d", t.live, t.tombstones, used)
	}

	var live, tombstones int64
	for _, tl := range t.tallies {
		live += tl.live
		tombstones += tl.tombstones
	}
	if live != t.live || tombstones != t.tombstones {
		return corruptf(Nil, "namespace tallies %d/%d != totals %d/%d", live, tombstones, t.live, t.tombstones)
	}
	return nil
}
