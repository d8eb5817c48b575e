package tree

import "github.com/hupe1980/rectree/namespace"

// compare orders (ns, key) against slot i.
func (t *Tree) compare(ns namespace.ID, key []byte, i int32) int {
	if other := namespace.ID(t.a.NS[i]); ns != other {
		if ns < other {
			return -1
		}
		return 1
	}
	return CompareKeys(key, t.a.Key(i))
}

// compareSlots orders slot i against slot j.
func (t *Tree) compareSlots(i, j int32) int {
	return t.compare(namespace.ID(t.a.NS[i]), t.a.Key(i), j)
}

func (t *Tree) find(ns namespace.ID, key []byte) int32 {
	i := t.root
	for i != Nil {
		c := t.compare(ns, key, i)
		if c == 0 {
			return i
		}
		if c < 0 {
			i = t.a.Left[i]
		} else {
			i = t.a.Right[i]
		}
	}
	return Nil
}

// lowerBound returns the first slot ordered at or after (ns, key).
func (t *Tree) lowerBound(ns namespace.ID, key []byte) int32 {
	best := Nil
	i := t.root
	for i != Nil {
		c := t.compare(ns, key, i)
		if c == 0 {
			return i
		}
		if c < 0 {
			best = i
			i = t.a.Left[i]
		} else {
			i = t.a.Right[i]
		}
	}
	return best
}

func (t *Tree) leftmost(i int32) int32 {
	for t.a.Left[i] != Nil {
		i = t.a.Left[i]
	}
	return i
}

func (t *Tree) rightmost(i int32) int32 {
	for t.a.Right[i] != Nil {
		i = t.a.Right[i]
	}
	return i
}

func (t *Tree) successor(i int32) int32 {
	if r := t.a.Right[i]; r != Nil {
		return t.leftmost(r)
	}
	p := t.a.Parent[i]
	for p != Nil && t.a.Right[p] == i {
		i, p = p, t.a.Parent[p]
	}
	return p
}

func (t *Tree) predecessor(i int32) int32 {
	if l := t.a.Left[i]; l != Nil {
		return t.rightmost(l)
	}
	p := t.a.Parent[i]
	for p != Nil && t.a.Left[p] == i {
		i, p = p, t.a.Parent[p]
	}
	return p
}

// Find returns the slot holding (ns, key), live or tombstone. A missing
// record yields Nil and ErrNotFound.
func (t *Tree) Find(ns namespace.ID, key []byte) (int32, error) {
	if err := t.checkKey(key); err != nil {
		return Nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.a == nil {
		return Nil, ErrNotConfigured
	}
	if i := t.find(ns, key); i != Nil {
		return i, nil
	}
	return Nil, ErrNotFound
}

// LowerBound returns the first slot ordered at or after (ns, key), or Nil.
func (t *Tree) LowerBound(ns namespace.ID, key []byte) (int32, error) {
	if err := t.checkKey(key); err != nil {
		return Nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.a == nil {
		return Nil, ErrNotConfigured
	}
	return t.lowerBound(ns, key), nil
}

// Successor returns the in-order next slot after i, or Nil.
func (t *Tree) Successor(i int32) int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.occupied(i) {
		return Nil
	}
	return t.successor(i)
}

// Predecessor returns the in-order previous slot before i, or Nil.
func (t *Tree) Predecessor(i int32) int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.occupied(i) {
		return Nil
	}
	return t.predecessor(i)
}

// First returns the smallest slot, or Nil for an empty tree.
func (t *Tree) First() int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.a == nil || t.root == Nil {
		return Nil
	}
	return t.leftmost(t.root)
}

func (t *Tree) occupied(i int32) bool {
	return t.a != nil && i >= 0 && i < t.a.HighWater() && t.a.State[i] == slotUsed
}
