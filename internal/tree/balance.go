package tree

import (
	"math"

	"github.com/hupe1980/rectree/internal/arena"
)

const slotUsed = arena.SlotUsed

func (t *Tree) height(i int32) int {
	if i == Nil {
		return 0
	}
	return int(t.a.Depth[i])
}

// maxDepth saturates stored depths of unbalanced trees.
const maxDepth = math.MaxUint8

func (t *Tree) subtreeDepth(i int32) uint8 {
	return uint8(min(maxDepth, 1+max(t.height(t.a.Left[i]), t.height(t.a.Right[i]))))
}

func (t *Tree) updateDepth(i int32) {
	t.a.Depth[i] = t.subtreeDepth(i)
}

// replaceChild points parent's link to old at repl instead.
func (t *Tree) replaceChild(parent, old, repl int32) {
	switch {
	case parent == Nil:
		t.root = repl
	case t.a.Left[parent] == old:
		t.a.Left[parent] = repl
	default:
		t.a.Right[parent] = repl
	}
	if repl != Nil {
		t.a.Parent[repl] = parent
	}
}

func (t *Tree) rotateLeft(x int32) int32 {
	a := t.a
	y := a.Right[x]
	p := a.Parent[x]

	a.Right[x] = a.Left[y]
	if a.Left[y] != Nil {
		a.Parent[a.Left[y]] = x
	}
	a.Left[y] = x
	a.Parent[x] = y
	t.replaceChild(p, x, y)

	t.updateDepth(x)
	t.updateDepth(y)
	return y
}

func (t *Tree) rotateRight(x int32) int32 {
	a := t.a
	y := a.Left[x]
	p := a.Parent[x]

	a.Left[x] = a.Right[y]
	if a.Right[y] != Nil {
		a.Parent[a.Right[y]] = x
	}
	a.Right[y] = x
	a.Parent[x] = y
	t.replaceChild(p, x, y)

	t.updateDepth(x)
	t.updateDepth(y)
	return y
}

// fix restores balance at i and returns the slot now at i's position.
func (t *Tree) fix(i int32) int32 {
	if !t.cfg.DisableBalancing {
		l, r := t.a.Left[i], t.a.Right[i]
		switch t.height(r) - t.height(l) {
		case 2:
			if t.height(t.a.Left[r]) > t.height(t.a.Right[r]) {
				t.rotateRight(r)
			}
			return t.rotateLeft(i)
		case -2:
			if t.height(t.a.Right[l]) > t.height(t.a.Left[l]) {
				t.rotateLeft(l)
			}
			return t.rotateRight(i)
		}
	}
	t.updateDepth(i)
	return i
}

// rebalance walks from i to the root, fixing each position, and stops at
// the first position whose subtree height did not change.
func (t *Tree) rebalance(i int32) {
	for i != Nil {
		before := t.a.Depth[i]
		i = t.fix(i)
		if t.a.Depth[i] == before {
			return
		}
		i = t.a.Parent[i]
	}
}
