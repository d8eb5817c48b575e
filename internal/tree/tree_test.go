package tree

import (
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/hupe1980/rectree/internal/arena"
	"github.com/hupe1980/rectree/internal/resource"
	"github.com/hupe1980/rectree/internal/testutil"
	"github.com/hupe1980/rectree/namespace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	k := key(5)
	assert.False(t, IsTombstone(k))
	assert.True(t, IsTombstone(Tombstone(k)))
	assert.Equal(t, k, Live(Tombstone(k)))
	assert.Zero(t, CompareKeys(k, Tombstone(k)))
	assert.Negative(t, CompareKeys(key(4), tomb(5)))
	assert.Positive(t, CompareKeys(tomb(6), key(5)))

	s := KeyFromString("ab", 4)
	assert.Equal(t, []byte{'a', 'b', 0, 1}, s)
	assert.Equal(t, []byte{'a', 'b', 'c', 1}, KeyFromString("abcdef", 4))
	assert.Equal(t, []byte{1}, KeyFromString("abc", 1))
	assert.Nil(t, KeyFromString("abc", 0))
	assert.Nil(t, KeyFromString("abc", -3))
}

func TestTree_InsertKeepsOrder(t *testing.T) {
	tr := newTree(t, Config{})
	rng := testutil.NewRNG(1)

	want := make([]uint64, 0, 500)
	for _, n := range rng.Perm(500) {
		mustInsert(t, tr, 0, key(uint64(n)), nil)
		want = append(want, uint64(n))
	}
	slices.Sort(want)

	got := make([]uint64, 0, 500)
	for i := tr.First(); i != Nil; i = tr.Successor(i) {
		_, k, err := tr.Slot(i)
		require.NoError(t, err)
		got = append(got, keyNum(k))
	}
	assert.Equal(t, want, got)
	assert.NoError(t, tr.Check())
	assert.LessOrEqual(t, tr.Height(), avlBound(500))
}

func avlBound(n int) int {
	return int(1.45*math.Log2(float64(n+2))) + 1
}

func TestTree_SequentialInsertStaysBalanced(t *testing.T) {
	tr := newTree(t, Config{Capacity: 4096})
	for n := range uint64(4000) {
		mustInsert(t, tr, 0, key(n), nil)
	}
	require.NoError(t, tr.Check())
	assert.LessOrEqual(t, tr.Height(), avlBound(4000))
}

func TestTree_DisableBalancing(t *testing.T) {
	tr := newTree(t, Config{DisableBalancing: true})
	for n := range uint64(100) {
		mustInsert(t, tr, 0, key(n), nil)
	}
	assert.Equal(t, 100, tr.Height())
	assert.NoError(t, tr.Check())

	require.NoError(t, tr.Delete(0, key(50)))
	assert.Equal(t, 99, tr.Height())
	assert.NoError(t, tr.Check())
}

func TestTree_FindPredecessorLowerBound(t *testing.T) {
	tr := newTree(t, Config{})
	for _, n := range []uint64{10, 20, 30} {
		mustInsert(t, tr, 1, key(n), nil)
	}
	mustInsert(t, tr, 2, key(5), nil)

	i, err := tr.Find(1, key(20))
	require.NoError(t, err)
	require.NotEqual(t, Nil, i)

	// Lookups ignore the delete bit.
	j, err := tr.Find(1, tomb(20))
	require.NoError(t, err)
	assert.Equal(t, i, j)

	missing, err := tr.Find(1, key(25))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, Nil, missing)

	// Same key, other namespace.
	_, err = tr.Find(3, key(20))
	assert.ErrorIs(t, err, ErrNotFound)

	lb, err := tr.LowerBound(1, key(25))
	require.NoError(t, err)
	_, k, _ := tr.Slot(lb)
	assert.Equal(t, uint64(30), keyNum(k))

	// Past the end of namespace 1 the next slot belongs to namespace 2.
	lb, err = tr.LowerBound(1, key(31))
	require.NoError(t, err)
	ns, _, _ := tr.Slot(lb)
	assert.Equal(t, namespace.ID(2), ns)

	p := tr.Predecessor(i)
	_, k, _ = tr.Slot(p)
	assert.Equal(t, uint64(10), keyNum(k))
	assert.Equal(t, Nil, tr.Predecessor(p))

	_, err = tr.Find(1, []byte{1})
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestTree_ReplaceInPlace(t *testing.T) {
	tr := newTree(t, Config{DataSize: VariableData, OwnsData: true})
	slot := mustInsert(t, tr, 0, key(1), []byte("one"))

	got, replaced, err := tr.Insert(0, key(1), []byte("uno"))
	require.NoError(t, err)
	assert.True(t, replaced)
	assert.Equal(t, slot, got)
	assert.Equal(t, 1, tr.Used())

	data, err := tr.Get(0, key(1))
	require.NoError(t, err)
	assert.Equal(t, []byte("uno"), data)
}

func TestTree_OwnsDataCopies(t *testing.T) {
	buf := []byte("abc")

	owned := newTree(t, Config{DataSize: VariableData, OwnsData: true})
	mustInsert(t, owned, 0, key(1), buf)
	borrowed := newTree(t, Config{DataSize: VariableData})
	mustInsert(t, borrowed, 0, key(1), buf)

	buf[0] = 'x'
	d, _ := owned.Get(0, key(1))
	assert.Equal(t, []byte("abc"), d)
	d, _ = borrowed.Get(0, key(1))
	assert.Equal(t, []byte("xbc"), d)
}

func TestTree_DataValidation(t *testing.T) {
	fixed := newTree(t, Config{DataSize: 4})
	_, _, err := fixed.Insert(0, key(1), []byte{1, 2})
	assert.ErrorIs(t, err, ErrInvalidData)
	_, _, err = fixed.Insert(0, key(1), []byte{1, 2, 3, 4})
	assert.NoError(t, err)
	// Tombstones carry no data in any mode.
	_, _, err = fixed.Insert(0, tomb(2), nil)
	assert.NoError(t, err)

	none := newTree(t, Config{})
	_, _, err = none.Insert(0, key(1), []byte{1})
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestTree_UnknownNamespaceRejected(t *testing.T) {
	reg := newRegistry(t, 1)
	tr := newTree(t, Config{}, WithRegistry(reg))

	_, _, err := tr.Insert(2, key(1), nil)
	assert.ErrorIs(t, err, ErrUnknownNamespace)
	assert.Zero(t, tr.Used())
}

// Scenario A: a full tree rejects inserts until a delete frees a slot.
func TestTree_FullThenReuse(t *testing.T) {
	tr := newTree(t, Config{Capacity: 3})
	a := mustInsert(t, tr, 0, key(1), nil)
	b := mustInsert(t, tr, 0, key(2), nil)
	mustInsert(t, tr, 0, key(3), nil)
	assert.NotEqual(t, a, b)

	_, _, err := tr.Insert(0, key(4), nil)
	assert.ErrorIs(t, err, ErrTreeFull)
	assert.Zero(t, tr.Available())
	require.NoError(t, tr.Check())

	require.NoError(t, tr.Delete(0, key(2)))
	d := mustInsert(t, tr, 0, key(4), nil)
	assert.Equal(t, b, d, "freed slot is reused first")
	assert.NoError(t, tr.Check())
}

// Scenario B: a tombstone replaces its live record in place.
func TestTree_TombstoneReplacesLive(t *testing.T) {
	reg := newRegistry(t, 7)
	tr := newTree(t, Config{DataSize: 4}, WithRegistry(reg))

	for n := uint64(1); n <= 3; n++ {
		mustInsert(t, tr, 7, key(n), []byte{byte(n), 0, 0, 0})
	}
	slot, replaced, err := tr.Insert(7, tomb(2), nil)
	require.NoError(t, err)
	assert.True(t, replaced)

	assert.Equal(t, 3, tr.Used())
	assert.Equal(t, int64(2), tr.LiveCount())
	assert.Equal(t, int64(1), tr.TombstoneCount())
	c := reg.Counters(7)
	assert.Equal(t, int64(2), c.Live.Load())
	assert.Equal(t, int64(1), c.Tombstones.Load())

	_, err = tr.Get(7, key(2))
	assert.ErrorIs(t, err, ErrNotFound)
	data, err := tr.GetData(slot)
	require.NoError(t, err)
	assert.Nil(t, data)

	l, err := tr.GetList(7, minKey, maxKey, ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 3}, listNums(l))

	l, err = tr.GetList(7, minKey, maxKey, ListOptions{IncludeTombstones: true})
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, listNums(l))
	assert.True(t, IsTombstone(l.Records[1].Key))
	assert.Nil(t, l.Records[1].Data)
	assert.Equal(t, 12+8+12, l.Bytes, "tombstones count their key only")

	// Reinserting the live record flips it back.
	_, replaced, err = tr.Insert(7, key(2), []byte{9, 9, 9, 9})
	require.NoError(t, err)
	assert.True(t, replaced)
	assert.Equal(t, int64(3), tr.LiveCount())
	assert.Zero(t, tr.TombstoneCount())
	assert.NoError(t, tr.Check())
}

func TestTree_DeleteMissingChangesNothing(t *testing.T) {
	tr := newTree(t, Config{})
	for n := range uint64(20) {
		mustInsert(t, tr, 0, key(n), nil)
	}
	before := tr.snapshot()

	assert.ErrorIs(t, tr.Delete(0, key(100)), ErrNotFound)
	assert.Equal(t, before, tr.snapshot())
}

func TestTree_DeleteSlotTwice(t *testing.T) {
	tr := newTree(t, Config{})
	for n := range uint64(10) {
		mustInsert(t, tr, 0, key(n), nil)
	}
	i, _ := tr.Find(0, key(4))
	require.NoError(t, tr.DeleteSlot(i))
	before := tr.snapshot()

	err := tr.DeleteSlot(i)
	assert.ErrorIs(t, err, ErrDoubleDelete)
	assert.ErrorIs(t, err, ErrLogicalUse)
	assert.Equal(t, before, tr.snapshot())

	assert.ErrorIs(t, tr.DeleteSlot(500), ErrDoubleDelete)
	assert.NoError(t, tr.Check())
}

func TestTree_DeleteEveryShape(t *testing.T) {
	// Deleting each key of a 31-node tree in turn exercises leaves, single
	// children and two-child splices at every depth.
	for victim := range uint64(31) {
		tr := newTree(t, Config{})
		for n := range uint64(31) {
			mustInsert(t, tr, 0, key(n), nil)
		}
		require.NoError(t, tr.Delete(0, key(victim)))
		require.NoError(t, tr.Check(), "victim %d", victim)

		l, err := tr.GetList(0, minKey, maxKey, ListOptions{})
		require.NoError(t, err)
		assert.Len(t, l.Records, 30)
		assert.NotContains(t, listNums(l), victim)
	}
}

func TestTree_DeleteRangeAndNamespace(t *testing.T) {
	reg := newRegistry(t, 1, 2)
	tr := newTree(t, Config{}, WithRegistry(reg))
	for n := range uint64(50) {
		mustInsert(t, tr, 1, key(n), nil)
		mustInsert(t, tr, 2, key(n), nil)
	}

	n, err := tr.DeleteRange(1, key(10), key(19))
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	require.NoError(t, tr.Check())

	n, err = tr.DeleteNamespace(2)
	require.NoError(t, err)
	assert.Equal(t, 50, n)
	require.NoError(t, tr.Check())

	assert.Equal(t, 40, tr.Used())
	assert.Zero(t, reg.Counters(2).Live.Load())
	assert.Equal(t, int64(40), reg.Counters(1).Live.Load())
	assert.Equal(t, []uint32{1}, tr.Namespaces().ToArray())
}

func TestTree_ClearSubtractsCounters(t *testing.T) {
	reg := newRegistry(t, 3)
	tr := newTree(t, Config{}, WithRegistry(reg))
	other := newTree(t, Config{}, WithRegistry(reg))

	for n := range uint64(5) {
		mustInsert(t, tr, 3, key(n), nil)
	}
	mustInsert(t, tr, 3, tomb(9), nil)
	mustInsert(t, other, 3, key(1), nil)

	require.NoError(t, tr.Clear())
	assert.Zero(t, tr.Used())
	assert.Equal(t, int64(1), reg.Counters(3).Live.Load(), "other tree's records remain counted")
	assert.Zero(t, reg.Counters(3).Tombstones.Load())
	assert.True(t, tr.IsDirty())
	assert.NoError(t, tr.Check())
}

func TestTree_ResetAndSet(t *testing.T) {
	rc := resource.NewController(resource.Config{})
	tr := newTree(t, Config{Capacity: 64}, WithResources(rc))
	mustInsert(t, tr, 0, key(1), nil)
	assert.Positive(t, rc.MemoryUsage())

	tr.Reset()
	assert.Zero(t, rc.MemoryUsage())
	_, _, err := tr.Insert(0, key(2), nil)
	assert.ErrorIs(t, err, ErrNotConfigured)

	require.NoError(t, tr.Set(Config{KeySize: 8, Capacity: 16}))
	assert.Equal(t, 16, tr.Capacity())
	mustInsert(t, tr, 0, key(2), nil)
}

func TestTree_MemoryLimitOnOwnedData(t *testing.T) {
	cfg := Config{KeySize: 8, DataSize: VariableData, Capacity: 8, OwnsData: true}
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 8*arena.SlotOverhead(cfg.arena()) + 10})
	tr := newTree(t, cfg, WithResources(rc))

	mustInsert(t, tr, 0, key(1), make([]byte, 8))
	_, _, err := tr.Insert(0, key(2), make([]byte, 64))
	assert.ErrorIs(t, err, ErrMemoryLimitExceeded)
	assert.Equal(t, 1, tr.Used())

	require.NoError(t, tr.Delete(0, key(1)))
	assert.Equal(t, tr.MemoryUsage(), rc.MemoryUsage())
}

func TestTree_Grow(t *testing.T) {
	tr := newTree(t, Config{Capacity: 100})
	for n := range uint64(80) {
		mustInsert(t, tr, 0, key(n), nil)
	}
	avail := tr.Available()

	require.NoError(t, tr.Grow(1000))
	assert.Equal(t, 1000, tr.Capacity())
	assert.Equal(t, avail+900, tr.Available())
	assert.NoError(t, tr.Check())

	l, err := tr.GetList(0, minKey, maxKey, ListOptions{})
	require.NoError(t, err)
	assert.Len(t, l.Records, 80)
}

func TestTree_CorruptFreeListFailsInsert(t *testing.T) {
	tr := newTree(t, Config{Capacity: 8})
	for n := range uint64(4) {
		mustInsert(t, tr, 0, key(n), nil)
	}
	i, _ := tr.Find(0, key(2))
	require.NoError(t, tr.DeleteSlot(i))

	tr.a.State[i] = slotUsed
	before := tr.snapshot()

	_, _, err := tr.Insert(0, key(9), nil)
	assert.ErrorIs(t, err, ErrCorrupt)
	assert.True(t, tr.IsCorrupt())
	assert.Equal(t, before, tr.snapshot())
	assert.Error(t, tr.Check())

	dropped, err := tr.Repair()
	require.NoError(t, err)
	assert.Zero(t, dropped)
	assert.Equal(t, 3, tr.Used())
	mustInsert(t, tr, 0, key(9), nil)
}

func TestTree_RandomOperationsKeepInvariants(t *testing.T) {
	const (
		namespaces = 4
		keySpace   = 300
		capacity   = 512
	)
	rng := testutil.NewRNG(42)
	reg := newRegistry(t, 0, 1, 2, 3)
	tr := newTree(t, Config{DataSize: VariableData, Capacity: capacity, OwnsData: true}, WithRegistry(reg))

	type entry struct {
		tomb bool
		data []byte
	}
	model := make(map[namespace.ID]map[uint64]entry)
	for ns := range namespace.ID(namespaces) {
		model[ns] = make(map[uint64]entry)
	}
	size := func() int {
		n := 0
		for _, m := range model {
			n += len(m)
		}
		return n
	}

	for step := range 6000 {
		ns := namespace.ID(rng.IntN(namespaces))
		n := rng.Uint64N(keySpace)
		_, exists := model[ns][n]

		switch op := rng.IntN(10); {
		case op < 5:
			data := rng.Payload(1, 16)
			_, replaced, err := tr.Insert(ns, key(n), data)
			if errors.Is(err, ErrTreeFull) {
				require.False(t, exists)
				require.Equal(t, capacity, size())
				continue
			}
			require.NoError(t, err)
			require.Equal(t, exists, replaced)
			model[ns][n] = entry{data: data}
		case op < 7:
			_, replaced, err := tr.Insert(ns, tomb(n), nil)
			if errors.Is(err, ErrTreeFull) {
				continue
			}
			require.NoError(t, err)
			require.Equal(t, exists, replaced)
			model[ns][n] = entry{tomb: true}
		default:
			err := tr.Delete(ns, key(n))
			if exists {
				require.NoError(t, err)
				delete(model[ns], n)
			} else {
				require.ErrorIs(t, err, ErrNotFound)
			}
		}

		require.NoError(t, tr.Check(), "step %d", step)
		require.Equal(t, size(), tr.Used(), "step %d", step)
	}
	require.NoError(t, tr.Check())
	assert.LessOrEqual(t, tr.Height(), avlBound(tr.Used()))

	var live, tombs int64
	for ns := range namespace.ID(namespaces) {
		l, err := tr.GetList(ns, minKey, maxKey, ListOptions{IncludeTombstones: true})
		require.NoError(t, err)

		want := make([]uint64, 0, len(model[ns]))
		var nsLive, nsTombs int64
		for n, e := range model[ns] {
			want = append(want, n)
			if e.tomb {
				nsTombs++
			} else {
				nsLive++
			}
		}
		slices.Sort(want)
		require.Equal(t, want, listNums(l))

		for _, r := range l.Records {
			e := model[ns][keyNum(r.Key)]
			assert.Equal(t, e.tomb, IsTombstone(r.Key))
			if !e.tomb {
				assert.Equal(t, e.data, r.Data)
			}
		}

		assert.Equal(t, nsLive, reg.Counters(ns).Live.Load())
		assert.Equal(t, nsTombs, reg.Counters(ns).Tombstones.Load())
		live += nsLive
		tombs += nsTombs
	}
	assert.Equal(t, live, tr.LiveCount())
	assert.Equal(t, tombs, tr.TombstoneCount())
	assert.Equal(t, int(live+tombs), tr.Used())
}
