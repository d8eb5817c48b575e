package tree

import (
	"bytes"
	"math"

	"github.com/hupe1980/rectree/namespace"
)

const (
	// exactCountThreshold is the estimate below which range sizes are counted exactly.
	exactCountThreshold = 512

	// defaultListCapacity sizes lists whose length cannot be estimated cheaply.
	defaultListCapacity = 64
)

// Record is one entry of a List.
type Record struct {
	Key  []byte
	Data []byte // aliases the tree's payload; must not be modified
}

// List is the result of a range extraction.
type List struct {
	Records  []Record
	StartKey []byte
	// EndKey is the requested end, or the last emitted key (delete bit set)
	// when the byte budget stopped the walk early.
	EndKey    []byte
	Bytes     int
	Truncated bool
}

// ListOptions controls GetList.
type ListOptions struct {
	// MaxBytes stops the walk once this many bytes were emitted. <= 0 is unlimited.
	MaxBytes int
	// IncludeTombstones emits tombstones as key-only records.
	IncludeTombstones bool
}

// GetList returns the records of ns with start <= key <= end in key order.
func (t *Tree) GetList(ns namespace.ID, start, end []byte, opts ListOptions) (*List, error) {
	if err := t.checkKey(start); err != nil {
		return nil, err
	}
	if err := t.checkKey(end); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.a == nil {
		return nil, ErrNotConfigured
	}

	list := &List{StartKey: bytes.Clone(start), EndKey: bytes.Clone(end)}

	i := t.lowerBound(ns, start)
	if !t.inRange(i, ns, end) {
		return list, nil
	}
	list.Records = make([]Record, 0, t.listCapacity(ns, start, end, opts.MaxBytes))

	a := t.a
	last := Nil
	for ; t.inRange(i, ns, end); i = t.successor(i) {
		if opts.MaxBytes > 0 && list.Bytes >= opts.MaxBytes {
			list.Truncated = true
			break
		}

		key := a.Key(i)
		tomb := IsTombstone(key)
		if tomb && !opts.IncludeTombstones {
			continue
		}

		rec := Record{Key: bytes.Clone(key)}
		if !tomb && a.Data != nil {
			rec.Data = a.Data[i]
		}
		list.Records = append(list.Records, rec)
		list.Bytes += t.recordSize(rec.Key, rec.Data)
		last = i
	}

	if list.Truncated {
		list.EndKey = Live(a.Key(last))
	}
	return list, nil
}

// listCapacity sizes the result slice of a GetList call.
func (t *Tree) listCapacity(ns namespace.ID, start, end []byte, maxBytes int) int {
	if maxBytes > 0 {
		if t.cfg.DataSize == VariableData {
			return defaultListCapacity
		}
		n := maxBytes/t.recordSize(Live(start), nil) + 1
		if n > exactCountThreshold {
			est, _ := t.estimate(ns, start, end)
			n = min(n, est+1)
		}
		return n
	}
	if t.cfg.DataSize == VariableData {
		return defaultListCapacity
	}
	n, _ := t.estimate(ns, start, end)
	return n
}

// EstimateListSize estimates the bytes a GetList over the range would emit
// with tombstones included and no budget.
func (t *Tree) EstimateListSize(ns namespace.ID, start, end []byte) (int64, error) {
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

	_, size := t.estimate(ns, start, end)
	return size, nil
}

// estimate returns an approximate record count and byte size for a range.
func (t *Tree) estimate(ns namespace.ID, start, end []byte) (int, int64) {
	if t.cfg.DataSize != VariableData {
		if total := t.rawTotal(); total > 0 {
			span := t.rawRank(ns, end, true) - t.rawRank(ns, start, false)
			n := int(math.Round(span * float64(t.a.Used()) / total))
			if n >= exactCountThreshold {
				return n, int64(n) * int64(t.recordSize(Live(start), nil))
			}
		}
	}
	return t.countRange(ns, start, end)
}

// countRange walks the range and sums exact record sizes.
func (t *Tree) countRange(ns namespace.ID, start, end []byte) (int, int64) {
	var (
		n    int
		size int64
	)
	for i := t.lowerBound(ns, start); t.inRange(i, ns, end); i = t.successor(i) {
		var data []byte
		if t.a.Data != nil {
			data = t.a.Data[i]
		}
		n++
		size += int64(t.recordSize(t.a.Key(i), data))
	}
	return n, size
}

// rawRank counts the records ordered before (ns, key), or at or before it
// when inclusive, assuming every subtree is perfect for its stored height.
// Callers scale it by Used/rawTotal, which cancels the uniform part of the
// overcount.
func (t *Tree) rawRank(ns namespace.ID, key []byte, inclusive bool) float64 {
	r := 0.0
	for i := t.root; i != Nil; {
		c := t.compare(ns, key, i)
		if c < 0 || (c == 0 && !inclusive) {
			i = t.a.Left[i]
			continue
		}
		r += perfectSize(t.height(t.a.Left[i])) + 1
		i = t.a.Right[i]
	}
	return r
}

// rawTotal is rawRank past the largest record.
func (t *Tree) rawTotal() float64 {
	r := 0.0
	for i := t.root; i != Nil; i = t.a.Right[i] {
		r += perfectSize(t.height(t.a.Left[i])) + 1
	}
	return r
}

func perfectSize(h int) float64 {
	return math.Exp2(float64(h)) - 1
}
