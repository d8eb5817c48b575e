package tree

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/bits-and-blooms/bitset"
	"github.com/hupe1980/rectree/internal/arena"
	"github.com/hupe1980/rectree/internal/block"
	"github.com/hupe1980/rectree/internal/resource"
	"github.com/hupe1980/rectree/namespace"
)

const (
	// freeMarker replaces the parent index of free slots on disk.
	freeMarker int32 = -2

	ioBufferSize = 64 << 10
	chunkElems   = 16 << 10
)

// SavingFileName is the name a save writes to before the final rename.
func SavingFileName(name string) string { return name + "-saving.dat" }

// SavedFileName is the name of a completed save.
func SavedFileName(name string) string { return name + "-saved.dat" }

// snapshot is a point-in-time copy of the slot arrays up to the high-water
// mark, together with the configuration the encoder needs.
type snapshot struct {
	name   string
	hdr    Header
	ns     []uint16
	keys   []byte
	left   []int32
	right  []int32
	parent []int32
	depth  []uint8
	data   [][]byte
}

func (t *Tree) snapshot() *snapshot {
	a := t.a
	hw := a.HighWater()
	s := &snapshot{
		hdr: Header{
			Version:     formatVersion,
			Capacity:    a.Capacity(),
			KeySize:     int32(t.cfg.KeySize),
			DataSize:    int32(t.cfg.DataSize),
			Used:        a.Used(),
			Root:        t.root,
			HighWater:   hw,
			Live:        t.live,
			Tombstones:  t.tombstones,
			Balanced:    !t.cfg.DisableBalancing,
			OwnsData:    t.cfg.OwnsData,
			Compression: t.cfg.Compression,
			BlockSize:   int32(block.EffectiveBlockSize(t.cfg.BlockSize)),
		},
		name:   t.cfg.Name,
		ns:     slices.Clone(a.NS[:hw]),
		keys:   slices.Clone(a.Keys[:int(hw)*t.cfg.KeySize]),
		left:   slices.Clone(a.Left[:hw]),
		right:  slices.Clone(a.Right[:hw]),
		parent: slices.Clone(a.Parent[:hw]),
		depth:  slices.Clone(a.Depth[:hw]),
	}
	if a.Data != nil {
		// Payload slices are never written in place, so sharing them is safe.
		s.data = slices.Clone(a.Data[:hw])
	}

	// Free slots chain through their right index, top of the stack first.
	head := Nil
	for _, i := range a.FreeList() {
		s.parent[i] = freeMarker
		s.right[i] = head
		head = i
	}
	s.hdr.FreeHead = head
	return s
}

// Save writes the tree to dir.
//
// The slot arrays are copied before Save returns, so later writes never race
// the encoder. Encoding and writing run on a pool worker when one is free and
// inline otherwise; done, if non-nil, receives the outcome either way.
func (t *Tree) Save(ctx context.Context, dir string, done func(error)) error {
	t.mu.Lock()
	if t.a == nil {
		t.mu.Unlock()
		return ErrNotConfigured
	}
	if !t.dirty {
		t.mu.Unlock()
		return ErrNothingToSave
	}
	if !t.saving.CompareAndSwap(false, true) {
		t.mu.Unlock()
		return ErrSaveInProgress
	}
	snap := t.snapshot()
	t.dirty = false
	t.mu.Unlock()

	t.pool.Submit(func(context.Context) error {
		return t.write(ctx, dir, snap)
	}, func(err error) {
		t.mu.Lock()
		if err != nil {
			t.dirty = true
		}
		t.lastSaveErr = err
		t.mu.Unlock()
		t.saving.Store(false)

		if err != nil {
			t.logger.Error("save failed", "name", snap.name, "dir", dir, "error", err)
		} else {
			t.logger.Info("tree saved", "name", snap.name, "dir", dir, "slots", snap.hdr.Used)
		}
		if done != nil {
			done(err)
		}
	})
	return nil
}

// SaveSync saves and waits for the outcome.
func (t *Tree) SaveSync(ctx context.Context, dir string) error {
	errc := make(chan error, 1)
	if err := t.Save(ctx, dir, func(err error) { errc <- err }); err != nil {
		return err
	}
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Tree) write(ctx context.Context, dir string, s *snapshot) (err error) {
	if err := t.fsys.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("tree: create dir %s: %w", dir, err)
	}

	tmp := filepath.Join(dir, SavingFileName(s.name))
	f, err := t.fsys.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("tree: create %s: %w", tmp, err)
	}
	closed := false
	defer func() {
		if err == nil {
			return
		}
		if !closed {
			_ = f.Close()
		}
		_ = t.fsys.Remove(tmp)
	}()

	bw := bufio.NewWriterSize(resource.NewRateLimitedWriter(ctx, f, t.rc), ioBufferSize)
	if err := t.encode(bw, s); err != nil {
		return fmt.Errorf("tree: write %s: %w", tmp, err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("tree: write %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("tree: sync %s: %w", tmp, err)
	}
	closed = true
	if err := f.Close(); err != nil {
		return fmt.Errorf("tree: close %s: %w", tmp, err)
	}

	final := filepath.Join(dir, SavedFileName(s.name))
	if err := t.fsys.Rename(tmp, final); err != nil {
		return fmt.Errorf("tree: rename %s: %w", tmp, err)
	}
	return nil
}

func (t *Tree) encode(w io.Writer, s *snapshot) error {
	hdr, err := s.hdr.MarshalBinary()
	if err != nil {
		return err
	}
	if _, err := w.Write(hdr); err != nil {
		return err
	}

	bw := block.NewWriter(w, s.hdr.Compression, int(s.hdr.BlockSize))
	for _, v := range []any{s.ns, s.keys, s.left, s.right, s.parent, s.depth} {
		if err := writeSlice(bw, v); err != nil {
			return err
		}
	}

	ks := int(s.hdr.KeySize)
	live := func(i int) bool {
		return s.parent[i] != freeMarker && !IsTombstone(s.keys[i*ks:(i+1)*ks])
	}

	if s.hdr.DataSize == VariableData {
		sizes := make([]uint32, len(s.ns))
		for i := range sizes {
			if live(i) {
				sizes[i] = uint32(len(s.data[i]))
			}
		}
		if err := writeSlice(bw, sizes); err != nil {
			return err
		}
	}

	if s.data != nil {
		for i, d := range s.data {
			if len(d) == 0 || !live(i) {
				continue
			}
			if _, err := bw.Write(d); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// writeSlice encodes a slice of fixed-size integers in bounded chunks.
func writeSlice(w io.Writer, v any) error {
	switch s := v.(type) {
	case []byte:
		_, err := w.Write(s)
		return err
	case []uint16:
		return writeChunks(w, s)
	case []int32:
		return writeChunks(w, s)
	case []uint32:
		return writeChunks(w, s)
	default:
		return fmt.Errorf("tree: cannot encode %T", v)
	}
}

func writeChunks[T uint16 | int32 | uint32](w io.Writer, s []T) error {
	for len(s) > 0 {
		n := min(len(s), chunkElems)
		if err := binary.Write(w, binary.LittleEndian, s[:n]); err != nil {
			return err
		}
		s = s[n:]
	}
	return nil
}

func readChunks[T uint16 | int32 | uint32](r io.Reader, s []T) error {
	for len(s) > 0 {
		n := min(len(s), chunkElems)
		if err := binary.Read(r, binary.LittleEndian, s[:n]); err != nil {
			return err
		}
		s = s[n:]
	}
	return nil
}

// LoadFile loads the saved file for this tree's name from dir.
func (t *Tree) LoadFile(ctx context.Context, dir string) error {
	return t.Load(ctx, filepath.Join(dir, SavedFileName(t.Config().Name)))
}

// Load replaces the tree's contents with the file at path.
//
// Counts and the free list are rebuilt from the slots. Inconsistencies that
// leave the file readable are reported as ErrCorrupt with the data loaded,
// so the caller can Check and Repair. Any other failure leaves the tree empty.
func (t *Tree) Load(ctx context.Context, path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.a == nil {
		return ErrNotConfigured
	}

	f, err := t.fsys.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("tree: open %s: %w", path, err)
	}
	defer f.Close()

	br := bufio.NewReaderSize(f, ioBufferSize)
	hdr, err := ReadHeader(br)
	if err != nil {
		return err
	}
	if err := t.compatible(hdr); err != nil {
		return err
	}

	_ = t.clearLocked(false)
	if err := t.decode(ctx, br, hdr); err != nil {
		_ = t.clearLocked(false)
		t.dirty = false
		return fmt.Errorf("tree: load %s: %w", path, err)
	}
	t.dirty = false

	if hdr.Used != t.a.Used() || hdr.Live != t.live || hdr.Tombstones != t.tombstones {
		t.logger.Warn("saved counts differ from slots",
			"name", t.cfg.Name, "header_used", hdr.Used, "used", t.a.Used(),
			"header_live", hdr.Live, "live", t.live)
	}
	t.logger.Info("tree loaded", "name", t.cfg.Name, "path", path, "slots", t.a.Used())

	if t.corrupt {
		return fmt.Errorf("tree: load %s: %w", path, ErrCorrupt)
	}
	return nil
}

func (t *Tree) compatible(h *Header) error {
	switch {
	case int(h.KeySize) != t.cfg.KeySize:
		return fmt.Errorf("%w: key size %d, tree has %d", ErrIncompatibleFormat, h.KeySize, t.cfg.KeySize)
	case int(h.DataSize) != t.cfg.DataSize:
		return fmt.Errorf("%w: data size %d, tree has %d", ErrIncompatibleFormat, h.DataSize, t.cfg.DataSize)
	case h.Balanced == t.cfg.DisableBalancing:
		return fmt.Errorf("%w: balancing %v, tree has %v", ErrIncompatibleFormat, h.Balanced, !t.cfg.DisableBalancing)
	case h.HighWater < 0 || h.HighWater > arena.MaxCapacity || h.Used < 0 || h.Used > h.HighWater:
		return fmt.Errorf("%w: high water %d, used %d", ErrIncompatibleFormat, h.HighWater, h.Used)
	}
	return nil
}

func (t *Tree) decode(ctx context.Context, r io.Reader, h *Header) error {
	hw := h.HighWater
	if err := t.growForLoad(h); err != nil {
		return err
	}

	a := t.a
	br := block.NewReader(r, h.Compression, int(h.BlockSize))
	if err := readChunks(br, a.NS[:hw]); err != nil {
		return fmt.Errorf("namespaces: %w", err)
	}
	if _, err := io.ReadFull(br, a.Keys[:int(hw)*t.cfg.KeySize]); err != nil {
		return fmt.Errorf("keys: %w", err)
	}
	for _, s := range [][]int32{a.Left[:hw], a.Right[:hw], a.Parent[:hw]} {
		if err := readChunks(br, s); err != nil {
			return fmt.Errorf("links: %w", err)
		}
	}
	if _, err := io.ReadFull(br, a.Depth[:hw]); err != nil {
		return fmt.Errorf("depths: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var sizes []uint32
	if t.cfg.DataSize == VariableData {
		sizes = make([]uint32, hw)
		if err := readChunks(br, sizes); err != nil {
			return fmt.Errorf("sizes: %w", err)
		}
	}

	free := bitset.New(uint(hw))
	for i := int32(0); i < hw; i++ {
		if a.Parent[i] == freeMarker {
			free.Set(uint(i))
		}
	}

	if a.Data != nil {
		for i := int32(0); i < hw; i++ {
			if free.Test(uint(i)) || IsTombstone(a.Key(i)) {
				continue
			}
			n := t.cfg.DataSize
			if sizes != nil {
				n = int(sizes[i])
			}
			if n == 0 {
				continue
			}
			if t.cfg.OwnsData {
				if err := t.rc.AcquireMemory(int64(n)); err != nil {
					return err
				}
				t.dataBytes += int64(n)
			}
			d := make([]byte, n)
			if _, err := io.ReadFull(br, d); err != nil {
				return fmt.Errorf("payload of slot %d: %w", i, err)
			}
			a.Data[i] = d
		}
	}

	stack := t.rebuildFreeList(h.FreeHead, free)
	for _, i := range stack {
		a.Left[i], a.Right[i], a.Parent[i] = Nil, Nil, Nil
		a.Depth[i] = 0
	}
	if err := a.Restore(hw, stack); err != nil {
		return err
	}
	t.sanitizeLinks(free)

	t.root = h.Root
	if t.root != Nil && (t.root < 0 || t.root >= hw || free.Test(uint(t.root))) {
		t.corrupt = true
		t.root = Nil
	}

	for i := int32(0); i < hw; i++ {
		if !free.Test(uint(i)) {
			t.count(namespace.ID(a.NS[i]), IsTombstone(a.Key(i)), 1)
		}
	}
	return nil
}

func (t *Tree) growForLoad(h *Header) error {
	if h.HighWater <= t.a.Capacity() {
		return nil
	}
	target := max(int(h.HighWater), min(int(h.Capacity), arena.MaxCapacity))
	err := t.a.Grow(target)
	if err != nil && target > int(h.HighWater) && errors.Is(err, ErrMemoryLimitExceeded) {
		err = t.a.Grow(int(h.HighWater))
	}
	return translateArenaErr(err)
}

// rebuildFreeList follows the on-disk chain from head and returns the free
// stack top first. A chain that disagrees with the free marks is replaced by
// the marked slots and the tree flagged corrupt.
func (t *Tree) rebuildFreeList(head int32, free *bitset.BitSet) []int32 {
	hw := int32(free.Len())
	seen := bitset.New(free.Len())
	stack := make([]int32, 0, free.Count())

	ok := true
	for i := head; i != Nil; i = t.a.Right[i] {
		if i < 0 || i >= hw || !free.Test(uint(i)) || seen.Test(uint(i)) {
			ok = false
			break
		}
		seen.Set(uint(i))
		stack = append(stack, i)
	}
	if ok && uint(len(stack)) == free.Count() {
		return stack
	}

	t.corrupt = true
	t.logger.Warn("free list chain broken, rebuilding from slot marks", "name", t.cfg.Name)
	stack = stack[:0]
	for i, found := free.NextSet(0); found; i, found = free.NextSet(i + 1) {
		stack = append(stack, int32(i))
	}
	slices.Reverse(stack)
	return stack
}

// sanitizeLinks clears links of occupied slots that point outside the
// occupied range so later walks cannot index out of bounds.
func (t *Tree) sanitizeLinks(free *bitset.BitSet) {
	a := t.a
	hw := a.HighWater()
	bad := func(j int32) bool {
		return j != Nil && (j < 0 || j >= hw || free.Test(uint(j)))
	}
	for i := int32(0); i < hw; i++ {
		if free.Test(uint(i)) {
			continue
		}
		for _, link := range []*int32{&a.Left[i], &a.Right[i], &a.Parent[i]} {
			if bad(*link) {
				*link = Nil
				t.corrupt = true
			}
		}
	}
}
