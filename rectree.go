package rectree

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/rectree/blobstore"
	"github.com/hupe1980/rectree/internal/arena"
	"github.com/hupe1980/rectree/internal/block"
	"github.com/hupe1980/rectree/internal/jobs"
	"github.com/hupe1980/rectree/internal/resource"
	"github.com/hupe1980/rectree/internal/tree"
	"github.com/hupe1980/rectree/namespace"
)

// Config configures a tree. See tree.Config for the fields.
type Config = tree.Config

// Compression selects the block codec of saved files.
type Compression = block.Compression

// Supported compressions.
const (
	CompressionNone = block.CompressionNone
	CompressionLZ4  = block.CompressionLZ4
	CompressionZSTD = block.CompressionZSTD
)

const (
	// VariableData as Config.DataSize stores a length with every payload.
	VariableData = tree.VariableData
	// Nil is the "no slot" index.
	Nil = tree.Nil
	// MaxCapacity is the largest slot count a tree can grow to.
	MaxCapacity = arena.MaxCapacity
)

// Range extraction types.
type (
	Record      = tree.Record
	List        = tree.List
	ListOptions = tree.ListOptions
)

// Header is the fixed-size header of a saved file.
type Header = tree.Header

// ReadHeader reads and validates a saved file's header.
func ReadHeader(r io.Reader) (*Header, error) { return tree.ReadHeader(r) }

// SavedFileName returns the file name a tree called name is saved under.
func SavedFileName(name string) string { return tree.SavedFileName(name) }

// ParseCompression parses "none", "lz4" or "zstd".
func ParseCompression(s string) (Compression, error) { return block.ParseCompression(s) }

// Tree is an in-memory, arena-backed, self-balancing tree of namespaced
// fixed-width keys with optional payloads.
//
// It is safe for concurrent use. Every operation takes the tree's lock; Save
// holds it only while copying the slot arrays.
type Tree struct {
	t       *tree.Tree
	opts    options
	pool    *jobs.Pool
	logger  *Logger
	metrics MetricsCollector

	mu            sync.Mutex
	lastMirrorErr error
}

// New creates a tree configured by cfg.
func New(cfg Config, optFns ...Option) (*Tree, error) {
	o := applyOptions(optFns)

	name := cfg.Name
	if name == "" {
		name = "tree"
	}
	logger := o.logger.WithName(name)

	rc := resource.NewController(resource.Config{
		MemoryLimitBytes:   o.memoryCeiling,
		IOLimitBytesPerSec: o.ioLimit,
	})
	pool := jobs.NewPool(o.workers)

	t, err := tree.New(cfg,
		tree.WithRegistry(o.registry),
		tree.WithValidator(o.validator),
		tree.WithFileSystem(o.fsys),
		tree.WithResources(rc),
		tree.WithPool(pool),
		tree.WithLogger(logger.Logger),
	)
	if err != nil {
		pool.Close()
		return nil, err
	}

	tr := &Tree{
		t:       t,
		opts:    o,
		pool:    pool,
		logger:  logger,
		metrics: o.metricsCollector,
	}
	if tr.opts.fatal == nil {
		tr.opts.fatal = tr.defaultFatal
	}
	return tr, nil
}

func (t *Tree) defaultFatal(err error) {
	t.logger.Error("fatal error", "error", err)
	panic(err)
}

// fail hands fatal errors to the fatal handler and returns err unchanged.
func (t *Tree) fail(op string, err error) error {
	if err != nil && isFatal(err) {
		t.opts.fatal(&FatalError{Op: op, cause: err})
	}
	return err
}

// Set discards all records and reconfigures the tree.
func (t *Tree) Set(cfg Config) error { return t.t.Set(cfg) }

// Reset discards all records and releases the arena. The tree is unusable
// until Set is called.
func (t *Tree) Reset() { t.t.Reset() }

// Clear removes every record, subtracting this tree's contribution from
// the registry's namespace counters, and keeps the capacity.
func (t *Tree) Clear() error {
	return t.fail("clear", t.t.Clear())
}

// Add inserts or replaces the record (ns, key) and returns its slot.
//
// A key whose delete bit is clear is stored as a tombstone and carries no
// data. Re-adding an existing key, live or tombstoned, replaces it in place.
func (t *Tree) Add(ns namespace.ID, key, data []byte) (int32, error) {
	start := time.Now()

	slot, replaced, err := t.t.Insert(ns, key, data)
	if errors.Is(err, ErrTreeFull) && t.autoGrow() {
		slot, replaced, err = t.t.Insert(ns, key, data)
	}

	t.metrics.RecordAdd(time.Since(start), err)
	t.logger.LogAdd(context.Background(), ns, slot, replaced, err)
	return slot, t.fail("add", err)
}

// AddKey inserts a key without data.
func (t *Tree) AddKey(ns namespace.ID, key []byte) (int32, error) {
	return t.Add(ns, key, nil)
}

func (t *Tree) autoGrow() bool {
	limit := min(t.opts.autoGrowMax, MaxCapacity)
	from := t.t.Capacity()
	if limit <= 0 || from >= limit {
		return false
	}

	to := min(max(from*2, from+1), limit)
	err := t.t.Grow(to)
	t.logger.LogGrow(context.Background(), from, to, err)
	return err == nil
}

// Delete removes the record (ns, key), live or tombstone.
func (t *Tree) Delete(ns namespace.ID, key []byte) error {
	start := time.Now()
	err := t.t.Delete(ns, key)
	t.recordDelete(ns, 1, start, err)
	return t.fail("delete", err)
}

// DeleteSlot removes the record in slot. Deleting a free slot is a
// logical-use error.
func (t *Tree) DeleteSlot(slot int32) error {
	start := time.Now()
	ns, _, _ := t.t.Slot(slot)
	err := t.t.DeleteSlot(slot)
	t.recordDelete(ns, 1, start, err)
	return t.fail("delete slot", err)
}

// DeleteRange removes every record of ns with start <= key <= end and
// returns how many were removed.
func (t *Tree) DeleteRange(ns namespace.ID, start, end []byte) (int, error) {
	began := time.Now()
	n, err := t.t.DeleteRange(ns, start, end)
	t.recordDelete(ns, n, began, err)
	return n, t.fail("delete range", err)
}

// DeleteNamespace removes every record of ns.
func (t *Tree) DeleteNamespace(ns namespace.ID) (int, error) {
	start := time.Now()
	n, err := t.t.DeleteNamespace(ns)
	t.recordDelete(ns, n, start, err)
	return n, t.fail("delete namespace", err)
}

func (t *Tree) recordDelete(ns namespace.ID, n int, start time.Time, err error) {
	if err != nil {
		n = 0
	}
	t.metrics.RecordDelete(n, time.Since(start), err)
	t.logger.LogDelete(context.Background(), ns, n, err)
}

// GetNode returns the slot holding (ns, key), or ErrNotFound.
func (t *Tree) GetNode(ns namespace.ID, key []byte) (int32, error) {
	return t.t.Find(ns, key)
}

// LowerBound returns the first slot at or after (ns, key), or Nil.
func (t *Tree) LowerBound(ns namespace.ID, key []byte) (int32, error) {
	return t.t.LowerBound(ns, key)
}

// First returns the smallest slot in order, or Nil.
func (t *Tree) First() int32 { return t.t.First() }

// Successor returns the next slot in order, or Nil.
func (t *Tree) Successor(slot int32) int32 { return t.t.Successor(slot) }

// Predecessor returns the previous slot in order, or Nil.
func (t *Tree) Predecessor(slot int32) int32 { return t.t.Predecessor(slot) }

// Slot returns the namespace and a copy of the key stored in slot.
func (t *Tree) Slot(slot int32) (namespace.ID, []byte, error) { return t.t.Slot(slot) }

// GetData returns the payload stored in slot.
func (t *Tree) GetData(slot int32) ([]byte, error) { return t.t.GetData(slot) }

// Get returns the payload of the live record (ns, key).
func (t *Tree) Get(ns namespace.ID, key []byte) ([]byte, error) { return t.t.Get(ns, key) }

// GetList returns the records of ns with start <= key <= end in key order,
// stopping once opts.MaxBytes is reached.
func (t *Tree) GetList(ns namespace.ID, start, end []byte, opts ListOptions) (*List, error) {
	began := time.Now()
	l, err := t.t.GetList(ns, start, end, opts)

	var (
		records int
		bytes   int64
	)
	if l != nil {
		records, bytes = len(l.Records), int64(l.Bytes)
	}
	t.metrics.RecordGetList(records, bytes, time.Since(began), err)
	return l, err
}

// EstimateListSize estimates the bytes GetList would return for the range
// without a byte budget.
func (t *Tree) EstimateListSize(ns namespace.ID, start, end []byte) (int64, error) {
	return t.t.EstimateListSize(ns, start, end)
}

// Save writes the tree to dir and, with a blob store configured, mirrors
// the saved file.
//
// The slot arrays are copied before Save returns; encoding, writing and
// mirroring run on a background worker when one is free and inline
// otherwise. done, if non-nil, receives the outcome. A mirror failure is
// reported as ErrMirrorFailed; the local file is saved in that case.
func (t *Tree) Save(ctx context.Context, dir string, done func(error)) error {
	start := time.Now()
	return t.t.Save(ctx, dir, func(err error) {
		if err == nil && t.opts.store != nil {
			err = t.mirror(ctx, dir)
		}
		t.metrics.RecordSave(time.Since(start), err)
		t.logger.LogSave(ctx, dir, err)
		if done != nil {
			done(err)
		}
	})
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

// GenerationName returns a unique, time-ordered object name for one save
// of the tree called name.
func GenerationName(name string) string {
	return fmt.Sprintf("%s-%s.dat", name, time.Now().UTC().Format("20060102T150405.000000000"))
}

func (t *Tree) mirror(ctx context.Context, dir string) error {
	name := t.t.Config().Name
	path := filepath.Join(dir, tree.SavedFileName(name))

	object := tree.SavedFileName(name)
	committer, versioned := t.opts.store.(blobstore.Committer)
	if versioned {
		object = GenerationName(name)
	}

	err := t.upload(ctx, path, object)
	if err == nil && versioned {
		err = committer.Commit(ctx, name, object)
	}

	t.logger.LogMirror(ctx, object, err)
	t.mu.Lock()
	t.lastMirrorErr = err
	t.mu.Unlock()

	if err != nil {
		return fmt.Errorf("%w: %w", ErrMirrorFailed, err)
	}
	return nil
}

func (t *Tree) upload(ctx context.Context, path, object string) error {
	f, err := t.opts.fsys.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	size := int64(-1)
	if fi, err := f.Stat(); err == nil {
		size = fi.Size()
	}
	return t.opts.store.Put(ctx, object, f, size)
}

// LastMirrorError returns the outcome of the most recent mirror upload.
func (t *Tree) LastMirrorError() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastMirrorErr
}

// Restore downloads the current mirror of this tree into dir and loads it.
func (t *Tree) Restore(ctx context.Context, dir string) error {
	if t.opts.store == nil {
		return ErrNoBlobStore
	}

	name := t.t.Config().Name
	object := tree.SavedFileName(name)
	if c, ok := t.opts.store.(blobstore.Committer); ok {
		current, err := c.Current(ctx, name)
		if err != nil {
			return fmt.Errorf("rectree: restore %s: %w", name, err)
		}
		object = current
	}

	rc, err := t.opts.store.Get(ctx, object)
	if err != nil {
		return fmt.Errorf("rectree: restore %s: %w", object, err)
	}
	defer rc.Close()

	if err := t.download(rc, dir, name); err != nil {
		return fmt.Errorf("rectree: restore %s: %w", object, err)
	}
	return t.LoadDir(ctx, dir)
}

func (t *Tree) download(r io.Reader, dir, name string) error {
	fsys := t.opts.fsys
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp := filepath.Join(dir, name+"-restoring.dat")
	f, err := fsys.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = fsys.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = fsys.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = fsys.Remove(tmp)
		return err
	}
	return fsys.Rename(tmp, filepath.Join(dir, tree.SavedFileName(name)))
}

// Load replaces the tree's contents with the saved file at path and checks
// its integrity. A tree that fails the check is repaired when auto-repair
// is on; otherwise the corruption error is returned with the data loaded.
func (t *Tree) Load(ctx context.Context, path string) error {
	start := time.Now()

	err := t.t.Load(ctx, path)
	if err == nil || errors.Is(err, ErrCorrupt) {
		err = t.verify(ctx, err)
	}

	records := t.t.Used()
	t.metrics.RecordLoad(records, time.Since(start), err)
	t.logger.LogLoad(ctx, path, records, err)
	return t.fail("load", err)
}

// LoadDir loads this tree's saved file from dir.
func (t *Tree) LoadDir(ctx context.Context, dir string) error {
	return t.Load(ctx, filepath.Join(dir, tree.SavedFileName(t.t.Config().Name)))
}

func (t *Tree) verify(ctx context.Context, loadErr error) error {
	checkErr := t.t.Check()
	if loadErr == nil && checkErr == nil {
		return nil
	}
	if !t.opts.autoRepair {
		return errors.Join(loadErr, checkErr)
	}

	t.logger.WarnContext(ctx, "loaded tree failed integrity check, repairing",
		"load_error", loadErr, "check_error", checkErr)
	_, err := t.repair(ctx)
	return err
}

// Check verifies every structural invariant and returns the first
// violation as a *CorruptionError.
func (t *Tree) Check() error { return t.t.Check() }

// Repair rebuilds the tree from every record that passes validation and
// returns how many were dropped. A tree that still fails Check afterwards
// is a fatal error.
func (t *Tree) Repair() (int, error) {
	dropped, err := t.repair(context.Background())
	return dropped, t.fail("repair", err)
}

func (t *Tree) repair(ctx context.Context) (int, error) {
	start := time.Now()
	dropped, err := t.t.Repair()
	t.metrics.RecordRepair(dropped, time.Since(start), err)
	t.logger.LogRepair(ctx, dropped, err)
	return dropped, err
}

// Grow enlarges the tree to capacity slots.
func (t *Tree) Grow(capacity int) error {
	from := t.t.Capacity()
	err := t.t.Grow(capacity)
	t.logger.LogGrow(context.Background(), from, capacity, err)
	return err
}

// Config returns the tree's configuration.
func (t *Tree) Config() Config { return t.t.Config() }

// Used returns the number of occupied slots.
func (t *Tree) Used() int { return t.t.Used() }

// Available returns how many slots can be filled without growing.
func (t *Tree) Available() int { return t.t.Available() }

// Capacity returns the number of slots allocated.
func (t *Tree) Capacity() int { return t.t.Capacity() }

// MemoryUsage returns the bytes held by the arena and owned payloads.
func (t *Tree) MemoryUsage() int64 { return t.t.MemoryUsage() }

// LiveCount returns the number of live records.
func (t *Tree) LiveCount() int64 { return t.t.LiveCount() }

// TombstoneCount returns the number of tombstones.
func (t *Tree) TombstoneCount() int64 { return t.t.TombstoneCount() }

// NamespaceCounts returns this tree's live and tombstone counts for ns.
func (t *Tree) NamespaceCounts(ns namespace.ID) (live, tombstones int64) {
	return t.t.NamespaceCounts(ns)
}

// Namespaces returns the namespaces that hold at least one record.
func (t *Tree) Namespaces() *roaring.Bitmap { return t.t.Namespaces() }

// Height returns the height of the tree.
func (t *Tree) Height() int { return t.t.Height() }

// IsDirty reports whether the tree changed since it was last saved or loaded.
func (t *Tree) IsDirty() bool { return t.t.IsDirty() }

// IsSaving reports whether a save is in flight.
func (t *Tree) IsSaving() bool { return t.t.IsSaving() }

// IsCorrupt reports whether an inconsistency was detected since the last
// clear, load or repair.
func (t *Tree) IsCorrupt() bool { return t.t.IsCorrupt() }

// LastSaveError returns the outcome of the most recent local save.
func (t *Tree) LastSaveError() error { return t.t.LastSaveError() }

// Close waits for in-flight saves. The tree stays usable; later saves run inline.
func (t *Tree) Close() error {
	t.pool.Close()
	return nil
}
