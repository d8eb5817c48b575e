package tree

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/rectree/internal/arena"
	"github.com/hupe1980/rectree/internal/block"
	"github.com/hupe1980/rectree/internal/fs"
	"github.com/hupe1980/rectree/internal/jobs"
	"github.com/hupe1980/rectree/internal/resource"
	"github.com/hupe1980/rectree/namespace"
)

// Nil is the "no slot" index.
const Nil = arena.Nil

// VariableData selects length-prefixed payloads.
const VariableData = arena.VariableData

const maxVariableData = math.MaxInt32

// Config configures a tree.
type Config struct {
	// Name is the base of the persisted file names.
	Name string
	// KeySize is the fixed key width in bytes, delete bit included.
	KeySize int
	// DataSize is 0 for key-only trees, >0 for fixed payloads, VariableData otherwise.
	DataSize int
	// Capacity is the initial slot count. 0 derives it from MemoryLimit.
	Capacity int
	// MemoryLimit bounds the initial arena when Capacity is 0.
	MemoryLimit int64
	// OwnsData copies payloads on insert instead of retaining the caller's slice.
	OwnsData bool
	// DisableBalancing keeps depths but never rotates.
	DisableBalancing bool
	// Compression selects the block codec used by Save.
	Compression block.Compression
	// BlockSize is the uncompressed size of a persisted block.
	BlockSize int
}

func (c Config) arena() arena.Config {
	return arena.Config{
		KeySize:     c.KeySize,
		DataSize:    c.DataSize,
		Capacity:    c.Capacity,
		MemoryLimit: c.MemoryLimit,
	}
}

// Validator is an extra per-record check run by Check and Repair.
type Validator func(ns namespace.ID, key, data []byte) error

// Option configures a Tree's collaborators.
type Option func(*Tree)

// WithRegistry sets the namespace registry.
func WithRegistry(r namespace.Registry) Option {
	return func(t *Tree) { t.registry = r }
}

// WithValidator sets the per-record validation hook.
func WithValidator(v Validator) Option {
	return func(t *Tree) { t.validator = v }
}

// WithFileSystem sets the file system used by Save and Load.
func WithFileSystem(fsys fs.FileSystem) Option {
	return func(t *Tree) { t.fsys = fsys }
}

// WithResources sets the memory and IO controller.
func WithResources(rc *resource.Controller) Option {
	return func(t *Tree) { t.rc = rc }
}

// WithPool sets the worker pool background saves run on.
func WithPool(p *jobs.Pool) Option {
	return func(t *Tree) { t.pool = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tree) { t.logger = l }
}

type tally struct {
	live, tombstones int64
}

// Tree is an arena-backed AVL tree of (namespace, key) → data records.
//
// All methods are safe for concurrent use; one mutex serializes them.
type Tree struct {
	mu  sync.Mutex
	cfg Config
	a   *arena.Arena

	root       int32
	live       int64
	tombstones int64
	tallies    map[namespace.ID]*tally
	dataBytes  int64 // owned payload bytes reserved with rc

	dirty       bool
	corrupt     bool
	saving      atomic.Bool
	lastSaveErr error

	registry  namespace.Registry
	validator Validator
	fsys      fs.FileSystem
	rc        *resource.Controller
	pool      *jobs.Pool
	logger    *slog.Logger
}

// New creates a tree configured by cfg.
func New(cfg Config, opts ...Option) (*Tree, error) {
	t := &Tree{root: Nil, tallies: make(map[namespace.ID]*tally)}
	for _, opt := range opts {
		opt(t)
	}
	if t.registry == nil {
		t.registry = namespace.NewOpenSet()
	}
	if t.fsys == nil {
		t.fsys = fs.Default
	}
	if t.logger == nil {
		t.logger = slog.New(slog.DiscardHandler)
	}

	if err := t.Set(cfg); err != nil {
		return nil, err
	}
	return t, nil
}

// Set discards all state and reconfigures the tree.
func (t *Tree) Set(cfg Config) error {
	if cfg.Name == "" {
		cfg.Name = "tree"
	}
	if cfg.DataSize < VariableData {
		return fmt.Errorf("%w: data size %d", ErrInvalidData, cfg.DataSize)
	}
	if cfg.Compression > block.CompressionZSTD {
		return fmt.Errorf("tree: unknown compression %d", cfg.Compression)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.resetLocked()
	a, err := arena.New(cfg.arena(), t.rc)
	if err != nil {
		return translateArenaErr(err)
	}
	t.cfg = cfg
	t.a = a
	return nil
}

// Reset discards all state and memory. The tree is unusable until Set.
func (t *Tree) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetLocked()
}

func (t *Tree) resetLocked() {
	if t.a == nil {
		return
	}
	t.clearLocked(false)
	t.a.Reset()
	t.a = nil
	t.dirty = false
}

// Clear removes every record but keeps the arena's capacity.
func (t *Tree) Clear() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.a == nil {
		return ErrNotConfigured
	}
	if err := t.clearLocked(true); err != nil {
		return err
	}
	t.dirty = true
	return nil
}

// clearLocked empties the tree and subtracts this tree's contribution from
// the registry counters. strict reports namespaces the registry cannot
// address as logical-use errors; the counts are cleared either way.
func (t *Tree) clearLocked(strict bool) error {
	var bad []namespace.ID
	for ns, tl := range t.tallies {
		c := t.registry.Counters(ns)
		if c == nil {
			bad = append(bad, ns)
			continue
		}
		c.Add(-tl.live, -tl.tombstones)
	}
	clear(t.tallies)

	t.rc.ReleaseMemory(t.dataBytes)
	t.dataBytes = 0
	t.live, t.tombstones = 0, 0
	t.root = Nil
	t.corrupt = false
	t.a.Clear()

	if strict && len(bad) > 0 {
		return fmt.Errorf("%w: namespaces %v outside registry range", ErrLogicalUse, bad)
	}
	return nil
}

// Grow enlarges the tree to capacity slots.
func (t *Tree) Grow(capacity int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.a == nil {
		return ErrNotConfigured
	}

	before := t.a.Capacity()
	if err := t.a.Grow(capacity); err != nil {
		return translateArenaErr(err)
	}
	if t.a.Capacity() != before {
		t.logger.Debug("tree grown", "name", t.cfg.Name, "from", before, "to", t.a.Capacity())
	}
	return nil
}

func translateArenaErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, arena.ErrFull):
		return fmt.Errorf("%w: %w", ErrTreeFull, err)
	case errors.Is(err, arena.ErrCorruptFreeList):
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	case errors.Is(err, arena.ErrDoubleFree):
		return fmt.Errorf("%w: %w: %w", ErrDoubleDelete, ErrLogicalUse, err)
	case errors.Is(err, arena.ErrInvalidConfig), errors.Is(err, arena.ErrCapacityLimit):
		return fmt.Errorf("tree: %w", err)
	default:
		return err
	}
}

// Config returns the tree's configuration.
func (t *Tree) Config() Config {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg
}

// Used returns the number of occupied slots.
func (t *Tree) Used() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.a == nil {
		return 0
	}
	return int(t.a.Used())
}

// Available returns the number of slots left before the tree is full.
func (t *Tree) Available() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.a == nil {
		return 0
	}
	return int(t.a.Available())
}

// Capacity returns the number of allocated slots.
func (t *Tree) Capacity() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.a == nil {
		return 0
	}
	return int(t.a.Capacity())
}

// MemoryUsage returns the bytes held by slot arrays and owned payloads.
func (t *Tree) MemoryUsage() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.a == nil {
		return 0
	}
	return t.a.MemoryUsage() + t.dataBytes
}

// LiveCount returns the number of live records.
func (t *Tree) LiveCount() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

// TombstoneCount returns the number of tombstones.
func (t *Tree) TombstoneCount() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tombstones
}

// NamespaceCounts returns this tree's live and tombstone counts for ns.
func (t *Tree) NamespaceCounts(ns namespace.ID) (live, tombstones int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tl := t.tallies[ns]; tl != nil {
		return tl.live, tl.tombstones
	}
	return 0, 0
}

// Namespaces returns the namespaces that currently hold records.
func (t *Tree) Namespaces() *roaring.Bitmap {
	t.mu.Lock()
	defer t.mu.Unlock()
	bm := roaring.New()
	for ns, tl := range t.tallies {
		if tl.live+tl.tombstones > 0 {
			bm.Add(uint32(ns))
		}
	}
	return bm
}

// Height returns the depth of the root, 0 for an empty tree.
func (t *Tree) Height() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.height(t.root)
}

// IsDirty reports whether the tree changed since the last successful save or load.
func (t *Tree) IsDirty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dirty
}

// IsCorrupt reports whether a claim or load found the tree inconsistent.
func (t *Tree) IsCorrupt() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.corrupt
}

// IsSaving reports whether a save is in flight.
func (t *Tree) IsSaving() bool { return t.saving.Load() }

// LastSaveError returns the error of the most recent save, nil on success.
func (t *Tree) LastSaveError() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastSaveErr
}

func (t *Tree) checkKey(key []byte) error {
	if len(key) != t.cfg.KeySize {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidKey, len(key), t.cfg.KeySize)
	}
	return nil
}

// checkData validates a payload for a record whose key has the given tombstone state.
func (t *Tree) checkData(data []byte, tomb bool) error {
	switch {
	case tomb:
		return nil
	case t.cfg.DataSize == 0:
		if len(data) != 0 {
			return fmt.Errorf("%w: tree carries no data", ErrInvalidData)
		}
	case t.cfg.DataSize > 0:
		if len(data) != t.cfg.DataSize {
			return fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidData, len(data), t.cfg.DataSize)
		}
	case len(data) > maxVariableData:
		return fmt.Errorf("%w: %d bytes exceeds maximum", ErrInvalidData, len(data))
	}
	return nil
}

// recordSize is the number of bytes a record occupies in a list.
func (t *Tree) recordSize(key, data []byte) int {
	n := len(key)
	switch {
	case t.cfg.DataSize == VariableData:
		n += 4 + len(data)
	case t.cfg.DataSize > 0 && !IsTombstone(key):
		n += t.cfg.DataSize
	}
	return n
}

func (t *Tree) keepPayload(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if !t.cfg.OwnsData {
		return data, nil
	}
	if err := t.rc.AcquireMemory(int64(len(data))); err != nil {
		return nil, err
	}
	t.dataBytes += int64(len(data))
	return bytes.Clone(data), nil
}

func (t *Tree) dropPayload(data []byte) {
	if !t.cfg.OwnsData || len(data) == 0 {
		return
	}
	t.rc.ReleaseMemory(int64(len(data)))
	t.dataBytes -= int64(len(data))
}
