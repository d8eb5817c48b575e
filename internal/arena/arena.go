package arena

import (
	"errors"
	"fmt"
)

// Nil is the "no slot" index used for absent children, parents and roots.
const Nil int32 = -1

const (
	// MaxCapacity caps the number of slots an arena may hold.
	MaxCapacity = 1 << 26

	// VariableData marks a tree whose payloads carry an explicit length.
	VariableData = -1

	// variableDataEstimate is the assumed average payload per slot when the
	// capacity of a variable-data arena is derived from its memory limit.
	variableDataEstimate = 64

	sliceHeaderSize = 24
)

var (
	// ErrFull is returned by Claim when every slot is occupied.
	ErrFull = errors.New("arena: no free slots")
	// ErrCorruptFreeList is returned by Claim when the free list disagrees with slot states.
	ErrCorruptFreeList = errors.New("arena: free list corrupt")
	// ErrDoubleFree is returned by Release for a slot that is not occupied.
	ErrDoubleFree = errors.New("arena: slot already free")
	// ErrCapacityLimit is returned when a capacity exceeds MaxCapacity.
	ErrCapacityLimit = errors.New("arena: capacity exceeds maximum")
	// ErrInvalidConfig is returned for a configuration that cannot size an arena.
	ErrInvalidConfig = errors.New("arena: invalid config")
)

// SlotState is the lifecycle state of a slot.
type SlotState uint8

const (
	// SlotVirgin slots lie at or above the high-water mark and were never used.
	SlotVirgin SlotState = iota
	// SlotFree slots were used and are now on the free list.
	SlotFree
	// SlotUsed slots hold a record.
	SlotUsed
)

func (s SlotState) String() string {
	switch s {
	case SlotVirgin:
		return "virgin"
	case SlotFree:
		return "free"
	case SlotUsed:
		return "used"
	default:
		return fmt.Sprintf("SlotState(%d)", uint8(s))
	}
}

// MemoryAcquirer reserves and releases bytes against a memory ceiling.
type MemoryAcquirer interface {
	AcquireMemory(bytes int64) error
	ReleaseMemory(bytes int64)
}

// Config sizes an arena.
type Config struct {
	KeySize     int
	DataSize    int   // 0 = no data, >0 = fixed, VariableData = variable
	Capacity    int   // 0 = derive from MemoryLimit
	MemoryLimit int64 // used only when Capacity is 0
}

// Arena holds the parallel slot arrays of a tree.
//
// The arrays are exported so the tree can walk and relink slots without a
// method call per pointer chase. Only Claim, Release, Grow, Clear and Restore
// change slot states or the free list.
type Arena struct {
	Keys   []byte // KeySize bytes per slot
	NS     []uint16
	Left   []int32
	Right  []int32
	Parent []int32
	Depth  []uint8
	State  []SlotState
	Data   [][]byte // nil when the arena carries no data

	cfg       Config
	capacity  int32
	highWater int32
	used      int32
	free      []int32 // stack; the top is the next slot handed out

	mem      MemoryAcquirer
	reserved int64
}

// New creates an arena sized by cfg. mem may be nil.
func New(cfg Config, mem MemoryAcquirer) (*Arena, error) {
	a := &Arena{mem: mem}
	if err := a.Set(cfg); err != nil {
		return nil, err
	}
	return a, nil
}

// SlotOverhead returns the bytes one slot costs in the parallel arrays.
func SlotOverhead(cfg Config) int64 {
	n := int64(cfg.KeySize) + 2 + 3*4 + 1 + 1
	if cfg.DataSize != 0 {
		n += sliceHeaderSize
	}
	return n
}

// CapacityFor returns the slot count cfg resolves to.
func CapacityFor(cfg Config) (int, error) {
	if cfg.KeySize <= 0 {
		return 0, fmt.Errorf("%w: key size %d", ErrInvalidConfig, cfg.KeySize)
	}
	if cfg.DataSize < VariableData {
		return 0, fmt.Errorf("%w: data size %d", ErrInvalidConfig, cfg.DataSize)
	}

	if cfg.Capacity > 0 {
		if cfg.Capacity > MaxCapacity {
			return 0, fmt.Errorf("%w: %d", ErrCapacityLimit, cfg.Capacity)
		}
		return cfg.Capacity, nil
	}
	if cfg.MemoryLimit <= 0 {
		return 0, fmt.Errorf("%w: need capacity or memory limit", ErrInvalidConfig)
	}

	perSlot := SlotOverhead(cfg)
	switch {
	case cfg.DataSize > 0:
		perSlot += int64(cfg.DataSize)
	case cfg.DataSize == VariableData:
		perSlot += variableDataEstimate
	}

	n := cfg.MemoryLimit / perSlot
	if n > MaxCapacity {
		n = MaxCapacity
	}
	if n <= 0 {
		return 0, fmt.Errorf("%w: memory limit %d below one slot", ErrInvalidConfig, cfg.MemoryLimit)
	}
	return int(n), nil
}

// Set discards all state and sizes the arena for cfg.
func (a *Arena) Set(cfg Config) error {
	capacity, err := CapacityFor(cfg)
	if err != nil {
		return err
	}

	a.Reset()
	a.cfg = cfg
	return a.Grow(capacity)
}

// Reset releases every array and all reserved memory.
func (a *Arena) Reset() {
	if a.mem != nil && a.reserved > 0 {
		a.mem.ReleaseMemory(a.reserved)
	}
	*a = Arena{mem: a.mem, cfg: a.cfg}
}

// Clear empties the arena logically while keeping its arrays.
func (a *Arena) Clear() {
	for i := int32(0); i < a.highWater; i++ {
		a.State[i] = SlotVirgin
		a.Left[i], a.Right[i], a.Parent[i] = Nil, Nil, Nil
		a.Depth[i] = 0
		if a.Data != nil {
			a.Data[i] = nil
		}
	}
	a.highWater = 0
	a.used = 0
	a.free = a.free[:0]
}

// Grow enlarges every parallel array to capacity, preserving contents.
//
// Memory for each array is reserved before anything is allocated. If any
// reservation fails, the ones already made are returned and the arena is left
// exactly as it was.
func (a *Arena) Grow(capacity int) error {
	if capacity > MaxCapacity {
		return fmt.Errorf("%w: %d", ErrCapacityLimit, capacity)
	}
	if int32(capacity) <= a.capacity {
		return nil
	}

	delta := int64(capacity - int(a.capacity))
	parts := []int64{
		delta * int64(a.cfg.KeySize), // keys
		delta * 2,                    // namespaces
		delta * 4 * 3,                // left, right, parent
		delta,                        // depth
		delta,                        // state
	}
	if a.cfg.DataSize != 0 {
		parts = append(parts, delta*sliceHeaderSize)
	}

	var acquired int64
	for _, n := range parts {
		if a.mem == nil {
			break
		}
		if err := a.mem.AcquireMemory(n); err != nil {
			a.mem.ReleaseMemory(acquired)
			return fmt.Errorf("arena: grow to %d slots: %w", capacity, err)
		}
		acquired += n
	}
	if a.mem == nil {
		for _, n := range parts {
			acquired += n
		}
	}

	keys := make([]byte, capacity*a.cfg.KeySize)
	copy(keys, a.Keys)
	ns := make([]uint16, capacity)
	copy(ns, a.NS)
	left := growIndex(a.Left, capacity)
	right := growIndex(a.Right, capacity)
	parent := growIndex(a.Parent, capacity)
	depth := make([]uint8, capacity)
	copy(depth, a.Depth)
	state := make([]SlotState, capacity)
	copy(state, a.State)

	var data [][]byte
	if a.cfg.DataSize != 0 {
		data = make([][]byte, capacity)
		copy(data, a.Data)
	}

	a.Keys, a.NS = keys, ns
	a.Left, a.Right, a.Parent = left, right, parent
	a.Depth, a.State, a.Data = depth, state, data
	a.capacity = int32(capacity)
	a.reserved += acquired
	return nil
}

func growIndex(old []int32, capacity int) []int32 {
	s := make([]int32, capacity)
	n := copy(s, old)
	for i := n; i < capacity; i++ {
		s[i] = Nil
	}
	return s
}

// Claim hands out a slot, preferring the free list over virgin slots.
func (a *Arena) Claim() (int32, error) {
	if n := len(a.free); n > 0 {
		i := a.free[n-1]
		if i < 0 || i >= a.highWater || a.State[i] != SlotFree {
			return Nil, fmt.Errorf("%w: head %d", ErrCorruptFreeList, i)
		}
		a.free = a.free[:n-1]
		a.take(i)
		return i, nil
	}

	// Slots below the high-water mark that are neither used nor listed leaked.
	if a.used != a.highWater {
		return Nil, fmt.Errorf("%w: %d used below high water %d with empty free list",
			ErrCorruptFreeList, a.used, a.highWater)
	}
	if a.highWater >= a.capacity {
		return Nil, ErrFull
	}

	i := a.highWater
	if a.State[i] != SlotVirgin {
		return Nil, fmt.Errorf("%w: slot %d above high water is %s", ErrCorruptFreeList, i, a.State[i])
	}
	a.highWater++
	a.take(i)
	return i, nil
}

func (a *Arena) take(i int32) {
	a.State[i] = SlotUsed
	a.Left[i], a.Right[i], a.Parent[i] = Nil, Nil, Nil
	a.Depth[i] = 1
	a.used++
}

// Release returns an occupied slot to the free list.
func (a *Arena) Release(i int32) error {
	if i < 0 || i >= a.highWater {
		return fmt.Errorf("%w: slot %d out of range", ErrDoubleFree, i)
	}
	if a.State[i] != SlotUsed {
		return fmt.Errorf("%w: slot %d is %s", ErrDoubleFree, i, a.State[i])
	}

	a.State[i] = SlotFree
	a.Left[i], a.Right[i], a.Parent[i] = Nil, Nil, Nil
	a.Depth[i] = 0
	if a.Data != nil {
		a.Data[i] = nil
	}
	a.free = append(a.free, i)
	a.used--
	return nil
}

// Restore rebuilds slot states and the free list after the arrays were
// filled from disk. free lists slot indices from the top of the stack down.
func (a *Arena) Restore(highWater int32, free []int32) error {
	if highWater < 0 || highWater > a.capacity {
		return fmt.Errorf("%w: high water %d beyond capacity %d", ErrInvalidConfig, highWater, a.capacity)
	}

	for i := int32(0); i < highWater; i++ {
		a.State[i] = SlotUsed
	}
	for i := highWater; i < a.capacity; i++ {
		a.State[i] = SlotVirgin
	}

	a.free = a.free[:0]
	for k := len(free) - 1; k >= 0; k-- {
		i := free[k]
		if i < 0 || i >= highWater || a.State[i] != SlotUsed {
			return fmt.Errorf("%w: entry %d", ErrCorruptFreeList, i)
		}
		a.State[i] = SlotFree
		a.free = append(a.free, i)
	}

	a.highWater = highWater
	a.used = highWater - int32(len(free))
	return nil
}

// Key returns slot i's key. The slice aliases the arena.
func (a *Arena) Key(i int32) []byte {
	n := a.cfg.KeySize
	off := int(i) * n
	return a.Keys[off : off+n : off+n]
}

// SetKey copies k into slot i.
func (a *Arena) SetKey(i int32, k []byte) {
	copy(a.Key(i), k)
}

// FreeList returns the free-list stack, bottom first. The slice aliases the arena.
func (a *Arena) FreeList() []int32 { return a.free }

// Config returns the arena's configuration.
func (a *Arena) Config() Config { return a.cfg }

// Capacity returns the number of slots allocated.
func (a *Arena) Capacity() int32 { return a.capacity }

// HighWater returns one past the highest slot ever handed out.
func (a *Arena) HighWater() int32 { return a.highWater }

// Used returns the number of occupied slots.
func (a *Arena) Used() int32 { return a.used }

// Available returns how many more slots can be claimed without growing.
func (a *Arena) Available() int32 { return a.capacity - a.used }

// MemoryUsage returns the bytes reserved for the slot arrays.
func (a *Arena) MemoryUsage() int64 { return a.reserved }
