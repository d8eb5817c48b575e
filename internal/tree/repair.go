package tree

import (
	"bytes"
	"fmt"

	"github.com/bits-and-blooms/bitset"
	"github.com/hupe1980/rectree/internal/arena"
	"github.com/hupe1980/rectree/namespace"
)

type salvaged struct {
	ns   namespace.ID
	key  []byte
	data []byte
}

// Repair rebuilds the tree from every occupied slot that passes validation
// and returns how many records were dropped. Slots listed on the free list
// count as deleted whatever their state says. The rebuilt tree must pass
// Check, otherwise ErrRepairFailed is returned.
func (t *Tree) Repair() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.a == nil {
		return 0, ErrNotConfigured
	}

	a := t.a
	hw := a.HighWater()
	listed := bitset.New(uint(hw))
	for _, i := range a.FreeList() {
		if i >= 0 && i < hw {
			listed.Set(uint(i))
		}
	}

	keep := make([]salvaged, 0, a.Used())
	dropped := 0
	for i := int32(0); i < hw; i++ {
		if a.State[i] != arena.SlotUsed || listed.Test(uint(i)) {
			continue
		}
		if err := t.validSlot(i); err != nil {
			dropped++
			t.logger.Warn("repair dropped record", "name", t.cfg.Name, "slot", i, "error", err)
			continue
		}
		keep = append(keep, salvaged{
			ns:   namespace.ID(a.NS[i]),
			key:  bytes.Clone(a.Key(i)),
			data: t.data(i),
		})
	}

	_ = t.clearLocked(false)
	for _, r := range keep {
		_, replaced, err := t.insert(r.ns, r.key, r.data)
		switch {
		case err != nil:
			dropped++
			t.logger.Warn("repair could not reinsert record", "name", t.cfg.Name, "ns", r.ns, "error", err)
		case replaced:
			dropped++
			t.logger.Warn("repair dropped duplicate key", "name", t.cfg.Name, "ns", r.ns)
		}
	}
	t.dirty = true

	if err := t.check(); err != nil {
		return dropped, fmt.Errorf("%w: %w", ErrRepairFailed, err)
	}
	t.logger.Info("tree repaired", "name", t.cfg.Name, "kept", t.a.Used(), "dropped", dropped)
	return dropped, nil
}
