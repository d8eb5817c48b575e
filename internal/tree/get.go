package tree

import (
	"bytes"
	"fmt"

	"github.com/hupe1980/rectree/namespace"
)

// Get returns the payload of the live record stored under (ns, key).
// Tombstones read as ErrNotFound. The returned slice must not be modified.
func (t *Tree) Get(ns namespace.ID, key []byte) ([]byte, error) {
	if err := t.checkKey(key); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.a == nil {
		return nil, ErrNotConfigured
	}

	i := t.find(ns, key)
	if i == Nil || IsTombstone(t.a.Key(i)) {
		return nil, ErrNotFound
	}
	return t.data(i), nil
}

// GetData returns the payload of slot i.
func (t *Tree) GetData(i int32) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.occupied(i) {
		return nil, fmt.Errorf("%w: slot %d", ErrNotFound, i)
	}
	return t.data(i), nil
}

// Slot returns the namespace and a copy of the key stored in slot i.
func (t *Tree) Slot(i int32) (namespace.ID, []byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.occupied(i) {
		return 0, nil, fmt.Errorf("%w: slot %d", ErrNotFound, i)
	}
	return namespace.ID(t.a.NS[i]), bytes.Clone(t.a.Key(i)), nil
}

func (t *Tree) data(i int32) []byte {
	if t.a.Data == nil {
		return nil
	}
	return t.a.Data[i]
}
