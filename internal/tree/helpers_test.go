package tree

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/hupe1980/rectree/namespace"
	"github.com/stretchr/testify/require"
)

var (
	minKey = make([]byte, 8)
	maxKey = bytes.Repeat([]byte{0xff}, 8)
)

// key returns the live 8-byte key for n; order follows n.
func key(n uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, n<<1|1)
	return k
}

func tomb(n uint64) []byte { return Tombstone(key(n)) }

func keyNum(k []byte) uint64 { return binary.BigEndian.Uint64(k) >> 1 }

func listNums(l *List) []uint64 {
	out := make([]uint64, 0, len(l.Records))
	for _, r := range l.Records {
		out = append(out, keyNum(r.Key))
	}
	return out
}

func newRegistry(t *testing.T, ids ...namespace.ID) *namespace.Set {
	t.Helper()
	reg := namespace.NewSet(16)
	for _, id := range ids {
		require.NoError(t, reg.Add(id))
	}
	return reg
}

func newTree(t *testing.T, cfg Config, opts ...Option) *Tree {
	t.Helper()
	if cfg.KeySize == 0 {
		cfg.KeySize = 8
	}
	if cfg.Capacity == 0 && cfg.MemoryLimit == 0 {
		cfg.Capacity = 1024
	}
	tr, err := New(cfg, opts...)
	require.NoError(t, err)
	return tr
}

func mustInsert(t *testing.T, tr *Tree, ns namespace.ID, k, data []byte) int32 {
	t.Helper()
	slot, _, err := tr.Insert(ns, k, data)
	require.NoError(t, err)
	return slot
}
