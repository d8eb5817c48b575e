package rectree

import (
	"encoding/binary"

	"github.com/hupe1980/rectree/internal/tree"
)

// IsTombstone reports whether key has its delete bit cleared.
func IsTombstone(key []byte) bool { return tree.IsTombstone(key) }

// Live returns a copy of key with the delete bit set.
func Live(key []byte) []byte { return tree.Live(key) }

// Tombstone returns a copy of key with the delete bit cleared.
func Tombstone(key []byte) []byte { return tree.Tombstone(key) }

// KeyFromString builds a live key of the given width: s zero padded or
// truncated to width-1 bytes, followed by the delete-bit byte. A width
// below 1 yields nil, which every operation rejects with ErrInvalidKey.
func KeyFromString(s string, width int) []byte { return tree.KeyFromString(s, width) }

// KeyFromUint64 builds a live 8-byte key that orders like v. The delete bit
// takes the lowest bit, so v must fit in 63 bits.
func KeyFromUint64(v uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, v<<1|1)
	return k
}

// Uint64FromKey inverts KeyFromUint64.
func Uint64FromKey(key []byte) uint64 {
	return binary.BigEndian.Uint64(key) >> 1
}

// CompareKeys orders two keys, ignoring the delete bit.
func CompareKeys(a, b []byte) int { return tree.CompareKeys(a, b) }
