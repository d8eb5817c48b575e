package tree

import "bytes"

// The lowest bit of a key's last byte is the delete bit: set for live
// records, clear for tombstones. Ordering and identity ignore it.

// IsTombstone reports whether key is a delete marker.
func IsTombstone(key []byte) bool {
	return len(key) > 0 && key[len(key)-1]&1 == 0
}

// Live returns a copy of key with the delete bit set.
func Live(key []byte) []byte {
	k := bytes.Clone(key)
	if len(k) > 0 {
		k[len(k)-1] |= 1
	}
	return k
}

// Tombstone returns a copy of key with the delete bit cleared.
func Tombstone(key []byte) []byte {
	k := bytes.Clone(key)
	if len(k) > 0 {
		k[len(k)-1] &^= 1
	}
	return k
}

// KeyFromString builds a live key of the given width: s left-aligned,
// zero padded, truncated to width-1 bytes, with the delete bit in a trailing byte.
// It returns nil when width < 1.
func KeyFromString(s string, width int) []byte {
	if width < 1 {
		return nil
	}
	k := make([]byte, width)
	copy(k[:width-1], s)
	k[width-1] = 1
	return k
}

// CompareKeys orders two keys of equal width, ignoring the delete bit.
func CompareKeys(a, b []byte) int {
	n := len(a) - 1
	if c := bytes.Compare(a[:n], b[:n]); c != 0 {
		return c
	}
	x, y := a[n]|1, b[n]|1
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}
