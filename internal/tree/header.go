package tree

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hupe1980/rectree/internal/block"
)

const (
	// fileMagic is "RTRE" read as a little-endian uint32.
	fileMagic     uint32 = 0x45525452
	formatVersion uint32 = 1

	// HeaderSize is the encoded size of a Header.
	HeaderSize = 64
)

// Header is the fixed-size preamble of a saved tree file. Counts are
// advisory; Load recomputes them from the slots.
type Header struct {
	Version     uint32
	Capacity    int32
	KeySize     int32
	DataSize    int32
	Used        int32
	Root        int32
	FreeHead    int32
	HighWater   int32
	Live        int64
	Tombstones  int64
	Balanced    bool
	OwnsData    bool
	Compression block.Compression
	BlockSize   int32 // uncompressed bytes per block; bounds every frame on load
}

// MarshalBinary encodes the header, trailing CRC32C included.
func (h *Header) MarshalBinary() ([]byte, error) {
	b := make([]byte, HeaderSize)
	le := binary.LittleEndian
	le.PutUint32(b[0:], fileMagic)
	le.PutUint32(b[4:], h.Version)
	le.PutUint32(b[8:], uint32(h.Capacity))
	le.PutUint32(b[12:], uint32(h.KeySize))
	le.PutUint32(b[16:], uint32(h.DataSize))
	le.PutUint32(b[20:], uint32(h.Used))
	le.PutUint32(b[24:], uint32(h.Root))
	le.PutUint32(b[28:], uint32(h.FreeHead))
	le.PutUint32(b[32:], uint32(h.HighWater))
	le.PutUint64(b[36:], uint64(h.Live))
	le.PutUint64(b[44:], uint64(h.Tombstones))
	b[52] = boolByte(h.Balanced)
	b[53] = boolByte(h.OwnsData)
	b[54] = byte(h.Compression)
	le.PutUint32(b[56:], uint32(h.BlockSize))
	le.PutUint32(b[60:], block.Checksum(b[:60]))
	return b, nil
}

// UnmarshalBinary decodes and verifies a header.
func (h *Header) UnmarshalBinary(b []byte) error {
	if len(b) < HeaderSize {
		return fmt.Errorf("%w: header is %d bytes", ErrIncompatibleFormat, len(b))
	}
	le := binary.LittleEndian
	if m := le.Uint32(b[0:]); m != fileMagic {
		return fmt.Errorf("%w: bad magic %#x", ErrIncompatibleFormat, m)
	}
	if sum := le.Uint32(b[60:]); sum != block.Checksum(b[:60]) {
		return fmt.Errorf("tree: header: %w", block.ErrChecksum)
	}

	*h = Header{
		Version:     le.Uint32(b[4:]),
		Capacity:    int32(le.Uint32(b[8:])),
		KeySize:     int32(le.Uint32(b[12:])),
		DataSize:    int32(le.Uint32(b[16:])),
		Used:        int32(le.Uint32(b[20:])),
		Root:        int32(le.Uint32(b[24:])),
		FreeHead:    int32(le.Uint32(b[28:])),
		HighWater:   int32(le.Uint32(b[32:])),
		Live:        int64(le.Uint64(b[36:])),
		Tombstones:  int64(le.Uint64(b[44:])),
		Balanced:    b[52] != 0,
		OwnsData:    b[53] != 0,
		Compression: block.Compression(b[54]),
		BlockSize:   int32(le.Uint32(b[56:])),
	}
	if h.Version != formatVersion {
		return fmt.Errorf("%w: version %d", ErrIncompatibleFormat, h.Version)
	}
	if h.Compression > block.CompressionZSTD {
		return fmt.Errorf("%w: compression %d", ErrIncompatibleFormat, h.Compression)
	}
	if h.BlockSize <= 0 || h.BlockSize > block.MaxBlockSize {
		return fmt.Errorf("%w: block size %d", ErrIncompatibleFormat, h.BlockSize)
	}
	return nil
}

// ReadHeader reads and verifies the header at the start of r.
func ReadHeader(r io.Reader) (*Header, error) {
	b := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("tree: read header: %w", err)
	}
	h := &Header{}
	if err := h.UnmarshalBinary(b); err != nil {
		return nil, err
	}
	return h, nil
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}
