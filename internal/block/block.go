package block

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the algorithm applied to each block.
type Compression uint8

const (
	// CompressionNone stores blocks as-is.
	CompressionNone Compression = 0
	// CompressionLZ4 uses LZ4 block compression (fast).
	CompressionLZ4 Compression = 1
	// CompressionZSTD uses ZSTD (better ratio).
	CompressionZSTD Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("Compression(%d)", uint8(c))
	}
}

// ParseCompression maps a name to a Compression.
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	default:
		return 0, fmt.Errorf("block: unknown compression %q", s)
	}
}

const (
	// DefaultBlockSize is the uncompressed size of a full block.
	DefaultBlockSize = 256 * 1024
	// MaxBlockSize bounds the block size a writer may use and a reader accepts.
	MaxBlockSize = 16 << 20
)

// headerSize is [rawLen uint32][storedLen uint32][crc32c uint32].
// storedLen == 0 means the payload is stored uncompressed.
const headerSize = 12

var (
	// ErrChecksum is returned when a block's checksum does not match its contents.
	ErrChecksum = errors.New("block: checksum mismatch")
	// ErrTruncated is returned when a block is shorter than its header claims.
	ErrTruncated = errors.New("block: truncated")
	// ErrFrameSize is returned when a block header claims more bytes than the
	// stream's block size allows.
	ErrFrameSize = errors.New("block: frame length out of range")
)

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// Checksum computes the CRC32-Castagnoli checksum of data.
func Checksum(data []byte) uint32 {
	return crc32.Checksum(data, crc32cTable)
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// encode frames raw, compressing it when that saves at least 10%.
func encode(raw []byte, c Compression) ([]byte, error) {
	var compressed []byte

	switch c {
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(raw)))
		n, err := lz4.CompressBlock(raw, buf, nil)
		if err != nil {
			return nil, err
		}
		compressed = buf[:n] // n == 0 means incompressible
	case CompressionZSTD:
		enc := getZstdEncoder()
		compressed = enc.EncodeAll(raw, nil)
		zstdEncoderPool.Put(enc)
	}

	stored := raw
	storedLen := uint32(0)
	if len(compressed) > 0 && float64(len(compressed)) <= float64(len(raw))*0.9 {
		stored = compressed
		storedLen = uint32(len(compressed))
	}

	out := make([]byte, headerSize+len(stored))
	binary.LittleEndian.PutUint32(out[0:], uint32(len(raw)))
	binary.LittleEndian.PutUint32(out[4:], storedLen)
	binary.LittleEndian.PutUint32(out[8:], Checksum(raw))
	copy(out[headerSize:], stored)
	return out, nil
}

// decode reverses encode given the parsed header and the stored payload.
func decode(rawLen, storedLen, sum uint32, stored []byte, c Compression) ([]byte, error) {
	var raw []byte

	if storedLen == 0 {
		if uint32(len(stored)) != rawLen {
			return nil, ErrTruncated
		}
		raw = stored
	} else {
		raw = make([]byte, rawLen)
		switch c {
		case CompressionLZ4:
			n, err := lz4.UncompressBlock(stored, raw)
			if err != nil {
				return nil, fmt.Errorf("block: lz4: %w", err)
			}
			if uint32(n) != rawLen {
				return nil, errors.New("block: decompressed size mismatch")
			}
		case CompressionZSTD:
			dec := getZstdDecoder()
			decoded, err := dec.DecodeAll(stored, raw[:0])
			zstdDecoderPool.Put(dec)
			if err != nil {
				return nil, fmt.Errorf("block: zstd: %w", err)
			}
			if uint32(len(decoded)) != rawLen {
				return nil, errors.New("block: decompressed size mismatch")
			}
			raw = decoded
		default:
			return nil, fmt.Errorf("block: compressed block in %s stream", c)
		}
	}

	if Checksum(raw) != sum {
		return nil, ErrChecksum
	}
	return raw, nil
}
