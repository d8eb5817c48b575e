package block

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Writer splits a byte stream into checksummed, optionally compressed blocks.
type Writer struct {
	w           io.Writer
	compression Compression
	blockSize   int
	buffer      *bytes.Buffer
	written     int64
	blocks      int
}

// NewWriter creates a block writer. blockSize <= 0 selects DefaultBlockSize
// and sizes above MaxBlockSize are clamped.
func NewWriter(w io.Writer, c Compression, blockSize int) *Writer {
	blockSize = EffectiveBlockSize(blockSize)
	return &Writer{
		w:           w,
		compression: c,
		blockSize:   blockSize,
		buffer:      bytes.NewBuffer(make([]byte, 0, blockSize)),
	}
}

// Write buffers p, flushing full blocks as it goes.
func (bw *Writer) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		space := bw.blockSize - bw.buffer.Len()
		if space <= 0 {
			if err := bw.Flush(); err != nil {
				return total, err
			}
			space = bw.blockSize
		}

		n := min(len(p), space)
		bw.buffer.Write(p[:n])
		total += n
		p = p[n:]
	}
	return total, nil
}

// Flush encodes and writes the buffered partial block, if any.
func (bw *Writer) Flush() error {
	if bw.buffer.Len() == 0 {
		return nil
	}

	frame, err := encode(bw.buffer.Bytes(), bw.compression)
	if err != nil {
		return err
	}
	n, err := bw.w.Write(frame)
	bw.written += int64(n)
	if err != nil {
		return err
	}

	bw.buffer.Reset()
	bw.blocks++
	return nil
}

// Written returns the encoded bytes handed to the underlying writer.
func (bw *Writer) Written() int64 { return bw.written }

// Blocks returns the number of blocks written.
func (bw *Writer) Blocks() int { return bw.blocks }

// EffectiveBlockSize returns the block size a Writer created with blockSize uses.
func EffectiveBlockSize(blockSize int) int {
	switch {
	case blockSize <= 0:
		return DefaultBlockSize
	case blockSize > MaxBlockSize:
		return MaxBlockSize
	default:
		return blockSize
	}
}

// Reader reassembles the byte stream written by a Writer, verifying every block.
type Reader struct {
	r           io.Reader
	compression Compression
	limit       uint32
	header      [headerSize]byte
	cur         []byte
}

// NewReader creates a block reader for a stream written with blockSize.
// Frames claiming more than that many bytes are rejected before any
// payload is read.
func NewReader(r io.Reader, c Compression, blockSize int) *Reader {
	return &Reader{r: r, compression: c, limit: uint32(EffectiveBlockSize(blockSize))}
}

// Read implements io.Reader.
func (br *Reader) Read(p []byte) (int, error) {
	for len(br.cur) == 0 {
		if err := br.next(); err != nil {
			return 0, err
		}
	}

	n := copy(p, br.cur)
	br.cur = br.cur[n:]
	return n, nil
}

func (br *Reader) next() error {
	if _, err := io.ReadFull(br.r, br.header[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return ErrTruncated
		}
		return err
	}

	rawLen := binary.LittleEndian.Uint32(br.header[0:])
	storedLen := binary.LittleEndian.Uint32(br.header[4:])
	sum := binary.LittleEndian.Uint32(br.header[8:])

	// Compressed payloads are only kept when smaller than the raw bytes.
	if rawLen > br.limit || storedLen > rawLen {
		return fmt.Errorf("%w: raw %d, stored %d, limit %d", ErrFrameSize, rawLen, storedLen, br.limit)
	}

	size := storedLen
	if size == 0 {
		size = rawLen
	}
	stored := make([]byte, size)
	if _, err := io.ReadFull(br.r, stored); err != nil {
		return ErrTruncated
	}

	raw, err := decode(rawLen, storedLen, sum, stored, br.compression)
	if err != nil {
		return err
	}
	br.cur = raw
	return nil
}
