// Package block frames a byte stream into fixed-size, checksummed blocks.
//
// Each block is written as
//
//	[raw length uint32][stored length uint32][crc32c of raw uint32][payload]
//
// where a stored length of 0 means the payload is the raw bytes. Blocks are
// compressed with LZ4 or ZSTD when that saves at least 10%, otherwise stored
// raw. The checksum always covers the uncompressed bytes, so a [Reader]
// detects both torn writes and bit rot. A Reader is told the stream's block
// size and rejects frames claiming more before allocating for them.
//
// Tree persistence writes its slot arrays through a single [Writer] and reads
// them back with io.ReadFull on a [Reader]; block boundaries are invisible to
// both sides.
package block
