package block

import (
	"bytes"
	"encoding/binary"
	"io"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	random := make([]byte, 10_000)
	for i := range random {
		random[i] = byte(rng.UintN(256))
	}
	repetitive := bytes.Repeat([]byte("namespace-key-"), 2_000)

	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		for name, data := range map[string][]byte{"random": random, "repetitive": repetitive} {
			t.Run(c.String()+"/"+name, func(t *testing.T) {
				var buf bytes.Buffer
				w := NewWriter(&buf, c, 4096)

				// Uneven writes exercise block splitting.
				for off := 0; off < len(data); off += 777 {
					end := min(off+777, len(data))
					_, err := w.Write(data[off:end])
					require.NoError(t, err)
				}
				require.NoError(t, w.Flush())
				assert.Equal(t, (len(data)+4095)/4096, w.Blocks())

				got := make([]byte, len(data))
				r := NewReader(&buf, c, 4096)
				_, err := io.ReadFull(r, got)
				require.NoError(t, err)
				assert.Equal(t, data, got)

				_, err = r.Read(make([]byte, 1))
				assert.ErrorIs(t, err, io.EOF)
			})
		}
	}
}

func TestCompressionShrinksRepetitiveData(t *testing.T) {
	data := bytes.Repeat([]byte{0, 0, 0, 1}, 16_384)

	for _, c := range []Compression{CompressionLZ4, CompressionZSTD} {
		var buf bytes.Buffer
		w := NewWriter(&buf, c, 0)
		_, err := w.Write(data)
		require.NoError(t, err)
		require.NoError(t, w.Flush())
		assert.Less(t, w.Written(), int64(len(data)/4), c.String())
	}
}

func TestChecksumMismatch(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, CompressionNone, 0)
	_, err := w.Write([]byte("left right parent depth"))
	require.NoError(t, err)
	require.NoError(t, w.Flush())

	raw := buf.Bytes()
	raw[headerSize+3] ^= 0xFF

	_, err = io.ReadAll(NewReader(bytes.NewReader(raw), CompressionNone, 0))
	assert.ErrorIs(t, err, ErrChecksum)
}

func TestTruncatedBlock(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, CompressionNone, 0)
	_, err := w.Write(bytes.Repeat([]byte("k"), 100))
	require.NoError(t, err)
	require.NoError(t, w.Flush())

	raw := buf.Bytes()[:buf.Len()-10]
	_, err = io.ReadAll(NewReader(bytes.NewReader(raw), CompressionNone, 0))
	assert.ErrorIs(t, err, ErrTruncated)

	_, err = io.ReadAll(NewReader(bytes.NewReader(raw[:5]), CompressionNone, 0))
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestForgedFrameLength(t *testing.T) {
	frame := func() []byte {
		var buf bytes.Buffer
		w := NewWriter(&buf, CompressionNone, 1024)
		_, err := w.Write(bytes.Repeat([]byte("x"), 100))
		require.NoError(t, err)
		require.NoError(t, w.Flush())
		return buf.Bytes()
	}

	tests := []struct {
		name   string
		forge  func(b []byte)
		reader func(b []byte) *Reader
	}{
		{
			name:   "raw length beyond block size",
			forge:  func(b []byte) { binary.LittleEndian.PutUint32(b[0:], 0xfffffff0) },
			reader: func(b []byte) *Reader { return NewReader(bytes.NewReader(b), CompressionNone, 1024) },
		},
		{
			name:   "raw length beyond max block size",
			forge:  func(b []byte) { binary.LittleEndian.PutUint32(b[0:], MaxBlockSize+1) },
			reader: func(b []byte) *Reader { return NewReader(bytes.NewReader(b), CompressionNone, 1<<30) },
		},
		{
			name:   "stored length beyond raw length",
			forge:  func(b []byte) { binary.LittleEndian.PutUint32(b[4:], 101) },
			reader: func(b []byte) *Reader { return NewReader(bytes.NewReader(b), CompressionLZ4, 1024) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := frame()
			tt.forge(b)

			_, err := io.ReadAll(tt.reader(b))
			assert.ErrorIs(t, err, ErrFrameSize)
		})
	}
}

func TestEffectiveBlockSize(t *testing.T) {
	assert.Equal(t, DefaultBlockSize, EffectiveBlockSize(0))
	assert.Equal(t, DefaultBlockSize, EffectiveBlockSize(-5))
	assert.Equal(t, 4096, EffectiveBlockSize(4096))
	assert.Equal(t, MaxBlockSize, EffectiveBlockSize(MaxBlockSize*2))
}

func TestParseCompression(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		got, err := ParseCompression(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
	_, err := ParseCompression("snappy")
	assert.Error(t, err)
}
