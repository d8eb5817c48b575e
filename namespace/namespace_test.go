package namespace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSet(t *testing.T) {
	s := NewSet(4)

	require.NoError(t, s.Add(0))
	require.NoError(t, s.Add(3))
	assert.Error(t, s.Add(4))

	assert.True(t, s.Exists(0))
	assert.False(t, s.Exists(1))
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []uint32{0, 3}, s.IDs().ToArray())

	s.Remove(3)
	assert.False(t, s.Exists(3))
	assert.NotNil(t, s.Counters(3), "dropped namespaces keep their counters")
	assert.Nil(t, s.Counters(4))
}

func TestCounters(t *testing.T) {
	s := NewSet(2)
	c := s.Counters(1)

	c.Add(3, 1)
	c.Add(-1, 2)
	assert.Equal(t, int64(2), c.Live.Load())
	assert.Equal(t, int64(3), c.Tombstones.Load())
	assert.Same(t, c, s.Counters(1))
}

func TestOpenSet(t *testing.T) {
	s := NewOpenSet()
	assert.True(t, s.Exists(0))
	assert.True(t, s.Exists(MaxID))
	assert.Equal(t, int(MaxID)+1, s.Len())
	assert.NotNil(t, s.Counters(MaxID))
}
