package blobstore

import (
	"context"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, "missing.dat")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, PutBytes(ctx, s, "a/tree-saved.dat", []byte("first")))
	require.NoError(t, PutBytes(ctx, s, "a/other-saved.dat", []byte("other")))
	require.NoError(t, PutBytes(ctx, s, "b/tree-saved.dat", []byte("b")))

	got, err := GetBytes(ctx, s, "a/tree-saved.dat")
	require.NoError(t, err)
	assert.Equal(t, "first", string(got))

	// Put replaces.
	require.NoError(t, s.Put(ctx, "a/tree-saved.dat", strings.NewReader("second"), -1))
	got, err = GetBytes(ctx, s, "a/tree-saved.dat")
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))

	names, err := s.List(ctx, "a/")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/other-saved.dat", "a/tree-saved.dat"}, names)

	names, err = s.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, names, 3)

	require.NoError(t, s.Delete(ctx, "a/tree-saved.dat"))
	require.NoError(t, s.Delete(ctx, "a/tree-saved.dat"), "deleting twice is fine")
	_, err = s.Get(ctx, "a/tree-saved.dat")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	testStore(t, s)
	assert.Equal(t, 2, s.Len())
}

func TestLocalStore(t *testing.T) {
	testStore(t, NewLocalStore(t.TempDir()))
}

func TestLocalStore_RejectsEscapingNames(t *testing.T) {
	s := NewLocalStore(t.TempDir())
	ctx := context.Background()

	for _, name := range []string{"", "../x", "/etc/passwd"} {
		assert.ErrorIs(t, PutBytes(ctx, s, name, []byte("x")), ErrInvalidName, name)
	}
}

func TestLocalStore_ListMissingRoot(t *testing.T) {
	s := NewLocalStore(t.TempDir() + "/nope")
	names, err := s.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewMemoryStore()
	assert.ErrorIs(t, PutBytes(ctx, s, "x", nil), context.Canceled)
	_, err := s.Get(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}

type countingStore struct {
	Store
	gets atomic.Int64
}

func (c *countingStore) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	c.gets.Add(1)
	return c.Store.Get(ctx, name)
}

func TestCachingStore(t *testing.T) {
	ctx := context.Background()
	remote := &countingStore{Store: NewMemoryStore()}
	s := NewCachingStore(remote, NewLocalStore(t.TempDir()))

	testStore(t, s)

	require.NoError(t, PutBytes(ctx, remote, "tree-saved.dat", []byte("v1")))
	remote.gets.Store(0)

	for range 3 {
		got, err := GetBytes(ctx, s, "tree-saved.dat")
		require.NoError(t, err)
		assert.Equal(t, "v1", string(got))
	}
	assert.Equal(t, int64(1), remote.gets.Load(), "later reads hit the cache")

	// A put through the cache invalidates the cached copy.
	require.NoError(t, PutBytes(ctx, s, "tree-saved.dat", []byte("v2")))
	got, err := GetBytes(ctx, s, "tree-saved.dat")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(got))
	assert.Equal(t, int64(2), remote.gets.Load())
}

func TestCachingStore_ConcurrentMisses(t *testing.T) {
	ctx := context.Background()
	remote := &countingStore{Store: NewMemoryStore()}
	require.NoError(t, PutBytes(ctx, remote, "x", []byte("payload")))
	s := NewCachingStore(remote, NewMemoryStore())

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := GetBytes(ctx, s, "x")
			assert.NoError(t, err)
			assert.Equal(t, "payload", string(got))
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, remote.gets.Load(), int64(8))
}
