package blobstore

import (
	"context"
	"errors"
	"io"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// CachingStore serves reads from a local cache store and fills it from a
// remote store on a miss. Writes go to the remote store first and then
// invalidate the cached copy.
type CachingStore struct {
	remote Store
	cache  Store
	fills  singleflight.Group
}

// NewCachingStore creates a read-through cache of remote backed by cache.
func NewCachingStore(remote, cache Store) *CachingStore {
	return &CachingStore{remote: remote, cache: cache}
}

// Put implements Store.
func (s *CachingStore) Put(ctx context.Context, name string, r io.Reader, size int64) error {
	if err := s.remote.Put(ctx, name, r, size); err != nil {
		return err
	}
	return s.cache.Delete(ctx, name)
}

// Get implements Store.
func (s *CachingStore) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	rc, err := s.cache.Get(ctx, name)
	if err == nil {
		return rc, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	// Concurrent misses for the same name share one download.
	_, err, _ = s.fills.Do(name, func() (any, error) {
		src, err := s.remote.Get(ctx, name)
		if err != nil {
			return nil, err
		}
		defer src.Close()

		return nil, s.cache.Put(ctx, name, src, -1)
	})
	if err != nil {
		return nil, err
	}

	return s.cache.Get(ctx, name)
}

// Delete implements Store.
func (s *CachingStore) Delete(ctx context.Context, name string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.remote.Delete(ctx, name) })
	g.Go(func() error { return s.cache.Delete(ctx, name) })
	return g.Wait()
}

// List implements Store. The remote store is authoritative.
func (s *CachingStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.remote.List(ctx, prefix)
}
