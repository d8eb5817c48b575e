package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPool_RunsInBackground(t *testing.T) {
	p := NewPool(1)
	defer p.Close()

	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)

	var got error
	bg := p.Submit(func(ctx context.Context) error {
		<-release
		return errors.New("disk full")
	}, func(err error) {
		got = err
		wg.Done()
	})
	assert.True(t, bg)

	// The only worker is busy: the next job runs inline.
	ran := false
	bg = p.Submit(func(ctx context.Context) error {
		ran = true
		return nil
	}, nil)
	assert.False(t, bg)
	assert.True(t, ran)

	close(release)
	wg.Wait()
	assert.EqualError(t, got, "disk full")

	background, inline := p.Stats()
	assert.Equal(t, int64(1), background)
	assert.Equal(t, int64(1), inline)
}

func TestPool_InlineWhenDisabled(t *testing.T) {
	for name, p := range map[string]*Pool{"zero workers": NewPool(0), "nil": nil} {
		t.Run(name, func(t *testing.T) {
			var got error
			bg := p.Submit(func(context.Context) error { return context.Canceled }, func(err error) { got = err })
			assert.False(t, bg)
			assert.ErrorIs(t, got, context.Canceled)
			p.Close()
		})
	}
}

func TestPool_CloseWaitsAndGoesInline(t *testing.T) {
	p := NewPool(2)

	done := make(chan struct{}, 2)
	for range 2 {
		p.Submit(func(context.Context) error { return nil }, func(error) { done <- struct{}{} })
	}
	p.Close()
	assert.Len(t, done, 2)

	assert.False(t, p.Submit(func(context.Context) error { return nil }, nil))
}

func TestPool_SubmitRacingClose(t *testing.T) {
	p := NewPool(4)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		finished int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				p.Submit(func(context.Context) error { return nil }, func(error) {
					mu.Lock()
					finished++
					mu.Unlock()
				})
			}
		}()
	}
	p.Close()
	wg.Wait()

	background, inline := p.Stats()
	assert.Equal(t, int64(400), background+inline)
	assert.Equal(t, 400, finished)
}
