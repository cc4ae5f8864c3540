package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_RunsTasks(t *testing.T) {
	p := NewPool(3, 10, slog.New(slog.NewTextHandler(io.Discard, nil)))

	var ran atomic.Int32
	for range 5 {
		require.True(t, p.Submit(func(ctx context.Context) error {
			ran.Add(1)
			return nil
		}))
	}
	p.Submit(func(ctx context.Context) error { return errors.New("boom") })

	require.NoError(t, p.Shutdown(context.Background()))
	assert.Equal(t, int32(5), ran.Load())
}

func TestPool_RejectsAfterShutdown(t *testing.T) {
	p := NewPool(1, 1, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, p.Shutdown(context.Background()))
	assert.False(t, p.Submit(func(ctx context.Context) error { return nil }))
	assert.NoError(t, p.Shutdown(context.Background()), "second shutdown is a no-op")
}

func TestPool_SubmitDuringShutdown(t *testing.T) {
	for range 50 {
		p := NewPool(2, 4, slog.New(slog.NewTextHandler(io.Discard, nil)))

		var wg sync.WaitGroup
		var accepted, ran atomic.Int32
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range 20 {
					if p.Submit(func(ctx context.Context) error {
						ran.Add(1)
						return nil
					}) {
						accepted.Add(1)
					}
				}
			}()
		}
		require.NoError(t, p.Shutdown(context.Background()))
		wg.Wait()

		assert.Equal(t, accepted.Load(), ran.Load(), "every accepted task runs")
	}
}
