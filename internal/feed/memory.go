package feed

import (
	"context"
	"errors"
	"sync"

	"dashboards/internal/domain/repositories"
)

// ErrClosed is returned by a closed in-process feed.
var ErrClosed = errors.New("change feed closed")

// MemoryFeed is an in-process ordered feed for embedded mode and tests.
// Events are lost on restart and Ack is a no-op.
type MemoryFeed struct {
	events chan repositories.ChangeEvent
	once   sync.Once
	done   chan struct{}
}

// NewMemoryFeed creates a feed buffering up to size events. Publish blocks
// while the buffer is full.
func NewMemoryFeed(size int) *MemoryFeed {
	return &MemoryFeed{
		events: make(chan repositories.ChangeEvent, size),
		done:   make(chan struct{}),
	}
}

func (f *MemoryFeed) Publish(ctx context.Context, event repositories.ChangeEvent) error {
	select {
	case <-f.done:
		return ErrClosed
	default:
	}
	select {
	case f.events <- event:
		return nil
	case <-f.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *MemoryFeed) Receive(ctx context.Context) (*repositories.Delivery, error) {
	select {
	case event := <-f.events:
		return &repositories.Delivery{
			Event: event,
			Ack:   func(context.Context) error { return nil },
		}, nil
	case <-f.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len reports the number of buffered events.
func (f *MemoryFeed) Len() int { return len(f.events) }

func (f *MemoryFeed) Close() error {
	f.once.Do(func() { close(f.done) })
	return nil
}
