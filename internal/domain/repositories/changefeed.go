package repositories

import (
	"context"
	"time"
)

// ChangeEvent is one entry of the change feed: a store Change plus the
// identity and time it was observed at.
type ChangeEvent struct {
	ID         string    `json:"id"`
	ObservedAt time.Time `json:"observedAt"`
	Change
}

// ChangePublisher appends events to the change feed.
type ChangePublisher interface {
	Publish(ctx context.Context, event ChangeEvent) error
}

// Delivery is a received event awaiting acknowledgement.
type Delivery struct {
	Event ChangeEvent
	// Ack marks the event processed. Unacknowledged events are redelivered.
	Ack func(ctx context.Context) error
	// Retry asks the feed to deliver the event again. Nil when the feed
	// cannot redeliver.
	Retry func(ctx context.Context) error
}

// ChangeSubscriber reads the change feed in order. Receive blocks until an
// event is available or ctx is done.
type ChangeSubscriber interface {
	Receive(ctx context.Context) (*Delivery, error)
	Close() error
}
