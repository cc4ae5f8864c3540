// Package feed carries item changes from the write path to asynchronous
// consumers such as the audit trail.
package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"dashboards/internal/domain/repositories"
)

// RecordingStore decorates an ItemStore and publishes every successful
// write to the change feed. A publish failure is logged and swallowed:
// the write has already been applied.
type RecordingStore struct {
	repositories.ItemStore
	publisher repositories.ChangePublisher
	now       func() time.Time
	logger    *slog.Logger

	mu   sync.Mutex
	last time.Time
}

// NewRecordingStore wraps store so its writes are published to publisher.
func NewRecordingStore(store repositories.ItemStore, publisher repositories.ChangePublisher, logger *slog.Logger) *RecordingStore {
	return &RecordingStore{
		ItemStore: store,
		publisher: publisher,
		now:       time.Now,
		logger:    logger,
	}
}

func (s *RecordingStore) Put(ctx context.Context, item *repositories.Item, cond repositories.Condition) (repositories.Change, error) {
	change, err := s.ItemStore.Put(ctx, item, cond)
	if err == nil {
		s.publish(ctx, change)
	}
	return change, err
}

func (s *RecordingStore) Update(ctx context.Context, key repositories.Key, attrs map[string]any, cond repositories.Condition) (repositories.Change, error) {
	change, err := s.ItemStore.Update(ctx, key, attrs, cond)
	if err == nil {
		s.publish(ctx, change)
	}
	return change, err
}

func (s *RecordingStore) Delete(ctx context.Context, key repositories.Key, cond repositories.Condition) (repositories.Change, error) {
	change, err := s.ItemStore.Delete(ctx, key, cond)
	if err == nil {
		s.publish(ctx, change)
	}
	return change, err
}

func (s *RecordingStore) TransactWrite(ctx context.Context, ops []repositories.WriteOp) ([]repositories.Change, error) {
	changes, err := s.ItemStore.TransactWrite(ctx, ops)
	if err == nil {
		for _, c := range changes {
			s.publish(ctx, c)
		}
	}
	return changes, err
}

func (s *RecordingStore) publish(ctx context.Context, change repositories.Change) {
	event := repositories.ChangeEvent{
		ID:         uuid.NewString(),
		ObservedAt: s.observe(),
		Change:     change,
	}
	// The request context may already be canceled once the write returns
	if err := s.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		key := ""
		if img := changeImage(change); img != nil {
			key = img.Key.String()
		}
		s.logger.Error("change feed publish failed",
			"event_id", event.ID,
			"kind", change.Kind,
			"key", key,
			"error", err,
		)
	}
}

// observe returns the observation time of the next event. Times are kept
// strictly increasing at microsecond resolution so the audit trail sorts in
// the order changes were seen.
func (s *RecordingStore) observe() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.now().UTC().Truncate(time.Microsecond)
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	s.last = t
	return t
}

func changeImage(c repositories.Change) *repositories.Item {
	if c.NewImage != nil {
		return c.NewImage
	}
	return c.OldImage
}
