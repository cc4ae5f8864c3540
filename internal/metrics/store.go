package metrics

import (
	"context"
	"errors"
	"time"

	"dashboards/internal/domain/repositories"
)

// InstrumentedStore records the outcome and duration of every item store call.
type InstrumentedStore struct {
	next    repositories.ItemStore
	metrics *Metrics
}

func NewInstrumentedStore(next repositories.ItemStore, m *Metrics) *InstrumentedStore {
	return &InstrumentedStore{next: next, metrics: m}
}

// observe treats a failed condition as a normal outcome, not a store error.
func (s *InstrumentedStore) observe(op string, start time.Time, err error) {
	if errors.Is(err, repositories.ErrConditionFailed) || errors.Is(err, repositories.ErrItemNotFound) {
		err = nil
	}
	s.metrics.RecordStoreOp(op, time.Since(start), err)
}

func (s *InstrumentedStore) Get(ctx context.Context, key repositories.Key) (*repositories.Item, error) {
	start := time.Now()
	it, err := s.next.Get(ctx, key)
	s.observe("get", start, err)
	return it, err
}

func (s *InstrumentedStore) Put(ctx context.Context, item *repositories.Item, cond repositories.Condition) (repositories.Change, error) {
	start := time.Now()
	c, err := s.next.Put(ctx, item, cond)
	s.observe("put", start, err)
	return c, err
}

func (s *InstrumentedStore) Update(ctx context.Context, key repositories.Key, attrs map[string]any, cond repositories.Condition) (repositories.Change, error) {
	start := time.Now()
	c, err := s.next.Update(ctx, key, attrs, cond)
	s.observe("update", start, err)
	return c, err
}

func (s *InstrumentedStore) Delete(ctx context.Context, key repositories.Key, cond repositories.Condition) (repositories.Change, error) {
	start := time.Now()
	c, err := s.next.Delete(ctx, key, cond)
	s.observe("delete", start, err)
	return c, err
}

func (s *InstrumentedStore) QueryPartition(ctx context.Context, pk, skPrefix string) ([]*repositories.Item, error) {
	start := time.Now()
	items, err := s.next.QueryPartition(ctx, pk, skPrefix)
	s.observe("query_partition", start, err)
	return items, err
}

func (s *InstrumentedStore) QueryByType(ctx context.Context, itemType string) ([]*repositories.Item, error) {
	start := time.Now()
	items, err := s.next.QueryByType(ctx, itemType)
	s.observe("query_type", start, err)
	return items, err
}

func (s *InstrumentedStore) QueryByFamily(ctx context.Context, itemType, family string) ([]*repositories.Item, error) {
	start := time.Now()
	items, err := s.next.QueryByFamily(ctx, itemType, family)
	s.observe("query_family", start, err)
	return items, err
}

func (s *InstrumentedStore) TransactWrite(ctx context.Context, ops []repositories.WriteOp) ([]repositories.Change, error) {
	start := time.Now()
	changes, err := s.next.TransactWrite(ctx, ops)
	s.observe("transact_write", start, err)
	return changes, err
}
