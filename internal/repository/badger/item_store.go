package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"dashboards/internal/domain/repositories"
)

// maxConflictRetries bounds retries of a write transaction that lost a
// badger conflict. Conditions are re-evaluated on every attempt.
const maxConflictRetries = 5

const sep = "\x00"

// ItemStore implements repositories.ItemStore on BadgerDB.
//
// Layout:
//
//	i\x00<pk>\x00<sk>                   -> JSON item
//	t\x00<type>\x00<pk>\x00<sk>         -> item key   (type index)
//	f\x00<type>\x00<family>\x00<pk>\x00<sk> -> item key (family index)
type ItemStore struct {
	db     *badger.DB
	logger *slog.Logger
}

// NewItemStore wraps an open database.
func NewItemStore(db *badger.DB, logger *slog.Logger) *ItemStore {
	return &ItemStore{db: db, logger: logger}
}

func itemKey(k repositories.Key) []byte {
	return []byte("i" + sep + k.PK + sep + k.SK)
}

func partitionPrefix(pk, skPrefix string) []byte {
	return []byte("i" + sep + pk + sep + skPrefix)
}

func typeIndexPrefix(itemType string) []byte {
	return []byte("t" + sep + itemType + sep)
}

func familyIndexPrefix(itemType, family string) []byte {
	return []byte("f" + sep + itemType + sep + family + sep)
}

func indexKeys(it *repositories.Item) [][]byte {
	suffix := it.PK + sep + it.SK
	keys := [][]byte{append(typeIndexPrefix(it.Type), suffix...)}
	if it.Family != "" {
		keys = append(keys, append(familyIndexPrefix(it.Type, it.Family), suffix...))
	}
	return keys
}

func (s *ItemStore) Get(ctx context.Context, key repositories.Key) (*repositories.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out *repositories.Item
	err := s.db.View(func(txn *badger.Txn) error {
		it, err := readItem(txn, itemKey(key))
		if err != nil {
			return err
		}
		if it == nil {
			return repositories.ErrItemNotFound
		}
		out = it
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *ItemStore) Put(ctx context.Context, item *repositories.Item, cond repositories.Condition) (repositories.Change, error) {
	return s.single(ctx, repositories.PutOp(item, cond))
}

func (s *ItemStore) Update(ctx context.Context, key repositories.Key, attrs map[string]any, cond repositories.Condition) (repositories.Change, error) {
	return s.single(ctx, repositories.UpdateOp(key, attrs, cond))
}

func (s *ItemStore) Delete(ctx context.Context, key repositories.Key, cond repositories.Condition) (repositories.Change, error) {
	return s.single(ctx, repositories.DeleteOp(key, cond))
}

func (s *ItemStore) single(ctx context.Context, op repositories.WriteOp) (repositories.Change, error) {
	changes, err := s.write(ctx, []repositories.WriteOp{op})
	if err != nil {
		var canceled *repositories.TransactionCanceledError
		if errors.As(err, &canceled) {
			return repositories.Change{}, canceled.Err
		}
		return repositories.Change{}, err
	}
	return changes[0], nil
}

func (s *ItemStore) TransactWrite(ctx context.Context, ops []repositories.WriteOp) ([]repositories.Change, error) {
	if len(ops) > repositories.MaxTransactItems {
		return nil, repositories.ErrTooManyItems
	}
	return s.write(ctx, ops)
}

func (s *ItemStore) write(ctx context.Context, ops []repositories.WriteOp) ([]repositories.Change, error) {
	var changes []repositories.Change
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if err = ctx.Err(); err != nil {
			return nil, err
		}
		err = s.db.Update(func(txn *badger.Txn) error {
			changes, err = applyOps(txn, ops)
			return err
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
		s.logger.Debug("badger transaction conflict, retrying", "attempt", attempt+1)
	}
	if err != nil {
		return nil, err
	}
	return changes, nil
}

// applyOps runs ops in order inside txn. Later ops see earlier ops' writes.
func applyOps(txn *badger.Txn, ops []repositories.WriteOp) ([]repositories.Change, error) {
	changes := make([]repositories.Change, 0, len(ops))
	seen := make(map[repositories.Key]bool, len(ops))
	for i, op := range ops {
		if seen[op.Key] {
			return nil, &repositories.TransactionCanceledError{Index: i, Key: op.Key, Err: errors.New("duplicate key in transaction")}
		}
		seen[op.Key] = true

		cur, err := readItem(txn, itemKey(op.Key))
		if err != nil {
			return nil, err
		}
		next, err := repositories.ApplyOp(op, cur)
		if err != nil {
			return nil, &repositories.TransactionCanceledError{Index: i, Key: op.Key, Err: err}
		}
		if err := writeItem(txn, cur, next); err != nil {
			return nil, err
		}
		changes = append(changes, repositories.NewChange(cur, next))
	}
	return changes, nil
}

func readItem(txn *badger.Txn, key []byte) (*repositories.Item, error) {
	entry, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	var it repositories.Item
	if err := entry.Value(func(val []byte) error {
		return json.Unmarshal(val, &it)
	}); err != nil {
		return nil, fmt.Errorf("decode %q: %w", key, err)
	}
	return &it, nil
}

// writeItem replaces cur with next (nil deletes) and keeps indexes in step.
func writeItem(txn *badger.Txn, cur, next *repositories.Item) error {
	if cur != nil {
		for _, k := range indexKeys(cur) {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		if next == nil {
			return txn.Delete(itemKey(cur.Key))
		}
	}
	val, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode item %s: %w", next.Key, err)
	}
	ik := itemKey(next.Key)
	if err := txn.Set(ik, val); err != nil {
		return err
	}
	for _, k := range indexKeys(next) {
		if err := txn.Set(k, ik); err != nil {
			return err
		}
	}
	return nil
}

func (s *ItemStore) QueryPartition(ctx context.Context, pk, skPrefix string) ([]*repositories.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var items []*repositories.Item
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := partitionPrefix(pk, skPrefix)
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true, PrefetchSize: 100})
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var item repositories.Item
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &item)
			}); err != nil {
				return fmt.Errorf("decode partition %s: %w", pk, err)
			}
			items = append(items, &item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *ItemStore) QueryByType(ctx context.Context, itemType string) ([]*repositories.Item, error) {
	return s.queryIndex(ctx, typeIndexPrefix(itemType))
}

func (s *ItemStore) QueryByFamily(ctx context.Context, itemType, family string) ([]*repositories.Item, error) {
	return s.queryIndex(ctx, familyIndexPrefix(itemType, family))
}

func (s *ItemStore) queryIndex(ctx context.Context, prefix []byte) ([]*repositories.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var items []*repositories.Item
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true, PrefetchSize: 100})
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ik, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			item, err := readItem(txn, ik)
			if err != nil {
				return err
			}
			if item != nil {
				items = append(items, item)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}
