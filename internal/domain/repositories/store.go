package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// MaxTransactItems caps the number of operations in a single TransactWrite.
const MaxTransactItems = 100

var (
	// ErrItemNotFound is returned when no item exists under a key.
	ErrItemNotFound = errors.New("item not found")
	// ErrConditionFailed is returned when a write's condition does not hold.
	ErrConditionFailed = errors.New("condition failed")
	// ErrTooManyItems is returned when a transaction exceeds MaxTransactItems.
	ErrTooManyItems = errors.New("too many items in transaction")
)

// Key addresses one item by partition and sort key.
type Key struct {
	PK string `json:"pk"`
	SK string `json:"sk"`
}

func (k Key) String() string { return k.PK + "|" + k.SK }

// Item is a stored row. Data holds the JSON document; Type, Family and
// UpdatedAt are lifted out of it so the store can index and guard on them.
type Item struct {
	Key
	Type      string          `json:"type"`
	Family    string          `json:"family,omitempty"`
	UpdatedAt string          `json:"updatedAt,omitempty"`
	Data      json.RawMessage `json:"data"`
}

// Attributes decodes Data as a flat attribute map.
func (it *Item) Attributes() (map[string]any, error) {
	attrs := map[string]any{}
	if len(it.Data) == 0 {
		return attrs, nil
	}
	if err := json.Unmarshal(it.Data, &attrs); err != nil {
		return nil, fmt.Errorf("decode item %s: %w", it.Key, err)
	}
	if attrs == nil {
		attrs = map[string]any{}
	}
	return attrs, nil
}

// Decode unmarshals Data into v.
func (it *Item) Decode(v any) error {
	if err := json.Unmarshal(it.Data, v); err != nil {
		return fmt.Errorf("decode item %s: %w", it.Key, err)
	}
	return nil
}

// Clone returns a deep copy.
func (it *Item) Clone() *Item {
	if it == nil {
		return nil
	}
	c := *it
	c.Data = append(json.RawMessage(nil), it.Data...)
	return &c
}

// NewItem builds an item from a document value.
func NewItem(key Key, itemType, family, updatedAt string, doc any) (*Item, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode item %s: %w", key, err)
	}
	return &Item{Key: key, Type: itemType, Family: family, UpdatedAt: updatedAt, Data: data}, nil
}

// MergeAttributes applies attrs on top of the item's document. A nil value
// removes the attribute. The item's updatedAt follows attrs["updatedAt"] when set.
func MergeAttributes(cur *Item, attrs map[string]any) (*Item, error) {
	doc, err := cur.Attributes()
	if err != nil {
		return nil, err
	}
	for k, v := range attrs {
		if v == nil {
			delete(doc, k)
			continue
		}
		doc[k] = v
	}
	next := cur.Clone()
	if ts, ok := attrs["updatedAt"].(string); ok {
		next.UpdatedAt = ts
	}
	if next.Data, err = json.Marshal(doc); err != nil {
		return nil, fmt.Errorf("encode item %s: %w", cur.Key, err)
	}
	return next, nil
}

// ConditionKind selects the guard applied to a write.
type ConditionKind int

const (
	CondNone ConditionKind = iota
	CondNotExists
	CondExists
	CondUpdatedAtEquals
	CondUpdatedAtAtMost
	CondFamilyEquals
	CondNotExistsOrFamily
)

// Condition guards a write against the currently stored item.
type Condition struct {
	Kind  ConditionKind
	Value string
}

func IfNotExists() Condition             { return Condition{Kind: CondNotExists} }
func IfExists() Condition                { return Condition{Kind: CondExists} }
func IfUpdatedAt(token string) Condition { return Condition{Kind: CondUpdatedAtEquals, Value: token} }
func IfUpdatedAtAtMost(token string) Condition {
	return Condition{Kind: CondUpdatedAtAtMost, Value: token}
}
func IfFamily(family string) Condition { return Condition{Kind: CondFamilyEquals, Value: family} }
func IfNotExistsOrFamily(family string) Condition {
	return Condition{Kind: CondNotExistsOrFamily, Value: family}
}

// Holds reports whether the condition is satisfied by cur (nil when absent).
// Tokens are fixed-width UTC timestamps, so string order is time order.
func (c Condition) Holds(cur *Item) bool {
	switch c.Kind {
	case CondNone:
		return true
	case CondNotExists:
		return cur == nil
	case CondExists:
		return cur != nil
	case CondUpdatedAtEquals:
		return cur != nil && cur.UpdatedAt == c.Value
	case CondUpdatedAtAtMost:
		return cur != nil && cur.UpdatedAt <= c.Value
	case CondFamilyEquals:
		return cur != nil && cur.Family == c.Value
	case CondNotExistsOrFamily:
		return cur == nil || cur.Family == c.Value
	default:
		return false
	}
}

// ChangeKind classifies a Change.
type ChangeKind string

const (
	ChangeInsert ChangeKind = "INSERT"
	ChangeModify ChangeKind = "MODIFY"
	ChangeRemove ChangeKind = "REMOVE"
)

// Change is the before/after pair produced by a successful write.
type Change struct {
	Kind     ChangeKind `json:"kind"`
	OldImage *Item      `json:"oldImage,omitempty"`
	NewImage *Item      `json:"newImage,omitempty"`
}

// NewChange classifies a write from its images.
func NewChange(before, after *Item) Change {
	switch {
	case before == nil:
		return Change{Kind: ChangeInsert, NewImage: after}
	case after == nil:
		return Change{Kind: ChangeRemove, OldImage: before}
	default:
		return Change{Kind: ChangeModify, OldImage: before, NewImage: after}
	}
}

// OpKind is the kind of a transactional operation.
type OpKind int

const (
	OpPut OpKind = iota
	OpUpdate
	OpDelete
)

// WriteOp is one operation in a TransactWrite batch.
type WriteOp struct {
	Kind      OpKind
	Key       Key
	Item      *Item          // OpPut
	Attrs     map[string]any // OpUpdate
	Condition Condition
}

func PutOp(item *Item, cond Condition) WriteOp {
	return WriteOp{Kind: OpPut, Key: item.Key, Item: item, Condition: cond}
}

func UpdateOp(key Key, attrs map[string]any, cond Condition) WriteOp {
	return WriteOp{Kind: OpUpdate, Key: key, Attrs: attrs, Condition: cond}
}

func DeleteOp(key Key, cond Condition) WriteOp {
	return WriteOp{Kind: OpDelete, Key: key, Condition: cond}
}

// TransactionCanceledError reports which operation stopped a TransactWrite.
type TransactionCanceledError struct {
	Index int
	Key   Key
	Err   error
}

func (e *TransactionCanceledError) Error() string {
	return fmt.Sprintf("transaction canceled at op %d (%s): %v", e.Index, e.Key, e.Err)
}

func (e *TransactionCanceledError) Unwrap() error { return e.Err }

// ApplyOp evaluates op against cur and returns the resulting image
// (nil for a delete). Both store adapters share it so they agree on semantics.
func ApplyOp(op WriteOp, cur *Item) (*Item, error) {
	if !op.Condition.Holds(cur) {
		return nil, ErrConditionFailed
	}
	switch op.Kind {
	case OpPut:
		return op.Item.Clone(), nil
	case OpUpdate:
		if cur == nil {
			return nil, ErrItemNotFound
		}
		return MergeAttributes(cur, op.Attrs)
	case OpDelete:
		if cur == nil {
			return nil, ErrItemNotFound
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown op kind %d", op.Kind)
	}
}

// ItemStore is the document store contract consumed by the core services.
type ItemStore interface {
	Get(ctx context.Context, key Key) (*Item, error)
	Put(ctx context.Context, item *Item, cond Condition) (Change, error)
	Update(ctx context.Context, key Key, attrs map[string]any, cond Condition) (Change, error)
	Delete(ctx context.Context, key Key, cond Condition) (Change, error)

	// QueryPartition returns items under pk whose sort key starts with skPrefix, ordered by sort key.
	QueryPartition(ctx context.Context, pk, skPrefix string) ([]*Item, error)
	// QueryByType returns all items of a type.
	QueryByType(ctx context.Context, itemType string) ([]*Item, error)
	// QueryByFamily returns all items of a type sharing a parent family.
	QueryByFamily(ctx context.Context, itemType, family string) ([]*Item, error)

	// TransactWrite applies all ops or none.
	TransactWrite(ctx context.Context, ops []WriteOp) ([]Change, error)
}
