package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dashboards/internal/domain/repositories"
)

// maxSerializationRetries bounds retries of a write that hit a deadlock.
const maxSerializationRetries = 3

// ItemStore implements repositories.ItemStore on a single Postgres table.
// Every write reads the current row FOR UPDATE, evaluates its condition and
// writes inside one transaction.
type ItemStore struct {
	pool   *pgxpool.Pool
	tables *TableNames
	tx     *TransactionManager
	logger *slog.Logger
}

// NewItemStore creates a new Postgres item store
func NewItemStore(config *RepositoryConfig) *ItemStore {
	return &ItemStore{
		pool:   config.Pool,
		tables: config.Tables,
		tx:     NewTransactionManager(config.Pool, config.Logger),
		logger: config.Logger,
	}
}

const itemColumns = "pk, sk, item_type, family, updated_at, data"

func scanItem(row pgx.Row) (*repositories.Item, error) {
	var it repositories.Item
	var data []byte
	if err := row.Scan(&it.PK, &it.SK, &it.Type, &it.Family, &it.UpdatedAt, &data); err != nil {
		return nil, err
	}
	it.Data = data
	return &it, nil
}

// Get retrieves one item by key
func (s *ItemStore) Get(ctx context.Context, key repositories.Key) (*repositories.Item, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE pk = $1 AND sk = $2
	`, itemColumns, s.tables.Items)

	it, err := scanItem(GetExecutor(ctx, s.pool).QueryRow(ctx, query, key.PK, key.SK))
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, repositories.ErrItemNotFound
		}
		return nil, fmt.Errorf("get item %s: %w", key, err)
	}
	return it, nil
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

// TransactWrite applies ops in one transaction; any failed condition rolls all back.
func (s *ItemStore) TransactWrite(ctx context.Context, ops []repositories.WriteOp) ([]repositories.Change, error) {
	if len(ops) > repositories.MaxTransactItems {
		return nil, repositories.ErrTooManyItems
	}
	return s.write(ctx, ops)
}

func (s *ItemStore) write(ctx context.Context, ops []repositories.WriteOp) ([]repositories.Change, error) {
	var changes []repositories.Change
	var err error
	for attempt := 0; attempt < maxSerializationRetries; attempt++ {
		err = s.tx.ExecTx(ctx, func(ctx context.Context) error {
			changes = make([]repositories.Change, 0, len(ops))
			exec := GetExecutor(ctx, s.pool)
			seen := make(map[repositories.Key]bool, len(ops))
			for i, op := range ops {
				if seen[op.Key] {
					return &repositories.TransactionCanceledError{Index: i, Key: op.Key, Err: errors.New("duplicate key in transaction")}
				}
				seen[op.Key] = true

				change, err := s.apply(ctx, exec, op)
				if err != nil {
					if errors.Is(err, repositories.ErrConditionFailed) || errors.Is(err, repositories.ErrItemNotFound) {
						return &repositories.TransactionCanceledError{Index: i, Key: op.Key, Err: err}
					}
					return err
				}
				changes = append(changes, change)
			}
			return nil
		})
		if !IsPgSerializationError(err) {
			break
		}
		s.logger.Debug("item write serialization failure, retrying", "attempt", attempt+1)
	}
	if err != nil {
		return nil, err
	}
	return changes, nil
}

func (s *ItemStore) apply(ctx context.Context, exec DBTX, op repositories.WriteOp) (repositories.Change, error) {
	lockQuery := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE pk = $1 AND sk = $2
		FOR UPDATE
	`, itemColumns, s.tables.Items)

	cur, err := scanItem(exec.QueryRow(ctx, lockQuery, op.Key.PK, op.Key.SK))
	if err != nil {
		if !IsPgNoRowsError(err) {
			return repositories.Change{}, fmt.Errorf("lock item %s: %w", op.Key, err)
		}
		cur = nil
	}

	next, err := repositories.ApplyOp(op, cur)
	if err != nil {
		return repositories.Change{}, err
	}

	switch {
	case next == nil:
		query := fmt.Sprintf(`DELETE FROM %s WHERE pk = $1 AND sk = $2`, s.tables.Items)
		if _, err := exec.Exec(ctx, query, op.Key.PK, op.Key.SK); err != nil {
			return repositories.Change{}, fmt.Errorf("delete item %s: %w", op.Key, err)
		}
	case cur == nil:
		if err := s.insert(ctx, exec, next, requiresAbsence(op.Condition)); err != nil {
			return repositories.Change{}, err
		}
	default:
		query := fmt.Sprintf(`
			UPDATE %s
			SET item_type = $3, family = $4, updated_at = $5, data = $6::jsonb
			WHERE pk = $1 AND sk = $2
		`, s.tables.Items)
		if _, err := exec.Exec(ctx, query, next.PK, next.SK, next.Type, next.Family, next.UpdatedAt, string(next.Data)); err != nil {
			return repositories.Change{}, fmt.Errorf("update item %s: %w", op.Key, err)
		}
	}
	return repositories.NewChange(cur, next), nil
}

// requiresAbsence reports conditions that a concurrently inserted row must fail.
func requiresAbsence(cond repositories.Condition) bool {
	return cond.Kind == repositories.CondNotExists || cond.Kind == repositories.CondNotExistsOrFamily
}

// insert writes a row that did not exist when locked. FOR UPDATE cannot lock
// a missing row, so a racing insert is caught by the primary key instead.
func (s *ItemStore) insert(ctx context.Context, exec DBTX, it *repositories.Item, mustBeAbsent bool) error {
	onConflict := "ON CONFLICT (pk, sk) DO NOTHING"
	if !mustBeAbsent {
		onConflict = `ON CONFLICT (pk, sk) DO UPDATE SET
			item_type = EXCLUDED.item_type,
			family = EXCLUDED.family,
			updated_at = EXCLUDED.updated_at,
			data = EXCLUDED.data`
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb)
		%s
	`, s.tables.Items, itemColumns, onConflict)

	tag, err := exec.Exec(ctx, query, it.PK, it.SK, it.Type, it.Family, it.UpdatedAt, string(it.Data))
	if err != nil {
		return fmt.Errorf("insert item %s: %w", it.Key, err)
	}
	if tag.RowsAffected() == 0 {
		return repositories.ErrConditionFailed
	}
	return nil
}

// QueryPartition returns items under pk whose sort key starts with skPrefix
func (s *ItemStore) QueryPartition(ctx context.Context, pk, skPrefix string) ([]*repositories.Item, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE pk = $1 AND starts_with(sk, $2)
		ORDER BY sk
	`, itemColumns, s.tables.Items)
	return s.queryItems(ctx, query, pk, skPrefix)
}

// QueryByType returns all items of a type
func (s *ItemStore) QueryByType(ctx context.Context, itemType string) ([]*repositories.Item, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE item_type = $1
		ORDER BY pk, sk
	`, itemColumns, s.tables.Items)
	return s.queryItems(ctx, query, itemType)
}

// QueryByFamily returns all items of a type in one family
func (s *ItemStore) QueryByFamily(ctx context.Context, itemType, family string) ([]*repositories.Item, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE item_type = $1 AND family = $2
		ORDER BY pk, sk
	`, itemColumns, s.tables.Items)
	return s.queryItems(ctx, query, itemType, family)
}

func (s *ItemStore) queryItems(ctx context.Context, query string, args ...interface{}) ([]*repositories.Item, error) {
	rows, err := GetExecutor(ctx, s.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []*repositories.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}
