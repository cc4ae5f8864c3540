package items

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"dashboards/internal/domain"
	"dashboards/internal/domain/models/dashboard"
	"dashboards/internal/domain/repositories"
	"dashboards/internal/service/identity"
)

// WidgetRepository implements repositories.WidgetRepository
type WidgetRepository struct {
	store  repositories.ItemStore
	logger *slog.Logger
}

// NewWidgetRepository creates a new widget repository
func NewWidgetRepository(store repositories.ItemStore, logger *slog.Logger) repositories.WidgetRepository {
	return &WidgetRepository{store: store, logger: logger}
}

func widgetItem(w *dashboard.Widget) (*repositories.Item, error) {
	return repositories.NewItem(identity.WidgetKey(w.DashboardID, w.ID), identity.TypeWidget, "", w.UpdatedAt, w)
}

func decodeWidget(it *repositories.Item) (*dashboard.Widget, error) {
	var w dashboard.Widget
	if err := it.Decode(&w); err != nil {
		return nil, err
	}
	return &w, nil
}

// Create inserts a new widget
func (r *WidgetRepository) Create(ctx context.Context, w *dashboard.Widget) error {
	created, err := r.CreateIfAbsent(ctx, w)
	if err != nil {
		return err
	}
	if !created {
		return &domain.ConflictError{
			Message:      "widget already exists",
			ResourceType: "widget",
			ResourceID:   w.ID,
		}
	}
	return nil
}

// CreateIfAbsent inserts w and reports false when the id is already taken
func (r *WidgetRepository) CreateIfAbsent(ctx context.Context, w *dashboard.Widget) (bool, error) {
	it, err := widgetItem(w)
	if err != nil {
		return false, err
	}
	if _, err := r.store.Put(ctx, it, repositories.IfNotExists()); err != nil {
		if errors.Is(err, repositories.ErrConditionFailed) {
			return false, nil
		}
		return false, fmt.Errorf("create widget: %w", err)
	}
	return true, nil
}

// Get retrieves one widget
func (r *WidgetRepository) Get(ctx context.Context, dashboardID, widgetID string) (*dashboard.Widget, error) {
	it, err := r.store.Get(ctx, identity.WidgetKey(dashboardID, widgetID))
	if err != nil {
		if errors.Is(err, repositories.ErrItemNotFound) {
			return nil, fmt.Errorf("widget %s: %w", widgetID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get widget: %w", err)
	}
	return decodeWidget(it)
}

// List returns widgets ordered by order, then id
func (r *WidgetRepository) List(ctx context.Context, dashboardID string) ([]*dashboard.Widget, error) {
	found, err := r.store.QueryPartition(ctx, identity.WidgetPartition(dashboardID), identity.WidgetSortPrefix)
	if err != nil {
		return nil, fmt.Errorf("list widgets: %w", err)
	}
	out := make([]*dashboard.Widget, 0, len(found))
	for _, it := range found {
		w, err := decodeWidget(it)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Replace overwrites a widget guarded by its concurrency token
func (r *WidgetRepository) Replace(ctx context.Context, w *dashboard.Widget, expectedUpdatedAt string) error {
	it, err := widgetItem(w)
	if err != nil {
		return err
	}
	_, err = r.store.Put(ctx, it, repositories.IfUpdatedAt(expectedUpdatedAt))
	if errors.Is(err, repositories.ErrConditionFailed) {
		if _, getErr := r.store.Get(ctx, it.Key); errors.Is(getErr, repositories.ErrItemNotFound) {
			return fmt.Errorf("widget %s: %w", w.ID, domain.ErrNotFound)
		}
		return domain.NewStaleConflict("widget", w.ID)
	}
	if err != nil {
		return fmt.Errorf("replace widget: %w", err)
	}
	return nil
}

// Delete removes one widget
func (r *WidgetRepository) Delete(ctx context.Context, dashboardID, widgetID string) error {
	_, err := r.store.Delete(ctx, identity.WidgetKey(dashboardID, widgetID), repositories.IfExists())
	if err != nil {
		if errors.Is(err, repositories.ErrConditionFailed) || errors.Is(err, repositories.ErrItemNotFound) {
			return fmt.Errorf("widget %s: %w", widgetID, domain.ErrNotFound)
		}
		return fmt.Errorf("delete widget: %w", err)
	}
	return nil
}

// DeleteAll removes every widget of a dashboard in transactional batches
func (r *WidgetRepository) DeleteAll(ctx context.Context, dashboardID string) (int, error) {
	found, err := r.store.QueryPartition(ctx, identity.WidgetPartition(dashboardID), identity.WidgetSortPrefix)
	if err != nil {
		return 0, fmt.Errorf("list widgets: %w", err)
	}

	deleted := 0
	for start := 0; start < len(found); start += repositories.MaxTransactItems {
		end := min(start+repositories.MaxTransactItems, len(found))
		ops := make([]repositories.WriteOp, 0, end-start)
		for _, it := range found[start:end] {
			ops = append(ops, repositories.DeleteOp(it.Key, repositories.Condition{}))
		}
		if _, err := r.store.TransactWrite(ctx, ops); err != nil {
			// A widget removed concurrently fails the batch; the caller retries
			return deleted, fmt.Errorf("delete widgets of %s: %w", dashboardID, err)
		}
		deleted += len(ops)
	}
	return deleted, nil
}

// Reorder updates every widget's order in one transaction. Each write is
// guarded by updatedAt <= the caller's token.
func (r *WidgetRepository) Reorder(ctx context.Context, dashboardID string, items []repositories.WidgetOrder, updatedAt, updatedBy string) error {
	ops := make([]repositories.WriteOp, 0, len(items))
	for _, item := range items {
		ops = append(ops, repositories.UpdateOp(
			identity.WidgetKey(dashboardID, item.WidgetID),
			map[string]any{
				"order":     item.Order,
				"updatedAt": updatedAt,
				"updatedBy": updatedBy,
			},
			repositories.IfUpdatedAtAtMost(item.ExpectedUpdatedAt),
		))
	}

	_, err := r.store.TransactWrite(ctx, ops)
	if err == nil {
		return nil
	}
	var canceled *repositories.TransactionCanceledError
	if errors.As(err, &canceled) && errors.Is(err, repositories.ErrConditionFailed) {
		return domain.NewStaleConflict("widget", items[canceled.Index].WidgetID)
	}
	if errors.Is(err, repositories.ErrTooManyItems) {
		return &domain.ValidationError{Message: fmt.Sprintf("at most %d widgets can be reordered at once", repositories.MaxTransactItems)}
	}
	return fmt.Errorf("reorder widgets: %w", err)
}
