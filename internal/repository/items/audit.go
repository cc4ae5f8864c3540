package items

import (
	"context"
	"fmt"
	"log/slog"

	"dashboards/internal/domain/models/dashboard"
	"dashboards/internal/domain/repositories"
	"dashboards/internal/service/identity"
)

// AuditRepository implements repositories.AuditRepository
type AuditRepository struct {
	store  repositories.ItemStore
	logger *slog.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(store repositories.ItemStore, logger *slog.Logger) repositories.AuditRepository {
	return &AuditRepository{store: store, logger: logger}
}

// Append writes an entry. The key is derived from the change, so appending
// a redelivered change rewrites the same entry.
func (r *AuditRepository) Append(ctx context.Context, entry *dashboard.AuditLogEntry) error {
	key := identity.AuditKey(entry.FamilyID, entry.Timestamp, entry.ChangeID)
	it, err := repositories.NewItem(key, identity.TypeAuditLog, "", entry.Timestamp, entry)
	if err != nil {
		return err
	}
	if _, err := r.store.Put(ctx, it, repositories.Condition{}); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// List returns a family's entries in time order
func (r *AuditRepository) List(ctx context.Context, familyID string) ([]*dashboard.AuditLogEntry, error) {
	found, err := r.store.QueryPartition(ctx, identity.AuditPartition(familyID), "")
	if err != nil {
		return nil, fmt.Errorf("list audit log: %w", err)
	}
	out := make([]*dashboard.AuditLogEntry, 0, len(found))
	for _, it := range found {
		var e dashboard.AuditLogEntry
		if err := it.Decode(&e); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, nil
}
