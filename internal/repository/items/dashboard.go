// Package items implements the domain repositories on top of an ItemStore,
// so every store adapter shares one key layout and error mapping.
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

// DashboardRepository implements repositories.DashboardRepository
type DashboardRepository struct {
	store  repositories.ItemStore
	logger *slog.Logger
}

// NewDashboardRepository creates a new dashboard repository
func NewDashboardRepository(store repositories.ItemStore, logger *slog.Logger) repositories.DashboardRepository {
	return &DashboardRepository{store: store, logger: logger}
}

func dashboardItem(d *dashboard.Dashboard) (*repositories.Item, error) {
	return repositories.NewItem(identity.DashboardKey(d.ID), identity.TypeDashboard, d.FamilyID, d.UpdatedAt, d)
}

func decodeDashboard(it *repositories.Item) (*dashboard.Dashboard, error) {
	var d dashboard.Dashboard
	if err := it.Decode(&d); err != nil {
		return nil, err
	}
	return &d, nil
}

// CreateVersion writes the version slot and the version row in one transaction
func (r *DashboardRepository) CreateVersion(ctx context.Context, d *dashboard.Dashboard) error {
	row, err := dashboardItem(d)
	if err != nil {
		return err
	}
	slotKey := identity.VersionSlotKey(d.FamilyID, d.Version)
	slot, err := repositories.NewItem(slotKey, identity.TypeVersionSlot, d.FamilyID, d.UpdatedAt, dashboard.VersionSlot{
		FamilyID:    d.FamilyID,
		Version:     d.Version,
		DashboardID: d.ID,
		CreatedAt:   d.CreatedAt,
	})
	if err != nil {
		return err
	}

	_, err = r.store.TransactWrite(ctx, []repositories.WriteOp{
		repositories.PutOp(slot, repositories.IfNotExists()),
		repositories.PutOp(row, repositories.IfNotExists()),
	})
	if errors.Is(err, repositories.ErrConditionFailed) {
		return &domain.ConflictError{
			Message:      fmt.Sprintf("version %d of dashboard family already exists", d.Version),
			ResourceType: "dashboard",
			ResourceID:   d.FamilyID,
		}
	}
	if err != nil {
		return fmt.Errorf("create dashboard version: %w", err)
	}
	return nil
}

// Get retrieves a dashboard version by id
func (r *DashboardRepository) Get(ctx context.Context, id string) (*dashboard.Dashboard, error) {
	it, err := r.store.Get(ctx, identity.DashboardKey(id))
	if err != nil {
		if errors.Is(err, repositories.ErrItemNotFound) {
			return nil, fmt.Errorf("dashboard %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get dashboard: %w", err)
	}
	return decodeDashboard(it)
}

func patchAttributes(p repositories.DashboardPatch) map[string]any {
	attrs := map[string]any{
		"updatedAt": p.UpdatedAt,
		"updatedBy": p.UpdatedBy,
	}
	if p.Name != nil {
		attrs["name"] = *p.Name
	}
	if p.TopicAreaID != nil {
		attrs["topicAreaId"] = *p.TopicAreaID
	}
	if p.TopicAreaName != nil {
		attrs["topicAreaName"] = *p.TopicAreaName
	}
	if p.Description != nil {
		attrs["description"] = *p.Description
	}
	if p.DisplayTableOfContents != nil {
		attrs["displayTableOfContents"] = *p.DisplayTableOfContents
	}
	if p.State != nil {
		attrs["state"] = string(*p.State)
	}
	if p.FriendlyURL != nil {
		attrs["friendlyURL"] = *p.FriendlyURL
	}
	if p.ReleaseNotes != nil {
		attrs["releaseNotes"] = *p.ReleaseNotes
	}
	if p.PublishedBy != nil {
		attrs["publishedBy"] = *p.PublishedBy
	}
	if p.DeletedBy != nil {
		attrs["deletedBy"] = *p.DeletedBy
	}
	return attrs
}

// Update applies a patch, guarded by expectedUpdatedAt when given
func (r *DashboardRepository) Update(ctx context.Context, id string, patch repositories.DashboardPatch, expectedUpdatedAt string) (*dashboard.Dashboard, error) {
	cond := repositories.IfExists()
	if expectedUpdatedAt != "" {
		cond = repositories.IfUpdatedAt(expectedUpdatedAt)
	}

	change, err := r.store.Update(ctx, identity.DashboardKey(id), patchAttributes(patch), cond)
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrConditionFailed) && expectedUpdatedAt != "":
			return nil, domain.NewStaleConflict("dashboard", id)
		case errors.Is(err, repositories.ErrConditionFailed), errors.Is(err, repositories.ErrItemNotFound):
			return nil, fmt.Errorf("dashboard %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("update dashboard: %w", err)
	}
	return decodeDashboard(change.NewImage)
}

// Delete removes a dashboard version row. Its slot is kept.
func (r *DashboardRepository) Delete(ctx context.Context, id string) error {
	_, err := r.store.Delete(ctx, identity.DashboardKey(id), repositories.IfExists())
	if err != nil {
		if errors.Is(err, repositories.ErrConditionFailed) || errors.Is(err, repositories.ErrItemNotFound) {
			return fmt.Errorf("dashboard %s: %w", id, domain.ErrNotFound)
		}
		return fmt.Errorf("delete dashboard: %w", err)
	}
	return nil
}

// ListFamily returns all versions of a family ordered by version
func (r *DashboardRepository) ListFamily(ctx context.Context, familyID string) ([]*dashboard.Dashboard, error) {
	found, err := r.store.QueryByFamily(ctx, identity.TypeDashboard, familyID)
	if err != nil {
		return nil, fmt.Errorf("list dashboard family: %w", err)
	}
	out, err := decodeDashboards(found)
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// List returns every dashboard version ordered by name, then version
func (r *DashboardRepository) List(ctx context.Context) ([]*dashboard.Dashboard, error) {
	found, err := r.store.QueryByType(ctx, identity.TypeDashboard)
	if err != nil {
		return nil, fmt.Errorf("list dashboards: %w", err)
	}
	out, err := decodeDashboards(found)
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Version < out[j].Version
	})
	return out, nil
}

func decodeDashboards(found []*repositories.Item) ([]*dashboard.Dashboard, error) {
	out := make([]*dashboard.Dashboard, 0, len(found))
	for _, it := range found {
		d, err := decodeDashboard(it)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// NextVersion reads the family's slot partition
func (r *DashboardRepository) NextVersion(ctx context.Context, familyID string) (int, error) {
	slots, err := r.store.QueryPartition(ctx, identity.FamilyPartition(familyID), identity.VersionSlotPrefix)
	if err != nil {
		return 0, fmt.Errorf("read version slots: %w", err)
	}
	highest := 0
	for _, s := range slots {
		v, err := identity.VersionFromSlotKey(s.SK)
		if err != nil {
			r.logger.Warn("skipping malformed version slot", "key", s.Key.String(), "error", err)
			continue
		}
		if v > highest {
			highest = v
		}
	}
	return highest + 1, nil
}
