package items

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"dashboards/internal/domain"
	"dashboards/internal/domain/models/dashboard"
	"dashboards/internal/domain/repositories"
	"dashboards/internal/service/identity"
)

// FriendlyURLRepository implements repositories.FriendlyURLRepository.
// A reservation row per slug, written with a conditional put, makes
// uniqueness a property of the store rather than of a lookup.
type FriendlyURLRepository struct {
	store  repositories.ItemStore
	logger *slog.Logger
}

// NewFriendlyURLRepository creates a new friendly URL repository
func NewFriendlyURLRepository(store repositories.ItemStore, logger *slog.Logger) repositories.FriendlyURLRepository {
	return &FriendlyURLRepository{store: store, logger: logger}
}

// Get returns the reservation for slug
func (r *FriendlyURLRepository) Get(ctx context.Context, slug string) (*dashboard.FriendlyURLReservation, error) {
	it, err := r.store.Get(ctx, identity.FriendlyURLKey(slug))
	if err != nil {
		if errors.Is(err, repositories.ErrItemNotFound) {
			return nil, fmt.Errorf("friendly url %s: %w", slug, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get friendly url: %w", err)
	}
	var res dashboard.FriendlyURLReservation
	if err := it.Decode(&res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Reserve claims the slug for res.FamilyID
func (r *FriendlyURLRepository) Reserve(ctx context.Context, res *dashboard.FriendlyURLReservation) error {
	it, err := repositories.NewItem(identity.FriendlyURLKey(res.FriendlyURL), identity.TypeFriendlyURL, res.FamilyID, res.UpdatedAt, res)
	if err != nil {
		return err
	}
	if _, err := r.store.Put(ctx, it, repositories.IfNotExistsOrFamily(res.FamilyID)); err != nil {
		if errors.Is(err, repositories.ErrConditionFailed) {
			return &domain.FriendlyURLError{URL: res.FriendlyURL, Reason: "already taken by another dashboard"}
		}
		return fmt.Errorf("reserve friendly url: %w", err)
	}
	return nil
}

// ListFamily returns the reservations held by familyID
func (r *FriendlyURLRepository) ListFamily(ctx context.Context, familyID string) ([]*dashboard.FriendlyURLReservation, error) {
	found, err := r.store.QueryByFamily(ctx, identity.TypeFriendlyURL, familyID)
	if err != nil {
		return nil, fmt.Errorf("list friendly urls: %w", err)
	}
	out := make([]*dashboard.FriendlyURLReservation, 0, len(found))
	for _, it := range found {
		var res dashboard.FriendlyURLReservation
		if err := it.Decode(&res); err != nil {
			return nil, err
		}
		out = append(out, &res)
	}
	return out, nil
}

// Release deletes the reservation if familyID holds it
func (r *FriendlyURLRepository) Release(ctx context.Context, slug, familyID string) error {
	_, err := r.store.Delete(ctx, identity.FriendlyURLKey(slug), repositories.IfFamily(familyID))
	if err != nil && !errors.Is(err, repositories.ErrConditionFailed) && !errors.Is(err, repositories.ErrItemNotFound) {
		return fmt.Errorf("release friendly url: %w", err)
	}
	return nil
}
