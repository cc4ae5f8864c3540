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

// TopicAreaRepository implements repositories.TopicAreaRepository
type TopicAreaRepository struct {
	store  repositories.ItemStore
	logger *slog.Logger
}

// NewTopicAreaRepository creates a new topic area repository
func NewTopicAreaRepository(store repositories.ItemStore, logger *slog.Logger) repositories.TopicAreaRepository {
	return &TopicAreaRepository{store: store, logger: logger}
}

// Create inserts a topic area
func (r *TopicAreaRepository) Create(ctx context.Context, ta *dashboard.TopicArea) error {
	it, err := repositories.NewItem(identity.TopicAreaKey(ta.ID), identity.TypeTopicArea, "", ta.UpdatedAt, ta)
	if err != nil {
		return err
	}
	if _, err := r.store.Put(ctx, it, repositories.IfNotExists()); err != nil {
		if errors.Is(err, repositories.ErrConditionFailed) {
			return &domain.ConflictError{Message: "topic area already exists", ResourceType: "topicArea", ResourceID: ta.ID}
		}
		return fmt.Errorf("create topic area: %w", err)
	}
	return nil
}

// Get retrieves a topic area by id
func (r *TopicAreaRepository) Get(ctx context.Context, id string) (*dashboard.TopicArea, error) {
	it, err := r.store.Get(ctx, identity.TopicAreaKey(id))
	if err != nil {
		if errors.Is(err, repositories.ErrItemNotFound) {
			return nil, fmt.Errorf("topic area %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get topic area: %w", err)
	}
	var ta dashboard.TopicArea
	if err := it.Decode(&ta); err != nil {
		return nil, err
	}
	return &ta, nil
}

// List returns all topic areas ordered by name
func (r *TopicAreaRepository) List(ctx context.Context) ([]*dashboard.TopicArea, error) {
	found, err := r.store.QueryByType(ctx, identity.TypeTopicArea)
	if err != nil {
		return nil, fmt.Errorf("list topic areas: %w", err)
	}
	out := make([]*dashboard.TopicArea, 0, len(found))
	for _, it := range found {
		var ta dashboard.TopicArea
		if err := it.Decode(&ta); err != nil {
			return nil, err
		}
		out = append(out, &ta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
