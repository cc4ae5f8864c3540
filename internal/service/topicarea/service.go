// Package topicarea manages the topic areas dashboards are filed under.
package topicarea

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"dashboards/internal/config"
	"dashboards/internal/domain"
	models "dashboards/internal/domain/models/dashboard"
	"dashboards/internal/domain/repositories"
	"dashboards/internal/domain/services"
	"dashboards/internal/service/identity"
)

// service implements the TopicAreaService interface
type service struct {
	topicAreaRepo repositories.TopicAreaRepository
	tokens        *identity.Tokens
	logger        *slog.Logger
}

// NewService creates a new topic area service
func NewService(topicAreaRepo repositories.TopicAreaRepository, tokens *identity.Tokens, logger *slog.Logger) services.TopicAreaService {
	return &service{topicAreaRepo: topicAreaRepo, tokens: tokens, logger: logger}
}

// Create creates a new topic area
func (s *service) Create(ctx context.Context, req *services.CreateTopicAreaRequest, actor string) (*models.TopicArea, error) {
	if err := validation.ValidateStruct(req,
		validation.Field(&req.Name, validation.Required, validation.Length(1, config.MaxTopicAreaNameLength)),
	); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	now := s.tokens.Next("")
	ta := &models.TopicArea{
		ID:        identity.NewID(),
		Name:      strings.TrimSpace(req.Name),
		CreatedBy: actor,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.topicAreaRepo.Create(ctx, ta); err != nil {
		return nil, err
	}

	s.logger.Info("topic area created", "id", ta.ID, "name", ta.Name, "user_id", actor)
	return ta, nil
}

// Get retrieves a topic area by ID
func (s *service) Get(ctx context.Context, id string) (*models.TopicArea, error) {
	return s.topicAreaRepo.Get(ctx, id)
}

// List returns all topic areas
func (s *service) List(ctx context.Context) ([]*models.TopicArea, error) {
	return s.topicAreaRepo.List(ctx)
}
