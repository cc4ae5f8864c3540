package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"dashboards/internal/config"
	"dashboards/internal/domain"
	models "dashboards/internal/domain/models/dashboard"
	"dashboards/internal/domain/repositories"
	"dashboards/internal/domain/services"
)

// ResourceValidator checks references a dashboard makes to other resources
type ResourceValidator struct {
	topicAreaRepo repositories.TopicAreaRepository
}

// NewResourceValidator creates a new resource validator
func NewResourceValidator(topicAreaRepo repositories.TopicAreaRepository) *ResourceValidator {
	return &ResourceValidator{topicAreaRepo: topicAreaRepo}
}

// ValidateTopicArea returns the referenced topic area. An unknown id is an
// invalid request rather than a missing resource.
func (v *ResourceValidator) ValidateTopicArea(ctx context.Context, topicAreaID string) (*models.TopicArea, error) {
	ta, err := v.topicAreaRepo.Get(ctx, topicAreaID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, &domain.ValidationError{Message: fmt.Sprintf("topic area %s does not exist", topicAreaID)}
	}
	if err != nil {
		return nil, fmt.Errorf("invalid topic area: %w", err)
	}
	return ta, nil
}

func validateCreateRequest(req *services.CreateDashboardRequest) error {
	return validation.ValidateStruct(req,
		validation.Field(&req.Name,
			validation.Required,
			validation.Length(1, config.MaxDashboardNameLength),
			validation.By(notBlank),
		),
		validation.Field(&req.TopicAreaID, validation.Required),
		validation.Field(&req.Description, validation.Length(0, config.MaxDescriptionLength)),
	)
}

func validateUpdateRequest(req *services.UpdateDashboardRequest) error {
	return validation.ValidateStruct(req,
		validation.Field(&req.Name,
			validation.Required,
			validation.Length(1, config.MaxDashboardNameLength),
			validation.By(notBlank),
		),
		validation.Field(&req.TopicAreaID, validation.Required),
		validation.Field(&req.Description, validation.Length(0, config.MaxDescriptionLength)),
	)
}

func validatePublishRequest(req *services.PublishRequest) error {
	return validation.ValidateStruct(req,
		validation.Field(&req.ReleaseNotes, validation.Length(0, config.MaxReleaseNotesLength)),
	)
}

func notBlank(value interface{}) error {
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("must be a string")
	}
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("cannot be blank")
	}
	return nil
}
