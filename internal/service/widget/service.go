// Package widget manages the widgets of draft dashboard versions.
package widget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"dashboards/internal/catalog"
	"dashboards/internal/config"
	"dashboards/internal/domain"
	models "dashboards/internal/domain/models/dashboard"
	"dashboards/internal/domain/repositories"
	"dashboards/internal/domain/services"
	"dashboards/internal/metrics"
	"dashboards/internal/service/identity"
)

// service implements the WidgetService interface
type service struct {
	widgetRepo    repositories.WidgetRepository
	dashboardRepo repositories.DashboardRepository
	catalog       *catalog.Catalog
	tokens        *identity.Tokens
	metrics       *metrics.Metrics
	logger        *slog.Logger
}

// NewService creates a new widget service
func NewService(
	widgetRepo repositories.WidgetRepository,
	dashboardRepo repositories.DashboardRepository,
	cat *catalog.Catalog,
	tokens *identity.Tokens,
	m *metrics.Metrics,
	logger *slog.Logger,
) services.WidgetService {
	return &service{
		widgetRepo:    widgetRepo,
		dashboardRepo: dashboardRepo,
		catalog:       cat,
		tokens:        tokens,
		metrics:       m,
		logger:        logger,
	}
}

// editableDashboard returns the dashboard when its widgets may change
func (s *service) editableDashboard(ctx context.Context, dashboardID string) (*models.Dashboard, error) {
	d, err := s.dashboardRepo.Get(ctx, dashboardID)
	if err != nil {
		return nil, err
	}
	if d.State != models.StateDraft {
		return nil, domain.NewStateConflict("dashboard", d.ID, models.StateDraft.Label())
	}
	return d, nil
}

// touch bumps the dashboard's token after a widget change. Failure is logged
// only; the widget change stands.
func (s *service) touch(ctx context.Context, d *models.Dashboard, actor string) {
	_, err := s.dashboardRepo.Update(ctx, d.ID, repositories.DashboardPatch{
		UpdatedBy: actor,
		UpdatedAt: s.tokens.Next(d.UpdatedAt),
	}, "")
	if err != nil {
		s.logger.Warn("failed to bump dashboard after widget change", "dashboard_id", d.ID, "error", err)
	}
}

// decodeContent parses and validates a payload for widget type t
func (s *service) decodeContent(t models.WidgetType, raw []byte) (models.Content, error) {
	content, err := models.DecodeContent(t, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if err := content.Validate(); err != nil {
		return nil, fmt.Errorf("%w: content: %v", domain.ErrValidation, err)
	}
	if s.catalog != nil {
		if err := s.catalog.Check(content); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
		}
	}
	return content, nil
}

// Create appends a widget to a draft
func (s *service) Create(ctx context.Context, dashboardID string, req *services.CreateWidgetRequest, actor string) (*models.Widget, error) {
	if err := validation.ValidateStruct(req,
		validation.Field(&req.Name, validation.Required, validation.Length(1, config.MaxWidgetNameLength)),
		validation.Field(&req.WidgetType, validation.Required),
	); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	content, err := s.decodeContent(req.WidgetType, req.Content)
	if err != nil {
		return nil, err
	}

	d, err := s.editableDashboard(ctx, dashboardID)
	if err != nil {
		return nil, err
	}
	existing, err := s.widgetRepo.List(ctx, dashboardID)
	if err != nil {
		return nil, err
	}
	order := 0
	if n := len(existing); n > 0 {
		order = existing[n-1].Order + 1
	}

	now := s.tokens.Next("")
	w := &models.Widget{
		ID:          identity.NewID(),
		DashboardID: dashboardID,
		Name:        strings.TrimSpace(req.Name),
		WidgetType:  req.WidgetType,
		Order:       order,
		ShowTitle:   req.ShowTitle,
		Content:     content,
		CreatedBy:   actor,
		CreatedAt:   now,
		UpdatedBy:   actor,
		UpdatedAt:   now,
	}
	if err := s.widgetRepo.Create(ctx, w); err != nil {
		return nil, err
	}
	s.touch(ctx, d, actor)

	s.logger.Info("widget created",
		"id", w.ID,
		"dashboard_id", dashboardID,
		"widget_type", w.WidgetType,
		"user_id", actor,
	)
	return w, nil
}

// Get retrieves a widget
func (s *service) Get(ctx context.Context, dashboardID, widgetID string) (*models.Widget, error) {
	return s.widgetRepo.Get(ctx, dashboardID, widgetID)
}

// List returns a dashboard's widgets in display order
func (s *service) List(ctx context.Context, dashboardID string) ([]*models.Widget, error) {
	if _, err := s.dashboardRepo.Get(ctx, dashboardID); err != nil {
		return nil, err
	}
	return s.widgetRepo.List(ctx, dashboardID)
}

// Update replaces a widget's name, title flag and content, guarded by its token
func (s *service) Update(ctx context.Context, dashboardID, widgetID string, req *services.UpdateWidgetRequest, actor string) (*models.Widget, error) {
	token, err := identity.RequireToken(req.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateStruct(req,
		validation.Field(&req.Name, validation.Required, validation.Length(1, config.MaxWidgetNameLength)),
	); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	d, err := s.editableDashboard(ctx, dashboardID)
	if err != nil {
		return nil, err
	}
	current, err := s.widgetRepo.Get(ctx, dashboardID, widgetID)
	if err != nil {
		return nil, err
	}
	content, err := s.decodeContent(current.WidgetType, req.Content)
	if err != nil {
		return nil, err
	}

	updated := *current
	updated.Name = strings.TrimSpace(req.Name)
	updated.ShowTitle = req.ShowTitle
	updated.Content = content
	updated.UpdatedBy = actor
	updated.UpdatedAt = s.tokens.Next(current.UpdatedAt)

	if err := s.widgetRepo.Replace(ctx, &updated, token); err != nil {
		s.recordConflict("widget_update", err)
		return nil, err
	}
	s.touch(ctx, d, actor)

	s.logger.Info("widget updated", "id", widgetID, "dashboard_id", dashboardID, "user_id", actor)
	return &updated, nil
}

// Delete removes a widget from a draft
func (s *service) Delete(ctx context.Context, dashboardID, widgetID, actor string) error {
	d, err := s.editableDashboard(ctx, dashboardID)
	if err != nil {
		return err
	}
	if err := s.widgetRepo.Delete(ctx, dashboardID, widgetID); err != nil {
		return err
	}
	s.touch(ctx, d, actor)

	s.logger.Info("widget deleted", "id", widgetID, "dashboard_id", dashboardID, "user_id", actor)
	return nil
}

// Reorder writes every widget's new order in one transaction. Each write
// holds only if the widget has not changed since the token its item carries.
// The dashboard's own token is bumped afterwards, outside the transaction.
func (s *service) Reorder(ctx context.Context, dashboardID string, items []repositories.WidgetOrder, actor string) (err error) {
	defer func() { s.metrics.RecordTransition("reorder", err) }()

	batch, err := normalizeBatch(items)
	if err != nil {
		return err
	}

	d, err := s.editableDashboard(ctx, dashboardID)
	if err != nil {
		return err
	}
	existing, err := s.widgetRepo.List(ctx, dashboardID)
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(existing))
	for _, w := range existing {
		known[w.ID] = true
	}

	latest := ""
	for _, item := range batch {
		if !known[item.WidgetID] {
			return fmt.Errorf("widget %s: %w", item.WidgetID, domain.ErrNotFound)
		}
		latest = max(latest, item.ExpectedUpdatedAt)
	}

	if err := s.widgetRepo.Reorder(ctx, dashboardID, batch, s.tokens.Next(latest), actor); err != nil {
		s.recordConflict("reorder", err)
		return err
	}
	s.touch(ctx, d, actor)

	s.logger.Info("widgets reordered", "dashboard_id", dashboardID, "count", len(batch), "user_id", actor)
	return nil
}

// normalizeBatch checks a reorder batch and normalises its tokens
func normalizeBatch(items []repositories.WidgetOrder) ([]repositories.WidgetOrder, error) {
	if len(items) == 0 {
		return nil, &domain.ValidationError{Message: "at least one widget is required"}
	}
	if len(items) > repositories.MaxTransactItems {
		return nil, &domain.ValidationError{Message: fmt.Sprintf("at most %d widgets can be reordered at once", repositories.MaxTransactItems)}
	}

	seen := make(map[string]bool, len(items))
	out := make([]repositories.WidgetOrder, len(items))
	for i, item := range items {
		if item.WidgetID == "" {
			return nil, &domain.ValidationError{Message: "widgetId is required"}
		}
		if seen[item.WidgetID] {
			return nil, &domain.ValidationError{Message: fmt.Sprintf("widget %s appears more than once", item.WidgetID)}
		}
		seen[item.WidgetID] = true

		token, err := identity.RequireToken(item.ExpectedUpdatedAt)
		if err != nil {
			return nil, err
		}
		item.ExpectedUpdatedAt = token
		out[i] = item
	}
	return out, nil
}

func (s *service) recordConflict(op string, err error) {
	if errors.Is(err, domain.ErrConflict) {
		s.metrics.RecordConflict(op, "stale")
	}
}
