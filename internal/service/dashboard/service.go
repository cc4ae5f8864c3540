// Package dashboard implements the dashboard lifecycle: drafts, review,
// publishing, archiving, forking and deletion of versions.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"dashboards/internal/domain"
	models "dashboards/internal/domain/models/dashboard"
	"dashboards/internal/domain/repositories"
	"dashboards/internal/domain/services"
	"dashboards/internal/metrics"
	"dashboards/internal/service/friendlyurl"
	"dashboards/internal/service/identity"
	"dashboards/internal/worker"
)

// Deps holds the collaborators of the lifecycle service
type Deps struct {
	Dashboards repositories.DashboardRepository
	Widgets    repositories.WidgetRepository
	TopicAreas repositories.TopicAreaRepository
	URLs       *friendlyurl.Allocator
	Tokens     *identity.Tokens
	Metrics    *metrics.Metrics // optional

	// Repairs runs fork repairs in the background. Optional: without it an
	// incomplete fork waits for RepairForks.
	Repairs *worker.Pool

	// RepairConcurrency bounds RepairForks. Defaults to 1.
	RepairConcurrency int
}

// service implements the DashboardService interface
type service struct {
	dashboardRepo     repositories.DashboardRepository
	widgetRepo        repositories.WidgetRepository
	validator         *ResourceValidator
	urls              *friendlyurl.Allocator
	tokens            *identity.Tokens
	metrics           *metrics.Metrics
	repairs           *worker.Pool
	repairConcurrency int
	logger            *slog.Logger
}

// NewService creates a new dashboard lifecycle service
func NewService(deps Deps, logger *slog.Logger) services.DashboardService {
	if deps.RepairConcurrency < 1 {
		deps.RepairConcurrency = 1
	}
	return &service{
		dashboardRepo:     deps.Dashboards,
		widgetRepo:        deps.Widgets,
		validator:         NewResourceValidator(deps.TopicAreas),
		urls:              deps.URLs,
		tokens:            deps.Tokens,
		metrics:           deps.Metrics,
		repairs:           deps.Repairs,
		repairConcurrency: deps.RepairConcurrency,
		logger:            logger,
	}
}

// record counts an operation outcome; conflicts are split by cause
func (s *service) record(event string, err error) {
	s.metrics.RecordTransition(event, err)
	var conflict *domain.ConflictError
	if errors.As(err, &conflict) {
		reason := "stale"
		if len(conflict.RequiredStates) > 0 {
			reason = "state"
		}
		s.metrics.RecordConflict(event, reason)
	}
}

func requireState(d *models.Dashboard, allowed ...models.State) error {
	for _, st := range allowed {
		if d.State == st {
			return nil
		}
	}
	labels := make([]string, len(allowed))
	for i, st := range allowed {
		labels[i] = st.Label()
	}
	return domain.NewStateConflict("dashboard", d.ID, labels...)
}

// CreateDraft creates version 1 of a new family
func (s *service) CreateDraft(ctx context.Context, req *services.CreateDashboardRequest, actor string) (_ *models.Dashboard, err error) {
	defer func() { s.record("create", err) }()

	if err := validateCreateRequest(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	ta, err := s.validator.ValidateTopicArea(ctx, req.TopicAreaID)
	if err != nil {
		return nil, err
	}

	id := identity.NewID()
	now := s.tokens.Next("")
	d := &models.Dashboard{
		ID:                     id,
		FamilyID:               id,
		Version:                1,
		Name:                   strings.TrimSpace(req.Name),
		TopicAreaID:            ta.ID,
		TopicAreaName:          ta.Name,
		Description:            req.Description,
		DisplayTableOfContents: req.DisplayTableOfContents,
		State:                  models.StateDraft,
		CreatedBy:              actor,
		CreatedAt:              now,
		UpdatedBy:              actor,
		UpdatedAt:              now,
	}
	if err := s.dashboardRepo.CreateVersion(ctx, d); err != nil {
		return nil, err
	}

	s.logger.Info("dashboard created",
		"id", d.ID,
		"name", d.Name,
		"topic_area_id", d.TopicAreaID,
		"user_id", actor,
	)
	return d, nil
}

// UpdateDraft edits a Draft version. The topic area name is copied again
// from the referenced topic area.
func (s *service) UpdateDraft(ctx context.Context, id string, req *services.UpdateDashboardRequest, actor string) (_ *models.Dashboard, err error) {
	defer func() { s.record("update", err) }()

	token, err := identity.RequireToken(req.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := validateUpdateRequest(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	current, err := s.dashboardRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireState(current, models.StateDraft); err != nil {
		return nil, err
	}
	ta, err := s.validator.ValidateTopicArea(ctx, req.TopicAreaID)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	updated, err := s.dashboardRepo.Update(ctx, id, repositories.DashboardPatch{
		Name:                   &name,
		TopicAreaID:            &ta.ID,
		TopicAreaName:          &ta.Name,
		Description:            &req.Description,
		DisplayTableOfContents: &req.DisplayTableOfContents,
		UpdatedBy:              actor,
		UpdatedAt:              s.tokens.Next(current.UpdatedAt),
	}, token)
	if err != nil {
		return nil, err
	}

	s.logger.Info("dashboard updated", "id", id, "user_id", actor)
	return updated, nil
}

// transition moves a version to state to when it is in one of the from
// states and its token still matches expected
func (s *service) transition(ctx context.Context, id, expected, actor string, to models.State, from ...models.State) (*models.Dashboard, error) {
	token, err := identity.RequireToken(expected)
	if err != nil {
		return nil, err
	}

	current, err := s.dashboardRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireState(current, from...); err != nil {
		return nil, err
	}

	updated, err := s.dashboardRepo.Update(ctx, id, repositories.DashboardPatch{
		State:     &to,
		UpdatedBy: actor,
		UpdatedAt: s.tokens.Next(current.UpdatedAt),
	}, token)
	if err != nil {
		return nil, err
	}

	s.logger.Info("dashboard state changed",
		"id", id,
		"from", current.State,
		"to", to,
		"user_id", actor,
	)
	return updated, nil
}

// SubmitForReview moves Draft to PublishPending
func (s *service) SubmitForReview(ctx context.Context, id, expectedUpdatedAt, actor string) (_ *models.Dashboard, err error) {
	defer func() { s.record("submit", err) }()
	return s.transition(ctx, id, expectedUpdatedAt, actor, models.StatePublishPending, models.StateDraft)
}

// RequestChanges moves PublishPending back to Draft
func (s *service) RequestChanges(ctx context.Context, id, expectedUpdatedAt, actor string) (_ *models.Dashboard, err error) {
	defer func() { s.record("request_changes", err) }()
	return s.transition(ctx, id, expectedUpdatedAt, actor, models.StateDraft, models.StatePublishPending)
}

// Archive moves Published to Archived. The family keeps its friendly URL
// reservation so a later publish can reuse it.
func (s *service) Archive(ctx context.Context, id, expectedUpdatedAt, actor string) (_ *models.Dashboard, err error) {
	defer func() { s.record("archive", err) }()
	return s.transition(ctx, id, expectedUpdatedAt, actor, models.StateArchived, models.StatePublished)
}

// Publish moves PublishPending or Archived to Published. The friendly URL
// reservation is pointed at this version, which makes it the family's
// current one; sibling versions are left untouched.
func (s *service) Publish(ctx context.Context, id string, req *services.PublishRequest, actor string) (_ *models.Dashboard, err error) {
	defer func() { s.record("publish", err) }()

	token, err := identity.RequireToken(req.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := validatePublishRequest(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	current, err := s.dashboardRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireState(current, models.StatePublishPending, models.StateArchived); err != nil {
		return nil, err
	}
	// The guarded write checks this again; failing here avoids moving the
	// reservation for a write that cannot succeed.
	if current.UpdatedAt != token {
		return nil, domain.NewStaleConflict("dashboard", id)
	}

	// Without a requested URL a version keeps the one it was published
	// under before; a first publish derives it from the name.
	requested := req.FriendlyURL
	if requested == nil && current.FriendlyURL != "" {
		requested = &current.FriendlyURL
	}
	slug, err := s.urls.Resolve(ctx, current, requested)
	if err != nil {
		return nil, err
	}
	now := s.tokens.Next(current.UpdatedAt)
	prev, err := s.urls.Reserve(ctx, slug, current.FamilyID, current.ID, now)
	if err != nil {
		return nil, err
	}

	state := models.StatePublished
	published, err := s.dashboardRepo.Update(ctx, id, repositories.DashboardPatch{
		State:        &state,
		FriendlyURL:  &slug,
		ReleaseNotes: &req.ReleaseNotes,
		PublishedBy:  &actor,
		UpdatedBy:    actor,
		UpdatedAt:    now,
	}, token)
	if err != nil {
		if rerr := s.urls.Restore(context.WithoutCancel(ctx), slug, current.FamilyID, prev); rerr != nil {
			s.logger.Error("failed to restore friendly url after failed publish",
				"friendly_url", slug,
				"dashboard_id", id,
				"error", rerr,
			)
		}
		return nil, err
	}

	s.releaseOtherURLs(ctx, published)

	s.logger.Info("dashboard published",
		"id", id,
		"family_id", published.FamilyID,
		"version", published.Version,
		"friendly_url", slug,
		"user_id", actor,
	)
	return published, nil
}

// releaseOtherURLs frees every other slug the family holds, so a moved URL
// becomes available to other families and stops resolving
func (s *service) releaseOtherURLs(ctx context.Context, published *models.Dashboard) {
	released, err := s.urls.ReleaseOthers(ctx, published.FamilyID, published.FriendlyURL)
	if err != nil {
		s.logger.Warn("failed to release old friendly urls", "family_id", published.FamilyID, "error", err)
	}
	if len(released) > 0 {
		s.logger.Info("old friendly urls released", "family_id", published.FamilyID, "friendly_urls", released)
	}
}

// DeleteVersion removes a version and its widgets. The deleter is stamped on
// the row first so the audit trail can attribute the removal.
func (s *service) DeleteVersion(ctx context.Context, id, actor string) (err error) {
	defer func() { s.record("delete", err) }()

	current, err := s.dashboardRepo.Get(ctx, id)
	if err != nil {
		return err
	}

	if _, err := s.dashboardRepo.Update(ctx, id, repositories.DashboardPatch{
		DeletedBy: &actor,
		UpdatedBy: actor,
		UpdatedAt: s.tokens.Next(current.UpdatedAt),
	}, ""); err != nil {
		return err
	}

	removed, err := s.widgetRepo.DeleteAll(ctx, id)
	if err != nil {
		return err
	}

	if current.FriendlyURL != "" {
		res, err := s.urls.Lookup(ctx, current.FriendlyURL)
		switch {
		case errors.Is(err, domain.ErrNotFound):
		case err != nil:
			return err
		case res.DashboardID == id:
			if err := s.urls.Release(ctx, current.FriendlyURL, current.FamilyID); err != nil {
				return err
			}
		}
	}

	if err := s.dashboardRepo.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info("dashboard deleted",
		"id", id,
		"family_id", current.FamilyID,
		"version", current.Version,
		"widgets", removed,
		"user_id", actor,
	)
	return nil
}

// GetDashboard returns a version with its widgets in display order
func (s *service) GetDashboard(ctx context.Context, id string) (*models.WithWidgets, error) {
	d, err := s.dashboardRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	widgets, err := s.widgetRepo.List(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.WithWidgets{Dashboard: d, Widgets: widgets}, nil
}

// ListDashboards returns every version
func (s *service) ListDashboards(ctx context.Context) ([]*models.Dashboard, error) {
	return s.dashboardRepo.List(ctx)
}

// ListVersions returns a family's versions ordered by version
func (s *service) ListVersions(ctx context.Context, familyID string) ([]*models.Dashboard, error) {
	versions, err := s.dashboardRepo.ListFamily(ctx, familyID)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("dashboard family %s: %w", familyID, domain.ErrNotFound)
	}
	return versions, nil
}

// GetPublishedByFriendlyURL resolves slug through its reservation. A
// reservation whose version is no longer Published reads as not found.
func (s *service) GetPublishedByFriendlyURL(ctx context.Context, slug string) (*models.WithWidgets, error) {
	res, err := s.urls.Lookup(ctx, slug)
	if err != nil {
		return nil, err
	}
	d, err := s.GetDashboard(ctx, res.DashboardID)
	if err != nil {
		return nil, err
	}
	if d.State != models.StatePublished {
		return nil, fmt.Errorf("published dashboard %s: %w", slug, domain.ErrNotFound)
	}
	return d, nil
}
