package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"dashboards/internal/domain"
	models "dashboards/internal/domain/models/dashboard"
	"dashboards/internal/service/identity"
)

func openVersion(versions []*models.Dashboard) *models.Dashboard {
	for _, v := range versions {
		if v.State.IsOpen() {
			return v
		}
	}
	return nil
}

// forkSource picks the highest Published version, falling back to the
// highest Archived one when the family has nothing published
func forkSource(versions []*models.Dashboard) *models.Dashboard {
	var published, archived *models.Dashboard
	for _, v := range versions {
		switch v.State {
		case models.StatePublished:
			if published == nil || v.Version > published.Version {
				published = v
			}
		case models.StateArchived:
			if archived == nil || v.Version > archived.Version {
				archived = v
			}
		}
	}
	if published != nil {
		return published
	}
	return archived
}

// ForkFromPublished returns the family's open version when it has one.
// Otherwise it creates a Draft one version above the highest ever allocated
// and copies the source's widgets into it. The copy is not atomic with the
// creation: a failed copy is logged and left to RepairFork.
func (s *service) ForkFromPublished(ctx context.Context, familyID, actor string) (_ *models.Dashboard, err error) {
	defer func() { s.record("fork", err) }()

	// Slots are read before versions: a concurrent fork that commits in
	// between is then either visible as open or collides on the slot.
	next, err := s.dashboardRepo.NextVersion(ctx, familyID)
	if err != nil {
		return nil, err
	}
	versions, err := s.dashboardRepo.ListFamily(ctx, familyID)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("dashboard family %s: %w", familyID, domain.ErrNotFound)
	}
	if open := openVersion(versions); open != nil {
		s.logger.Debug("fork returned existing draft", "family_id", familyID, "id", open.ID)
		return open, nil
	}

	source := forkSource(versions)
	if source == nil {
		return nil, domain.NewStateConflict("dashboard", familyID,
			models.StatePublished.Label(), models.StateArchived.Label())
	}

	now := s.tokens.Next(source.UpdatedAt)
	draft := &models.Dashboard{
		ID:                     identity.NewID(),
		FamilyID:               familyID,
		Version:                next,
		Name:                   source.Name,
		TopicAreaID:            source.TopicAreaID,
		TopicAreaName:          source.TopicAreaName,
		Description:            source.Description,
		DisplayTableOfContents: source.DisplayTableOfContents,
		State:                  models.StateDraft,
		ForkedFromID:           source.ID,
		CreatedBy:              actor,
		CreatedAt:              now,
		UpdatedBy:              actor,
		UpdatedAt:              now,
	}
	if err := s.dashboardRepo.CreateVersion(ctx, draft); err != nil {
		if !errors.Is(err, domain.ErrConflict) {
			return nil, err
		}
		// Lost the slot to a concurrent fork; hand back its draft.
		versions, rerr := s.dashboardRepo.ListFamily(ctx, familyID)
		if rerr != nil {
			return nil, rerr
		}
		if open := openVersion(versions); open != nil {
			return open, nil
		}
		return nil, err
	}

	copied, err := s.copyWidgets(ctx, source.ID, draft.ID, actor)
	if err != nil {
		s.logger.Error("fork widget copy incomplete",
			"id", draft.ID,
			"source_id", source.ID,
			"copied", copied,
			"error", err,
		)
		s.metrics.RecordTransition("fork_copy", err)
		s.scheduleRepair(draft.ID)
	}

	s.logger.Info("dashboard forked",
		"id", draft.ID,
		"family_id", familyID,
		"version", draft.Version,
		"source_id", source.ID,
		"widgets", copied,
		"user_id", actor,
	)
	return draft, nil
}

// copyWidgets copies every widget of sourceID that draftID does not have yet.
// Copies get ids derived from the source widget, so running it again only
// fills gaps. Section children are remapped to the copied ids. Copies are
// attributed to actor but keep the source timestamps.
func (s *service) copyWidgets(ctx context.Context, sourceID, draftID, actor string) (int, error) {
	widgets, err := s.widgetRepo.List(ctx, sourceID)
	if err != nil {
		return 0, err
	}

	copied := 0
	var errs []error
	for _, w := range widgets {
		cp := *w
		cp.ID = identity.ForkWidgetID(w.ID, draftID)
		cp.DashboardID = draftID
		cp.CreatedBy = actor
		cp.UpdatedBy = actor
		if section, ok := w.Content.(models.SectionContent); ok {
			children := make([]string, len(section.Widgets))
			for i, child := range section.Widgets {
				children[i] = identity.ForkWidgetID(child, draftID)
			}
			section.Widgets = children
			cp.Content = section
		}

		created, err := s.widgetRepo.CreateIfAbsent(ctx, &cp)
		if err != nil {
			errs = append(errs, fmt.Errorf("copy widget %s: %w", w.ID, err))
			continue
		}
		if created {
			copied++
		}
	}
	return copied, errors.Join(errs...)
}

func (s *service) scheduleRepair(draftID string) {
	if s.repairs == nil {
		return
	}
	s.repairs.Submit(func(ctx context.Context) error {
		_, err := s.RepairFork(ctx, draftID)
		return err
	})
}

// RepairFork finishes copying widgets into a forked draft. Drafts that were
// edited since the fork are skipped: their widget set belongs to the editor.
func (s *service) RepairFork(ctx context.Context, draftID string) (int, error) {
	draft, err := s.dashboardRepo.Get(ctx, draftID)
	if err != nil {
		return 0, err
	}
	if draft.ForkedFromID == "" || !draft.State.IsOpen() || draft.UpdatedAt != draft.CreatedAt {
		return 0, nil
	}
	if _, err := s.dashboardRepo.Get(ctx, draft.ForkedFromID); errors.Is(err, domain.ErrNotFound) {
		s.logger.Warn("fork source is gone, nothing to repair", "id", draftID, "source_id", draft.ForkedFromID)
		return 0, nil
	} else if err != nil {
		return 0, err
	}

	copied, err := s.copyWidgets(ctx, draft.ForkedFromID, draft.ID, draft.CreatedBy)
	if copied > 0 || err != nil {
		s.metrics.RecordForkRepair(err)
		s.logger.Info("fork repaired", "id", draftID, "copied", copied, "error", err)
	}
	return copied, err
}

// RepairForks runs RepairFork over every open forked draft
func (s *service) RepairForks(ctx context.Context) (int, error) {
	all, err := s.dashboardRepo.List(ctx)
	if err != nil {
		return 0, err
	}

	var total atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.repairConcurrency)
	for _, d := range all {
		if d.ForkedFromID == "" || !d.State.IsOpen() {
			continue
		}
		g.Go(func() error {
			n, err := s.RepairFork(gctx, d.ID)
			total.Add(int64(n))
			return err
		})
	}
	err = g.Wait()
	return int(total.Load()), err
}
