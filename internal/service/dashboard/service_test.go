package dashboard

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dashboards/internal/domain"
	models "dashboards/internal/domain/models/dashboard"
	"dashboards/internal/domain/repositories"
	"dashboards/internal/domain/services"
	badgerstore "dashboards/internal/repository/badger"
	"dashboards/internal/repository/items"
	"dashboards/internal/service/friendlyurl"
	"dashboards/internal/service/identity"
)

type fixture struct {
	svc        services.DashboardService
	dashboards repositories.DashboardRepository
	widgets    repositories.WidgetRepository
	urls       repositories.FriendlyURLRepository
	topicArea  *models.TopicArea
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithWidgets(t, nil)
}

// newFixtureWithWidgets lets a test wrap the widget repository the service sees
func newFixtureWithWidgets(t *testing.T, wrap func(repositories.WidgetRepository) repositories.WidgetRepository) *fixture {
	t.Helper()
	db, err := badgerstore.Open(badgerstore.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := badgerstore.NewItemStore(db, logger)

	f := &fixture{
		dashboards: items.NewDashboardRepository(store, logger),
		widgets:    items.NewWidgetRepository(store, logger),
		urls:       items.NewFriendlyURLRepository(store, logger),
	}
	topicAreas := items.NewTopicAreaRepository(store, logger)
	f.topicArea = &models.TopicArea{ID: "ta-1", Name: "Economy"}
	require.NoError(t, topicAreas.Create(context.Background(), f.topicArea))

	widgets := f.widgets
	if wrap != nil {
		widgets = wrap(widgets)
	}
	f.svc = NewService(Deps{
		Dashboards: f.dashboards,
		Widgets:    widgets,
		TopicAreas: topicAreas,
		URLs:       friendlyurl.NewAllocator(f.urls, logger),
		Tokens:     identity.NewTokens(nil),
	}, logger)
	return f
}

func (f *fixture) create(t *testing.T, name string) *models.Dashboard {
	t.Helper()
	d, err := f.svc.CreateDraft(context.Background(), &services.CreateDashboardRequest{
		Name:        name,
		TopicAreaID: f.topicArea.ID,
	}, "alice")
	require.NoError(t, err)
	return d
}

// publish takes a Draft through review to Published
func (f *fixture) publish(t *testing.T, d *models.Dashboard, url *string) *models.Dashboard {
	t.Helper()
	ctx := context.Background()
	pending, err := f.svc.SubmitForReview(ctx, d.ID, d.UpdatedAt, "alice")
	require.NoError(t, err)
	published, err := f.svc.Publish(ctx, d.ID, &services.PublishRequest{
		UpdatedAt:    pending.UpdatedAt,
		ReleaseNotes: "notes",
		FriendlyURL:  url,
	}, "bob")
	require.NoError(t, err)
	return published
}

func (f *fixture) addWidget(t *testing.T, dashboardID, id string, order int, content models.Content) {
	t.Helper()
	require.NoError(t, f.widgets.Create(context.Background(), &models.Widget{
		ID:          id,
		DashboardID: dashboardID,
		Name:        id,
		WidgetType:  content.WidgetType(),
		Order:       order,
		Content:     content,
		CreatedBy:   "author",
		UpdatedBy:   "author",
		CreatedAt:   "2024-01-01T00:00:00.000000Z",
		UpdatedAt:   "2024-01-01T00:00:00.000000Z",
	}))
}

func ptr(s string) *string { return &s }

func TestCreateDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d := f.create(t, "  Unemployment  ")
	assert.Equal(t, d.ID, d.FamilyID)
	assert.Equal(t, 1, d.Version)
	assert.Equal(t, models.StateDraft, d.State)
	assert.Equal(t, "Unemployment", d.Name)
	assert.Equal(t, "Economy", d.TopicAreaName)
	assert.Equal(t, d.CreatedAt, d.UpdatedAt)

	tests := []struct {
		name string
		req  services.CreateDashboardRequest
	}{
		{"missing name", services.CreateDashboardRequest{TopicAreaID: f.topicArea.ID}},
		{"blank name", services.CreateDashboardRequest{Name: "   ", TopicAreaID: f.topicArea.ID}},
		{"missing topic area", services.CreateDashboardRequest{Name: "x"}},
		{"unknown topic area", services.CreateDashboardRequest{Name: "x", TopicAreaID: "nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateDraft(ctx, &tt.req, "alice")
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestUpdateDraft_OptimisticConcurrency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.create(t, "A")
	t0 := d.UpdatedAt

	req := &services.UpdateDashboardRequest{Name: "B", TopicAreaID: f.topicArea.ID, UpdatedAt: t0}
	updated, err := f.svc.UpdateDraft(ctx, d.ID, req, "bob")
	require.NoError(t, err)
	assert.Equal(t, "B", updated.Name)
	assert.Equal(t, "bob", updated.UpdatedBy)
	assert.Greater(t, updated.UpdatedAt, t0)

	req.Name = "C"
	_, err = f.svc.UpdateDraft(ctx, d.ID, req, "carol")
	assert.ErrorIs(t, err, domain.ErrConflict)

	stored, err := f.dashboards.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "B", stored.Name, "stale write must not apply")
}

func TestUpdateDraft_Rules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.create(t, "A")

	_, err := f.svc.UpdateDraft(ctx, d.ID, &services.UpdateDashboardRequest{Name: "B", TopicAreaID: f.topicArea.ID}, "bob")
	assert.ErrorIs(t, err, domain.ErrValidation, "token is required")

	_, err = f.svc.UpdateDraft(ctx, d.ID, &services.UpdateDashboardRequest{Name: "B", TopicAreaID: "missing", UpdatedAt: d.UpdatedAt}, "bob")
	assert.ErrorIs(t, err, domain.ErrValidation, "topic area must exist")

	pending, err := f.svc.SubmitForReview(ctx, d.ID, d.UpdatedAt, "alice")
	require.NoError(t, err)
	_, err = f.svc.UpdateDraft(ctx, d.ID, &services.UpdateDashboardRequest{Name: "B", TopicAreaID: f.topicArea.ID, UpdatedAt: pending.UpdatedAt}, "bob")
	assert.ErrorIs(t, err, domain.ErrConflict, "only drafts are editable")

	_, err = f.svc.UpdateDraft(ctx, "missing", &services.UpdateDashboardRequest{Name: "B", TopicAreaID: f.topicArea.ID, UpdatedAt: d.UpdatedAt}, "bob")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStateMachineGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.create(t, "Guards")

	_, err := f.svc.Publish(ctx, d.ID, &services.PublishRequest{UpdatedAt: d.UpdatedAt}, "bob")
	var conflict *domain.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "dashboard must be in publish-pending or archived state", conflict.Message)
	assert.Equal(t, []string{"publish-pending", "archived"}, conflict.RequiredStates)

	_, err = f.svc.Archive(ctx, d.ID, d.UpdatedAt, "bob")
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = f.svc.RequestChanges(ctx, d.ID, d.UpdatedAt, "bob")
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = f.svc.Publish(ctx, d.ID, &services.PublishRequest{}, "bob")
	assert.ErrorIs(t, err, domain.ErrValidation, "missing token is rejected before the state check")
	_, err = f.svc.RequestChanges(ctx, d.ID, "", "bob")
	assert.ErrorIs(t, err, domain.ErrValidation)

	pending, err := f.svc.SubmitForReview(ctx, d.ID, d.UpdatedAt, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.StatePublishPending, pending.State)

	_, err = f.svc.SubmitForReview(ctx, d.ID, pending.UpdatedAt, "alice")
	assert.ErrorIs(t, err, domain.ErrConflict)

	back, err := f.svc.RequestChanges(ctx, d.ID, pending.UpdatedAt, "bob")
	require.NoError(t, err)
	assert.Equal(t, models.StateDraft, back.State)

	pending, err = f.svc.SubmitForReview(ctx, d.ID, back.UpdatedAt, "alice")
	require.NoError(t, err)

	_, err = f.svc.Publish(ctx, d.ID, &services.PublishRequest{UpdatedAt: back.UpdatedAt}, "bob")
	assert.ErrorIs(t, err, domain.ErrConflict, "stale token")

	published, err := f.svc.Publish(ctx, d.ID, &services.PublishRequest{UpdatedAt: pending.UpdatedAt, ReleaseNotes: "first"}, "bob")
	require.NoError(t, err)
	assert.Equal(t, models.StatePublished, published.State)
	assert.Equal(t, "guards", published.FriendlyURL)
	assert.Equal(t, "first", published.ReleaseNotes)
	assert.Equal(t, "bob", published.PublishedBy)

	archived, err := f.svc.Archive(ctx, d.ID, published.UpdatedAt, "bob")
	require.NoError(t, err)
	assert.Equal(t, models.StateArchived, archived.State)

	republished, err := f.svc.Publish(ctx, d.ID, &services.PublishRequest{UpdatedAt: archived.UpdatedAt}, "bob")
	require.NoError(t, err, "publish from archived")
	assert.Equal(t, models.StatePublished, republished.State)
}

func TestPublish_InvalidFriendlyURL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.create(t, "Admin")
	pending, err := f.svc.SubmitForReview(ctx, d.ID, d.UpdatedAt, "alice")
	require.NoError(t, err)

	_, err = f.svc.Publish(ctx, d.ID, &services.PublishRequest{UpdatedAt: pending.UpdatedAt}, "bob")
	assert.ErrorIs(t, err, domain.ErrInvalidFriendlyURL, "derived url admin")

	_, err = f.svc.Publish(ctx, d.ID, &services.PublishRequest{UpdatedAt: pending.UpdatedAt, FriendlyURL: ptr("a/b")}, "bob")
	assert.ErrorIs(t, err, domain.ErrInvalidFriendlyURL)

	stored, err := f.dashboards.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatePublishPending, stored.State)
}

func TestPublish_FriendlyURLUniqueness(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.publish(t, f.create(t, "Family A"), ptr("foo"))
	assert.Equal(t, "foo", a.FriendlyURL)

	b := f.create(t, "Family B")
	pending, err := f.svc.SubmitForReview(ctx, b.ID, b.UpdatedAt, "alice")
	require.NoError(t, err)
	_, err = f.svc.Publish(ctx, b.ID, &services.PublishRequest{UpdatedAt: pending.UpdatedAt, FriendlyURL: ptr("foo")}, "bob")
	assert.ErrorIs(t, err, domain.ErrInvalidFriendlyURL)

	stored, err := f.dashboards.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatePublishPending, stored.State)

	draft, err := f.svc.ForkFromPublished(ctx, a.FamilyID, "alice")
	require.NoError(t, err)
	v2 := f.publish(t, draft, ptr("foo"))
	assert.Equal(t, "foo", v2.FriendlyURL)

	current, err := f.svc.GetPublishedByFriendlyURL(ctx, "foo")
	require.NoError(t, err)
	assert.Equal(t, v2.ID, current.ID)

	v1, err := f.dashboards.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatePublished, v1.State, "publishing does not touch siblings")
}

func TestPublish_MovingURLReleasesOldOne(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.publish(t, f.create(t, "Family A"), ptr("old"))
	draft, err := f.svc.ForkFromPublished(ctx, a.FamilyID, "alice")
	require.NoError(t, err)
	f.publish(t, draft, ptr("new"))

	_, err = f.urls.Get(ctx, "old")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	b := f.publish(t, f.create(t, "Family B"), ptr("old"))
	assert.Equal(t, "old", b.FriendlyURL)
}

func TestPublish_RepublishArchivedVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	published := f.publish(t, f.create(t, "Sales"), ptr("foo"))
	archived, err := f.svc.Archive(ctx, published.ID, published.UpdatedAt, "bob")
	require.NoError(t, err)

	kept, err := f.svc.Publish(ctx, published.ID, &services.PublishRequest{UpdatedAt: archived.UpdatedAt}, "bob")
	require.NoError(t, err)
	assert.Equal(t, "foo", kept.FriendlyURL, "no requested url keeps the previous one")

	archived, err = f.svc.Archive(ctx, published.ID, kept.UpdatedAt, "bob")
	require.NoError(t, err)
	moved, err := f.svc.Publish(ctx, published.ID, &services.PublishRequest{
		UpdatedAt:   archived.UpdatedAt,
		FriendlyURL: ptr("bar"),
	}, "bob")
	require.NoError(t, err)
	assert.Equal(t, "bar", moved.FriendlyURL)

	_, err = f.urls.Get(ctx, "foo")
	assert.ErrorIs(t, err, domain.ErrNotFound, "same version moved off foo")
	_, err = f.svc.GetPublishedByFriendlyURL(ctx, "foo")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	other := f.publish(t, f.create(t, "Other"), ptr("foo"))
	assert.Equal(t, "foo", other.FriendlyURL)

	held, err := f.urls.ListFamily(ctx, published.FamilyID)
	require.NoError(t, err)
	require.Len(t, held, 1)
	assert.Equal(t, "bar", held[0].FriendlyURL)
}

func TestFork_IdempotentAndMonotonic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ForkFromPublished(ctx, "missing", "alice")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	d := f.create(t, "Monotonic")
	open, err := f.svc.ForkFromPublished(ctx, d.FamilyID, "alice")
	require.NoError(t, err)
	assert.Equal(t, d.ID, open.ID, "open draft is returned")

	current := f.publish(t, d, nil)
	for i := 2; i <= 5; i++ {
		first, err := f.svc.ForkFromPublished(ctx, d.FamilyID, "alice")
		require.NoError(t, err)
		second, err := f.svc.ForkFromPublished(ctx, d.FamilyID, "alice")
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, i, first.Version)
		assert.Equal(t, d.FamilyID, first.FamilyID)
		assert.Equal(t, current.ID, first.ForkedFromID)

		versions, err := f.svc.ListVersions(ctx, d.FamilyID)
		require.NoError(t, err)
		require.Len(t, versions, i)
		openCount := 0
		for j, v := range versions {
			assert.Equal(t, j+1, v.Version)
			if v.State.IsOpen() {
				openCount++
			}
		}
		assert.Equal(t, 1, openCount)

		current = f.publish(t, first, nil)
	}
}

func TestFork_ConcurrentCallsShareOneDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.publish(t, f.create(t, "Race"), nil)

	const n = 8
	ids := make(chan string, n)
	errs := make(chan error, n)
	for range n {
		go func() {
			draft, err := f.svc.ForkFromPublished(ctx, d.FamilyID, "alice")
			if err != nil {
				errs <- err
				return
			}
			ids <- draft.ID
		}()
	}

	seen := map[string]bool{}
	for range n {
		select {
		case id := <-ids:
			seen[id] = true
		case err := <-errs:
			t.Fatalf("fork failed: %v", err)
		}
	}
	assert.Len(t, seen, 1)

	versions, err := f.svc.ListVersions(ctx, d.FamilyID)
	require.NoError(t, err)
	assert.Len(t, versions, 2)
}

// flakyWidgets fails every other widget copy
type flakyWidgets struct {
	repositories.WidgetRepository
	calls atomic.Int32
	fail  atomic.Bool
}

func (w *flakyWidgets) CreateIfAbsent(ctx context.Context, widget *models.Widget) (bool, error) {
	if w.fail.Load() && w.calls.Add(1)%2 == 0 {
		return false, errors.New("store timeout")
	}
	return w.WidgetRepository.CreateIfAbsent(ctx, widget)
}

func TestFork_CopiesWidgetsAndRepairs(t *testing.T) {
	var flaky *flakyWidgets
	f := newFixtureWithWidgets(t, func(r repositories.WidgetRepository) repositories.WidgetRepository {
		flaky = &flakyWidgets{WidgetRepository: r}
		return flaky
	})
	ctx := context.Background()

	d := f.create(t, "Widgets")
	f.addWidget(t, d.ID, "w1", 0, models.TextContent{Text: "intro"})
	f.addWidget(t, d.ID, "w2", 1, models.TextContent{Text: "body"})
	f.addWidget(t, d.ID, "w3", 2, models.SectionContent{Title: "group", Widgets: []string{"w1", "w2"}})
	f.addWidget(t, d.ID, "w4", 3, models.TextContent{Text: "outro"})
	published := f.publish(t, d, nil)

	flaky.fail.Store(true)
	draft, err := f.svc.ForkFromPublished(ctx, published.FamilyID, "alice")
	require.NoError(t, err, "a partial copy does not fail the fork")
	flaky.fail.Store(false)

	partial, err := f.widgets.List(ctx, draft.ID)
	require.NoError(t, err)
	assert.Len(t, partial, 2)

	copied, err := f.svc.RepairFork(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, copied)

	copied, err = f.svc.RepairForks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, copied, "repair never duplicates")

	full, err := f.svc.GetDashboard(ctx, draft.ID)
	require.NoError(t, err)
	require.Len(t, full.Widgets, 4)
	for i, w := range full.Widgets {
		assert.Equal(t, draft.ID, w.DashboardID)
		assert.Equal(t, i, w.Order)
		assert.Equal(t, "2024-01-01T00:00:00.000000Z", w.UpdatedAt, "copies keep their timestamps")
		assert.Equal(t, "alice", w.CreatedBy, "copies are attributed to the forker")
		assert.Equal(t, "alice", w.UpdatedBy)
	}
	section, ok := full.Widgets[2].Content.(models.SectionContent)
	require.True(t, ok)
	assert.Equal(t, []string{full.Widgets[0].ID, full.Widgets[1].ID}, section.Widgets)

	source, err := f.widgets.List(ctx, published.ID)
	require.NoError(t, err)
	assert.Len(t, source, 4, "source widgets untouched")
	for _, w := range source {
		assert.Equal(t, "author", w.CreatedBy)
	}
}

func TestDeleteVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d := f.create(t, "Doomed")
	f.addWidget(t, d.ID, "w1", 0, models.TextContent{Text: "x"})
	published := f.publish(t, d, ptr("doomed"))
	draft, err := f.svc.ForkFromPublished(ctx, published.FamilyID, "alice")
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteVersion(ctx, draft.ID, "carol"))
	_, err = f.svc.GetDashboard(ctx, draft.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	widgets, err := f.widgets.List(ctx, draft.ID)
	require.NoError(t, err)
	assert.Empty(t, widgets)

	_, err = f.urls.Get(ctx, "doomed")
	require.NoError(t, err, "reservation points at the published version")

	again, err := f.svc.ForkFromPublished(ctx, published.FamilyID, "alice")
	require.NoError(t, err)
	assert.Equal(t, 3, again.Version, "deleted version numbers are not reused")

	require.NoError(t, f.svc.DeleteVersion(ctx, published.ID, "carol"))
	_, err = f.urls.Get(ctx, "doomed")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.svc.GetPublishedByFriendlyURL(ctx, "doomed")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.dashboards.Get(ctx, again.ID)
	require.NoError(t, err, "siblings survive")

	assert.ErrorIs(t, f.svc.DeleteVersion(ctx, published.ID, "carol"), domain.ErrNotFound)
}

func TestEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, err := f.svc.CreateDraft(ctx, &services.CreateDashboardRequest{
		Name:        "Widgets Inc",
		TopicAreaID: f.topicArea.ID,
	}, "alice")
	require.NoError(t, err)

	pending, err := f.svc.SubmitForReview(ctx, d.ID, d.UpdatedAt, "alice")
	require.NoError(t, err)
	published, err := f.svc.Publish(ctx, d.ID, &services.PublishRequest{
		UpdatedAt:    pending.UpdatedAt,
		ReleaseNotes: "v1",
	}, "bob")
	require.NoError(t, err)
	assert.Equal(t, "widgets-inc", published.FriendlyURL)

	public, err := f.svc.GetPublishedByFriendlyURL(ctx, "widgets-inc")
	require.NoError(t, err)
	assert.Equal(t, d.ID, public.ID)

	archived, err := f.svc.Archive(ctx, d.ID, published.UpdatedAt, "bob")
	require.NoError(t, err)

	draft, err := f.svc.ForkFromPublished(ctx, d.FamilyID, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, draft.Version)
	assert.Equal(t, d.FamilyID, draft.FamilyID)
	assert.Equal(t, models.StateDraft, draft.State)
	assert.Empty(t, draft.FriendlyURL)
	assert.Empty(t, draft.ReleaseNotes)

	v1, err := f.dashboards.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateArchived, v1.State)
	assert.Equal(t, archived.UpdatedAt, v1.UpdatedAt, "fork does not mutate the source")
}
