package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dashboards/internal/catalog"
	models "dashboards/internal/domain/models/dashboard"
	"dashboards/internal/middleware"
	badgerstore "dashboards/internal/repository/badger"
	"dashboards/internal/repository/items"
	auditsvc "dashboards/internal/service/audit"
	dashboardsvc "dashboards/internal/service/dashboard"
	"dashboards/internal/service/friendlyurl"
	"dashboards/internal/service/identity"
	"dashboards/internal/service/topicarea"
	widgetsvc "dashboards/internal/service/widget"
)

// newTestServer serves the API over an in-memory store with header auth
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := badgerstore.Open(badgerstore.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := badgerstore.NewItemStore(db, logger)
	cat, err := catalog.Load()
	require.NoError(t, err)
	tokens := identity.NewTokens(nil)

	dashboardRepo := items.NewDashboardRepository(store, logger)
	widgetRepo := items.NewWidgetRepository(store, logger)
	topicAreaRepo := items.NewTopicAreaRepository(store, logger)

	dashboards := dashboardsvc.NewService(dashboardsvc.Deps{
		Dashboards: dashboardRepo,
		Widgets:    widgetRepo,
		TopicAreas: topicAreaRepo,
		URLs:       friendlyurl.NewAllocator(items.NewFriendlyURLRepository(store, logger), logger),
		Tokens:     tokens,
	}, logger)

	mux := http.NewServeMux()
	RegisterRoutes(mux, Handlers{
		Dashboards: NewDashboardHandler(dashboards, auditsvc.NewService(items.NewAuditRepository(store, logger), logger), logger),
		Widgets:    NewWidgetHandler(widgetsvc.NewService(widgetRepo, dashboardRepo, cat, tokens, nil, logger), logger),
		TopicAreas: NewTopicAreaHandler(topicarea.NewService(topicAreaRepo, tokens, logger), logger),
		Public:     NewPublicHandler(dashboards, logger),
	})

	srv := httptest.NewServer(middleware.DevAuthMiddleware("alice")(mux))
	t.Cleanup(srv.Close)
	return srv
}

type client struct {
	t   *testing.T
	srv *httptest.Server
}

// do sends body as JSON and decodes the response into out when non-nil
func (c *client) do(method, path string, body any, out any) int {
	c.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(c.t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, c.srv.URL+path, r)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.srv.Client().Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(c.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type problem struct {
	Status         int      `json:"status"`
	Detail         string   `json:"detail"`
	ResourceType   string   `json:"resource_type"`
	RequiredStates []string `json:"required_states"`
}

type widgetRef struct {
	ID        string `json:"id"`
	Order     int    `json:"order"`
	UpdatedAt string `json:"updatedAt"`
}

type dashboardWithWidgets struct {
	models.Dashboard
	Widgets []widgetRef `json:"widgets"`
}

func TestDashboardLifecycle(t *testing.T) {
	c := &client{t: t, srv: newTestServer(t)}

	var ta models.TopicArea
	require.Equal(t, http.StatusCreated, c.do("POST", "/api/topicareas", map[string]string{"name": "Economy"}, &ta))

	var d models.Dashboard
	require.Equal(t, http.StatusCreated, c.do("POST", "/api/dashboards", map[string]any{
		"name": "Widgets Inc", "topicAreaId": ta.ID,
	}, &d))
	assert.Equal(t, models.StateDraft, d.State)
	assert.Equal(t, "alice", d.CreatedBy)

	var w1, w2 widgetRef
	require.Equal(t, http.StatusCreated, c.do("POST", "/api/dashboards/"+d.ID+"/widgets", map[string]any{
		"name": "intro", "widgetType": "Text", "content": map[string]string{"text": "hello"},
	}, &w1))
	require.Equal(t, http.StatusCreated, c.do("POST", "/api/dashboards/"+d.ID+"/widgets", map[string]any{
		"name": "outro", "widgetType": "Text", "content": map[string]string{"text": "bye"},
	}, &w2))

	var reordered []widgetRef
	require.Equal(t, http.StatusOK, c.do("PUT", "/api/dashboards/"+d.ID+"/widgetorder", map[string]any{
		"widgets": []map[string]any{
			{"widgetId": w1.ID, "order": 1, "updatedAt": w1.UpdatedAt},
			{"widgetId": w2.ID, "order": 0, "updatedAt": w2.UpdatedAt},
		},
	}, &reordered))
	require.Len(t, reordered, 2)
	assert.Equal(t, w2.ID, reordered[0].ID)

	var current dashboardWithWidgets
	require.Equal(t, http.StatusOK, c.do("GET", "/api/dashboards/"+d.ID, nil, &current))
	assert.Len(t, current.Widgets, 2)

	var submitted models.Dashboard
	require.Equal(t, http.StatusOK, c.do("POST", "/api/dashboards/"+d.ID+"/submit", map[string]string{"updatedAt": current.UpdatedAt}, &submitted))
	assert.Equal(t, models.StatePublishPending, submitted.State)

	var published models.Dashboard
	require.Equal(t, http.StatusOK, c.do("POST", "/api/dashboards/"+d.ID+"/publish", map[string]string{
		"updatedAt": submitted.UpdatedAt, "releaseNotes": "first",
	}, &published))
	assert.Equal(t, "widgets-inc", published.FriendlyURL)

	var public dashboardWithWidgets
	require.Equal(t, http.StatusOK, c.do("GET", "/public/dashboards/widgets-inc", nil, &public))
	assert.Equal(t, d.ID, public.ID)

	var draft models.Dashboard
	require.Equal(t, http.StatusOK, c.do("POST", "/api/families/"+d.FamilyID+"/draft", nil, &draft))
	assert.Equal(t, 2, draft.Version)
	assert.Equal(t, d.ID, draft.ForkedFromID)

	var versions []models.Dashboard
	require.Equal(t, http.StatusOK, c.do("GET", "/api/families/"+d.FamilyID+"/versions", nil, &versions))
	assert.Len(t, versions, 2)

	var forked dashboardWithWidgets
	require.Equal(t, http.StatusOK, c.do("GET", "/api/dashboards/"+draft.ID, nil, &forked))
	require.Len(t, forked.Widgets, 2, "fork copies widgets")
	assert.NotEqual(t, w2.ID, forked.Widgets[0].ID)
	assert.Equal(t, http.StatusNoContent, c.do("DELETE", "/api/dashboards/"+draft.ID+"/widgets/"+forked.Widgets[0].ID, nil, nil))

	var p problem
	assert.Equal(t, http.StatusConflict, c.do("DELETE", "/api/dashboards/"+d.ID+"/widgets/"+w1.ID, nil, &p),
		"published widgets are read-only")
}

func TestErrorResponses(t *testing.T) {
	c := &client{t: t, srv: newTestServer(t)}

	var ta models.TopicArea
	require.Equal(t, http.StatusCreated, c.do("POST", "/api/topicareas", map[string]string{"name": "Economy"}, &ta))
	var d models.Dashboard
	require.Equal(t, http.StatusCreated, c.do("POST", "/api/dashboards", map[string]any{"name": "Sales", "topicAreaId": ta.ID}, &d))

	t.Run("illegal transition", func(t *testing.T) {
		var p problem
		assert.Equal(t, http.StatusConflict, c.do("POST", "/api/dashboards/"+d.ID+"/archive", map[string]string{"updatedAt": d.UpdatedAt}, &p))
		assert.Equal(t, "dashboard", p.ResourceType)
		assert.Equal(t, []string{"published"}, p.RequiredStates)
	})

	t.Run("stale token", func(t *testing.T) {
		var updated models.Dashboard
		require.Equal(t, http.StatusOK, c.do("PUT", "/api/dashboards/"+d.ID, map[string]any{
			"name": "Sales 2", "topicAreaId": ta.ID, "updatedAt": d.UpdatedAt,
		}, &updated))

		var p problem
		assert.Equal(t, http.StatusConflict, c.do("PUT", "/api/dashboards/"+d.ID, map[string]any{
			"name": "Sales 3", "topicAreaId": ta.ID, "updatedAt": d.UpdatedAt,
		}, &p))
		assert.Empty(t, p.RequiredStates)
	})

	t.Run("missing token", func(t *testing.T) {
		var p problem
		assert.Equal(t, http.StatusBadRequest, c.do("POST", "/api/dashboards/"+d.ID+"/submit", map[string]string{}, &p))
	})

	t.Run("invalid friendly url", func(t *testing.T) {
		var current models.Dashboard
		require.Equal(t, http.StatusOK, c.do("GET", "/api/dashboards/"+d.ID, nil, &current))
		var pending models.Dashboard
		require.Equal(t, http.StatusOK, c.do("POST", "/api/dashboards/"+d.ID+"/submit", map[string]string{"updatedAt": current.UpdatedAt}, &pending))

		var p problem
		assert.Equal(t, http.StatusBadRequest, c.do("POST", "/api/dashboards/"+d.ID+"/publish", map[string]string{
			"updatedAt": pending.UpdatedAt, "friendlyURL": "admin",
		}, &p))
	})

	t.Run("not found", func(t *testing.T) {
		var p problem
		assert.Equal(t, http.StatusNotFound, c.do("GET", "/api/dashboards/missing", nil, &p))
		assert.Equal(t, http.StatusNotFound, c.do("GET", "/public/dashboards/nothing-here", nil, &p))
	})

	t.Run("malformed body", func(t *testing.T) {
		req, err := http.NewRequest("POST", c.srv.URL+"/api/dashboards", bytes.NewBufferString("{"))
		require.NoError(t, err)
		resp, err := c.srv.Client().Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
