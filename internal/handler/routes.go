package handler

import "net/http"

// Handlers groups the HTTP handlers served by the API
type Handlers struct {
	Dashboards *DashboardHandler
	Widgets    *WidgetHandler
	TopicAreas *TopicAreaHandler
	Public     *PublicHandler
	Metrics    http.Handler // optional
}

// RegisterRoutes mounts every API route on mux
func RegisterRoutes(mux *http.ServeMux, h Handlers) {
	mux.HandleFunc("GET /health", Health)
	if h.Metrics != nil {
		mux.Handle("GET /metrics", h.Metrics)
	}

	// Topic area routes
	mux.HandleFunc("POST /api/topicareas", h.TopicAreas.CreateTopicArea)
	mux.HandleFunc("GET /api/topicareas", h.TopicAreas.ListTopicAreas)

	// Dashboard routes
	mux.HandleFunc("POST /api/dashboards", h.Dashboards.CreateDashboard)
	mux.HandleFunc("GET /api/dashboards", h.Dashboards.ListDashboards)
	mux.HandleFunc("GET /api/dashboards/{id}", h.Dashboards.GetDashboard)
	mux.HandleFunc("PUT /api/dashboards/{id}", h.Dashboards.UpdateDashboard)
	mux.HandleFunc("DELETE /api/dashboards/{id}", h.Dashboards.DeleteDashboard)
	mux.HandleFunc("POST /api/dashboards/{id}/submit", h.Dashboards.SubmitForReview)
	mux.HandleFunc("POST /api/dashboards/{id}/requestchanges", h.Dashboards.RequestChanges)
	mux.HandleFunc("POST /api/dashboards/{id}/publish", h.Dashboards.Publish)
	mux.HandleFunc("POST /api/dashboards/{id}/archive", h.Dashboards.Archive)

	// Family routes
	mux.HandleFunc("POST /api/families/{familyId}/draft", h.Dashboards.CreateDraft)
	mux.HandleFunc("GET /api/families/{familyId}/versions", h.Dashboards.ListVersions)
	mux.HandleFunc("GET /api/families/{familyId}/auditlog", h.Dashboards.ListAuditLog)

	// Widget routes
	mux.HandleFunc("POST /api/dashboards/{id}/widgets", h.Widgets.CreateWidget)
	mux.HandleFunc("PUT /api/dashboards/{id}/widgets/{widgetId}", h.Widgets.UpdateWidget)
	mux.HandleFunc("DELETE /api/dashboards/{id}/widgets/{widgetId}", h.Widgets.DeleteWidget)
	mux.HandleFunc("PUT /api/dashboards/{id}/widgetorder", h.Widgets.ReorderWidgets)

	// Public routes
	mux.HandleFunc("GET /public/dashboards/{friendlyURL}", h.Public.GetByFriendlyURL)
}
