package handler

import (
	"context"
	"log/slog"
	"net/http"

	models "dashboards/internal/domain/models/dashboard"
	"dashboards/internal/domain/services"
	"dashboards/internal/httputil"
)

// DashboardHandler handles dashboard lifecycle HTTP requests
type DashboardHandler struct {
	dashboardService services.DashboardService
	auditService     services.AuditService
	logger           *slog.Logger
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(dashboardService services.DashboardService, auditService services.AuditService, logger *slog.Logger) *DashboardHandler {
	return &DashboardHandler{
		dashboardService: dashboardService,
		auditService:     auditService,
		logger:           logger,
	}
}

// CreateDashboard creates version 1 of a new dashboard
// POST /api/dashboards
func (h *DashboardHandler) CreateDashboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(w, r)
	if !ok {
		return
	}

	var req services.CreateDashboardRequest
	if !parseBody(w, r, &req) {
		return
	}

	d, err := h.dashboardService.CreateDraft(r.Context(), &req, userID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, d)
}

// ListDashboards lists every version of every dashboard
// GET /api/dashboards
func (h *DashboardHandler) ListDashboards(w http.ResponseWriter, r *http.Request) {
	list, err := h.dashboardService.ListDashboards(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, list)
}

// GetDashboard returns a version with its widgets
// GET /api/dashboards/{id}
func (h *DashboardHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.dashboardService.GetDashboard(r.Context(), r.PathValue("id"))
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, d)
}

// UpdateDashboard edits a draft
// PUT /api/dashboards/{id}
func (h *DashboardHandler) UpdateDashboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(w, r)
	if !ok {
		return
	}

	var req services.UpdateDashboardRequest
	if !parseBody(w, r, &req) {
		return
	}

	d, err := h.dashboardService.UpdateDraft(r.Context(), r.PathValue("id"), &req, userID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, d)
}

// DeleteDashboard deletes a version and its widgets
// DELETE /api/dashboards/{id}
func (h *DashboardHandler) DeleteDashboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(w, r)
	if !ok {
		return
	}

	if err := h.dashboardService.DeleteVersion(r.Context(), r.PathValue("id"), userID); err != nil {
		handleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type transitionFunc func(ctx context.Context, id, expectedUpdatedAt, actor string) (*models.Dashboard, error)

// transition runs a token-guarded state change
func (h *DashboardHandler) transition(fn transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := getUserID(w, r)
		if !ok {
			return
		}

		var req tokenRequest
		if !parseBody(w, r, &req) {
			return
		}

		d, err := fn(r.Context(), r.PathValue("id"), req.UpdatedAt, userID)
		if err != nil {
			handleError(w, err)
			return
		}

		httputil.RespondJSON(w, http.StatusOK, d)
	}
}

// SubmitForReview moves a draft to publish-pending
// POST /api/dashboards/{id}/submit
func (h *DashboardHandler) SubmitForReview(w http.ResponseWriter, r *http.Request) {
	h.transition(h.dashboardService.SubmitForReview)(w, r)
}

// RequestChanges sends a publish-pending version back to draft
// POST /api/dashboards/{id}/requestchanges
func (h *DashboardHandler) RequestChanges(w http.ResponseWriter, r *http.Request) {
	h.transition(h.dashboardService.RequestChanges)(w, r)
}

// Archive retires a published version
// POST /api/dashboards/{id}/archive
func (h *DashboardHandler) Archive(w http.ResponseWriter, r *http.Request) {
	h.transition(h.dashboardService.Archive)(w, r)
}

// Publish publishes a version under its friendly URL
// POST /api/dashboards/{id}/publish
func (h *DashboardHandler) Publish(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(w, r)
	if !ok {
		return
	}

	var req services.PublishRequest
	if !parseBody(w, r, &req) {
		return
	}

	d, err := h.dashboardService.Publish(r.Context(), r.PathValue("id"), &req, userID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, d)
}

// CreateDraft forks the family's published version, or returns its open draft
// POST /api/families/{familyId}/draft
func (h *DashboardHandler) CreateDraft(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(w, r)
	if !ok {
		return
	}

	d, err := h.dashboardService.ForkFromPublished(r.Context(), r.PathValue("familyId"), userID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, d)
}

// ListVersions lists a family's versions, newest first
// GET /api/families/{familyId}/versions
func (h *DashboardHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.dashboardService.ListVersions(r.Context(), r.PathValue("familyId"))
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, versions)
}

// ListAuditLog returns a family's audit trail, oldest first
// GET /api/families/{familyId}/auditlog
func (h *DashboardHandler) ListAuditLog(w http.ResponseWriter, r *http.Request) {
	entries, err := h.auditService.ListAuditLog(r.Context(), r.PathValue("familyId"))
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, entries)
}
