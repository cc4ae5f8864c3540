package handler

import (
	"log/slog"
	"net/http"

	"dashboards/internal/domain/repositories"
	"dashboards/internal/domain/services"
	"dashboards/internal/httputil"
)

// WidgetHandler handles widget HTTP requests
type WidgetHandler struct {
	widgetService services.WidgetService
	logger        *slog.Logger
}

// NewWidgetHandler creates a new widget handler
func NewWidgetHandler(widgetService services.WidgetService, logger *slog.Logger) *WidgetHandler {
	return &WidgetHandler{
		widgetService: widgetService,
		logger:        logger,
	}
}

// CreateWidget adds a widget to a draft
// POST /api/dashboards/{id}/widgets
func (h *WidgetHandler) CreateWidget(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(w, r)
	if !ok {
		return
	}

	var req services.CreateWidgetRequest
	if !parseBody(w, r, &req) {
		return
	}

	widget, err := h.widgetService.Create(r.Context(), r.PathValue("id"), &req, userID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, widget)
}

// UpdateWidget edits a widget
// PUT /api/dashboards/{id}/widgets/{widgetId}
func (h *WidgetHandler) UpdateWidget(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(w, r)
	if !ok {
		return
	}

	var req services.UpdateWidgetRequest
	if !parseBody(w, r, &req) {
		return
	}

	widget, err := h.widgetService.Update(r.Context(), r.PathValue("id"), r.PathValue("widgetId"), &req, userID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, widget)
}

// DeleteWidget removes a widget
// DELETE /api/dashboards/{id}/widgets/{widgetId}
func (h *WidgetHandler) DeleteWidget(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(w, r)
	if !ok {
		return
	}

	if err := h.widgetService.Delete(r.Context(), r.PathValue("id"), r.PathValue("widgetId"), userID); err != nil {
		handleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type reorderRequest struct {
	Widgets []repositories.WidgetOrder `json:"widgets"`
}

// ReorderWidgets applies a batch of order changes, all or none
// PUT /api/dashboards/{id}/widgetorder
func (h *WidgetHandler) ReorderWidgets(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(w, r)
	if !ok {
		return
	}

	var req reorderRequest
	if !parseBody(w, r, &req) {
		return
	}

	id := r.PathValue("id")
	if err := h.widgetService.Reorder(r.Context(), id, req.Widgets, userID); err != nil {
		handleError(w, err)
		return
	}

	widgets, err := h.widgetService.List(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, widgets)
}
