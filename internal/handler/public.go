package handler

import (
	"log/slog"
	"net/http"

	"dashboards/internal/domain/services"
	"dashboards/internal/httputil"
)

// PublicHandler serves published dashboards to anonymous readers
type PublicHandler struct {
	dashboardService services.DashboardService
	logger           *slog.Logger
}

func NewPublicHandler(dashboardService services.DashboardService, logger *slog.Logger) *PublicHandler {
	return &PublicHandler{dashboardService: dashboardService, logger: logger}
}

// GetByFriendlyURL returns the version published under a friendly URL
// GET /public/dashboards/{friendlyURL}
func (h *PublicHandler) GetByFriendlyURL(w http.ResponseWriter, r *http.Request) {
	d, err := h.dashboardService.GetPublishedByFriendlyURL(r.Context(), r.PathValue("friendlyURL"))
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, d)
}

// Health reports liveness
// GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
