package handler

import (
	"log/slog"
	"net/http"

	"dashboards/internal/domain/services"
	"dashboards/internal/httputil"
)

// TopicAreaHandler handles topic area HTTP requests
type TopicAreaHandler struct {
	topicAreaService services.TopicAreaService
	logger           *slog.Logger
}

// NewTopicAreaHandler creates a new topic area handler
func NewTopicAreaHandler(topicAreaService services.TopicAreaService, logger *slog.Logger) *TopicAreaHandler {
	return &TopicAreaHandler{
		topicAreaService: topicAreaService,
		logger:           logger,
	}
}

// CreateTopicArea creates a topic area
// POST /api/topicareas
func (h *TopicAreaHandler) CreateTopicArea(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(w, r)
	if !ok {
		return
	}

	var req services.CreateTopicAreaRequest
	if !parseBody(w, r, &req) {
		return
	}

	ta, err := h.topicAreaService.Create(r.Context(), &req, userID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, ta)
}

// ListTopicAreas lists topic areas
// GET /api/topicareas
func (h *TopicAreaHandler) ListTopicAreas(w http.ResponseWriter, r *http.Request) {
	list, err := h.topicAreaService.List(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, list)
}
