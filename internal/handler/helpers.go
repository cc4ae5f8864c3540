package handler

import (
	"errors"
	"net/http"

	"dashboards/internal/domain"
	"dashboards/internal/httputil"
)

// handleError converts domain errors to HTTP responses
func handleError(w http.ResponseWriter, err error) {
	var conflictErr *domain.ConflictError
	var urlErr *domain.FriendlyURLError

	switch {
	case errors.As(err, &urlErr):
		httputil.RespondErrorWithExtras(w, http.StatusBadRequest, urlErr.Error(), map[string]interface{}{
			"friendly_url": urlErr.URL,
		})
	case errors.Is(err, domain.ErrValidation):
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		httputil.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		httputil.RespondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		httputil.RespondError(w, http.StatusForbidden, err.Error())
	case errors.As(err, &conflictErr):
		extras := map[string]interface{}{
			"resource_type": conflictErr.ResourceType,
			"resource_id":   conflictErr.ResourceID,
		}
		if len(conflictErr.RequiredStates) > 0 {
			extras["required_states"] = conflictErr.RequiredStates
		}
		httputil.RespondErrorWithExtras(w, http.StatusConflict, conflictErr.Error(), extras)
	default:
		httputil.RespondError(w, http.StatusInternalServerError, "internal server error")
	}
}

// getUserID returns the acting user, writing a 401 when there is none
func getUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := httputil.Actor(r)
	if userID == "" {
		httputil.RespondError(w, http.StatusUnauthorized, "user not authenticated")
		return "", false
	}
	return userID, true
}

// parseBody decodes the request body, writing a 400 on failure
func parseBody(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := httputil.ParseJSON(w, r, dest); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// tokenRequest is the body of the plain state transitions
type tokenRequest struct {
	UpdatedAt string `json:"updatedAt"`
}
