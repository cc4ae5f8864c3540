package httputil

import (
	"context"
	"net/http"
)

type actorKey struct{}

// WithActor returns r with the acting user's id attached
func WithActor(r *http.Request, userID string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), actorKey{}, userID))
}

// Actor is the user id set by WithActor, or "" for an anonymous request.
func Actor(r *http.Request) string {
	id, _ := r.Context().Value(actorKey{}).(string)
	return id
}
