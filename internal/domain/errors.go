package domain

import (
	"errors"
	"net/http"
	"strings"
)

// HTTPError defines errors that can be mapped to HTTP status codes.
type HTTPError interface {
	error
	StatusCode() int
}

// Domain error types implementing HTTPError interface
type (
	// NotFoundError indicates a resource was not found
	NotFoundError struct {
		Message string
	}

	// ValidationError indicates invalid input
	ValidationError struct {
		Message string
	}

	// UnauthorizedError indicates authentication failure
	UnauthorizedError struct {
		Message string
	}

	// ForbiddenError indicates authorization failure
	ForbiddenError struct {
		Message string
	}
)

func (e *NotFoundError) Error() string     { return e.Message }
func (e *ValidationError) Error() string   { return e.Message }
func (e *UnauthorizedError) Error() string { return e.Message }
func (e *ForbiddenError) Error() string    { return e.Message }

func (e *NotFoundError) StatusCode() int     { return http.StatusNotFound }
func (e *ValidationError) StatusCode() int   { return http.StatusBadRequest }
func (e *UnauthorizedError) StatusCode() int { return http.StatusUnauthorized }
func (e *ForbiddenError) StatusCode() int    { return http.StatusForbidden }

func (e *NotFoundError) Is(target error) bool     { return target == ErrNotFound }
func (e *ValidationError) Is(target error) bool   { return target == ErrValidation }
func (e *UnauthorizedError) Is(target error) bool { return target == ErrUnauthorized }
func (e *ForbiddenError) Is(target error) bool    { return target == ErrForbidden }

// Sentinel errors - use with errors.Is()
var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrValidation         = errors.New("invalid request")
	ErrInvalidFriendlyURL = errors.New("invalid friendly url")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
)

// ConflictError represents a failed concurrency guard or an illegal state
// transition. RequiredStates is set for the latter.
type ConflictError struct {
	Message        string   // Human-readable error message
	ResourceType   string   // dashboard, widget, friendlyURL
	ResourceID     string   // ID of the conflicting resource
	RequiredStates []string // States the operation is allowed from
}

// Error implements the error interface
func (e *ConflictError) Error() string {
	return e.Message
}

// StatusCode implements the HTTPError interface
func (e *ConflictError) StatusCode() int {
	return http.StatusConflict
}

// Is allows errors.Is() to match against ErrConflict
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// NewStateConflict builds the conflict returned for a transition attempted
// from the wrong state, e.g. "dashboard must be in publish-pending or archived state".
func NewStateConflict(resourceType, resourceID string, required ...string) *ConflictError {
	return &ConflictError{
		Message:        resourceType + " must be in " + strings.Join(required, " or ") + " state",
		ResourceType:   resourceType,
		ResourceID:     resourceID,
		RequiredStates: required,
	}
}

// NewStaleConflict builds the conflict returned when an optimistic concurrency
// token no longer matches the stored one.
func NewStaleConflict(resourceType, resourceID string) *ConflictError {
	return &ConflictError{
		Message:      resourceType + " was modified by another user, refresh and try again",
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// FriendlyURLError is returned when a friendly URL cannot be allocated.
type FriendlyURLError struct {
	URL    string
	Reason string
}

func (e *FriendlyURLError) Error() string {
	if e.URL == "" {
		return "invalid friendly url: " + e.Reason
	}
	return "invalid friendly url " + e.URL + ": " + e.Reason
}

func (e *FriendlyURLError) StatusCode() int { return http.StatusBadRequest }

func (e *FriendlyURLError) Is(target error) bool {
	return target == ErrInvalidFriendlyURL
}
