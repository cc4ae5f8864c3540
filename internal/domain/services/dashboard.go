package services

import (
	"context"
	"encoding/json"

	"dashboards/internal/domain/models/dashboard"
	"dashboards/internal/domain/repositories"
)

// CreateDashboardRequest represents a request to create a dashboard
type CreateDashboardRequest struct {
	Name                   string `json:"name"`
	TopicAreaID            string `json:"topicAreaId"`
	Description            string `json:"description"`
	DisplayTableOfContents bool   `json:"displayTableOfContents"`
}

// UpdateDashboardRequest represents an edit of a draft's mutable fields
type UpdateDashboardRequest struct {
	Name                   string `json:"name"`
	TopicAreaID            string `json:"topicAreaId"`
	Description            string `json:"description"`
	DisplayTableOfContents bool   `json:"displayTableOfContents"`
	UpdatedAt              string `json:"updatedAt"` // concurrency token read by the client
}

// PublishRequest represents a request to publish a version
type PublishRequest struct {
	UpdatedAt    string  `json:"updatedAt"`
	ReleaseNotes string  `json:"releaseNotes"`
	FriendlyURL  *string `json:"friendlyURL,omitempty"` // nil derives the URL from the name
}

// DashboardService drives the dashboard lifecycle
type DashboardService interface {
	// CreateDraft creates version 1 of a new family
	CreateDraft(ctx context.Context, req *CreateDashboardRequest, actor string) (*dashboard.Dashboard, error)

	// UpdateDraft edits a Draft version's fields
	UpdateDraft(ctx context.Context, id string, req *UpdateDashboardRequest, actor string) (*dashboard.Dashboard, error)

	// SubmitForReview moves Draft to PublishPending
	SubmitForReview(ctx context.Context, id, expectedUpdatedAt, actor string) (*dashboard.Dashboard, error)

	// RequestChanges moves PublishPending back to Draft
	RequestChanges(ctx context.Context, id, expectedUpdatedAt, actor string) (*dashboard.Dashboard, error)

	// Publish moves PublishPending or Archived to Published and assigns the friendly URL
	Publish(ctx context.Context, id string, req *PublishRequest, actor string) (*dashboard.Dashboard, error)

	// Archive moves Published to Archived
	Archive(ctx context.Context, id, expectedUpdatedAt, actor string) (*dashboard.Dashboard, error)

	// ForkFromPublished returns the family's open draft, creating one from the
	// latest published version when there is none
	ForkFromPublished(ctx context.Context, familyID, actor string) (*dashboard.Dashboard, error)

	// DeleteVersion removes a version and its widgets
	DeleteVersion(ctx context.Context, id, actor string) error

	GetDashboard(ctx context.Context, id string) (*dashboard.WithWidgets, error)
	ListDashboards(ctx context.Context) ([]*dashboard.Dashboard, error)
	ListVersions(ctx context.Context, familyID string) ([]*dashboard.Dashboard, error)

	// GetPublishedByFriendlyURL returns the version currently published under slug
	GetPublishedByFriendlyURL(ctx context.Context, slug string) (*dashboard.WithWidgets, error)

	// RepairFork copies widgets a fork left behind and returns how many it copied
	RepairFork(ctx context.Context, draftID string) (int, error)

	// RepairForks runs RepairFork over every open forked draft
	RepairForks(ctx context.Context) (int, error)
}

// CreateWidgetRequest represents a request to add a widget to a draft
type CreateWidgetRequest struct {
	Name       string               `json:"name"`
	WidgetType dashboard.WidgetType `json:"widgetType"`
	ShowTitle  bool                 `json:"showTitle"`
	Content    json.RawMessage      `json:"content"`
}

// UpdateWidgetRequest represents an edit of a widget
type UpdateWidgetRequest struct {
	Name      string          `json:"name"`
	ShowTitle bool            `json:"showTitle"`
	Content   json.RawMessage `json:"content"`
	UpdatedAt string          `json:"updatedAt"`
}

// WidgetService manages widgets of draft versions
type WidgetService interface {
	Create(ctx context.Context, dashboardID string, req *CreateWidgetRequest, actor string) (*dashboard.Widget, error)
	Get(ctx context.Context, dashboardID, widgetID string) (*dashboard.Widget, error)
	List(ctx context.Context, dashboardID string) ([]*dashboard.Widget, error)
	Update(ctx context.Context, dashboardID, widgetID string, req *UpdateWidgetRequest, actor string) (*dashboard.Widget, error)
	Delete(ctx context.Context, dashboardID, widgetID, actor string) error

	// Reorder applies every order change or none
	Reorder(ctx context.Context, dashboardID string, items []repositories.WidgetOrder, actor string) error
}

// AuditService reads the audit trail
type AuditService interface {
	ListAuditLog(ctx context.Context, familyID string) ([]*dashboard.AuditLogEntry, error)
}

// CreateTopicAreaRequest represents a request to create a topic area
type CreateTopicAreaRequest struct {
	Name string `json:"name"`
}

// TopicAreaService manages topic areas
type TopicAreaService interface {
	Create(ctx context.Context, req *CreateTopicAreaRequest, actor string) (*dashboard.TopicArea, error)
	Get(ctx context.Context, id string) (*dashboard.TopicArea, error)
	List(ctx context.Context) ([]*dashboard.TopicArea, error)
}
