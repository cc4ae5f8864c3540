package repositories

import (
	"context"

	"dashboards/internal/domain/models/dashboard"
)

// DashboardPatch lists the attributes a dashboard update changes. Nil fields
// are left untouched; ClearFriendlyURL removes the attribute.
type DashboardPatch struct {
	Name                   *string
	TopicAreaID            *string
	TopicAreaName          *string
	Description            *string
	DisplayTableOfContents *bool
	State                  *dashboard.State
	FriendlyURL            *string
	ReleaseNotes           *string
	PublishedBy            *string
	DeletedBy              *string

	UpdatedBy string
	UpdatedAt string
}

// DashboardRepository persists dashboard versions and their version slots.
type DashboardRepository interface {
	// CreateVersion writes the version's slot and row atomically. A taken
	// slot returns a *domain.ConflictError.
	CreateVersion(ctx context.Context, d *dashboard.Dashboard) error
	Get(ctx context.Context, id string) (*dashboard.Dashboard, error)
	// Update applies patch. A non-empty expectedUpdatedAt guards the write;
	// a stale token returns a *domain.ConflictError.
	Update(ctx context.Context, id string, patch DashboardPatch, expectedUpdatedAt string) (*dashboard.Dashboard, error)
	Delete(ctx context.Context, id string) error
	// ListFamily returns every version of a family ordered by version.
	ListFamily(ctx context.Context, familyID string) ([]*dashboard.Dashboard, error)
	List(ctx context.Context) ([]*dashboard.Dashboard, error)
	// NextVersion returns one more than the highest version ever allocated
	// in the family, including deleted versions.
	NextVersion(ctx context.Context, familyID string) (int, error)
}

// WidgetOrder is one entry of a reorder batch.
type WidgetOrder struct {
	WidgetID          string `json:"widgetId"`
	Order             int    `json:"order"`
	ExpectedUpdatedAt string `json:"updatedAt"`
}

// WidgetRepository persists widgets under their dashboard version.
type WidgetRepository interface {
	Create(ctx context.Context, w *dashboard.Widget) error
	// CreateIfAbsent writes w unless a widget with its id already exists.
	CreateIfAbsent(ctx context.Context, w *dashboard.Widget) (bool, error)
	Get(ctx context.Context, dashboardID, widgetID string) (*dashboard.Widget, error)
	// List returns a dashboard's widgets ordered by order, then id.
	List(ctx context.Context, dashboardID string) ([]*dashboard.Widget, error)
	Replace(ctx context.Context, w *dashboard.Widget, expectedUpdatedAt string) error
	Delete(ctx context.Context, dashboardID, widgetID string) error
	DeleteAll(ctx context.Context, dashboardID string) (int, error)
	// Reorder applies every order change or none.
	Reorder(ctx context.Context, dashboardID string, items []WidgetOrder, updatedAt, updatedBy string) error
}

// FriendlyURLRepository persists slug reservations.
type FriendlyURLRepository interface {
	Get(ctx context.Context, slug string) (*dashboard.FriendlyURLReservation, error)
	// Reserve claims slug for r.FamilyID unless another family holds it.
	Reserve(ctx context.Context, r *dashboard.FriendlyURLReservation) error
	// Release deletes slug if familyID holds it.
	Release(ctx context.Context, slug, familyID string) error
	// ListFamily returns every reservation familyID holds.
	ListFamily(ctx context.Context, familyID string) ([]*dashboard.FriendlyURLReservation, error)
}

// AuditRepository persists audit log entries.
type AuditRepository interface {
	Append(ctx context.Context, entry *dashboard.AuditLogEntry) error
	List(ctx context.Context, familyID string) ([]*dashboard.AuditLogEntry, error)
}

// TopicAreaRepository persists topic areas.
type TopicAreaRepository interface {
	Create(ctx context.Context, ta *dashboard.TopicArea) error
	Get(ctx context.Context, id string) (*dashboard.TopicArea, error)
	List(ctx context.Context) ([]*dashboard.TopicArea, error)
}
