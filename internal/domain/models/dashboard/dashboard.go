package dashboard

// State is the lifecycle state of a dashboard version.
type State string

const (
	StateDraft          State = "Draft"
	StatePublishPending State = "PublishPending"
	StatePublished      State = "Published"
	StateArchived       State = "Archived"
)

// Label is the lower-case form used in user-facing messages.
func (s State) Label() string {
	switch s {
	case StateDraft:
		return "draft"
	case StatePublishPending:
		return "publish-pending"
	case StatePublished:
		return "published"
	case StateArchived:
		return "archived"
	}
	return string(s)
}

// IsOpen reports whether the version is the family's working copy.
func (s State) IsOpen() bool {
	return s == StateDraft || s == StatePublishPending
}

// Dashboard is one version of a dashboard family.
type Dashboard struct {
	ID                     string `json:"id"`
	FamilyID               string `json:"familyId"` // ID of version 1
	Version                int    `json:"version"`
	Name                   string `json:"name"`
	TopicAreaID            string `json:"topicAreaId"`
	TopicAreaName          string `json:"topicAreaName"` // snapshot, refreshed on explicit edit only
	Description            string `json:"description"`
	DisplayTableOfContents bool   `json:"displayTableOfContents"`
	State                  State  `json:"state"`
	FriendlyURL            string `json:"friendlyURL,omitempty"`
	ReleaseNotes           string `json:"releaseNotes,omitempty"`
	ForkedFromID           string `json:"forkedFromId,omitempty"`
	CreatedBy              string `json:"createdBy"`
	CreatedAt              string `json:"createdAt"`
	UpdatedBy              string `json:"updatedBy"`
	UpdatedAt              string `json:"updatedAt"`
	PublishedBy            string `json:"publishedBy,omitempty"`
	DeletedBy              string `json:"deletedBy,omitempty"`
}

// WithWidgets is a dashboard version together with its widgets in display order.
type WithWidgets struct {
	*Dashboard
	Widgets []*Widget `json:"widgets"`
}

// VersionSlot records that a version number has been taken within a family.
// Slots outlive the versions they point to so numbers are never reused.
type VersionSlot struct {
	FamilyID    string `json:"familyId"`
	Version     int    `json:"version"`
	DashboardID string `json:"dashboardId"`
	CreatedAt   string `json:"createdAt"`
}

// FriendlyURLReservation maps a slug to the family that owns it and the
// version currently published under it.
type FriendlyURLReservation struct {
	FriendlyURL string `json:"friendlyURL"`
	FamilyID    string `json:"familyId"`
	DashboardID string `json:"dashboardId"`
	UpdatedAt   string `json:"updatedAt"`
}

// TopicArea groups dashboards.
type TopicArea struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedBy string `json:"createdBy"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}
