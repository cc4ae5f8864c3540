package dashboard

// AuditEvent is the kind of change an audit entry records.
type AuditEvent string

const (
	AuditCreate AuditEvent = "Create"
	AuditUpdate AuditEvent = "Update"
	AuditDelete AuditEvent = "Delete"
)

// UnknownUser attributes changes whose images carry no actor.
const UnknownUser = "Unknown"

// ModifiedProperty is one changed attribute, values in canonical string form.
type ModifiedProperty struct {
	Property string `json:"property"`
	OldValue string `json:"oldValue"`
	NewValue string `json:"newValue"`
}

// AuditLogEntry is an immutable record of one change. FamilyID is the
// dashboard family for dashboard rows and the row's own id otherwise.
type AuditLogEntry struct {
	FamilyID           string             `json:"familyId"`
	Timestamp          string             `json:"timestamp"`
	ChangeID           string             `json:"changeId"`
	Event              AuditEvent         `json:"event"`
	ItemType           string             `json:"itemType"`
	ItemID             string             `json:"itemId"`
	Version            int                `json:"version,omitempty"`
	UserID             string             `json:"userId"`
	ModifiedProperties []ModifiedProperty `json:"modifiedProperties,omitempty"`
}
