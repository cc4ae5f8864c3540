// Package audit derives the audit trail from the change feed.
package audit

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"

	models "dashboards/internal/domain/models/dashboard"
	"dashboards/internal/domain/repositories"
	"dashboards/internal/service/identity"
)

// audited lists the item types that get audit entries
var audited = map[string]bool{
	identity.TypeDashboard: true,
	identity.TypeWidget:    true,
	identity.TypeTopicArea: true,
}

// bookkeeping attributes change on every write and are left out of diffs
var bookkeeping = []string{"updatedAt", "updatedBy", "deletedBy"}

// Derive turns one change into an audit entry. It returns nil for changes
// to item types that are not audited and for updates that only touched
// bookkeeping attributes.
func Derive(event repositories.ChangeEvent) (*models.AuditLogEntry, error) {
	image := event.NewImage
	if image == nil {
		image = event.OldImage
	}
	if image == nil || !audited[image.Type] {
		return nil, nil
	}

	oldAttrs, err := attributes(event.OldImage)
	if err != nil {
		return nil, err
	}
	newAttrs, err := attributes(event.NewImage)
	if err != nil {
		return nil, err
	}
	current := newAttrs
	if event.Kind == repositories.ChangeRemove {
		current = oldAttrs
	}

	entry := &models.AuditLogEntry{
		Timestamp: identity.FormatToken(event.ObservedAt),
		ChangeID:  event.ID,
		ItemType:  image.Type,
		ItemID:    stringAttr(current, "id"),
	}
	if entry.ItemID == "" {
		entry.ItemID = identity.IDFromKey(image.SK)
	}

	entry.FamilyID = entry.ItemID
	if image.Type == identity.TypeDashboard {
		entry.FamilyID = image.Family
		if v, ok := current["version"].(float64); ok {
			entry.Version = int(v)
		}
	}

	switch event.Kind {
	case repositories.ChangeInsert:
		entry.Event = models.AuditCreate
		entry.UserID = stringAttr(newAttrs, "createdBy")
	case repositories.ChangeModify:
		entry.Event = models.AuditUpdate
		entry.UserID = stringAttr(newAttrs, "updatedBy")
		entry.ModifiedProperties = Diff(oldAttrs, newAttrs)
		if len(entry.ModifiedProperties) == 0 {
			return nil, nil
		}
	case repositories.ChangeRemove:
		entry.Event = models.AuditDelete
		entry.UserID = stringAttr(oldAttrs, "deletedBy")
	default:
		return nil, fmt.Errorf("unknown change kind %q", event.Kind)
	}
	if entry.UserID == "" {
		entry.UserID = models.UnknownUser
	}
	return entry, nil
}

// Diff lists the attributes whose canonical values differ between two
// images. An attribute missing on one side counts as the empty string.
func Diff(oldAttrs, newAttrs map[string]any) []models.ModifiedProperty {
	names := make(map[string]struct{}, len(oldAttrs)+len(newAttrs))
	for k := range oldAttrs {
		names[k] = struct{}{}
	}
	for k := range newAttrs {
		names[k] = struct{}{}
	}

	var out []models.ModifiedProperty
	for name := range names {
		if slices.Contains(bookkeeping, name) {
			continue
		}
		oldValue, newValue := canonical(oldAttrs[name]), canonical(newAttrs[name])
		if oldValue != newValue {
			out = append(out, models.ModifiedProperty{Property: name, OldValue: oldValue, NewValue: newValue})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Property < out[j].Property })
	return out
}

// canonical renders a value for comparison: strings as they are, anything
// else as JSON
func canonical(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func attributes(it *repositories.Item) (map[string]any, error) {
	if it == nil {
		return map[string]any{}, nil
	}
	return it.Attributes()
}

func stringAttr(attrs map[string]any, name string) string {
	s, _ := attrs[name].(string)
	return s
}
