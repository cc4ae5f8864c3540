// Package catalog describes the widget types editors can use.
package catalog

import (
	"embed"
	"fmt"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"

	"dashboards/internal/domain/models/dashboard"
)

//go:embed config/*.yaml
var configFiles embed.FS

// WidgetSpec is the catalog entry of one widget type
type WidgetSpec struct {
	Type        dashboard.WidgetType `yaml:"-" json:"type"`
	DisplayName string               `yaml:"display_name" json:"display_name"`
	Description string               `yaml:"description" json:"description"`
	SubTypes    []string             `yaml:"sub_types" json:"sub_types,omitempty"`
}

type catalogFile struct {
	Widgets map[dashboard.WidgetType]WidgetSpec `yaml:"widgets"`
}

// Catalog holds the widget specs loaded from the embedded YAML
type Catalog struct {
	widgets map[dashboard.WidgetType]*WidgetSpec
	mu      sync.RWMutex
}

// Load parses the embedded widget catalog
func Load() (*Catalog, error) {
	data, err := configFiles.ReadFile("config/widgets.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to read widget catalog: %w", err)
	}
	return Parse(data)
}

// Parse builds a catalog from YAML. Every entry must name a known widget type.
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal widget catalog: %w", err)
	}

	c := &Catalog{widgets: make(map[dashboard.WidgetType]*WidgetSpec, len(file.Widgets))}
	for t, spec := range file.Widgets {
		if !slices.Contains(dashboard.WidgetTypes, t) {
			return nil, fmt.Errorf("widget catalog: unknown widget type %q", t)
		}
		spec.Type = t
		c.widgets[t] = &spec
	}
	return c, nil
}

// Get returns the spec of a widget type
func (c *Catalog) Get(t dashboard.WidgetType) (*WidgetSpec, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	spec, ok := c.widgets[t]
	return spec, ok
}

// List returns specs in the order of dashboard.WidgetTypes
func (c *Catalog) List() []WidgetSpec {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]WidgetSpec, 0, len(c.widgets))
	for _, t := range dashboard.WidgetTypes {
		if spec, ok := c.widgets[t]; ok {
			out = append(out, *spec)
		}
	}
	return out
}

// Check reports whether content is allowed by the catalog: its widget type
// must be listed, and chart and table sub-types must be among the listed ones.
func (c *Catalog) Check(content dashboard.Content) error {
	spec, ok := c.Get(content.WidgetType())
	if !ok {
		return fmt.Errorf("widget type %s is not available", content.WidgetType())
	}

	var sub string
	switch v := content.(type) {
	case dashboard.ChartContent:
		sub = v.ChartType
	case dashboard.TableContent:
		sub = v.TableType
		if sub == "" {
			return nil
		}
	default:
		return nil
	}
	if !slices.Contains(spec.SubTypes, sub) {
		return fmt.Errorf("%s type %q is not supported", spec.Type, sub)
	}
	return nil
}
