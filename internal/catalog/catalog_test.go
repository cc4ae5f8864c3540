package catalog

import (
	"testing"

	"dashboards/internal/domain/models/dashboard"
)

func TestLoad(t *testing.T) {
	c, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	specs := c.List()
	if len(specs) != len(dashboard.WidgetTypes) {
		t.Fatalf("List() returned %d specs, want %d", len(specs), len(dashboard.WidgetTypes))
	}
	if specs[0].Type != dashboard.WidgetText {
		t.Errorf("first spec = %s, want Text", specs[0].Type)
	}
}

func TestCheck(t *testing.T) {
	c, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name    string
		content dashboard.Content
		wantErr bool
	}{
		{"text", dashboard.TextContent{Text: "hi"}, false},
		{"known chart", dashboard.ChartContent{ChartType: "LineChart"}, false},
		{"unknown chart", dashboard.ChartContent{ChartType: "RadarChart"}, true},
		{"table without sub-type", dashboard.TableContent{}, false},
		{"unknown table", dashboard.TableContent{TableType: "Pivot"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Check(tt.content)
			if (err != nil) != tt.wantErr {
				t.Errorf("Check() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParse_RejectsUnknownType(t *testing.T) {
	_, err := Parse([]byte("widgets:\n  Video:\n    display_name: Video\n"))
	if err == nil {
		t.Fatal("Parse() should reject unknown widget types")
	}
}
