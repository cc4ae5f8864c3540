package dashboard

import (
	"encoding/json"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// WidgetType is the discriminant of a widget's content.
type WidgetType string

const (
	WidgetText    WidgetType = "Text"
	WidgetChart   WidgetType = "Chart"
	WidgetTable   WidgetType = "Table"
	WidgetMetrics WidgetType = "Metrics"
	WidgetImage   WidgetType = "Image"
	WidgetSection WidgetType = "Section"
)

// WidgetTypes lists every widget type.
var WidgetTypes = []WidgetType{WidgetText, WidgetChart, WidgetTable, WidgetMetrics, WidgetImage, WidgetSection}

// Content is the typed payload of a widget. Each widget type has exactly one
// implementation.
type Content interface {
	WidgetType() WidgetType
	validation.Validatable
}

type TextContent struct {
	Text string `json:"text"`
}

type ChartContent struct {
	Title        string `json:"title"`
	Summary      string `json:"summary,omitempty"`
	SummaryBelow bool   `json:"summaryBelow"`
	ChartType    string `json:"chartType"`
	DatasetID    string `json:"datasetId"`
}

type TableContent struct {
	Title        string `json:"title"`
	Summary      string `json:"summary,omitempty"`
	SummaryBelow bool   `json:"summaryBelow"`
	TableType    string `json:"tableType,omitempty"`
	DatasetID    string `json:"datasetId"`
}

type Metric struct {
	Title          string  `json:"title"`
	Value          float64 `json:"value"`
	ChangeOverTime string  `json:"changeOverTime,omitempty"`
	StartDate      string  `json:"startDate,omitempty"`
	EndDate        string  `json:"endDate,omitempty"`
}

type MetricsContent struct {
	Title           string   `json:"title"`
	OneMetricPerRow bool     `json:"oneMetricPerRow"`
	Metrics         []Metric `json:"metrics"`
}

type ImageContent struct {
	Title        string `json:"title"`
	ImageAltText string `json:"imageAltText"`
	Summary      string `json:"summary,omitempty"`
	Source       string `json:"source"`
	ScalePct     int    `json:"scalePct,omitempty"`
}

// SectionContent groups other widgets of the same dashboard by id.
type SectionContent struct {
	Title        string   `json:"title"`
	Summary      string   `json:"summary,omitempty"`
	ShowWithTabs bool     `json:"showWithTabs"`
	Widgets      []string `json:"widgetIds,omitempty"`
}

func (TextContent) WidgetType() WidgetType    { return WidgetText }
func (ChartContent) WidgetType() WidgetType   { return WidgetChart }
func (TableContent) WidgetType() WidgetType   { return WidgetTable }
func (MetricsContent) WidgetType() WidgetType { return WidgetMetrics }
func (ImageContent) WidgetType() WidgetType   { return WidgetImage }
func (SectionContent) WidgetType() WidgetType { return WidgetSection }

func (c TextContent) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Text, validation.Required),
	)
}

func (c ChartContent) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Title, validation.Required),
		validation.Field(&c.ChartType, validation.Required),
		validation.Field(&c.DatasetID, validation.Required),
	)
}

func (c TableContent) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Title, validation.Required),
		validation.Field(&c.DatasetID, validation.Required),
	)
}

func (m Metric) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Title, validation.Required),
	)
}

func (c MetricsContent) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Title, validation.Required),
		validation.Field(&c.Metrics, validation.Required),
	)
}

func (c ImageContent) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Title, validation.Required),
		validation.Field(&c.ImageAltText, validation.Required),
		validation.Field(&c.Source, validation.Required),
		validation.Field(&c.ScalePct, validation.Min(0), validation.Max(100)),
	)
}

func (c SectionContent) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Title, validation.Required),
	)
}

// DecodeContent decodes raw into the payload type selected by t.
func DecodeContent(t WidgetType, raw json.RawMessage) (Content, error) {
	var c Content
	var err error
	switch t {
	case WidgetText:
		var v TextContent
		err = unmarshalContent(raw, &v)
		c = v
	case WidgetChart:
		var v ChartContent
		err = unmarshalContent(raw, &v)
		c = v
	case WidgetTable:
		var v TableContent
		err = unmarshalContent(raw, &v)
		c = v
	case WidgetMetrics:
		var v MetricsContent
		err = unmarshalContent(raw, &v)
		c = v
	case WidgetImage:
		var v ImageContent
		err = unmarshalContent(raw, &v)
		c = v
	case WidgetSection:
		var v SectionContent
		err = unmarshalContent(raw, &v)
		c = v
	default:
		return nil, fmt.Errorf("unknown widget type %q", t)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s content: %w", t, err)
	}
	return c, nil
}

func unmarshalContent(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// Widget is a content block owned by one dashboard version.
type Widget struct {
	ID          string     `json:"id"`
	DashboardID string     `json:"dashboardId"`
	Name        string     `json:"name"`
	WidgetType  WidgetType `json:"widgetType"`
	Order       int        `json:"order"`
	ShowTitle   bool       `json:"showTitle"`
	Content     Content    `json:"-"`
	CreatedBy   string     `json:"createdBy"`
	CreatedAt   string     `json:"createdAt"`
	UpdatedBy   string     `json:"updatedBy"`
	UpdatedAt   string     `json:"updatedAt"`
}

type widgetJSON Widget

type widgetWire struct {
	*widgetJSON
	Content json.RawMessage `json:"content"`
}

// MarshalJSON writes content as a nested object next to its widgetType.
func (w Widget) MarshalJSON() ([]byte, error) {
	raw := json.RawMessage("null")
	if w.Content != nil {
		var err error
		if raw, err = json.Marshal(w.Content); err != nil {
			return nil, err
		}
	}
	return json.Marshal(widgetWire{widgetJSON: (*widgetJSON)(&w), Content: raw})
}

// UnmarshalJSON decodes content according to widgetType.
func (w *Widget) UnmarshalJSON(data []byte) error {
	wire := widgetWire{widgetJSON: (*widgetJSON)(w)}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	content, err := DecodeContent(w.WidgetType, wire.Content)
	if err != nil {
		return err
	}
	w.Content = content
	return nil
}
