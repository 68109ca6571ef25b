// Package chart turns model-proposed chart specifications into concrete,
// renderable chart data backed by an actual dataset. Column references are
// resolved by fuzzy matching, and each chart type carries its own aggregation
// rule. A keyword classifier covers the no-model path where only a title is
// available.
package chart

import (
	"encoding/json"
	"fmt"
)

// DefaultColor is the placeholder series color used when a spec names none.
const DefaultColor = "#8884d8"

// Spec is a chart specification as proposed by the model. Everything except
// Type is optional; column references may be approximate and are resolved
// against the dataset before use.
type Spec struct {
	Type    string         `json:"type"`
	X       string         `json:"x,omitempty"`
	Y       string         `json:"y,omitempty"`
	Labels  []string       `json:"labels,omitempty"`
	Values  []any          `json:"values,omitempty"`
	Colors  []string       `json:"colors,omitempty"`
	Title   string         `json:"title,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

// ParseSpec decodes a chart spec from extracted JSON text.
func ParseSpec(text string) (*Spec, error) {
	var spec Spec
	if err := json.Unmarshal([]byte(text), &spec); err != nil {
		return nil, fmt.Errorf("parse chart spec: %w", err)
	}
	if spec.Type == "" {
		return nil, fmt.Errorf("chart spec has no type")
	}
	return &spec, nil
}

// Point is one scatter sample.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Dataset is one renderable series. Data holds float64 values for aggregated
// charts, Point values for scatter, or verbatim spec values for literal
// pie/doughnut charts. BackgroundColor is a single color or a per-slice list,
// matching the renderer's wire format.
type Dataset struct {
	Label           string `json:"label"`
	Data            []any  `json:"data"`
	BackgroundColor any    `json:"backgroundColor,omitempty"`
}

// Data is the chart-renderable result. Labels, when present, always align
// one-to-one with every dataset's Data.
type Data struct {
	Type     string         `json:"type"`
	Labels   []string       `json:"labels,omitempty"`
	Datasets []Dataset      `json:"datasets"`
	Options  map[string]any `json:"options,omitempty"`
}
