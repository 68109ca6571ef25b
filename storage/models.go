package storage

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Session is one upload-and-analyze conversation. DatasetInfo and Metadata
// hold raw JSON documents and are stored verbatim.
type Session struct {
	ID          string          `json:"id"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	DatasetInfo json.RawMessage `json:"dataset_info,omitempty"`
	Metadata    json.RawMessage `json:"session_metadata,omitempty"`
}

// Visualization is one resolved chart within a session. ChartSpec is the
// spec as extracted from the model reply, ChartData the resolved render
// payload, both stored as JSON.
type Visualization struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	Query     string          `json:"query"`
	ChartSpec json.RawMessage `json:"chart_spec"`
	ChartData json.RawMessage `json:"chart_data"`
	ChartType string          `json:"chart_type"`
	CreatedAt time.Time       `json:"created_at"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

// ChatEntry is one query/response exchange, optionally linked to the
// visualization it produced.
type ChatEntry struct {
	ID              string    `json:"id"`
	SessionID       string    `json:"session_id"`
	Query           string    `json:"query"`
	Response        string    `json:"response"`
	VisualizationID string    `json:"visualization_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
