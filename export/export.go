// Package export renders resolved chart data as downloadable CSV or JSON.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/plotlinehq/plotline/chart"
)

// Format is a supported export encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ParseFormat normalizes a user-supplied format string. Empty defaults
// to CSV.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported export format: %q", s)
	}
}

// ContentType returns the MIME type to serve the format with.
func (f Format) ContentType() string {
	if f == FormatJSON {
		return "application/json"
	}
	return "text/csv"
}

// Extension returns the filename extension for the format.
func (f Format) Extension() string {
	if f == FormatJSON {
		return "json"
	}
	return "csv"
}

// CSV writes chart data as a CSV document. With labels present the first
// column is "Label" followed by one "Dataset_N" column per dataset; without
// labels only the dataset columns are written. Datasets of unequal length
// pad short ones with empty cells.
func CSV(data *chart.Data) ([]byte, error) {
	if data == nil || len(data.Datasets) == 0 {
		return nil, fmt.Errorf("no datasets in chart data")
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := make([]string, 0, len(data.Datasets)+1)
	if len(data.Labels) > 0 {
		header = append(header, "Label")
	}
	for i := range data.Datasets {
		header = append(header, fmt.Sprintf("Dataset_%d", i+1))
	}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("writing csv header: %w", err)
	}

	rows := len(data.Labels)
	if rows == 0 {
		for _, ds := range data.Datasets {
			if len(ds.Data) > rows {
				rows = len(ds.Data)
			}
		}
	}

	for i := 0; i < rows; i++ {
		row := make([]string, 0, len(header))
		if len(data.Labels) > 0 {
			row = append(row, data.Labels[i])
		}
		for _, ds := range data.Datasets {
			row = append(row, cellString(ds.Data, i))
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("writing csv row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flushing csv: %w", err)
	}
	return buf.Bytes(), nil
}

// envelope is the JSON export document.
type envelope struct {
	Title      string      `json:"title"`
	ChartData  *chart.Data `json:"chart_data"`
	ExportedAt time.Time   `json:"exported_at"`
}

// JSON writes chart data wrapped in an export envelope carrying the title
// and export timestamp.
func JSON(title string, data *chart.Data) ([]byte, error) {
	if data == nil || len(data.Datasets) == 0 {
		return nil, fmt.Errorf("no datasets in chart data")
	}
	out, err := json.MarshalIndent(envelope{
		Title:      title,
		ChartData:  data,
		ExportedAt: time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding export json: %w", err)
	}
	return out, nil
}

// Render dispatches on format. Title is used for the JSON envelope only.
func Render(format Format, title string, data *chart.Data) ([]byte, error) {
	if format == FormatJSON {
		return JSON(title, data)
	}
	return CSV(data)
}

func cellString(data []any, i int) string {
	if i >= len(data) {
		return ""
	}
	switch v := data[i].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return fmt.Sprintf("%g", v)
	case chart.Point:
		return fmt.Sprintf("%g;%g", v.X, v.Y)
	default:
		return fmt.Sprint(v)
	}
}
