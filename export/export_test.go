package export

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/plotlinehq/plotline/chart"
)

func TestCSVWithLabels(t *testing.T) {
	data := &chart.Data{
		Type:   "bar",
		Labels: []string{"Jan", "Feb"},
		Datasets: []chart.Dataset{
			{Label: "Sales", Data: []any{150.0, 80.0}},
		},
	}

	out, err := CSV(data)
	if err != nil {
		t.Fatalf("CSV: %v", err)
	}

	want := "Label,Dataset_1\nJan,150\nFeb,80\n"
	if string(out) != want {
		t.Errorf("CSV = %q, want %q", out, want)
	}
}

func TestCSVWithoutLabels(t *testing.T) {
	data := &chart.Data{
		Type: "scatter",
		Datasets: []chart.Dataset{
			{Data: []any{1.0, 2.0, 3.0}},
			{Data: []any{10.0}},
		},
	}

	out, err := CSV(data)
	if err != nil {
		t.Fatalf("CSV: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4: %q", len(lines), out)
	}
	if lines[0] != "Dataset_1,Dataset_2" {
		t.Errorf("header = %q", lines[0])
	}
	// Second dataset runs out of values after its first row.
	if lines[2] != "2," {
		t.Errorf("row 2 = %q, want \"2,\"", lines[2])
	}
}

func TestCSVNoDatasets(t *testing.T) {
	if _, err := CSV(&chart.Data{Type: "bar"}); err == nil {
		t.Error("CSV with no datasets should fail")
	}
	if _, err := CSV(nil); err == nil {
		t.Error("CSV(nil) should fail")
	}
}

func TestJSONEnvelope(t *testing.T) {
	data := &chart.Data{
		Type:   "bar",
		Labels: []string{"A"},
		Datasets: []chart.Dataset{
			{Label: "x", Data: []any{1.0}},
		},
	}

	out, err := JSON("My Chart", data)
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}

	var env map[string]any
	if err := json.Unmarshal(out, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env["title"] != "My Chart" {
		t.Errorf("title = %v", env["title"])
	}
	if _, ok := env["chart_data"]; !ok {
		t.Error("missing chart_data")
	}
	if _, ok := env["exported_at"]; !ok {
		t.Error("missing exported_at")
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"csv", FormatCSV, false},
		{"CSV", FormatCSV, false},
		{"", FormatCSV, false},
		{"json", FormatJSON, false},
		{"xlsx", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseFormat(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseFormat(%q) = %v, %v, want %v", tt.in, got, err, tt.want)
		}
	}
}
