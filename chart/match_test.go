package chart

import "testing"

func TestMatchColumnExact(t *testing.T) {
	columns := []string{"sales_amount", "Region", "Order Date"}

	tests := []struct {
		name string
		want string
	}{
		{"sales_amount", "sales_amount"},
		{"Sales Amount", "sales_amount"},
		{"SALES_AMOUNT", "sales_amount"},
		{"region", "Region"},
		{"orderdate", "Order Date"},
	}
	for _, tt := range tests {
		got, ok := MatchColumn(tt.name, columns)
		if !ok {
			t.Errorf("MatchColumn(%q) = no match, want %q", tt.name, tt.want)
			continue
		}
		if got != tt.want {
			t.Errorf("MatchColumn(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestMatchColumnFuzzy(t *testing.T) {
	columns := []string{"Sales", "Region"}

	got, ok := MatchColumn("Slaes", columns)
	if !ok || got != "Sales" {
		t.Errorf("MatchColumn(\"Slaes\") = %q, %v, want \"Sales\", true", got, ok)
	}
}

func TestMatchColumnNoMatch(t *testing.T) {
	columns := []string{"Sales", "Region"}

	if got, ok := MatchColumn("Zzz", columns); ok {
		t.Errorf("MatchColumn(\"Zzz\") = %q, want no match", got)
	}
	if _, ok := MatchColumn("", columns); ok {
		t.Error("MatchColumn(\"\") matched, want no match")
	}
	if _, ok := MatchColumn("Sales", nil); ok {
		t.Error("MatchColumn on empty column set matched, want no match")
	}
}

func TestMatchColumnTieKeepsFirst(t *testing.T) {
	// Both candidates score identically against the query; the earlier
	// column wins.
	columns := []string{"value_a", "value_b"}

	got, ok := MatchColumn("value_x", columns)
	if !ok || got != "value_a" {
		t.Errorf("MatchColumn tie = %q, %v, want \"value_a\", true", got, ok)
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"Sales", "Sales", 1.0},
		{"Slaes", "Sales", 0.8},
		{"", "", 1.0},
		{"abc", "", 0.0},
	}
	for _, tt := range tests {
		if got := similarity(tt.a, tt.b); got != tt.want {
			t.Errorf("similarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
