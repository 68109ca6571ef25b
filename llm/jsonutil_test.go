package llm

import (
	"encoding/json"
	"testing"
)

func TestStripFences(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "no fences",
			input: `[{"category": "Network"}]`,
			want:  `[{"category": "Network"}]`,
		},
		{
			name:  "json fence",
			input: "```json\n[1, 2]\n```",
			want:  "[1, 2]",
		},
		{
			name:  "bare fence",
			input: "```\n[1, 2]\n```",
			want:  "[1, 2]",
		},
		{
			name:  "language tag other than json",
			input: "```yaml\nkey: value\n```",
			want:  "key: value",
		},
		{
			name:  "surrounding whitespace",
			input: "  \n```json\n{\"a\": 1}\n```  \n",
			want:  `{"a": 1}`,
		},
		{
			name:  "fence markers only",
			input: "```json\n```",
			want:  "",
		},
		{
			name:  "empty input",
			input: "",
			want:  "",
		},
		{
			name:  "whitespace only",
			input: "   \n\t",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StripFences(tt.input)
			if got != tt.want {
				t.Errorf("StripFences(%q) = %q, want %q", tt.input, got, tt.want)
			}

			// Stripping is stable under repeated application.
			again := StripFences(got)
			if again != got {
				t.Errorf("StripFences not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestExtractSpecBlock(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantKey string // expected key in the parsed object; "" means no block
	}{
		{
			name:    "fenced spec after prose",
			input:   "Here is your chart.\n```json\n{\"type\": \"bar\", \"x\": \"Month\"}\n```\nEnjoy.",
			wantKey: "type",
		},
		{
			name:    "fence without language tag",
			input:   "```\n{\"type\": \"pie\"}\n```",
			wantKey: "type",
		},
		{
			name:    "trailing comma cleaned",
			input:   "```json\n{\"type\": \"line\", \"x\": \"Month\",}\n```",
			wantKey: "type",
		},
		{
			name:    "line comments cleaned",
			input:   "```json\n{\n  \"type\": \"bar\",  // chart kind\n  \"x\": \"Region\"\n}\n```",
			wantKey: "type",
		},
		{
			name:  "no fenced object",
			input: "Just prose, no chart needed.",
		},
		{
			name:  "fenced array is not a spec",
			input: "```json\n[1, 2, 3]\n```",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractSpecBlock(tt.input)
			if tt.wantKey == "" {
				if got != "" {
					t.Errorf("expected no block, got %q", got)
				}
				return
			}

			var parsed map[string]any
			if err := json.Unmarshal([]byte(got), &parsed); err != nil {
				t.Fatalf("extracted block is not valid JSON: %v\nblock: %s", err, got)
			}
			if _, ok := parsed[tt.wantKey]; !ok {
				t.Errorf("expected key %q in %v", tt.wantKey, parsed)
			}
		})
	}
}

func TestCleanJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "trailing comma in array", input: `{"items": ["one", "two",]}`},
		{name: "trailing comma in object", input: `{"a": 1, "b": 2,}`},
		{name: "comment after url value", input: "{\n\"url\": \"http://example.com\" // the url\n}"},
		{name: "escaped quote in string", input: "{\n\"path\": \"a\\\"b//c\" // comment\n}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CleanJSON(tt.input)
			var parsed any
			if err := json.Unmarshal([]byte(result), &parsed); err != nil {
				t.Fatalf("cleaned JSON is invalid: %v\nresult: %s", err, result)
			}
		})
	}
}
