// Package incident parses incident summaries out of free-form model output.
// A summary is a JSON array of category buckets; validation is a closed-schema
// check, and invalid output is sent back to the model for bounded self-repair.
package incident

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Severity classifies an incident bucket.
type Severity string

// The three severities a bucket may carry.
const (
	SeverityHigh   Severity = "High"
	SeverityMedium Severity = "Medium"
	SeverityLow    Severity = "Low"
)

// maxExamples caps how many example strings a bucket may list.
const maxExamples = 5

// Bucket is a single incident category with its severity, count, and up to
// five example descriptions.
type Bucket struct {
	Category string   `json:"category"`
	Severity Severity `json:"severity"`
	Count    int      `json:"count"`
	Examples []string `json:"examples"`
}

// Summary is the root-level list of incident buckets.
type Summary []Bucket

// bucketKeys is the exact key set a bucket object may carry. Anything else is
// a validation failure, not a silent drop.
var bucketKeys = map[string]bool{
	"category": true,
	"severity": true,
	"count":    true,
	"examples": true,
}

// Validate checks text against the incident summary schema and returns the
// typed summary. The check is explicit and field-by-field: the root must be an
// array, every element must carry only the known keys, severity must be one of
// the three values, count must be a non-negative integer, and examples must be
// at most five strings. It never panics on malformed input.
func Validate(text string) (Summary, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var root any
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}

	list, ok := root.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: root must be an array", ErrSchemaViolation)
	}

	summary := make(Summary, 0, len(list))
	for i, elem := range list {
		bucket, err := validateBucket(elem)
		if err != nil {
			return nil, fmt.Errorf("%w: bucket %d: %v", ErrSchemaViolation, i, err)
		}
		summary = append(summary, bucket)
	}
	return summary, nil
}

func validateBucket(elem any) (Bucket, error) {
	obj, ok := elem.(map[string]any)
	if !ok {
		return Bucket{}, fmt.Errorf("must be an object")
	}

	for key := range obj {
		if !bucketKeys[key] {
			return Bucket{}, fmt.Errorf("unknown field %q", key)
		}
	}

	var b Bucket

	category, ok := obj["category"]
	if !ok {
		return Bucket{}, fmt.Errorf("missing field %q", "category")
	}
	b.Category, ok = category.(string)
	if !ok {
		return Bucket{}, fmt.Errorf("field %q must be a string", "category")
	}

	severity, ok := obj["severity"]
	if !ok {
		return Bucket{}, fmt.Errorf("missing field %q", "severity")
	}
	sevStr, ok := severity.(string)
	if !ok {
		return Bucket{}, fmt.Errorf("field %q must be a string", "severity")
	}
	switch Severity(sevStr) {
	case SeverityHigh, SeverityMedium, SeverityLow:
		b.Severity = Severity(sevStr)
	default:
		return Bucket{}, fmt.Errorf("field %q must be one of High, Medium, Low; got %q", "severity", sevStr)
	}

	count, ok := obj["count"]
	if !ok {
		return Bucket{}, fmt.Errorf("missing field %q", "count")
	}
	num, ok := count.(json.Number)
	if !ok {
		return Bucket{}, fmt.Errorf("field %q must be a number", "count")
	}
	n, err := num.Int64()
	if err != nil {
		return Bucket{}, fmt.Errorf("field %q must be an integer", "count")
	}
	if n < 0 {
		return Bucket{}, fmt.Errorf("field %q must be non-negative, got %d", "count", n)
	}
	b.Count = int(n)

	// examples is optional and defaults to empty.
	b.Examples = []string{}
	if examples, ok := obj["examples"]; ok {
		list, ok := examples.([]any)
		if !ok {
			return Bucket{}, fmt.Errorf("field %q must be an array", "examples")
		}
		if len(list) > maxExamples {
			return Bucket{}, fmt.Errorf("field %q allows at most %d entries, got %d", "examples", maxExamples, len(list))
		}
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return Bucket{}, fmt.Errorf("field %q entries must be strings", "examples")
			}
			b.Examples = append(b.Examples, s)
		}
	}

	return b, nil
}
