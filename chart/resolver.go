package chart

import (
	"fmt"
	"sort"
	"strings"

	"github.com/plotlinehq/plotline/dataset"
	"github.com/plotlinehq/plotline/metrics"
)

// topValueCount caps the value-count fallback at the 20 most frequent
// values. Anything beyond is dropped with no "other" bucket.
const topValueCount = 20

// Resolve turns a chart spec into renderable chart data backed by the table.
// Column references are fuzzy-matched; each chart type applies its own
// aggregation rule. Failures are user-facing: a *ResolutionError with
// suggestions when columns cannot be matched, a *UnsupportedTypeError for
// unknown chart types. Resolve never mutates the spec or the table.
func Resolve(spec *Spec, table *dataset.Table) (*Data, error) {
	chartType := strings.ToLower(strings.TrimSpace(spec.Type))

	switch chartType {
	case "pie", "doughnut":
		if len(spec.Labels) > 0 && len(spec.Values) > 0 {
			metrics.ChartResolutions.WithLabelValues(chartType, "ok").Inc()
			return literalPie(chartType, spec), nil
		}
		return resolveAggregated(chartType, spec, table)
	case "bar", "line":
		return resolveAggregated(chartType, spec, table)
	case "scatter":
		return resolveScatter(spec, table)
	default:
		metrics.ChartResolutions.WithLabelValues("other", "unsupported_type").Inc()
		return nil, &UnsupportedTypeError{Type: spec.Type}
	}
}

// literalPie builds pie/doughnut data directly from spec-supplied labels and
// values, no dataset lookup involved.
func literalPie(chartType string, spec *Spec) *Data {
	var colors any
	if len(spec.Colors) > 0 {
		colors = spec.Colors
	} else {
		repeated := make([]string, len(spec.Labels))
		for i := range repeated {
			repeated[i] = DefaultColor
		}
		colors = repeated
	}

	data := make([]any, len(spec.Values))
	copy(data, spec.Values)

	return &Data{
		Type:   chartType,
		Labels: append([]string(nil), spec.Labels...),
		Datasets: []Dataset{{
			Label:           spec.Title,
			Data:            data,
			BackgroundColor: colors,
		}},
		Options: spec.Options,
	}
}

// resolveAggregated handles bar/line and pie/doughnut specs that reference
// dataset columns. With both x and y resolved it groups rows by x and sums y
// per group; with only x it falls back to value counts of x.
func resolveAggregated(chartType string, spec *Spec, table *dataset.Table) (*Data, error) {
	columns := table.Columns()
	xCol, xOK := MatchColumn(spec.X, columns)
	yCol, yOK := MatchColumn(spec.Y, columns)

	switch {
	case xOK && yOK:
		labels, sums := groupSum(table, xCol, yCol)
		metrics.ChartResolutions.WithLabelValues(chartType, "ok").Inc()
		return &Data{
			Type:   chartType,
			Labels: labels,
			Datasets: []Dataset{{
				Label:           yCol,
				Data:            sums,
				BackgroundColor: DefaultColor,
			}},
		}, nil

	case xOK:
		labels, counts := valueCounts(table, xCol)
		metrics.ChartResolutions.WithLabelValues(chartType, "ok").Inc()
		return &Data{
			Type:   chartType,
			Labels: labels,
			Datasets: []Dataset{{
				Label:           xCol,
				Data:            counts,
				BackgroundColor: DefaultColor,
			}},
		}, nil

	default:
		metrics.ChartResolutions.WithLabelValues(chartType, "unresolved_columns").Inc()
		return nil, resolutionError(spec, columns)
	}
}

// resolveScatter builds point data from rows where both columns hold a
// numeric value; rows missing either side are skipped, not zero-filled.
func resolveScatter(spec *Spec, table *dataset.Table) (*Data, error) {
	columns := table.Columns()
	xCol, xOK := MatchColumn(spec.X, columns)
	yCol, yOK := MatchColumn(spec.Y, columns)
	if !xOK || !yOK {
		metrics.ChartResolutions.WithLabelValues("scatter", "unresolved_columns").Inc()
		return nil, resolutionError(spec, columns)
	}

	var points []any
	for r := 0; r < table.NumRows(); r++ {
		xv, ok := table.Value(r, xCol)
		if !ok {
			continue
		}
		yv, ok := table.Value(r, yCol)
		if !ok {
			continue
		}
		x, ok := dataset.ParseNumber(xv)
		if !ok {
			continue
		}
		y, ok := dataset.ParseNumber(yv)
		if !ok {
			continue
		}
		points = append(points, Point{X: x, Y: y})
	}

	metrics.ChartResolutions.WithLabelValues("scatter", "ok").Inc()
	return &Data{
		Type: "scatter",
		Datasets: []Dataset{{
			Label:           fmt.Sprintf("%s vs %s", yCol, xCol),
			Data:            points,
			BackgroundColor: DefaultColor,
		}},
	}, nil
}

// groupSum groups rows by the x column and sums the y column per group.
// Group order is first encountered in the dataset; rows with a missing x are
// excluded, and non-numeric y cells contribute nothing to their group.
func groupSum(table *dataset.Table, xCol, yCol string) (labels []string, sums []any) {
	index := make(map[string]int)
	var totals []float64

	for r := 0; r < table.NumRows(); r++ {
		key, ok := table.Value(r, xCol)
		if !ok {
			continue
		}
		i, seen := index[key]
		if !seen {
			i = len(labels)
			index[key] = i
			labels = append(labels, key)
			totals = append(totals, 0)
		}
		if yv, ok := table.Value(r, yCol); ok {
			if y, ok := dataset.ParseNumber(yv); ok {
				totals[i] += y
			}
		}
	}

	sums = make([]any, len(totals))
	for i, v := range totals {
		sums[i] = v
	}
	return labels, sums
}

// valueCounts counts occurrences of each value in the column and keeps the
// topValueCount most frequent, ordered by count descending with ties broken
// by first appearance in the dataset.
func valueCounts(table *dataset.Table, col string) (labels []string, counts []any) {
	index := make(map[string]int)
	type entry struct {
		value string
		count int
		first int
	}
	var entries []entry

	for r := 0; r < table.NumRows(); r++ {
		v, ok := table.Value(r, col)
		if !ok {
			continue
		}
		i, seen := index[v]
		if !seen {
			i = len(entries)
			index[v] = i
			entries = append(entries, entry{value: v, first: r})
		}
		entries[i].count++
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].first < entries[j].first
	})

	if len(entries) > topValueCount {
		entries = entries[:topValueCount]
	}

	labels = make([]string, len(entries))
	counts = make([]any, len(entries))
	for i, e := range entries {
		labels[i] = e.value
		counts[i] = e.count
	}
	return labels, counts
}

// resolutionError assembles the user-facing failure naming the requested
// columns and suggesting the nearest real column for each, when one exists.
func resolutionError(spec *Spec, columns []string) *ResolutionError {
	e := &ResolutionError{
		RequestedX: spec.X,
		RequestedY: spec.Y,
		Available:  columns,
	}
	if spec.X != "" {
		if col, score := closestColumn(spec.X, columns); score > 0 {
			e.Suggestions = append(e.Suggestions, fmt.Sprintf("x: Did you mean %q?", col))
		}
	}
	if spec.Y != "" {
		if col, score := closestColumn(spec.Y, columns); score > 0 {
			e.Suggestions = append(e.Suggestions, fmt.Sprintf("y: Did you mean %q?", col))
		}
	}
	return e
}
