package bundle

import (
	"fmt"
	"math"

	"github.com/plotlinehq/plotline/chart"
	"github.com/plotlinehq/plotline/dataset"
)

// histogramBins matches the bin count of the original bundle tool.
const histogramBins = 20

// buildSlideChart turns a merged slide table into chart data for the
// classified type. The column choice mirrors the bundle tool's conventions:
// the first numeric column carries the values, the first column overall is
// the category axis for bar charts, and scatter pairs the first two numeric
// columns.
func buildSlideChart(table *dataset.Table, chartType string) (*chart.Data, error) {
	numeric := numericColumns(table)
	if len(numeric) == 0 {
		return nil, fmt.Errorf("no numeric columns")
	}
	columns := table.Columns()

	switch chartType {
	case "hist":
		return histogram(table, numeric[0])

	case "scatter":
		if len(numeric) < 2 {
			// Original falls through to a bar chart when scatter is
			// impossible.
			return resolveAs("bar", columns[0], numeric[0], table)
		}
		return resolveAs("scatter", numeric[0], numeric[1], table)

	case "line":
		x := columns[0]
		y := numeric[0]
		if len(numeric) > 1 {
			x = numeric[0]
			y = numeric[1]
		}
		return resolveAs("line", x, y, table)

	default: // bar or anything unexpected
		return resolveAs("bar", columns[0], numeric[0], table)
	}
}

func resolveAs(chartType, x, y string, table *dataset.Table) (*chart.Data, error) {
	return chart.Resolve(&chart.Spec{Type: chartType, X: x, Y: y}, table)
}

// histogram bins the column's numeric values into equal-width buckets.
func histogram(table *dataset.Table, col string) (*chart.Data, error) {
	values, _ := table.Column(col)

	var nums []float64
	min, max := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		n, ok := dataset.ParseNumber(v)
		if !ok {
			continue
		}
		nums = append(nums, n)
		if n < min {
			min = n
		}
		if n > max {
			max = n
		}
	}
	if len(nums) == 0 {
		return nil, fmt.Errorf("column %s has no numeric values", col)
	}

	bins := histogramBins
	width := (max - min) / float64(bins)
	if width == 0 {
		// All values identical: a single bucket.
		bins = 1
		width = 1
	}

	counts := make([]int, bins)
	for _, n := range nums {
		i := int((n - min) / width)
		if i >= bins {
			i = bins - 1
		}
		counts[i]++
	}

	labels := make([]string, bins)
	data := make([]any, bins)
	for i := 0; i < bins; i++ {
		lo := min + float64(i)*width
		labels[i] = fmt.Sprintf("%g", lo)
		data[i] = counts[i]
	}

	return &chart.Data{
		Type:   "hist",
		Labels: labels,
		Datasets: []chart.Dataset{{
			Label:           col,
			Data:            data,
			BackgroundColor: chart.DefaultColor,
		}},
	}, nil
}

// numericColumns returns the columns whose non-missing cells all parse as
// numbers, with at least one value present, in column order.
func numericColumns(table *dataset.Table) []string {
	var numeric []string
	for _, col := range table.Columns() {
		values, _ := table.Column(col)
		seen := false
		ok := true
		for _, v := range values {
			if v == "" {
				continue
			}
			if _, parses := dataset.ParseNumber(v); !parses {
				ok = false
				break
			}
			seen = true
		}
		if ok && seen {
			numeric = append(numeric, col)
		}
	}
	return numeric
}
