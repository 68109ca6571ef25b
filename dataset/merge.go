package dataset

import "strings"

// Concat appends tables row-wise over the union of their columns. Column
// order is first-seen; cells absent from a source table stay missing. This is
// how multi-file uploads become one analyzable dataset.
func Concat(tables ...*Table) *Table {
	var cols []string
	seen := make(map[string]bool)
	for _, t := range tables {
		if t == nil {
			continue
		}
		for _, c := range t.cols {
			if !seen[c] {
				seen[c] = true
				cols = append(cols, c)
			}
		}
	}

	merged := New(cols)
	for _, t := range tables {
		if t == nil {
			continue
		}
		for r := range t.rows {
			row := make([]string, len(merged.cols))
			for i, c := range merged.cols {
				if idx, ok := t.colIndex[c]; ok {
					row[i] = t.rows[r][idx]
				}
			}
			merged.rows = append(merged.rows, row)
		}
	}
	return merged
}

// MergeOnCommon left-joins tables on their shared columns, taking the first
// matching row from the right side. When a table shares no columns with the
// accumulated result, merging stops and the result so far is returned.
func MergeOnCommon(tables []*Table) *Table {
	if len(tables) == 0 {
		return New(nil)
	}
	merged := tables[0]
	for _, next := range tables[1:] {
		var common []string
		for _, c := range merged.cols {
			if next.HasColumn(c) {
				common = append(common, c)
			}
		}
		if len(common) == 0 {
			break
		}
		merged = leftJoin(merged, next, common)
	}
	return merged
}

// leftJoin joins right onto left over the given key columns, first match wins.
func leftJoin(left, right *Table, keys []string) *Table {
	var extraCols []string
	for _, c := range right.cols {
		if !left.HasColumn(c) {
			extraCols = append(extraCols, c)
		}
	}

	// Index right rows by composite key; keep the first occurrence.
	rightByKey := make(map[string]int, len(right.rows))
	for r := range right.rows {
		k := joinKey(right, r, keys)
		if _, ok := rightByKey[k]; !ok {
			rightByKey[k] = r
		}
	}

	out := New(append(left.Columns(), extraCols...))
	for r := range left.rows {
		row := make([]string, 0, len(out.cols))
		row = append(row, left.rows[r]...)

		if rr, ok := rightByKey[joinKey(left, r, keys)]; ok {
			for _, c := range extraCols {
				row = append(row, right.rows[rr][right.colIndex[c]])
			}
		}
		out.AppendRow(row)
	}
	return out
}

// joinKey builds a composite key over the key columns of one row.
func joinKey(t *Table, row int, keys []string) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = t.rows[row][t.colIndex[k]]
	}
	return strings.Join(parts, "\x1f")
}
