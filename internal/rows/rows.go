// Package rows is the tabular result contract shared by the backend
// executors.
//
// A query yields named columns and rows of ir.Value literals; a missing or
// null cell is ir.Null. A mutation yields an affected-row count and, for
// inserts whose keys were generated, the generated primary keys in row
// order.
package rows

import (
	"fmt"

	"github.com/roach88/sqlbridge/internal/ir"
)

// Result is the outcome of one executed request.
type Result struct {
	Columns      []string
	Rows         [][]ir.Value
	RowCount     int64
	GeneratedIDs []ir.Value
}

// Append adds a row, padding missing trailing cells with ir.Null.
func (r *Result) Append(row []ir.Value) {
	for len(row) < len(r.Columns) {
		row = append(row, ir.Null{})
	}
	r.Rows = append(r.Rows, row)
	r.RowCount = int64(len(r.Rows))
}

// Iter returns an iterator positioned before the first row.
func (r *Result) Iter() *Iterator {
	index := make(map[string]int, len(r.Columns))
	for i, c := range r.Columns {
		if _, dup := index[c]; !dup {
			index[c] = i
		}
	}
	return &Iterator{result: r, index: index, pos: -1}
}

// Maps converts the rows to column-name keyed maps of plain Go values.
func (r *Result) Maps() ([]map[string]any, error) {
	out := make([]map[string]any, len(r.Rows))
	for i, row := range r.Rows {
		m := make(map[string]any, len(r.Columns))
		for j, c := range r.Columns {
			var cell ir.Value = ir.Null{}
			if j < len(row) {
				cell = row[j]
			}
			v, err := ir.Native(cell)
			if err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", i, c, err)
			}
			m[c] = v
		}
		out[i] = m
	}
	return out, nil
}

// Iterator walks a Result row by row.
//
// Not safe for concurrent use.
type Iterator struct {
	result  *Result
	index   map[string]int
	pos     int
	wasNull bool
}

// Next advances to the next row and reports whether one exists.
func (it *Iterator) Next() bool {
	if it.pos < len(it.result.Rows) {
		it.pos++
	}
	it.wasNull = false
	return it.pos < len(it.result.Rows)
}

// Columns returns the column names.
func (it *Iterator) Columns() []string {
	return it.result.Columns
}

// Value returns the cell at column i of the current row.
func (it *Iterator) Value(i int) (ir.Value, error) {
	if it.pos < 0 || it.pos >= len(it.result.Rows) {
		return nil, fmt.Errorf("no current row")
	}
	row := it.result.Rows[it.pos]
	if i < 0 || i >= len(it.result.Columns) {
		return nil, fmt.Errorf("column index %d out of range [0, %d)", i, len(it.result.Columns))
	}
	var v ir.Value = ir.Null{}
	if i < len(row) && row[i] != nil {
		v = row[i]
	}
	_, it.wasNull = v.(ir.Null)
	return v, nil
}

// ValueByName returns the cell of the named column in the current row.
func (it *Iterator) ValueByName(name string) (ir.Value, error) {
	i, ok := it.index[name]
	if !ok {
		return nil, fmt.Errorf("unknown column %q", name)
	}
	return it.Value(i)
}

// WasNull reports whether the last value read was null.
func (it *Iterator) WasNull() bool {
	return it.wasNull
}
