// Package transformer turns loosely-typed API records into a rectangular Table
// ready for a spreadsheet writer.
//
// Cell values after Transform are one of: nil, bool, int64, float64, string,
// time.Time, or whatever a column Func returned. Nested objects and lists never
// reach a writer; they are rendered as compact JSON text first.
package transformer

// Table is a column-ordered grid. Rows[i][j] belongs to Columns[j]; a record
// that lacked a column has a nil cell there.
type Table struct {
	Columns []string
	Rows    [][]any
}

// Empty reports whether the table has no rows.
func (t Table) Empty() bool { return len(t.Rows) == 0 }

// Len returns the number of rows.
func (t Table) Len() int { return len(t.Rows) }

// ColumnIndex returns the position of name, or -1.
func (t Table) ColumnIndex(name string) int {
	return indexOf(t.Columns, name)
}

func indexOf(cols []string, name string) int {
	if name == "" {
		return -1
	}
	for i, c := range cols {
		if c == name {
			return i
		}
	}
	return -1
}
