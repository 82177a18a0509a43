package report

// Row maps canonical column names to values: string, json.Number, bool, nil,
// civil.Date or civil.Time.
type Row map[string]any

// Table is a normalized report. Every row holds every column.
type Table struct {
	Columns []string
	Rows    []Row
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

func (t *Table) HasColumn(name string) bool {
	if t == nil {
		return false
	}
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Head returns up to n leading rows.
func (t *Table) Head(n int) []Row {
	if t == nil || n <= 0 {
		return []Row{}
	}
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	out := make([]Row, n)
	copy(out, t.Rows[:n])
	return out
}
