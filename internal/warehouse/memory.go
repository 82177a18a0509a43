package warehouse

import (
	"context"
	"strconv"
	"sync"

	"rotationsync/internal/report"
)

// MemoryWriter keeps tables in process memory. It backs WAREHOUSE=memory for
// local runs and stands in for the warehouse in tests.
type MemoryWriter struct {
	mu     sync.Mutex
	tables map[string]*report.Table
	calls  int
}

func NewMemoryWriter() *MemoryWriter {
	return &MemoryWriter{tables: map[string]*report.Table{}}
}

func (m *MemoryWriter) Write(_ context.Context, req WriteRequest) (WriteResult, error) {
	if _, err := Columns(req); err != nil {
		return WriteResult{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	key := req.Dest.String()
	cur, ok := m.tables[key]
	if !ok || req.Disposition == WriteTruncate {
		cur = &report.Table{}
		m.tables[key] = cur
	}

	for _, c := range req.Columns {
		if !cur.HasColumn(c) {
			cur.Columns = append(cur.Columns, c)
		}
	}
	for _, r := range req.Rows {
		cp := make(report.Row, len(r))
		for k, v := range r {
			cp[k] = v
		}
		cur.Rows = append(cur.Rows, cp)
	}

	return WriteResult{JobID: "memory-" + strconv.Itoa(m.calls), RowsWritten: int64(len(req.Rows))}, nil
}

// Table returns the stored table for dest, or nil.
func (m *MemoryWriter) Table(dest Destination) *report.Table {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tables[dest.String()]
}

// Calls counts Write invocations.
func (m *MemoryWriter) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
