// Package report turns the raw ControlRoll report into a warehouse-ready table.
package report

import (
	"fmt"

	"rotationsync/internal/logging"
	"rotationsync/internal/syncerr"
)

// Raw is the upstream response as the normalizer sees it.
type Raw struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

const diagnosticPrefix = 200

// Normalize parses raw, flattens it into a Table, canonicalizes column names
// and coerces the fecha/hora columns. An empty upstream list yields an empty
// Table and no error.
func Normalize(raw Raw) (*Table, error) {
	log := logging.For("report")

	payload, err := Classify(raw.Body)
	if err != nil {
		log.Error("upstream did not return valid JSON",
			"status", raw.StatusCode,
			"content_type", raw.ContentType,
			"body_prefix", prefix(raw.Body, 500),
		)
		return nil, &syncerr.Error{
			Kind:    syncerr.MalformedResponse,
			Message: fmt.Sprintf("API did not return valid JSON. Status: %d. First %d chars: %s", raw.StatusCode, diagnosticPrefix, prefix(raw.Body, diagnosticPrefix)),
			Status:  raw.StatusCode,
			Err:     err,
		}
	}

	switch payload.Kind {
	case KindErrorObject:
		return nil, &syncerr.Error{
			Kind:    syncerr.UpstreamError,
			Message: fmt.Sprintf("API returned an error: %v", payload.ErrorObject),
			Status:  raw.StatusCode,
		}
	case KindUnexpected:
		return nil, &syncerr.Error{
			Kind:    syncerr.UnexpectedShape,
			Message: fmt.Sprintf("API returned an unexpected type: %s", payload.JSONType),
			Status:  raw.StatusCode,
		}
	}

	if len(payload.Records) == 0 {
		log.Info("report is empty")
		return &Table{Columns: []string{}, Rows: []Row{}}, nil
	}

	log.Info("normalizing report", "shape", payload.Kind.String(), "records", len(payload.Records))
	table := flatten(payload.Records)

	if table.HasColumn(DateColumn) {
		log.Info("coercing column to date", "column", DateColumn)
		coerceColumn(table, DateColumn, ParseDate)
	}
	if table.HasColumn(TimeColumn) {
		log.Info("coercing column to time of day", "column", TimeColumn)
		coerceColumn(table, TimeColumn, ParseTime)
	}

	log.Info("report normalized", "records", table.Len(), "columns", len(table.Columns))
	return table, nil
}

// flatten builds rows over the union of canonical column names. When two
// source keys share a canonical name, the later key in the record wins.
func flatten(records []Record) *Table {
	table := &Table{Rows: make([]Row, 0, len(records))}
	seen := map[string]bool{}

	for _, rec := range records {
		row := make(Row, len(rec.Keys))
		for _, key := range rec.Keys {
			name := CanonicalName(key)
			if !seen[name] {
				seen[name] = true
				table.Columns = append(table.Columns, name)
			}
			row[name] = rec.Values[key]
		}
		table.Rows = append(table.Rows, row)
	}

	for _, row := range table.Rows {
		for _, col := range table.Columns {
			if _, ok := row[col]; !ok {
				row[col] = nil
			}
		}
	}
	return table
}

func coerceColumn(t *Table, column string, parse func(any) any) {
	for _, row := range t.Rows {
		row[column] = parse(row[column])
	}
}

func prefix(b []byte, n int) string {
	r := []rune(string(b))
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}
