// Package warehouse writes normalized report tables to the configured
// warehouse: BigQuery load jobs, or Parquet files in S3 registered in Glue.
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"rotationsync/internal/logging"
	"rotationsync/internal/report"
	"rotationsync/internal/syncerr"
)

// Disposition selects what happens to rows already in the destination table.
type Disposition string

const (
	WriteTruncate Disposition = "WRITE_TRUNCATE"
	WriteAppend   Disposition = "WRITE_APPEND"
)

type FieldType string

const (
	FieldDate FieldType = "DATE"
	FieldTime FieldType = "TIME"
)

// Field pins the warehouse type of one column. Columns without a Field are
// typed from their values.
type Field struct {
	Name string
	Type FieldType
}

type Destination struct {
	Project string
	Dataset string
	Table   string
}

func (d Destination) String() string {
	return d.Project + "." + d.Dataset + "." + d.Table
}

type WriteRequest struct {
	Dest        Destination
	Columns     []string
	Rows        []report.Row
	Schema      []Field
	Disposition Disposition
}

type WriteResult struct {
	JobID       string
	RowsWritten int64
}

// TableWriter performs one blocking write. Implementations must not return
// until the rows are durable or the write has failed.
type TableWriter interface {
	Write(ctx context.Context, req WriteRequest) (WriteResult, error)
}

// Result is the outcome returned to callers of a sync.
type Result struct {
	Success          bool   `json:"success"`
	Message          string `json:"message"`
	RecordsProcessed int    `json:"records_processed"`
}

const (
	MessageLoaded = "processed and loaded"
	MessageNoData = "no data to load"
)

type Loader struct {
	writer  TableWriter
	project string
	dataset string
}

func NewLoader(w TableWriter, project, dataset string) *Loader {
	return &Loader{writer: w, project: project, dataset: dataset}
}

// SchemaFor returns the explicit fields for the coerced columns present in t.
func SchemaFor(t *report.Table) []Field {
	var fields []Field
	if t.HasColumn(report.DateColumn) {
		fields = append(fields, Field{Name: report.DateColumn, Type: FieldDate})
	}
	if t.HasColumn(report.TimeColumn) {
		fields = append(fields, Field{Name: report.TimeColumn, Type: FieldTime})
	}
	return fields
}

// Load writes t to tableID under disposition. A nil or empty table is a
// successful no-op.
func (l *Loader) Load(ctx context.Context, t *report.Table, tableID string, disposition Disposition) (Result, error) {
	log := logging.For("warehouse")

	tableID = strings.TrimSpace(tableID)
	if tableID == "" {
		return Result{}, syncerr.New(syncerr.ConfigurationError, "table id is not configured")
	}
	if t.Len() == 0 {
		log.Info("nothing to load", "table", tableID)
		return Result{Success: true, Message: MessageNoData, RecordsProcessed: 0}, nil
	}
	if l.project == "" {
		return Result{}, syncerr.New(syncerr.ConfigurationError, "missing env PROJECT_ID")
	}
	if l.dataset == "" {
		return Result{}, syncerr.New(syncerr.ConfigurationError, "missing env DATASET_ID")
	}
	if l.writer == nil {
		return Result{}, syncerr.New(syncerr.ConfigurationError, "no warehouse writer configured")
	}
	if disposition == "" {
		disposition = WriteTruncate
	}

	req := WriteRequest{
		Dest:        Destination{Project: l.project, Dataset: l.dataset, Table: tableID},
		Columns:     t.Columns,
		Rows:        t.Rows,
		Schema:      SchemaFor(t),
		Disposition: disposition,
	}

	log.Info("loading table", "destination", req.Dest.String(), "rows", t.Len(), "disposition", string(disposition))
	res, err := l.writer.Write(ctx, req)
	if err != nil {
		log.Error("load failed", "destination", req.Dest.String(), "err", err)
		return Result{}, syncerr.Wrap(syncerr.LoadFailure, err, "load into %s failed (%s)", req.Dest, errorTypeName(err))
	}
	log.Info("load complete", "destination", req.Dest.String(), "job_id", res.JobID, "rows_written", res.RowsWritten)
	if res.RowsWritten != int64(t.Len()) {
		log.Warn("warehouse row count differs from report",
			"destination", req.Dest.String(),
			"rows", t.Len(),
			"rows_written", res.RowsWritten,
		)
	}

	return Result{Success: true, Message: MessageLoaded, RecordsProcessed: t.Len()}, nil
}

// errorTypeName names the innermost error type in err's chain.
func errorTypeName(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			break
		}
		err = next
	}
	return strings.TrimPrefix(fmt.Sprintf("%T", err), "*")
}
