package warehouse

import (
	"bytes"
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
)

// BigQueryWriter loads tables with BigQuery load jobs fed from an in-memory
// Parquet file.
type BigQueryWriter struct {
	client *bigquery.Client
}

func NewBigQueryWriter(ctx context.Context, project string) (*BigQueryWriter, error) {
	if project == "" {
		return nil, fmt.Errorf("missing env PROJECT_ID")
	}
	client, err := bigquery.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("bigquery client: %w", err)
	}
	return &BigQueryWriter{client: client}, nil
}

func (w *BigQueryWriter) Close() error {
	return w.client.Close()
}

func (w *BigQueryWriter) Write(ctx context.Context, req WriteRequest) (WriteResult, error) {
	var buf bytes.Buffer
	if _, err := EncodeParquet(&buf, req); err != nil {
		return WriteResult{}, fmt.Errorf("encode %s: %w", req.Dest, err)
	}

	src := bigquery.NewReaderSource(&buf)
	src.SourceFormat = bigquery.Parquet

	loader := w.client.DatasetInProject(req.Dest.Project, req.Dest.Dataset).
		Table(req.Dest.Table).
		LoaderFrom(src)
	loader.CreateDisposition = bigquery.CreateIfNeeded
	loader.WriteDisposition = bigquery.TableWriteDisposition(req.Disposition)

	job, err := loader.Run(ctx)
	if err != nil {
		return WriteResult{}, fmt.Errorf("start load job: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return WriteResult{}, fmt.Errorf("wait for load job %s: %w", job.ID(), err)
	}
	if err := status.Err(); err != nil {
		return WriteResult{}, fmt.Errorf("load job %s: %w", job.ID(), err)
	}

	res := WriteResult{JobID: job.ID(), RowsWritten: int64(len(req.Rows))}
	if status.Statistics != nil {
		if ls, ok := status.Statistics.Details.(*bigquery.LoadStatistics); ok {
			res.RowsWritten = ls.OutputRows
		}
	}
	return res, nil
}
