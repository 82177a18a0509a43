package pipeline

import (
	"context"
	"strings"

	"rotationsync/internal/report"
	"rotationsync/internal/syncerr"
)

const sampleSize = 3

// Preview is the result of fetching and normalizing without loading.
type Preview struct {
	Success          bool         `json:"success"`
	Message          string       `json:"message"`
	RecordsProcessed int          `json:"records_processed"`
	Columns          []string     `json:"columns"`
	SampleData       []report.Row `json:"sample_data"`
}

const (
	MessagePreviewed = "data fetched and processed"
	MessageNoRecords = "no data to process"
)

// Preview runs the fetch and normalize stages only.
func (s *Service) Preview(ctx context.Context, token string) (Preview, error) {
	if strings.TrimSpace(token) == "" {
		return Preview{}, syncerr.New(syncerr.ConfigurationError, "no valid token provided for fetch")
	}

	f, err := s.fetchAndNormalize(ctx, "preview", token)
	if err != nil {
		return Preview{}, err
	}

	p := Preview{
		Success:          true,
		Message:          MessagePreviewed,
		RecordsProcessed: f.table.Len(),
		Columns:          f.table.Columns,
		SampleData:       f.table.Head(sampleSize),
	}
	if p.RecordsProcessed == 0 {
		p.Message = MessageNoRecords
	}
	if p.Columns == nil {
		p.Columns = []string{}
	}
	return p, nil
}

// PreviewJob resolves job's token and previews its report.
func (s *Service) PreviewJob(ctx context.Context, job Job) (Preview, error) {
	token, err := s.resolveToken(ctx, job)
	if err != nil {
		return Preview{}, err
	}
	return s.Preview(ctx, token)
}
