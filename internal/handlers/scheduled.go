package handlers

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"rotationsync/internal/pipeline"
	"rotationsync/internal/syncerr"
	"rotationsync/internal/warehouse"
)

type scheduleDetail struct {
	Job string `json:"job"`
}

// HandleScheduled runs the job named in the EventBridge detail
// ({"job": "cr_hist"}); an empty detail runs the current-day job.
func (a *API) HandleScheduled(ctx context.Context, ev events.CloudWatchEvent) (warehouse.Result, error) {
	var d scheduleDetail
	if len(ev.Detail) > 0 {
		if err := json.Unmarshal(ev.Detail, &d); err != nil {
			return warehouse.Result{}, syncerr.Wrap(syncerr.ConfigurationError, err, "invalid schedule detail")
		}
	}

	name := strings.TrimSpace(d.Job)
	if name == "" {
		name = pipeline.JobCurrent
	}
	job, ok := a.jobs[name]
	if !ok {
		return warehouse.Result{}, syncerr.New(syncerr.ConfigurationError, "unknown job %q, expected one of %v", name, pipeline.JobNames(a.jobs))
	}
	return a.svc.RunJob(ctx, job)
}
