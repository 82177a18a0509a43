// Package handlers exposes the sync operations over HTTP. The same route
// table backs the gin server and the API Gateway Lambda.
package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"rotationsync/internal/db"
	"rotationsync/internal/logging"
	"rotationsync/internal/pipeline"
	"rotationsync/internal/syncerr"
	"rotationsync/internal/warehouse"
)

type Syncer interface {
	RunJob(ctx context.Context, job pipeline.Job) (warehouse.Result, error)
	PreviewJob(ctx context.Context, job pipeline.Job) (pipeline.Preview, error)
}

type RunLister interface {
	Recent(ctx context.Context, job string, limit int) ([]db.Run, error)
}

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 100
)

// Failure messages, one per route.
const (
	msgFetchFailed = "error fetching and processing data"
	msgLoadFailed  = "error loading data into the warehouse"
	msgSyncFailed  = "error running the sync"
	msgHistFailed  = "error running the sync with the historical token"
	msgRunsFailed  = "error listing sync runs"
)

// ErrorBody is the envelope of every failed request.
type ErrorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

type API struct {
	svc  Syncer
	jobs map[string]pipeline.Job
	runs RunLister
	now  func() time.Time
}

// NewAPI builds the handlers. runs may be nil when no ledger is configured.
func NewAPI(svc Syncer, jobs map[string]pipeline.Job, runs RunLister) *API {
	return &API{svc: svc, jobs: jobs, runs: runs, now: time.Now}
}

type handlerFunc func(ctx context.Context, query url.Values) (int, any)

type route struct {
	method  string
	path    string
	handler handlerFunc
}

func (a *API) routes() []route {
	return []route{
		{http.MethodGet, "/", a.root},
		{http.MethodGet, "/health", a.health},
		{http.MethodPost, "/fetch_data", a.fetchData},
		{http.MethodPost, "/load_data", a.runJob(pipeline.JobCurrent, msgLoadFailed)},
		{http.MethodPost, "/carga_bigquery/cr_24", a.runJob(pipeline.JobCurrent, msgSyncFailed)},
		{http.MethodPost, "/carga_bigquery/cr_hist", a.runJob(pipeline.JobHistorical, msgHistFailed)},
		{http.MethodGet, "/runs", a.listRuns},
	}
}

func (a *API) root(context.Context, url.Values) (int, any) {
	return http.StatusOK, map[string]string{"message": "rotation sync service running"}
}

func (a *API) health(context.Context, url.Values) (int, any) {
	return http.StatusOK, map[string]string{
		"status":    "healthy",
		"message":   "service is up",
		"timestamp": a.now().Format(time.RFC3339),
	}
}

func (a *API) fetchData(ctx context.Context, _ url.Values) (int, any) {
	p, err := a.svc.PreviewJob(ctx, a.jobs[pipeline.JobCurrent])
	if err != nil {
		return failure(err, msgFetchFailed)
	}
	return http.StatusOK, p
}

func (a *API) runJob(name, failMsg string) handlerFunc {
	return func(ctx context.Context, _ url.Values) (int, any) {
		job, ok := a.jobs[name]
		if !ok {
			return failure(syncerr.New(syncerr.ConfigurationError, "job %s is not defined", name), failMsg)
		}
		res, err := a.svc.RunJob(ctx, job)
		if err != nil {
			return failure(err, failMsg)
		}
		return http.StatusOK, res
	}
}

func (a *API) listRuns(ctx context.Context, q url.Values) (int, any) {
	if a.runs == nil {
		return failure(syncerr.New(syncerr.ConfigurationError, "missing env RUNS_TABLE"), msgRunsFailed)
	}

	job := strings.TrimSpace(q.Get("job"))
	if job == "" {
		job = pipeline.JobCurrent
	}
	if _, ok := a.jobs[job]; !ok {
		return http.StatusBadRequest, ErrorBody{Error: "unknown job " + job, Message: msgRunsFailed}
	}

	limit := defaultRunsLimit
	if v := strings.TrimSpace(q.Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return http.StatusBadRequest, ErrorBody{Error: "limit must be a positive integer", Message: msgRunsFailed}
		}
		limit = min(n, maxRunsLimit)
	}

	runs, err := a.runs.Recent(ctx, job, limit)
	if err != nil {
		return failure(err, msgRunsFailed)
	}
	return http.StatusOK, map[string]any{"job": job, "runs": runs}
}

func failure(err error, message string) (int, any) {
	logging.For("handlers").Error(message, "kind", string(syncerr.KindOf(err)), "err", err)
	return http.StatusInternalServerError, ErrorBody{Success: false, Error: err.Error(), Message: message}
}
