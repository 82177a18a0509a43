package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"rotationsync/internal/db"
	"rotationsync/internal/pipeline"
	"rotationsync/internal/report"
	"rotationsync/internal/syncerr"
	"rotationsync/internal/warehouse"
)

type mockSyncer struct {
	mock.Mock
}

func (m *mockSyncer) RunJob(ctx context.Context, job pipeline.Job) (warehouse.Result, error) {
	args := m.Called(job.Name)
	return args.Get(0).(warehouse.Result), args.Error(1)
}

func (m *mockSyncer) PreviewJob(ctx context.Context, job pipeline.Job) (pipeline.Preview, error) {
	args := m.Called(job.Name)
	return args.Get(0).(pipeline.Preview), args.Error(1)
}

type mockRuns struct {
	mock.Mock
}

func (m *mockRuns) Recent(ctx context.Context, job string, limit int) ([]db.Run, error) {
	args := m.Called(job, limit)
	runs, _ := args.Get(0).([]db.Run)
	return runs, args.Error(1)
}

var testJobs = map[string]pipeline.Job{
	pipeline.JobCurrent:    {Name: pipeline.JobCurrent, TableID: "t24", Token: "a", Disposition: warehouse.WriteTruncate},
	pipeline.JobHistorical: {Name: pipeline.JobHistorical, TableID: "thist", Token: "b", Disposition: warehouse.WriteAppend},
}

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(t *testing.T, a *API, method, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	r := NewRouter(a, prometheus.NewRegistry())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, target, nil))

	var body map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestRootAndHealth(t *testing.T) {
	a := NewAPI(&mockSyncer{}, testJobs, nil)
	a.now = func() time.Time { return time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC) }

	rec, body := serve(t, a, http.MethodGet, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "rotation sync service running", body["message"])

	rec, body = serve(t, a, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "2024-03-15T10:00:00Z", body["timestamp"])
}

func TestLoadRoutesSelectJobs(t *testing.T) {
	s := &mockSyncer{}
	s.On("RunJob", pipeline.JobCurrent).Return(warehouse.Result{Success: true, Message: warehouse.MessageLoaded, RecordsProcessed: 5}, nil)
	s.On("RunJob", pipeline.JobHistorical).Return(warehouse.Result{Success: true, Message: warehouse.MessageLoaded, RecordsProcessed: 7}, nil)
	a := NewAPI(s, testJobs, nil)

	for path, want := range map[string]float64{
		"/load_data":              5,
		"/carga_bigquery/cr_24":   5,
		"/carga_bigquery/cr_hist": 7,
	} {
		rec, body := serve(t, a, http.MethodPost, path)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, true, body["success"], path)
		assert.Equal(t, want, body["records_processed"], path)
	}
	s.AssertNumberOfCalls(t, "RunJob", 3)
}

func TestFailureEnvelope(t *testing.T) {
	s := &mockSyncer{}
	s.On("RunJob", pipeline.JobHistorical).Return(warehouse.Result{}, syncerr.New(syncerr.ConfigurationError, "no valid table id configured for job cr_hist"))
	a := NewAPI(s, testJobs, nil)

	rec, body := serve(t, a, http.MethodPost, "/carga_bigquery/cr_hist")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, msgHistFailed, body["message"])
	assert.Contains(t, body["error"], "ConfigurationError")
}

func TestFetchData(t *testing.T) {
	s := &mockSyncer{}
	s.On("PreviewJob", pipeline.JobCurrent).Return(pipeline.Preview{
		Success:          true,
		Message:          pipeline.MessagePreviewed,
		RecordsProcessed: 1,
		Columns:          []string{"fecha"},
		SampleData:       []report.Row{{"fecha": "2024-03-15"}},
	}, nil)
	a := NewAPI(s, testJobs, nil)

	rec, body := serve(t, a, http.MethodPost, "/fetch_data")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"fecha"}, body["columns"])
	assert.Len(t, body["sample_data"], 1)
}

func TestFetchDataFailure(t *testing.T) {
	s := &mockSyncer{}
	s.On("PreviewJob", pipeline.JobCurrent).Return(pipeline.Preview{}, syncerr.New(syncerr.UpstreamError, "API returned an error: map[error:rate limited]"))
	a := NewAPI(s, testJobs, nil)

	rec, body := serve(t, a, http.MethodPost, "/fetch_data")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, msgFetchFailed, body["message"])
	assert.Contains(t, body["error"], "rate limited")
}

func TestRuns(t *testing.T) {
	runs := &mockRuns{}
	runs.On("Recent", pipeline.JobHistorical, maxRunsLimit).Return([]db.Run{{ID: "r1", Job: pipeline.JobHistorical, Status: db.RunSucceeded}}, nil)
	runs.On("Recent", pipeline.JobCurrent, defaultRunsLimit).Return([]db.Run{}, nil)
	a := NewAPI(&mockSyncer{}, testJobs, runs)

	rec, body := serve(t, a, http.MethodGet, "/runs?job=cr_hist&limit=500")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["runs"], 1)

	rec, _ = serve(t, a, http.MethodGet, "/runs")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = serve(t, a, http.MethodGet, "/runs?limit=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = serve(t, a, http.MethodGet, "/runs?job=nope")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	runs.AssertExpectations(t)
}

func TestRunsWithoutLedger(t *testing.T) {
	rec, body := serve(t, NewAPI(&mockSyncer{}, testJobs, nil), http.MethodGet, "/runs")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, body["error"], "RUNS_TABLE")
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "sample_total", Help: "sample"})
	reg.MustRegister(c)
	c.Inc()

	r := NewRouter(NewAPI(&mockSyncer{}, testJobs, nil), reg)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sample_total 1")
}

func apigwRequest(method, path string) events.APIGatewayV2HTTPRequest {
	var req events.APIGatewayV2HTTPRequest
	req.RawPath = path
	req.RequestContext.HTTP.Method = method
	return req
}

func TestHandleAPIGateway(t *testing.T) {
	s := &mockSyncer{}
	s.On("RunJob", pipeline.JobCurrent).Return(warehouse.Result{Success: true, Message: warehouse.MessageNoData}, nil)
	a := NewAPI(s, testJobs, nil)

	resp, err := a.HandleAPIGateway(context.Background(), apigwRequest("POST", "/carga_bigquery/cr_24/"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"success":true,"message":"no data to load","records_processed":0}`, resp.Body)
	assert.Equal(t, "application/json", resp.Headers["content-type"])

	resp, _ = a.HandleAPIGateway(context.Background(), apigwRequest("GET", "/load_data"))
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, _ = a.HandleAPIGateway(context.Background(), apigwRequest("GET", "/missing"))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleScheduled(t *testing.T) {
	s := &mockSyncer{}
	s.On("RunJob", pipeline.JobCurrent).Return(warehouse.Result{Success: true, RecordsProcessed: 1}, nil)
	s.On("RunJob", pipeline.JobHistorical).Return(warehouse.Result{Success: true, RecordsProcessed: 2}, nil)
	a := NewAPI(s, testJobs, nil)

	res, err := a.HandleScheduled(context.Background(), events.CloudWatchEvent{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.RecordsProcessed)

	res, err = a.HandleScheduled(context.Background(), events.CloudWatchEvent{Detail: json.RawMessage(`{"job":"cr_hist"}`)})
	require.NoError(t, err)
	assert.Equal(t, 2, res.RecordsProcessed)

	_, err = a.HandleScheduled(context.Background(), events.CloudWatchEvent{Detail: json.RawMessage(`{"job":"weekly"}`)})
	assert.True(t, syncerr.Is(err, syncerr.ConfigurationError))
}
