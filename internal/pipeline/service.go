// Package pipeline runs a sync: fetch the report, normalize it and load it
// into the warehouse.
package pipeline

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"rotationsync/internal/archive"
	"rotationsync/internal/controlroll"
	"rotationsync/internal/db"
	"rotationsync/internal/logging"
	"rotationsync/internal/metrics"
	"rotationsync/internal/notify"
	"rotationsync/internal/report"
	"rotationsync/internal/syncerr"
	"rotationsync/internal/warehouse"
)

type Fetcher interface {
	Fetch(ctx context.Context, token string) (*controlroll.Response, error)
}

type TableLoader interface {
	Load(ctx context.Context, t *report.Table, tableID string, d warehouse.Disposition) (warehouse.Result, error)
}

type TokenResolver interface {
	Resolve(ctx context.Context, value string) (string, error)
}

type RunRecorder interface {
	Record(ctx context.Context, r db.Run, started time.Time) error
}

type Archiver interface {
	Put(ctx context.Context, e archive.Entry) error
}

type Alerter interface {
	SyncFailed(ctx context.Context, f notify.Failure) error
}

// Service wires the three stages together. Ledger, archive, alerts and
// metrics are optional; their failures are logged and never fail a sync.
type Service struct {
	fetcher  Fetcher
	loader   TableLoader
	resolver TokenResolver
	runs     RunRecorder
	archive  Archiver
	alerts   Alerter
	metrics  *metrics.Metrics
	log      *slog.Logger
	now      func() time.Time
	newID    func() string
}

type Option func(*Service)

func WithResolver(r TokenResolver) Option {
	return func(s *Service) { s.resolver = r }
}

func WithRuns(r RunRecorder) Option {
	return func(s *Service) { s.runs = r }
}

func WithArchive(a Archiver) Option {
	return func(s *Service) { s.archive = a }
}

func WithAlerts(a Alerter) Option {
	return func(s *Service) { s.alerts = a }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(f Fetcher, l TableLoader, opts ...Option) *Service {
	s := &Service{
		fetcher: f,
		loader:  l,
		log:     logging.For("pipeline"),
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// fetched is the output of the fetch and normalize stages.
type fetched struct {
	raw   []byte
	table *report.Table
}

func (s *Service) fetchAndNormalize(ctx context.Context, job, token string) (*fetched, error) {
	start := s.now()
	res, err := s.fetcher.Fetch(ctx, token)
	s.metrics.Fetch(job, s.now().Sub(start))
	if err != nil {
		return nil, err
	}

	table, err := report.Normalize(report.Raw{
		StatusCode:  res.StatusCode,
		ContentType: res.ContentType,
		Body:        res.Body,
	})
	if err != nil {
		return nil, err
	}
	return &fetched{raw: res.Body, table: table}, nil
}

// AdHocJob labels syncs started through Sync rather than a named Job.
const AdHocJob = "adhoc"

// Sync validates token and tableID, then fetches, normalizes and loads. The
// loader's result is returned unchanged. Nothing is rolled back on failure.
func (s *Service) Sync(ctx context.Context, token, tableID string, disposition warehouse.Disposition) (warehouse.Result, error) {
	res, _, err := s.sync(ctx, AdHocJob, token, tableID, disposition)
	return res, err
}

func (s *Service) sync(ctx context.Context, job, token, tableID string, disposition warehouse.Disposition) (warehouse.Result, *fetched, error) {
	if strings.TrimSpace(token) == "" {
		return warehouse.Result{}, nil, syncerr.New(syncerr.ConfigurationError, "no valid token provided for sync")
	}
	if strings.TrimSpace(tableID) == "" {
		return warehouse.Result{}, nil, syncerr.New(syncerr.ConfigurationError, "no valid table id provided for sync")
	}
	if disposition == "" {
		disposition = warehouse.WriteTruncate
	}

	s.log.Info("starting sync", "job", job, "table", tableID, "disposition", string(disposition))

	f, err := s.fetchAndNormalize(ctx, job, token)
	if err != nil {
		return warehouse.Result{}, nil, err
	}

	start := s.now()
	res, err := s.loader.Load(ctx, f.table, tableID, disposition)
	s.metrics.Load(job, s.now().Sub(start))
	if err != nil {
		return warehouse.Result{}, f, err
	}
	return res, f, nil
}

// RunJob resolves the job's token and runs Sync, recording the run in the
// ledger, archiving the report and alerting on failure when configured.
func (s *Service) RunJob(ctx context.Context, job Job) (warehouse.Result, error) {
	started := s.now()
	runID := s.newID()
	log := s.log.With("job", job.Name, "run_id", runID)

	var (
		res warehouse.Result
		f   *fetched
		err error
	)
	if strings.TrimSpace(job.TableID) == "" {
		err = syncerr.New(syncerr.ConfigurationError, "no valid table id configured for job %s", job.Name)
	} else {
		var token string
		token, err = s.resolveToken(ctx, job)
		if err == nil {
			res, f, err = s.sync(ctx, job.Name, token, job.TableID, job.Disposition)
		}
	}

	run := db.Run{
		ID:          runID,
		Job:         job.Name,
		Table:       job.TableID,
		Disposition: string(job.Disposition),
		DurationMs:  s.now().Sub(started).Milliseconds(),
	}
	if f != nil {
		run.Fingerprint = Fingerprint(f.raw)
	}

	if err != nil {
		kind := string(syncerr.KindOf(err))
		if kind == "" {
			kind = "Unknown"
		}
		log.Error("sync failed", "kind", kind, "err", err)
		run.Status, run.ErrorKind, run.Error = db.RunFailed, kind, err.Error()
		s.metrics.Run(job.Name, kind)
		s.record(ctx, log, run, started)
		s.alert(ctx, log, notify.Failure{Job: job.Name, Table: job.TableID, RunID: runID, Kind: kind, Message: err.Error()})
		return warehouse.Result{}, err
	}

	log.Info("sync complete", "records", res.RecordsProcessed, "message", res.Message)
	run.Status, run.Records = db.RunSucceeded, res.RecordsProcessed
	s.metrics.Run(job.Name, "success")
	s.metrics.Records(job.Name, res.RecordsProcessed)
	s.record(ctx, log, run, started)
	s.store(ctx, log, archive.Entry{Job: job.Name, RunID: runID, At: started, Raw: f.raw, Table: f.table})
	return res, nil
}

func (s *Service) resolveToken(ctx context.Context, job Job) (string, error) {
	if strings.TrimSpace(job.Token) == "" {
		return "", syncerr.New(syncerr.ConfigurationError, "no valid token configured for job %s", job.Name)
	}
	if s.resolver == nil {
		return strings.TrimSpace(job.Token), nil
	}
	return s.resolver.Resolve(ctx, job.Token)
}

func (s *Service) record(ctx context.Context, log *slog.Logger, run db.Run, started time.Time) {
	if s.runs == nil {
		return
	}
	if err := s.runs.Record(ctx, run, started); err != nil {
		log.Warn("run ledger write failed", "err", err)
	}
}

func (s *Service) store(ctx context.Context, log *slog.Logger, e archive.Entry) {
	if s.archive == nil {
		return
	}
	if err := s.archive.Put(ctx, e); err != nil {
		log.Warn("archive write failed", "err", err)
	}
}

func (s *Service) alert(ctx context.Context, log *slog.Logger, f notify.Failure) {
	if s.alerts == nil {
		return
	}
	if err := s.alerts.SyncFailed(ctx, f); err != nil {
		log.Warn("failure alert not sent", "err", err)
	}
}

// Fingerprint identifies a raw report body so identical upstream payloads can
// be spotted in the run ledger.
func Fingerprint(body []byte) string {
	return strconv.FormatUint(xxhash.Sum64(body), 16)
}
