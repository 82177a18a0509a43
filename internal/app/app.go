// Package app assembles the service from configuration. Every entrypoint
// under cmd/ builds the same App.
package app

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"rotationsync/internal/archive"
	"rotationsync/internal/config"
	"rotationsync/internal/controlroll"
	"rotationsync/internal/db"
	"rotationsync/internal/handlers"
	"rotationsync/internal/logging"
	"rotationsync/internal/metrics"
	"rotationsync/internal/notify"
	"rotationsync/internal/pipeline"
	"rotationsync/internal/secrets"
	"rotationsync/internal/warehouse"
)

type App struct {
	Config   config.Config
	Service  *pipeline.Service
	API      *handlers.API
	Registry *prometheus.Registry

	closers []func() error
}

// Build wires the pipeline and its optional extras. Missing tokens or table
// ids do not fail here; they fail the request that needs them.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logging.Init(cfg.Log.Format, logging.ParseLevel(cfg.Log.Level))
	log := logging.For("app")

	a := &App{Config: cfg, Registry: prometheus.NewRegistry()}
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var awsCfg *aws.Config
	if cfg.NeedsAWS() {
		c, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		awsCfg = &c
	}

	writer, err := a.tableWriter(ctx, cfg, awsCfg)
	if err != nil {
		return nil, err
	}

	opts := []pipeline.Option{pipeline.WithMetrics(metrics.New(a.Registry))}

	var cipher *secrets.Cipher
	if cfg.Secrets.TokenKeyB64 != "" {
		if cipher, err = secrets.NewCipher(cfg.Secrets.TokenKeyB64); err != nil {
			return nil, err
		}
	}
	var store secrets.ParameterStore
	if awsCfg != nil {
		store = ssm.NewFromConfig(*awsCfg)
	}
	opts = append(opts, pipeline.WithResolver(secrets.NewResolver(store, cipher)))

	var runs handlers.RunLister
	if cfg.Runs.Table != "" {
		rs := db.NewRunStoreFromConfig(*awsCfg, cfg.Runs.Table, cfg.Runs.TTL)
		runs = rs
		opts = append(opts, pipeline.WithRuns(rs))
	}
	if cfg.Archive.Bucket != "" {
		opts = append(opts, pipeline.WithArchive(archive.New(s3.NewFromConfig(*awsCfg), cfg.Archive.Bucket, cfg.Archive.Prefix)))
	}
	if cfg.Alerts.TopicArn != "" {
		opts = append(opts, pipeline.WithAlerts(notify.NewAlerts(sns.NewFromConfig(*awsCfg), cfg.Alerts.TopicArn)))
	}

	fetcher := controlroll.New(cfg.API.Endpoint, controlroll.WithTimeout(cfg.API.FetchTimeout))
	loader := warehouse.NewLoader(writer, cfg.Warehouse.Project, cfg.Warehouse.Dataset)
	a.Service = pipeline.New(fetcher, loader, opts...)
	a.API = handlers.NewAPI(a.Service, pipeline.JobsFrom(cfg), runs)

	log.Info("service configured",
		"warehouse", cfg.Warehouse.Driver,
		"archive", cfg.Archive.Bucket != "",
		"run_ledger", cfg.Runs.Table != "",
		"alerts", cfg.Alerts.TopicArn != "",
	)
	return a, nil
}

// tableWriter returns nil without error when the driver cannot be built for
// lack of a project; loads then fail with a ConfigurationError.
func (a *App) tableWriter(ctx context.Context, cfg config.Config, awsCfg *aws.Config) (warehouse.TableWriter, error) {
	switch cfg.Warehouse.Driver {
	case config.DriverMemory:
		return warehouse.NewMemoryWriter(), nil
	case config.DriverGlue:
		return warehouse.NewLakeWriter(s3.NewFromConfig(*awsCfg), glue.NewFromConfig(*awsCfg), cfg.Warehouse.LakeBucket, cfg.Warehouse.LakePrefix), nil
	default:
		if cfg.Warehouse.Project == "" {
			logging.For("app").Warn("PROJECT_ID is not set, loads will fail")
			return nil, nil
		}
		bq, err := warehouse.NewBigQueryWriter(ctx, cfg.Warehouse.Project)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, bq.Close)
		return bq, nil
	}
}

func (a *App) Close() error {
	var first error
	for _, c := range a.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
