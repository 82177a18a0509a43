package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service configuration, read from the process environment.
type Config struct {
	API       APIConfig
	Warehouse WarehouseConfig
	Jobs      JobsConfig
	Server    ServerConfig
	Log       LogConfig
	Archive   ArchiveConfig
	Runs      RunsConfig
	Alerts    AlertsConfig
	Secrets   SecretsConfig
}

// APIConfig describes the upstream report endpoint.
type APIConfig struct {
	Endpoint     string
	FetchTimeout time.Duration
}

// WarehouseConfig selects the destination warehouse.
type WarehouseConfig struct {
	Driver     string // "bigquery", "glue" or "memory"
	Project    string
	Dataset    string
	LakeBucket string
	LakePrefix string
}

// JobsConfig holds the per-job destination tables and tokens.
// Tokens may be plain values, "ssm:<parameter>" or "enc:<ciphertext>".
type JobsConfig struct {
	CurrentTable string
	CurrentToken string
	HistTable    string
	HistToken    string
}

type ServerConfig struct {
	Port string
}

type LogConfig struct {
	Level  string
	Format string
}

type ArchiveConfig struct {
	Bucket string
	Prefix string
}

type RunsConfig struct {
	Table string
	TTL   time.Duration
}

type AlertsConfig struct {
	TopicArn string
}

type SecretsConfig struct {
	TokenKeyB64 string
}

const (
	DriverBigQuery = "bigquery"
	DriverGlue     = "glue"
	DriverMemory   = "memory"
)

// Load reads configuration from environment variables with defaults.
// Missing tokens and table ids are not errors here: the routes that need
// them report a ConfigurationError when invoked.
func Load() (Config, error) {
	timeout, err := getenvDuration("FETCH_TIMEOUT", time.Hour)
	if err != nil {
		return Config{}, err
	}
	ttlDays, err := getenvInt("RUNS_TTL_DAYS", 30)
	if err != nil {
		return Config{}, err
	}

	driver := strings.ToLower(getenv("WAREHOUSE", DriverBigQuery))
	switch driver {
	case DriverBigQuery, DriverGlue, DriverMemory:
	default:
		return Config{}, fmt.Errorf("invalid value for WAREHOUSE: expected bigquery, glue or memory, got '%s'", driver)
	}

	cfg := Config{
		API: APIConfig{
			Endpoint:     getenv("API_LOCAL_URL", ""),
			FetchTimeout: timeout,
		},
		Warehouse: WarehouseConfig{
			Driver:     driver,
			Project:    getenv("PROJECT_ID", ""),
			Dataset:    getenv("DATASET_ID", ""),
			LakeBucket: getenv("LAKE_BUCKET", ""),
			LakePrefix: getenv("LAKE_PREFIX", "warehouse/"),
		},
		Jobs: JobsConfig{
			CurrentTable: getenv("TABLE_ID_24", ""),
			CurrentToken: getenv("TOKEN_CR_24", ""),
			HistTable:    getenv("TABLE_ID_HIST", ""),
			HistToken:    getenv("TOKEN_HIST", ""),
		},
		Server: ServerConfig{
			Port: getenv("PORT", "8080"),
		},
		Log: LogConfig{
			Level:  getenv("LOG_LEVEL", "info"),
			Format: getenv("LOG_FORMAT", "json"),
		},
		Archive: ArchiveConfig{
			Bucket: getenv("ARCHIVE_BUCKET", ""),
			Prefix: getenv("ARCHIVE_PREFIX", "report_archive/"),
		},
		Runs: RunsConfig{
			Table: getenv("RUNS_TABLE", ""),
			TTL:   time.Duration(ttlDays) * 24 * time.Hour,
		},
		Alerts: AlertsConfig{
			TopicArn: getenv("ALERTS_TOPIC_ARN", ""),
		},
		Secrets: SecretsConfig{
			TokenKeyB64: getenv("TOKEN_ENC_KEY_B64", ""),
		},
	}

	if cfg.Warehouse.Driver == DriverGlue && cfg.Warehouse.LakeBucket == "" {
		return Config{}, fmt.Errorf("missing env LAKE_BUCKET (required when WAREHOUSE=glue)")
	}
	return cfg, nil
}

// NeedsAWS reports whether any configured component talks to AWS.
func (c Config) NeedsAWS() bool {
	if c.Warehouse.Driver == DriverGlue || c.Archive.Bucket != "" || c.Runs.Table != "" || c.Alerts.TopicArn != "" {
		return true
	}
	return strings.HasPrefix(c.Jobs.CurrentToken, "ssm:") || strings.HasPrefix(c.Jobs.HistToken, "ssm:")
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid value for %s: expected a positive integer, got '%s'", key, v)
	}
	return n, nil
}

func getenvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid value for %s: expected a positive duration, got '%s'", key, v)
	}
	return d, nil
}
